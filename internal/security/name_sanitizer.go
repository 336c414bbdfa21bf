package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は表示名の最大文字数（rune単位）。
const maxDisplayNameLength = 100

// NameSanitizerService はプロバイダー由来の表示名のサニタイズ機能を定義する。
// 表示名はプレーンテキストとして扱い、マークアップは一切許可しない。
type NameSanitizerService interface {
	// Sanitize は表示名からHTMLタグ・スクリプトを除去したプレーンテキストを返す。
	// 前後の空白を除去し、最大100文字に切り詰める。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストのみを残す。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からマークアップを除去したプレーンテキストを返す。
func (s *nameSanitizer) Sanitize(name string) string {
	// StrictPolicyは残ったテキストをHTMLエスケープするため、
	// プレーンテキストとして保存するには参照を戻す必要がある
	cleaned := html.UnescapeString(s.policy.Sanitize(name))
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > maxDisplayNameLength {
		cleaned = string(runes[:maxDisplayNameLength])
	}
	return cleaned
}

// Package tokencrypt はOAuthトークンの保存時暗号化を提供する。
// XChaCha20-Poly1305によるAEADで、nonceは暗号文の先頭に連結して格納する。
// リポジトリ層が書き込み/読み出し時に透過的に適用し、
// 上位層（リゾルバ等）は暗号化の存在を意識しない。
package tokencrypt

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyLen は暗号鍵の長さ（バイト）。
const KeyLen = chacha20poly1305.KeySize

// Cipher はトークン列の暗号化・復号を行う。
type Cipher struct {
	key []byte
}

// NewCipher は32バイト鍵からCipherを生成する。
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("token encryption key must be %d bytes, got %d", KeyLen, len(key))
	}
	k := make([]byte, KeyLen)
	copy(k, key)
	return &Cipher{key: k}, nil
}

// ParseKey はhex文字列から32バイト鍵をデコードする。
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(key) != KeyLen {
		return nil, fmt.Errorf("key must decode to %d bytes, got %d", KeyLen, len(key))
	}
	return key, nil
}

// Seal は平文トークンを暗号化する。
// aadには紐付け先を識別する値（provider:provider_user_id等）を渡し、
// 行間での暗号文の付け替えを検知できるようにする。
// 空文字の平文はnilを返す（NULL格納用）。
func (c *Cipher) Seal(plaintext string, aad []byte) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plaintext), aad)...)
	return out, nil
}

// Open は暗号化済みトークンを復号する。
// nil/空のblobは空文字を返す（NULL列の読み出し用）。
func (c *Cipher) Open(blob []byte, aad []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	if len(blob) < chacha20poly1305.NonceSizeX {
		return "", errors.New("encrypted token too short")
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(plain), nil
}

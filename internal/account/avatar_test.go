package account

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// SSRF検証をパスさせ、素のHTTPクライアントを返すテスト用ガード。
type passThroughGuard struct {
	blockedURL string
}

func (g *passThroughGuard) ValidateURL(rawURL string) error {
	if g.blockedURL != "" && rawURL == g.blockedURL {
		return errors.New("blocked")
	}
	return nil
}

func (g *passThroughGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

var _ SSRFValidator = (*passThroughGuard)(nil)

// 画像が取得できることを検証
func TestFetchAvatar_Success(t *testing.T) {
	pngBytes := []byte("\x89PNG fake image data")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer server.Close()

	f := NewAvatarFetcher(&passThroughGuard{})

	data, mime, err := f.FetchAvatar(context.Background(), server.URL+"/avatar.png")
	if err != nil {
		t.Fatalf("FetchAvatar() error = %v", err)
	}
	if string(data) != string(pngBytes) {
		t.Error("fetched data should match response body")
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}
}

// 空URLはフェッチせずnilを返すことを検証
func TestFetchAvatar_EmptyURL(t *testing.T) {
	f := NewAvatarFetcher(&passThroughGuard{})

	data, mime, err := f.FetchAvatar(context.Background(), "")
	if err != nil || data != nil || mime != "" {
		t.Errorf("empty URL should yield (nil, \"\", nil), got (%v, %q, %v)", data, mime, err)
	}
}

// SSRFブロックされたURLはエラーなしでnilを返すことを検証
func TestFetchAvatar_SSRFBlocked(t *testing.T) {
	f := NewAvatarFetcher(&passThroughGuard{blockedURL: "http://169.254.169.254/avatar"})

	data, _, err := f.FetchAvatar(context.Background(), "http://169.254.169.254/avatar")
	if err != nil {
		t.Fatalf("blocked URL should not return error, got %v", err)
	}
	if data != nil {
		t.Error("blocked URL should yield nil data")
	}
}

// 画像以外のContent-Typeはnilを返すことを検証
func TestFetchAvatar_NonImageContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer server.Close()

	f := NewAvatarFetcher(&passThroughGuard{})

	data, _, err := f.FetchAvatar(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchAvatar() error = %v", err)
	}
	if data != nil {
		t.Error("non-image response should yield nil data")
	}
}

// サイズ超過の画像はnilを返すことを検証
func TestFetchAvatar_OversizedImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(strings.Repeat("x", maxAvatarSize+1)))
	}))
	defer server.Close()

	f := NewAvatarFetcher(&passThroughGuard{})

	data, _, err := f.FetchAvatar(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchAvatar() error = %v", err)
	}
	if data != nil {
		t.Error("oversized image should yield nil data")
	}
}

// エラーステータスはnilを返すことを検証
func TestFetchAvatar_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewAvatarFetcher(&passThroughGuard{})

	data, _, err := f.FetchAvatar(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchAvatar() error = %v", err)
	}
	if data != nil {
		t.Error("error status should yield nil data")
	}
}

// Content-Typeのcharsetパラメータが除去されることを検証
func TestExtractMimeType(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"image/png", "image/png"},
		{"IMAGE/JPEG; charset=utf-8", "image/jpeg"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractMimeType(tt.input); got != tt.want {
			t.Errorf("extractMimeType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

type mockAvatarFetcher struct {
	fetchFn func(ctx context.Context, avatarURL string) ([]byte, string, error)
}

func (m *mockAvatarFetcher) FetchAvatar(ctx context.Context, avatarURL string) ([]byte, string, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, avatarURL)
	}
	return nil, "", nil
}

// AvatarServiceが取得した画像をアカウントに保存することを検証
func TestAvatarService_UpdateFromURL(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockAvatarFetcher{
		fetchFn: func(ctx context.Context, avatarURL string) ([]byte, string, error) {
			return []byte("img"), "image/png", nil
		},
	}

	var storedID, storedMime string
	var storedData []byte
	repo := &mockAccountRepo{
		updateAvatarFn: func(ctx context.Context, accountID string, data []byte, mime string) error {
			storedID = accountID
			storedData = data
			storedMime = mime
			return nil
		},
	}

	svc := NewAvatarService(fetcher, repo)

	if err := svc.UpdateFromURL(ctx, "acct-1", "https://cdn.example.com/a.png"); err != nil {
		t.Fatalf("UpdateFromURL() error = %v", err)
	}
	if storedID != "acct-1" || string(storedData) != "img" || storedMime != "image/png" {
		t.Error("fetched avatar should be stored on the account")
	}
}

// 取得できなかった場合はエラーになり、保存されないことを検証
func TestAvatarService_UpdateFromURL_NothingFetched(t *testing.T) {
	ctx := context.Background()

	repo := &mockAccountRepo{
		updateAvatarFn: func(ctx context.Context, accountID string, data []byte, mime string) error {
			t.Fatal("nothing should be stored when fetch yields no data")
			return nil
		},
	}

	svc := NewAvatarService(&mockAvatarFetcher{}, repo)

	if err := svc.UpdateFromURL(ctx, "acct-1", "https://cdn.example.com/a.png"); err == nil {
		t.Fatal("expected error when no data was fetched")
	}
}

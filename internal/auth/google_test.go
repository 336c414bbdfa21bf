package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/playscore/internal/model"
)

func TestGoogleClient_LoginURL_ContainsRequiredParams(t *testing.T) {
	client := NewGoogleClient(GoogleConfig{
		ClientID:    "test-client-id",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	loginURL := client.LoginURL("test-state-value")

	if loginURL == "" {
		t.Fatal("expected non-empty URL")
	}

	tests := []struct {
		name     string
		contains string
	}{
		{"client_id", "client_id=test-client-id"},
		{"redirect_uri", "redirect_uri="},
		{"state", "state=test-state-value"},
		{"response_type", "response_type=code"},
		{"scope email", "email"},
		{"scope profile", "profile"},
		{"offline access", "access_type=offline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(loginURL, tt.contains) {
				t.Errorf("URL should contain %q, got %q", tt.contains, loginURL)
			}
		})
	}
}

func TestGoogleClient_Exchange_Success(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "test-access-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "test-refresh-token",
		})
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "Bearer test-access-token" {
			t.Errorf("unexpected Authorization header: %q", authHeader)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":            "google-sub-12345",
			"email":          "user@gmail.com",
			"email_verified": true,
			"name":           "Google User",
			"picture":        "https://lh3.googleusercontent.com/a/photo.jpg",
		})
	}))
	defer userInfoServer.Close()

	client := NewGoogleClient(GoogleConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	ctx := context.Background()
	assertion, err := client.Exchange(ctx, "test-auth-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if assertion.Provider != model.ProviderGoogle {
		t.Errorf("provider = %q, want google", assertion.Provider)
	}
	if assertion.ProviderUserID != "google-sub-12345" {
		t.Errorf("providerUserID = %q, want %q", assertion.ProviderUserID, "google-sub-12345")
	}
	if assertion.Email != "user@gmail.com" {
		t.Errorf("email = %q, want %q", assertion.Email, "user@gmail.com")
	}
	if !assertion.EmailVerified {
		t.Error("email_verified claim should carry over")
	}
	if assertion.DisplayName != "Google User" {
		t.Errorf("display name = %q, want %q", assertion.DisplayName, "Google User")
	}
	if assertion.AvatarURL == "" {
		t.Error("picture should map to avatar URL")
	}
	if assertion.AccessToken != "test-access-token" {
		t.Errorf("access token = %q", assertion.AccessToken)
	}
	if assertion.RefreshToken != "test-refresh-token" {
		t.Errorf("refresh token = %q", assertion.RefreshToken)
	}
	if assertion.ExpiresAt == nil {
		t.Error("expires_in should map to an absolute expiry")
	}
	if len(assertion.RawProfile) == 0 {
		t.Error("raw profile should carry the userinfo body")
	}
}

// email_verified=falseがそのまま伝わることを検証（自動リンク判定の前提）
func TestGoogleClient_Exchange_UnverifiedEmail(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sub":            "google-sub-67890",
			"email":          "unverified@example.com",
			"email_verified": false,
		})
	}))
	defer userInfoServer.Close()

	client := NewGoogleClient(GoogleConfig{
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	assertion, err := client.Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if assertion.EmailVerified {
		t.Error("unverified claim must not be reported as verified")
	}
}

func TestGoogleClient_Exchange_TokenError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer tokenServer.Close()

	client := NewGoogleClient(GoogleConfig{TokenURL: tokenServer.URL})

	if _, err := client.Exchange(context.Background(), "invalid-code"); err == nil {
		t.Fatal("expected error from Exchange with invalid code")
	}
}

func TestGoogleClient_Exchange_UserInfoError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer userInfoServer.Close()

	client := NewGoogleClient(GoogleConfig{
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	if _, err := client.Exchange(context.Background(), "valid-code"); err == nil {
		t.Fatal("expected error from Exchange when user info fetch fails")
	}
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestCSRFMiddleware_SafeMethod はGETリクエストが検証なしで通過し、
// トークンCookieが設定されることを検証する。
func TestCSRFMiddleware_SafeMethod(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	var called bool
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/eventSchedule", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("handler should be called for GET")
	}
	var tokenCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "csrf_token" {
			tokenCookie = c
		}
	}
	if tokenCookie == nil {
		t.Fatal("csrf_token cookie should be set")
	}
	if tokenCookie.HttpOnly {
		t.Error("csrf_token cookie must be readable from JavaScript")
	}
}

// TestCSRFMiddleware_ValidToken はCookieとヘッダーのトークンが一致する
// POSTが通過することを検証する。
func TestCSRFMiddleware_ValidToken(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	var called bool
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/createActivity", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-abc"})
	req.Header.Set("X-CSRF-Token", "token-abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("handler should be called with matching tokens")
	}
}

// TestCSRFMiddleware_Rejects はトークン不備のPOSTが403になることを検証する。
func TestCSRFMiddleware_Rejects(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	tests := []struct {
		name   string
		cookie string
		header string
	}{
		{name: "missing both", cookie: "", header: ""},
		{name: "missing header", cookie: "token-abc", header: ""},
		{name: "missing cookie", cookie: "", header: "token-abc"},
		{name: "mismatch", cookie: "token-abc", header: "token-xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/createActivity", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "csrf_token", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
			}
		})
	}
}

// TestCSRFTokenHandler はトークン取得エンドポイントの発行と再利用を検証する。
func TestCSRFTokenHandler(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	// 新規発行
	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["token"] == "" {
		t.Fatal("token should not be empty")
	}

	// 既存Cookieの再利用
	req = httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "existing-token"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	body = nil
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["token"] != "existing-token" {
		t.Errorf("token = %q, want %q", body["token"], "existing-token")
	}
}

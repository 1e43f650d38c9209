package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testAuth(t *testing.T, enabled bool) *JWTAuth {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	return NewJWTAuth(&JWTAuthConfig{
		Enabled:           enabled,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
		SkipPaths:         []string{"/health", "/auth/*"},
	})
}

func protected(auth *JWTAuth) http.Handler {
	return auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserFromContext(r.Context())))
	}))
}

func TestJWTAuth_TokenRoundTrip(t *testing.T) {
	auth := testAuth(t, true)

	token, err := auth.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q, want admin", claims.Username)
	}
}

func TestJWTAuth_RejectsWithoutToken(t *testing.T) {
	auth := testAuth(t, true)
	w := httptest.NewRecorder()
	protected(auth).ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestJWTAuth_AcceptsBearerToken(t *testing.T) {
	auth := testAuth(t, true)
	token, _ := auth.GenerateToken("admin")

	r := httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected(auth).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "admin" {
		t.Errorf("context user = %q, want admin", w.Body.String())
	}
}

func TestJWTAuth_AcceptsQueryToken(t *testing.T) {
	auth := testAuth(t, true)
	token, _ := auth.GenerateToken("admin")

	r := httptest.NewRequest("GET", "/ws/status?token="+token, nil)
	w := httptest.NewRecorder()
	protected(auth).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestJWTAuth_SkipPaths(t *testing.T) {
	auth := testAuth(t, true)

	for _, path := range []string{"/health", "/auth/login"} {
		w := httptest.NewRecorder()
		protected(auth).ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}
}

func TestJWTAuth_DisabledPassesThrough(t *testing.T) {
	auth := testAuth(t, false)
	w := httptest.NewRecorder()
	protected(auth).ServeHTTP(w, httptest.NewRequest("GET", "/api/status", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestValidateCredentials(t *testing.T) {
	auth := testAuth(t, true)

	if !auth.ValidateCredentials("admin", "hunter2") {
		t.Error("valid credentials rejected")
	}
	if auth.ValidateCredentials("admin", "wrong") {
		t.Error("wrong password accepted")
	}
	if auth.ValidateCredentials("root", "hunter2") {
		t.Error("wrong username accepted")
	}
}

func TestCORS(t *testing.T) {
	handler := NewCORS("https://ops.example.com").Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("allowed origin header = %q", got)
	}

	r = httptest.NewRequest("GET", "/api/status", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got header %q", got)
	}

	r = httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	r.Header.Set("Origin", "https://ops.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", w.Code)
	}
}

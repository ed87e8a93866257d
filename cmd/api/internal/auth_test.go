package internal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateAndValidateToken(t *testing.T) {
	jm := &JWTManager{secretKey: "test-secret"}

	token, err := jm.GenerateToken("analyst", "analyst@example.com", 1)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	claims, err := jm.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken rejected a fresh token: %v", err)
	}
	if claims.UserID != "analyst" {
		t.Errorf("UserID = %q, want analyst", claims.UserID)
	}

	if _, err := jm.ValidateToken(token + "tampered"); err == nil {
		t.Error("tampered token validated")
	}

	other := &JWTManager{secretKey: "different-secret"}
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with another secret validated")
	}
}

func TestHandleGenerateToken(t *testing.T) {
	t.Setenv("API_USERNAME", "analyst")
	t.Setenv("API_PASSWORD", "hunter2")

	jm := &JWTManager{secretKey: "test-secret"}
	api := &API{JWTManager: jm}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid credentials", `{"username":"analyst","password":"hunter2"}`, http.StatusOK},
		{"wrong password", `{"username":"analyst","password":"nope"}`, http.StatusUnauthorized},
		{"malformed body", `{not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/token", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			api.HandleGenerateToken(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleGenerateTokenUnconfigured(t *testing.T) {
	t.Setenv("API_USERNAME", "")
	t.Setenv("API_PASSWORD", "")

	api := &API{JWTManager: &JWTManager{secretKey: "test-secret"}}
	req := httptest.NewRequest("POST", "/api/token", strings.NewReader(`{"username":"a","password":"b"}`))
	rec := httptest.NewRecorder()
	api.HandleGenerateToken(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d when credentials are unset", rec.Code, http.StatusServiceUnavailable)
	}
}

// An issued token must get a request through the auth middleware; a missing
// one must not.
func TestIssuedTokenPassesMiddleware(t *testing.T) {
	t.Setenv("API_USERNAME", "analyst")
	t.Setenv("API_PASSWORD", "hunter2")

	jm := &JWTManager{secretKey: "test-secret"}
	api := &API{JWTManager: jm}

	issueReq := httptest.NewRequest("POST", "/api/token",
		strings.NewReader(`{"username":"analyst","password":"hunter2"}`))
	issueRec := httptest.NewRecorder()
	api.HandleGenerateToken(issueRec, issueReq)
	if issueRec.Code != http.StatusOK {
		t.Fatalf("token issuance failed with status %d", issueRec.Code)
	}

	body := issueRec.Body.String()
	start := strings.Index(body, `"token":"`)
	if start == -1 {
		t.Fatalf("no token in response: %s", body)
	}
	token := body[start+len(`"token":"`):]
	token = token[:strings.Index(token, `"`)]

	reached := false
	protected := JWTAuthMiddleware(jm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/runs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	if !reached || rec.Code != http.StatusOK {
		t.Errorf("issued token rejected by middleware: status %d, reached %v", rec.Code, reached)
	}

	bare := httptest.NewRequest("GET", "/api/runs", nil)
	bareRec := httptest.NewRecorder()
	protected.ServeHTTP(bareRec, bare)
	if bareRec.Code != http.StatusUnauthorized {
		t.Errorf("request without a token got status %d, want 401", bareRec.Code)
	}
}

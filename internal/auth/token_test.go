package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parkpass/internal/models"
)

const testSecret = "test-secret-not-for-production"

func testSession(exp time.Time) models.Session {
	return models.Session{
		StaffId:   "staff001",
		StaffName: "John Entry",
		Role:      models.RoleEntry,
		DeviceId:  "device-test-1",
		ExpiresAt: exp,
	}
}

func TestTokenRoundtrip(t *testing.T) {
	want := testSession(time.Now().Add(time.Hour))
	token, err := NewToken(testSecret, want)
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}

	got, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if got.StaffId != want.StaffId || got.StaffName != want.StaffName {
		t.Errorf("session = %+v, want %+v", got, want)
	}
	if got.Role != models.RoleEntry || got.DeviceId != want.DeviceId {
		t.Errorf("role/device = %s/%s, want entry/device-test-1", got.Role, got.DeviceId)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := NewToken(testSecret, testSession(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	if _, err := ParseToken("some-other-secret", token); err != ErrInvalidToken {
		t.Errorf("ParseToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	token, err := NewToken(testSecret, testSession(time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}
	if _, err := ParseToken(testSecret, token); err != ErrInvalidToken {
		t.Errorf("ParseToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	for _, tok := range []string{"", "not.a.jwt", "abc"} {
		if _, err := ParseToken(testSecret, tok); err != ErrInvalidToken {
			t.Errorf("ParseToken(%q) error = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestPinHashing(t *testing.T) {
	hash, err := HashPin("4321")
	if err != nil {
		t.Fatalf("HashPin() error = %v", err)
	}
	if hash == "4321" {
		t.Fatal("pin stored in clear")
	}
	if !VerifyPin(hash, "4321") {
		t.Error("VerifyPin rejected the correct pin")
	}
	if VerifyPin(hash, "1234") {
		t.Error("VerifyPin accepted a wrong pin")
	}
}

func TestMiddleware(t *testing.T) {
	token, err := NewToken(testSecret, testSession(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("NewToken() error = %v", err)
	}

	var seen *models.Session
	handler := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionFrom(r.Context())
	}))

	tests := []struct {
		name       string
		authHeader string
		wantCode   int
	}{
		{"validToken", "Bearer " + token, http.StatusOK},
		{"noHeader", "", http.StatusUnauthorized},
		{"malformedHeader", "Token abc", http.StatusUnauthorized},
		{"invalidToken", "Bearer garbage", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && (seen == nil || seen.StaffId != "staff001") {
				t.Errorf("session in context = %+v", seen)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	adminToken, _ := NewToken(testSecret, models.Session{
		StaffId: "staff002", StaffName: "Admin", Role: models.RoleAdmin,
		DeviceId: "device-test-1", ExpiresAt: time.Now().Add(time.Hour),
	})
	entryToken, _ := NewToken(testSecret, testSession(time.Now().Add(time.Hour)))

	handler := Middleware(testSecret)(RequireRole(models.RoleAdmin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	))

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{"adminAllowed", adminToken, http.StatusOK},
		{"entryForbidden", entryToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "jwt-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func runRequest(t *testing.T, authorization string) (*httptest.ResponseRecorder, int64, bool) {
	t.Helper()
	var (
		gotID int64
		gotOK bool
	)
	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = AccountIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), AuthMiddleware(testSecret))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispense", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotID, gotOK
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"account_id": 7,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	rec, id, ok := runRequest(t, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !ok || id != 7 {
		t.Fatalf("account id = %d/%v, want 7", id, ok)
	}
}

func TestAuthMiddlewareStringAccountID(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"account_id": "42"})

	rec, id, _ := runRequest(t, "Bearer "+token)
	if rec.Code != http.StatusOK || id != 42 {
		t.Fatalf("status=%d id=%d, want 200/42", rec.Code, id)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	expired := signToken(t, testSecret, jwt.MapClaims{
		"account_id": 7,
		"exp":        time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, "other-secret", jwt.MapClaims{"account_id": 7})
	noAccount := signToken(t, testSecret, jwt.MapClaims{"sub": "7"})

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"garbage token":  "Bearer not.a.jwt",
		"expired":        "Bearer " + expired,
		"wrong key":      "Bearer " + wrongKey,
		"no account id":  "Bearer " + noAccount,
	}
	for name, header := range cases {
		rec, _, ok := runRequest(t, header)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
		if ok {
			t.Fatalf("%s: handler ran with an account id", name)
		}
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http/middleware"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

const accountTestSecret = "account-handler-test-secret"

type fakeAccounts struct {
	account *models.Account
}

func (f *fakeAccounts) Get(_ context.Context, id int64) (*models.Account, error) {
	if f.account == nil || f.account.ID != id {
		return nil, models.ErrNotFound
	}
	return f.account, nil
}

func accountToken(t *testing.T, accountID int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(accountTestSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func balanceRequest(t *testing.T, accounts Accounts, token string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewAccountHandlers(accounts, zap.NewNop())
	chained := middleware.Chain(http.HandlerFunc(h.Balance),
		middleware.AuthMiddleware(accountTestSecret))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/account/balance", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	chained.ServeHTTP(rec, req)
	return rec
}

func TestBalanceReturnsOwnAccount(t *testing.T) {
	accounts := &fakeAccounts{account: &models.Account{ID: 7, Kind: "user", Balance: 2500}}
	rec := balanceRequest(t, accounts, accountToken(t, 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		AccountID int64 `json:"account_id"`
		Balance   int64 `json:"balance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body %s: %v", rec.Body.String(), err)
	}
	if body.AccountID != 7 || body.Balance != 2500 {
		t.Fatalf("body = %+v", body)
	}
}

func TestBalanceUnknownAccount(t *testing.T) {
	accounts := &fakeAccounts{account: &models.Account{ID: 7, Balance: 2500}}
	rec := balanceRequest(t, accounts, accountToken(t, 8))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBalanceRequiresAuth(t *testing.T) {
	accounts := &fakeAccounts{account: &models.Account{ID: 7, Balance: 2500}}
	rec := balanceRequest(t, accounts, "")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

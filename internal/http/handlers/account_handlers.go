package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http/middleware"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// Accounts reads account records.
type Accounts interface {
	Get(ctx context.Context, id int64) (*models.Account, error)
}

// AccountHandlers serves the wallet endpoints. An account only ever sees
// itself: the id comes from the bearer token, never from the request.
type AccountHandlers struct {
	accounts Accounts
	logger   *zap.Logger
}

// NewAccountHandlers builds handlers.
func NewAccountHandlers(accounts Accounts, logger *zap.Logger) *AccountHandlers {
	return &AccountHandlers{accounts: accounts, logger: logger}
}

// Balance handles GET /api/v1/account/balance.
func (h *AccountHandlers) Balance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "account not resolved")
		return
	}

	account, err := h.accounts.Get(r.Context(), accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": account.ID,
		"balance":    account.Balance,
	})
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// AccountRepository reads accounts. Balance mutations never go through here:
// every credit and debit is a conditional statement inside the store
// transaction of the order it belongs to.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository returns repository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Get fetches an account.
func (r *AccountRepository) Get(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, kind, balance FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Kind, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

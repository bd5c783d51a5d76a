package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// RefundRepository drives differential refund records and their audit trail.
// Records are created by the settlement store when a maximum-balance order
// completes; status flips here are guarded so a sweep racing a previous,
// slow sweep never processes the same record twice.
type RefundRepository struct {
	db *sql.DB
}

// NewRefundRepository returns repository.
func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

// ListDue returns records the sweeper should attempt: not yet successful and
// under the retry ceiling.
func (r *RefundRepository) ListDue(ctx context.Context, maxRetries, limit int) ([]models.RefundRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_no, account_id, authorized_amount, actual_amount,
		       refund_amount, status, retry_count, last_error, created_at,
		       claimed_at, refunded_at
		FROM refund_records
		WHERE status IN ($1, $2, $3) AND retry_count < $4
		ORDER BY created_at
		LIMIT $5
	`, models.RefundPending, models.RefundProcessing, models.RefundFailed, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.RefundRecord
	for rows.Next() {
		var rec models.RefundRecord
		if err := rows.Scan(
			&rec.ID, &rec.OrderNo, &rec.AccountID, &rec.AuthorizedAmount,
			&rec.ActualAmount, &rec.RefundAmount, &rec.Status, &rec.RetryCount,
			&rec.LastError, &rec.CreatedAt, &rec.ClaimedAt, &rec.RefundedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkProcessing claims a record for this sweep. A record another sweep is
// still holding stays claimed until its stamp is older than reclaimAfter;
// false means the record is either resolved or legitimately held elsewhere.
func (r *RefundRepository) MarkProcessing(ctx context.Context, id int64, reclaimAfter time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refund_records SET status = $2, claimed_at = NOW()
		WHERE id = $1
		  AND (status IN ($3, $4)
		       OR (status = $5 AND claimed_at < NOW() - make_interval(secs => $6)))
	`, id, models.RefundProcessing,
		models.RefundPending, models.RefundFailed, models.RefundProcessing,
		reclaimAfter.Seconds())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkSuccess finishes a record.
func (r *RefundRepository) MarkSuccess(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refund_records SET status = $2, last_error = '', refunded_at = $3
		WHERE id = $1
	`, id, models.RefundSuccess, at)
	return err
}

// MarkFailure records a failed attempt and bumps the retry counter.
func (r *RefundRepository) MarkFailure(ctx context.Context, id int64, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refund_records
		SET status = $2, retry_count = retry_count + 1, last_error = $3
		WHERE id = $1
	`, id, models.RefundFailed, lastError)
	return err
}

// RecordAudit links a finished refund back to its parent order.
func (r *RefundRepository) RecordAudit(ctx context.Context, entry models.RefundAuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refund_audit_entries (id, order_no, amount, created_at)
		VALUES ($1, $2, $3, NOW())
	`, entry.ID, entry.OrderNo, entry.Amount)
	return err
}

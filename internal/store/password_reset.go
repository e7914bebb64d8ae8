package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/google/uuid"
)

const resetTTL = 15 * time.Minute

type PasswordResetStore struct {
	db *sql.DB
}

func NewPasswordResetStore(db *sql.DB) *PasswordResetStore {
	return &PasswordResetStore{db: db}
}

const resetCols = `id, account_id, code, expires_at, used_at, attempts`

func scanReset(sc scanner) (*model.PasswordReset, error) {
	var r model.PasswordReset
	var expires int64
	var used sql.NullInt64
	if err := sc.Scan(&r.ID, &r.AccountID, &r.Code, &expires, &used, &r.Attempts); err != nil {
		return nil, err
	}
	r.ExpiresAt = time.Unix(expires, 0).UTC()
	if used.Valid {
		t := time.Unix(used.Int64, 0).UTC()
		r.UsedAt = &t
	}
	return &r, nil
}

// generateCode returns a 6-digit numeric code (100000-999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create issues a new reset code for the account with a 15-minute expiry.
// Pending codes for the same account are invalidated first.
func (s *PasswordResetStore) Create(ctx context.Context, accountID string) (*model.PasswordReset, error) {
	now := time.Now()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE password_resets SET used_at = ? WHERE account_id = ? AND used_at IS NULL`,
		now.Unix(), accountID,
	); err != nil {
		return nil, classify("invalidate previous codes", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO password_resets (id, account_id, code, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, accountID, code, now.Add(resetTTL).Unix(), now.UnixMilli(),
	); err != nil {
		return nil, classify("insert password reset", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+resetCols+` FROM password_resets WHERE id = ?`, id)
	return scanReset(row)
}

// GetLatest returns the newest usable code of the account, or nil.
func (s *PasswordResetStore) GetLatest(ctx context.Context, accountID string) (*model.PasswordReset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resetCols+` FROM password_resets
		 WHERE account_id = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		accountID, time.Now().Unix(),
	)
	r, err := scanReset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get password reset", err)
	}
	return r, nil
}

// IncrementAttempts increments the attempt count and returns the new value.
func (s *PasswordResetStore) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx,
		`UPDATE password_resets SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`, id,
	).Scan(&attempts)
	if err != nil {
		return 0, classify("increment attempts", err)
	}
	return attempts, nil
}

func (s *PasswordResetStore) MarkUsed(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE password_resets SET used_at = ? WHERE id = ?`, time.Now().Unix(), id,
	); err != nil {
		return classify("mark reset used", err)
	}
	return nil
}

func (s *PasswordResetStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, classify("delete expired resets", err)
	}
	return res.RowsAffected()
}

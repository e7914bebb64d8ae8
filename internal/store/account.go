package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountCols = `id, email, password_hash, family_id, created_at`

func scanAccount(sc scanner) (*model.Account, error) {
	var a model.Account
	if err := sc.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FamilyID, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create stores a new account. Emails are unique regardless of case.
func (s *AccountStore) Create(ctx context.Context, id, email, passwordHash, familyID string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, family_id) VALUES (?, ?, ?, ?)`,
		id, email, passwordHash, familyID,
	)
	if err != nil {
		err = classify("insert account", err)
		if ledger.KindOf(err) == ledger.ErrDuplicate {
			return nil, ledger.E(ledger.ErrDuplicate, "create account", "an account with this email already exists")
		}
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get account", err)
	}
	return a, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)),
	)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get account by email", err)
	}
	return a, nil
}

func (s *AccountStore) SetPassword(ctx context.Context, id, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE accounts SET password_hash = ? WHERE id = ?`, passwordHash, id); err != nil {
		return classify("set password", err)
	}
	return nil
}

func (s *AccountStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return classify("delete account", err)
	}
	return nil
}

func (s *AccountStore) CountByFamily(ctx context.Context, familyID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE family_id = ?`, familyID).Scan(&n); err != nil {
		return 0, classify("count accounts", err)
	}
	return n, nil
}

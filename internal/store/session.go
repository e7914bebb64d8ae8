package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionCols = `id, account_id, family_id, member_id, expires_at, created_at`

func scanSession(sc scanner) (*model.Session, error) {
	var sess model.Session
	var expires int64
	if err := sc.Scan(&sess.ID, &sess.AccountID, &sess.FamilyID, &sess.MemberID, &expires, &sess.CreatedAt); err != nil {
		return nil, err
	}
	sess.ExpiresAt = time.Unix(expires, 0).UTC()
	return &sess, nil
}

// Create stores a session under id, which is also the token's jti claim.
func (s *SessionStore) Create(ctx context.Context, id, accountID, familyID, memberID string, expiresAt time.Time) (*model.Session, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, family_id, member_id, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, accountID, familyID, memberID, expiresAt.Unix(),
	)
	if err != nil {
		return nil, classify("insert session", err)
	}
	return s.Get(ctx, id)
}

// Get returns nil for unknown or expired sessions.
func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = ? AND expires_at > ?`, id, time.Now().Unix(),
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get session", err)
	}
	return sess, nil
}

func (s *SessionStore) SetMember(ctx context.Context, id, memberID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET member_id = ? WHERE id = ?`, memberID, id); err != nil {
		return classify("set session member", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return classify("delete session", err)
	}
	return nil
}

// DeleteByAccount signs an account out everywhere.
func (s *SessionStore) DeleteByAccount(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE account_id = ?`, accountID); err != nil {
		return classify("delete account sessions", err)
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, classify("delete expired sessions", err)
	}
	return res.RowsAffected()
}

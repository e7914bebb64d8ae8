package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, family_id, name, balance, role, avatar_url, pin_hash IS NOT NULL, sort_order, version`

func scanMember(sc scanner) (*model.Member, error) {
	var m model.Member
	var role string
	err := sc.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Balance, &role, &m.AvatarURL, &m.HasPIN, &m.SortOrder, &m.Version)
	if err != nil {
		return nil, err
	}
	m.Role = model.Role(role)
	return &m, nil
}

func getMember(ctx context.Context, q queryer, familyID, id string) (*model.Member, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+memberCols+` FROM members WHERE id = ? AND family_id = ?`, id, familyID,
	)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get member", err)
	}
	return m, nil
}

func insertMember(ctx context.Context, q queryer, m model.Member) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO members (id, family_id, name, balance, role, avatar_url, sort_order, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FamilyID, m.Name, m.Balance, string(m.Role), m.AvatarURL, m.SortOrder, m.Version,
	)
	if err != nil {
		return classify("insert member", err)
	}
	return nil
}

func (s *MemberStore) Get(ctx context.Context, familyID, id string) (*model.Member, error) {
	return getMember(ctx, s.db, familyID, id)
}

func (s *MemberStore) List(ctx context.Context, familyID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY sort_order, rowid`, familyID,
	)
	if err != nil {
		return nil, classify("list members", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// Create inserts m. When opening is non-nil the member starts with
// opening.Points and the opening transaction is written in the same commit.
func (s *MemberStore) Create(ctx context.Context, m model.Member, opening *model.Transaction) (*model.Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin tx", err)
	}
	defer tx.Rollback()

	var maxOrder int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), -1) FROM members WHERE family_id = ?`, m.FamilyID,
	).Scan(&maxOrder)
	if err != nil {
		return nil, classify("query max sort_order", err)
	}

	m.SortOrder = maxOrder + 1
	m.Balance = 0
	m.Version = 0
	if opening != nil {
		m.Balance = opening.Points
	}
	if err := insertMember(ctx, tx, m); err != nil {
		return nil, err
	}
	if opening != nil {
		if err := insertTransaction(ctx, tx, *opening); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit member", err)
	}
	return s.Get(ctx, m.FamilyID, m.ID)
}

// NameExists compares names case-insensitively within the family.
func (s *MemberStore) NameExists(ctx context.Context, familyID, name, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE family_id = ? AND name = ? COLLATE NOCASE AND id != ?`,
		familyID, name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, classify("check name exists", err)
	}
	return count > 0, nil
}

func (s *MemberStore) Update(ctx context.Context, familyID, id, name, avatarURL string) (*model.Member, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET name = ?, avatar_url = ? WHERE id = ? AND family_id = ?`,
		name, avatarURL, id, familyID,
	)
	if err != nil {
		return nil, classify("update member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ledger.E(ledger.ErrNotFound, "update member", "member not found")
	}
	return s.Get(ctx, familyID, id)
}

func (s *MemberStore) UpdateSortOrder(ctx context.Context, familyID string, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE members SET sort_order = ? WHERE id = ? AND family_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i, id, familyID); err != nil {
			return fmt.Errorf("update sort order for id %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *MemberStore) SetPIN(ctx context.Context, familyID, id, hashedPIN string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET pin_hash = ? WHERE id = ? AND family_id = ?`, hashedPIN, id, familyID,
	)
	if err != nil {
		return classify("set pin", err)
	}
	return nil
}

func (s *MemberStore) ClearPIN(ctx context.Context, familyID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET pin_hash = NULL WHERE id = ? AND family_id = ?`, id, familyID,
	)
	if err != nil {
		return classify("clear pin", err)
	}
	return nil
}

// GetPINHash returns "" when the member has no PIN.
func (s *MemberStore) GetPINHash(ctx context.Context, familyID, id string) (string, error) {
	var pin sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT pin_hash FROM members WHERE id = ? AND family_id = ?`, id, familyID,
	).Scan(&pin)
	if err == sql.ErrNoRows {
		return "", ledger.E(ledger.ErrNotFound, "get pin", "member not found")
	}
	if err != nil {
		return "", classify("query pin", err)
	}
	return pin.String, nil
}

func familyCounts(ctx context.Context, q queryer, familyID string) (members, admins int, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(role = 'admin'), 0) FROM members WHERE family_id = ?`, familyID,
	).Scan(&members, &admins)
	if err != nil {
		return 0, 0, classify("count members", err)
	}
	return members, admins, nil
}

// Delete removes a member and, through the cascade, its transactions. It
// refuses to remove the last member or the last admin.
func (s *MemberStore) Delete(ctx context.Context, familyID, id string) error {
	const op = "delete member"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback()

	m, err := getMember(ctx, tx, familyID, id)
	if err != nil {
		return err
	}
	if m == nil {
		return ledger.E(ledger.ErrNotFound, op, "member not found")
	}

	members, admins, err := familyCounts(ctx, tx, familyID)
	if err != nil {
		return err
	}
	if members <= 1 {
		return ledger.E(ledger.ErrInvariantViolation, op, "a family must keep at least one member")
	}
	if m.Role == model.RoleAdmin && admins <= 1 {
		return ledger.E(ledger.ErrInvariantViolation, op, "a family must keep at least one admin")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM members WHERE id = ? AND family_id = ?`, id, familyID); err != nil {
		return classify(op, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE families SET current_member_id = '' WHERE id = ? AND current_member_id = ?`, familyID, id,
	); err != nil {
		return classify("reset current member", err)
	}
	return tx.Commit()
}

// SetRole changes a member's role. Demoting the last admin is refused.
func (s *MemberStore) SetRole(ctx context.Context, familyID, id string, role model.Role) (*model.Member, error) {
	const op = "change role"

	if !role.Valid() {
		return nil, ledger.E(ledger.ErrInvalid, op, "unknown role "+string(role))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin tx", err)
	}
	defer tx.Rollback()

	m, err := getMember(ctx, tx, familyID, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ledger.E(ledger.ErrNotFound, op, "member not found")
	}
	if m.Role == role {
		return m, nil
	}

	if m.Role == model.RoleAdmin {
		_, admins, err := familyCounts(ctx, tx, familyID)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, ledger.E(ledger.ErrInvariantViolation, op, "a family must keep at least one admin")
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE members SET role = ? WHERE id = ? AND family_id = ?`, string(role), id, familyID,
	); err != nil {
		return nil, classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify("commit role", err)
	}

	m.Role = role
	return m, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

const familyCols = `id, name, current_member_id`

func scanFamily(sc scanner) (*model.Family, error) {
	var f model.Family
	if err := sc.Scan(&f.ID, &f.Name, &f.CurrentMemberID); err != nil {
		return nil, err
	}
	return &f, nil
}

// Create provisions a family. Creating an existing id is a no-op that returns
// the stored family.
func (s *FamilyStore) Create(ctx context.Context, id, name string) (*model.Family, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO families (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
		id, name,
	)
	if err != nil {
		return nil, classify("insert family", err)
	}
	return s.Get(ctx, id)
}

func (s *FamilyStore) Get(ctx context.Context, id string) (*model.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get family", err)
	}
	return f, nil
}

func (s *FamilyStore) Rename(ctx context.Context, id, name string) (*model.Family, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE families SET name = ? WHERE id = ?`, name, id); err != nil {
		return nil, classify("rename family", err)
	}
	return s.Get(ctx, id)
}

func (s *FamilyStore) SetCurrentMember(ctx context.Context, id, memberID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE families SET current_member_id = ? WHERE id = ?`, memberID, id); err != nil {
		return classify("set current member", err)
	}
	return nil
}

func (s *FamilyStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM families WHERE id = ?`, id); err != nil {
		return classify("delete family", err)
	}
	return nil
}

// Seed inserts the default admin and catalog in a single transaction, but only
// when the family has no members yet. It reports whether anything was written.
func (s *FamilyStore) Seed(ctx context.Context, familyID string, admin model.Member, tasks []model.Task, rewards []model.Reward) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, classify("begin tx", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE family_id = ?`, familyID).Scan(&count); err != nil {
		return false, classify("count members", err)
	}
	if count > 0 {
		return false, nil
	}

	admin.FamilyID = familyID
	if err := insertMember(ctx, tx, admin); err != nil {
		return false, err
	}
	for i, t := range tasks {
		t.FamilyID = familyID
		t.SortOrder = i
		if err := insertTask(ctx, tx, t); err != nil {
			return false, fmt.Errorf("seed task %q: %w", t.Title, err)
		}
	}
	for i, r := range rewards {
		r.FamilyID = familyID
		r.SortOrder = i
		if err := insertReward(ctx, tx, r); err != nil {
			return false, fmt.Errorf("seed reward %q: %w", r.Title, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE families SET current_member_id = ? WHERE id = ?`, admin.ID, familyID,
	); err != nil {
		return false, classify("set current member", err)
	}

	if err := tx.Commit(); err != nil {
		return false, classify("commit seed", err)
	}
	return true, nil
}

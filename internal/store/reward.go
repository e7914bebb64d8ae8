package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardCols = `id, family_id, title, points, type, image_url, status, requested_by, sort_order`

func scanReward(sc scanner) (*model.Reward, error) {
	var r model.Reward
	var typ, status string
	err := sc.Scan(&r.ID, &r.FamilyID, &r.Title, &r.Points, &typ, &r.ImageURL, &status, &r.RequestedBy, &r.SortOrder)
	if err != nil {
		return nil, err
	}
	r.Type = model.RewardType(typ)
	r.Status = model.RewardStatus(status)
	return &r, nil
}

func insertReward(ctx context.Context, q queryer, r model.Reward) error {
	if r.Status == "" {
		r.Status = model.StatusActive
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO rewards (`+rewardCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FamilyID, r.Title, r.Points, string(r.Type), r.ImageURL, string(r.Status), r.RequestedBy, r.SortOrder,
	)
	if err != nil {
		return classify("insert reward", err)
	}
	return nil
}

func (s *RewardStore) Create(ctx context.Context, r model.Reward) (*model.Reward, error) {
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), -1) + 1 FROM rewards WHERE family_id = ?`, r.FamilyID,
	).Scan(&r.SortOrder)
	if err != nil {
		return nil, classify("query max sort_order", err)
	}
	if err := insertReward(ctx, s.db, r); err != nil {
		return nil, err
	}
	return s.Get(ctx, r.FamilyID, r.ID)
}

func (s *RewardStore) Get(ctx context.Context, familyID, id string) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE id = ? AND family_id = ?`, id, familyID)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get reward", err)
	}
	return r, nil
}

// List returns every reward of the family including pending and rejected
// wishlist entries.
func (s *RewardStore) List(ctx context.Context, familyID string) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE family_id = ? ORDER BY sort_order, rowid`, familyID,
	)
	if err != nil {
		return nil, classify("list rewards", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(ctx context.Context, r model.Reward) (*model.Reward, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET title = ?, points = ?, type = ?, image_url = ? WHERE id = ? AND family_id = ?`,
		r.Title, r.Points, string(r.Type), r.ImageURL, r.ID, r.FamilyID,
	)
	if err != nil {
		return nil, classify("update reward", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ledger.E(ledger.ErrNotFound, "update reward", "reward not found")
	}
	return s.Get(ctx, r.FamilyID, r.ID)
}

func (s *RewardStore) SetStatus(ctx context.Context, familyID, id string, status model.RewardStatus) (*model.Reward, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rewards SET status = ? WHERE id = ? AND family_id = ?`, string(status), id, familyID,
	)
	if err != nil {
		return nil, classify("set reward status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ledger.E(ledger.ErrNotFound, "set reward status", "reward not found")
	}
	return s.Get(ctx, familyID, id)
}

func (s *RewardStore) Delete(ctx context.Context, familyID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rewards WHERE id = ? AND family_id = ?`, id, familyID)
	if err != nil {
		return classify("delete reward", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.E(ledger.ErrNotFound, "delete reward", "reward not found")
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

// SnapshotStore reads and replaces a family's full ledger state.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Export reads the family inside one transaction so the snapshot is consistent.
func (s *SnapshotStore) Export(ctx context.Context, familyID string) (*model.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, classify("begin tx", err)
	}
	defer tx.Rollback()

	f, err := scanFamily(tx.QueryRowContext(ctx, `SELECT `+familyCols+` FROM families WHERE id = ?`, familyID))
	if err == sql.ErrNoRows {
		return nil, ledger.E(ledger.ErrNotFound, "export family", "family not found")
	}
	if err != nil {
		return nil, classify("export family", err)
	}
	snap := &model.Snapshot{Family: *f}

	rows, err := tx.QueryContext(ctx, `SELECT `+memberCols+` FROM members WHERE family_id = ? ORDER BY sort_order, rowid`, familyID)
	if err != nil {
		return nil, classify("export members", err)
	}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan member: %w", err)
		}
		snap.Members = append(snap.Members, *m)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE family_id = ? ORDER BY sort_order, rowid`, familyID)
	if err != nil {
		return nil, classify("export tasks", err)
	}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		snap.Tasks = append(snap.Tasks, *t)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT `+rewardCols+` FROM rewards WHERE family_id = ? ORDER BY sort_order, rowid`, familyID)
	if err != nil {
		return nil, classify("export rewards", err)
	}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		snap.Rewards = append(snap.Rewards, *r)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `SELECT `+transactionCols+` FROM transactions WHERE family_id = ?`+transactionOrder, familyID)
	if err != nil {
		return nil, classify("export transactions", err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, err
	}
	snap.Transactions = txs

	return snap, tx.Commit()
}

// Replace swaps the family's members, catalog and transactions for the ones
// in snap. Accounts and sessions of the family are kept.
func (s *SnapshotStore) Replace(ctx context.Context, snap model.Snapshot) error {
	familyID := snap.Family.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO families (id, name, current_member_id) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, current_member_id = excluded.current_member_id`,
		familyID, snap.Family.Name, snap.Family.CurrentMemberID,
	); err != nil {
		return classify("upsert family", err)
	}

	for _, table := range []string{"transactions", "members", "tasks", "rewards"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE family_id = ?`, familyID); err != nil {
			return classify("clear "+table, err)
		}
	}

	for _, m := range snap.Members {
		m.FamilyID = familyID
		if err := insertMember(ctx, tx, m); err != nil {
			return err
		}
	}
	for _, t := range snap.Tasks {
		t.FamilyID = familyID
		if err := insertTask(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, r := range snap.Rewards {
		r.FamilyID = familyID
		if err := insertReward(ctx, tx, r); err != nil {
			return err
		}
	}
	// Oldest first so rowid order matches timestamp order on reload.
	for i := len(snap.Transactions) - 1; i >= 0; i-- {
		t := snap.Transactions[i]
		t.FamilyID = familyID
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}
	}

	return classify("commit snapshot", tx.Commit())
}

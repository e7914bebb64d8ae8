package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionCols = `id, family_id, member_id, title, points, type, timestamp, from_member_id, to_member_id, grant_key`

// Newest first. rowid breaks ties between transactions written in the same millisecond.
const transactionOrder = ` ORDER BY timestamp DESC, rowid DESC`

func scanTransaction(sc scanner) (*model.Transaction, error) {
	var t model.Transaction
	var kind string
	var ms int64
	var grantKey sql.NullString
	err := sc.Scan(&t.ID, &t.FamilyID, &t.MemberID, &t.Title, &t.Points, &kind, &ms, &t.FromMemberID, &t.ToMemberID, &grantKey)
	if err != nil {
		return nil, err
	}
	t.Kind = model.TransactionKind(kind)
	t.Timestamp = time.UnixMilli(ms).UTC()
	t.GrantKey = grantKey.String
	return &t, nil
}

func insertTransaction(ctx context.Context, q queryer, t model.Transaction) error {
	var grantKey sql.NullString
	if t.GrantKey != "" {
		grantKey = sql.NullString{String: t.GrantKey, Valid: true}
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, t.MemberID, t.Title, t.Points, string(t.Kind), t.Timestamp.UnixMilli(),
		t.FromMemberID, t.ToMemberID, grantKey,
	)
	if err != nil {
		return classify("insert transaction", err)
	}
	return nil
}

func collectTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ListByMember returns the member's history, newest first. limit <= 0 means all.
func (s *TransactionStore) ListByMember(ctx context.Context, familyID, memberID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE family_id = ? AND member_id = ?`+transactionOrder+` LIMIT ?`,
		familyID, memberID, limit,
	)
	if err != nil {
		return nil, classify("list member transactions", err)
	}
	return collectTransactions(rows)
}

// ListByFamily returns every transaction of the family, newest first.
func (s *TransactionStore) ListByFamily(ctx context.Context, familyID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE family_id = ?`+transactionOrder+` LIMIT ?`,
		familyID, limit,
	)
	if err != nil {
		return nil, classify("list family transactions", err)
	}
	return collectTransactions(rows)
}

func (s *TransactionStore) SumByMember(ctx context.Context, familyID, memberID string) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM transactions WHERE family_id = ? AND member_id = ?`,
		familyID, memberID,
	).Scan(&sum)
	if err != nil {
		return 0, classify("sum transactions", err)
	}
	return sum, nil
}

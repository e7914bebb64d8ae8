package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/database"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// setupFamily creates family f1 with an admin "Mom" and a standard member
// "Ann", each holding the given opening balance.
func setupFamily(t *testing.T, db *sql.DB, opening int) (admin, kid *model.Member) {
	t.Helper()
	ctx := context.Background()

	if _, err := NewFamilyStore(db).Create(ctx, "f1", "Test Family"); err != nil {
		t.Fatalf("create family: %v", err)
	}
	admin = createMember(t, db, "f1", "m-admin", "Mom", model.RoleAdmin, opening)
	kid = createMember(t, db, "f1", "m-kid", "Ann", model.RoleStandard, opening)
	return admin, kid
}

func createMember(t *testing.T, db *sql.DB, familyID, id, name string, role model.Role, opening int) *model.Member {
	t.Helper()

	var tx *model.Transaction
	if opening != 0 {
		open, err := ledger.NewTransaction(ledger.TxParams{
			FamilyID: familyID, MemberID: id, Title: "Opening balance",
			Points: opening, Kind: model.KindAdjustment,
		})
		if err != nil {
			t.Fatalf("opening tx: %v", err)
		}
		tx = &open
	}
	m, err := NewMemberStore(db).Create(context.Background(),
		model.Member{ID: id, FamilyID: familyID, Name: name, Role: role}, tx)
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}

func newTx(t *testing.T, p ledger.TxParams) model.Transaction {
	t.Helper()
	if p.FamilyID == "" {
		p.FamilyID = "f1"
	}
	tx, err := ledger.NewTransaction(p)
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	return tx
}

// assertBalanced fails when any member's balance drifts from its history.
func assertBalanced(t *testing.T, db *sql.DB, familyID string) {
	t.Helper()
	ctx := context.Background()

	members, err := NewMemberStore(db).List(ctx, familyID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	txs, err := NewTransactionStore(db).ListByFamily(ctx, familyID, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	for _, m := range members {
		if err := ledger.VerifyBalance(m, txs); err != nil {
			t.Errorf("%v", err)
		}
	}
}

func fixedTime() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

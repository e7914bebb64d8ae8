package store

import (
	"context"
	"errors"
	"testing"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

func TestSnapshotRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	admin, kid := setupFamily(t, db, 5)
	ctx := context.Background()
	NewTaskStore(db).Create(ctx, model.Task{ID: "t1", FamilyID: "f1", Category: model.CategoryChores, Title: "Sweep", Points: 1})
	NewRewardStore(db).Create(ctx, model.Reward{ID: "r1", FamilyID: "f1", Title: "Ice cream", Points: 10, Type: model.RewardPhysical})
	ls := NewLedgerStore(db, nil)
	if _, err := ls.Apply(ctx, newTx(t, ledger.TxParams{MemberID: kid.ID, Title: "Sweep", Points: 1, Kind: model.KindEarn}), nil); err != nil {
		t.Fatalf("apply: %v", err)
	}

	ss := NewSnapshotStore(db)
	snap, err := ss.Export(ctx, "f1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(snap.Members) != 2 || len(snap.Tasks) != 1 || len(snap.Rewards) != 1 || len(snap.Transactions) != 3 {
		t.Fatalf("snapshot sizes: %d members, %d tasks, %d rewards, %d txs",
			len(snap.Members), len(snap.Tasks), len(snap.Rewards), len(snap.Transactions))
	}

	// Mutate after export, then restore.
	if _, err := ls.Apply(ctx, newTx(t, ledger.TxParams{MemberID: admin.ID, Title: "Extra", Points: 9, Kind: model.KindEarn}), nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := NewTaskStore(db).Delete(ctx, "f1", "t1"); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	if err := ss.Replace(ctx, *snap); err != nil {
		t.Fatalf("replace: %v", err)
	}

	again, err := ss.Export(ctx, "f1")
	if err != nil {
		t.Fatalf("export again: %v", err)
	}
	if len(again.Transactions) != 3 || len(again.Tasks) != 1 {
		t.Errorf("restored %d txs and %d tasks", len(again.Transactions), len(again.Tasks))
	}
	for i := range snap.Transactions {
		if again.Transactions[i].ID != snap.Transactions[i].ID {
			t.Errorf("tx %d = %s, want %s", i, again.Transactions[i].ID, snap.Transactions[i].ID)
		}
	}
	m, _ := NewMemberStore(db).Get(ctx, "f1", admin.ID)
	if m.Balance != 5 {
		t.Errorf("admin balance = %d, want 5", m.Balance)
	}
	assertBalanced(t, db, "f1")
}

func TestSnapshotExportUnknownFamily(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewSnapshotStore(db).Export(context.Background(), "nope")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSnapshotReplaceKeepsAccounts(t *testing.T) {
	db := setupTestDB(t)
	setupFamily(t, db, 0)
	ctx := context.Background()
	if _, err := NewAccountStore(db).Create(ctx, "acc1", "mom@example.com", "hash", "f1"); err != nil {
		t.Fatalf("create account: %v", err)
	}

	snap := model.Snapshot{
		Family:  model.Family{ID: "f1", Name: "Renamed"},
		Members: []model.Member{{ID: "x1", Name: "Solo", Role: model.RoleAdmin}},
	}
	if err := NewSnapshotStore(db).Replace(ctx, snap); err != nil {
		t.Fatalf("replace: %v", err)
	}

	a, _ := NewAccountStore(db).GetByID(ctx, "acc1")
	if a == nil {
		t.Fatal("account removed by replace")
	}
	members, _ := NewMemberStore(db).List(ctx, "f1")
	if len(members) != 1 || members[0].Name != "Solo" {
		t.Errorf("members = %+v", members)
	}
}

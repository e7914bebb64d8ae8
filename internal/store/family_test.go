package store

import (
	"context"
	"testing"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

func TestFamilyCreateIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	fs := NewFamilyStore(db)
	ctx := context.Background()

	f, err := fs.Create(ctx, "f1", "Smiths")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.Name != "Smiths" {
		t.Errorf("name = %q", f.Name)
	}

	f, err = fs.Create(ctx, "f1", "Other name")
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if f.Name != "Smiths" {
		t.Errorf("name = %q, want the stored one", f.Name)
	}

	missing, err := fs.Get(ctx, "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown family")
	}
}

func TestFamilySeedOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	fs := NewFamilyStore(db)
	ctx := context.Background()
	if _, err := fs.Create(ctx, "f1", "Smiths"); err != nil {
		t.Fatalf("create: %v", err)
	}

	admin := model.Member{ID: "a1", Name: "Admin", Role: model.RoleAdmin}
	tasks := []model.Task{
		{ID: "t1", Category: model.CategoryChores, Title: "Sweep", Points: 1},
		{ID: "t2", Category: model.CategoryPenalty, Title: "Swearing", Points: -2},
	}
	rewards := []model.Reward{{ID: "r1", Title: "Ice cream", Points: 10, Type: model.RewardPhysical}}

	seeded, err := fs.Seed(ctx, "f1", admin, tasks, rewards)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !seeded {
		t.Fatal("expected first seed to write")
	}

	f, _ := fs.Get(ctx, "f1")
	if f.CurrentMemberID != "a1" {
		t.Errorf("current member = %q, want a1", f.CurrentMemberID)
	}
	list, _ := NewTaskStore(db).List(ctx, "f1")
	if len(list) != 2 || list[1].SortOrder != 1 {
		t.Errorf("tasks = %+v", list)
	}
	rw, _ := NewRewardStore(db).List(ctx, "f1")
	if len(rw) != 1 || rw[0].Status != model.StatusActive {
		t.Errorf("rewards = %+v", rw)
	}

	seeded, err = fs.Seed(ctx, "f1", model.Member{ID: "a2", Name: "Admin", Role: model.RoleAdmin}, nil, nil)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if seeded {
		t.Error("second seed should be a no-op")
	}
}

func TestFamilyDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	setupFamily(t, db, 4)
	ctx := context.Background()

	if err := NewFamilyStore(db).Delete(ctx, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var n int
	db.QueryRow(`SELECT COUNT(*) FROM members`).Scan(&n)
	if n != 0 {
		t.Errorf("members left = %d", n)
	}
	db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&n)
	if n != 0 {
		t.Errorf("transactions left = %d", n)
	}
}

package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

func TestVerifyBalance(t *testing.T) {
	txs := []model.Transaction{
		{MemberID: "m1", Points: 10},
		{MemberID: "m1", Points: -4},
		{MemberID: "m2", Points: 100},
	}
	if err := VerifyBalance(model.Member{ID: "m1", Balance: 6}, txs); err != nil {
		t.Errorf("verify: %v", err)
	}

	err := VerifyBalance(model.Member{ID: "m1", Name: "Ann", Balance: 7}, txs)
	if !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("err = %v, want ErrInvariantViolation", err)
	}
	if Sum(txs) != 106 {
		t.Errorf("Sum = %d, want 106", Sum(txs))
	}
}

func TestCalendarDay(t *testing.T) {
	shanghai := time.FixedZone("Asia/Shanghai", 8*3600)
	at := time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC)

	if got := CalendarDay(at, time.UTC); got != "2026-05-01" {
		t.Errorf("utc day = %s", got)
	}
	if got := CalendarDay(at, shanghai); got != "2026-05-02" {
		t.Errorf("shanghai day = %s", got)
	}
	if got := CalendarDay(at, nil); got != "2026-05-01" {
		t.Errorf("nil location day = %s", got)
	}
}

func TestGrantKey(t *testing.T) {
	a := GrantKey("m1", "Daily bonus", "2026-05-01")
	b := GrantKey("m1", "Daily bonus", "2026-05-02")
	if a == b {
		t.Error("keys for different days must differ")
	}
}

func TestCanAfford(t *testing.T) {
	check := CanAfford("redeem", 20)
	if err := check(model.Member{Name: "Ann", Balance: 20}); err != nil {
		t.Errorf("exact balance: %v", err)
	}
	err := check(model.Member{Name: "Ann", Balance: 5})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
}

package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/metrics"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

func TestApplyEarn(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 0)
	ls := NewLedgerStore(db, nil)

	m, err := ls.Apply(context.Background(), newTx(t, ledger.TxParams{
		MemberID: kid.ID, Title: "Wash dishes", Points: 2, Kind: model.KindEarn,
	}), nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.Balance != 2 {
		t.Errorf("balance = %d, want 2", m.Balance)
	}
	if m.Version != kid.Version+1 {
		t.Errorf("version = %d, want %d", m.Version, kid.Version+1)
	}

	bal, err := ls.Balance(context.Background(), "f1", kid.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 2 {
		t.Errorf("stored balance = %d, want 2", bal)
	}
	assertBalanced(t, db, "f1")
}

func TestApplyRedeemInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 5)
	ls := NewLedgerStore(db, nil)
	ctx := context.Background()

	_, err := ls.Apply(ctx, newTx(t, ledger.TxParams{
		MemberID: kid.ID, Title: "New toy", Points: -20, Kind: model.KindRedeem,
	}), ledger.CanAfford("redeem", 20))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	bal, _ := ls.Balance(ctx, "f1", kid.ID)
	if bal != 5 {
		t.Errorf("balance = %d, want 5", bal)
	}
	hist, err := ls.History(ctx, "f1", kid.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("history len = %d, want only the opening balance", len(hist))
	}
}

func TestApplyUnknownMember(t *testing.T) {
	db := setupTestDB(t)
	setupFamily(t, db, 0)
	ls := NewLedgerStore(db, nil)

	_, err := ls.Apply(context.Background(), newTx(t, ledger.TxParams{
		MemberID: "ghost", Title: "Read", Points: 1, Kind: model.KindEarn,
	}), nil)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyOtherFamilyMember(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 0)
	if _, err := NewFamilyStore(db).Create(context.Background(), "f2", "Other"); err != nil {
		t.Fatalf("create family: %v", err)
	}
	ls := NewLedgerStore(db, nil)

	_, err := ls.Apply(context.Background(), newTx(t, ledger.TxParams{
		FamilyID: "f2", MemberID: kid.ID, Title: "Read", Points: 1, Kind: model.KindEarn,
	}), nil)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 0)
	ls := NewLedgerStore(db, nil)
	ctx := context.Background()

	at := fixedTime()
	for i, title := range []string{"first", "second", "third"} {
		_, err := ls.Apply(ctx, newTx(t, ledger.TxParams{
			MemberID: kid.ID, Title: title, Points: 1, Kind: model.KindEarn, At: at,
		}), nil)
		if err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	hist, err := ls.History(ctx, "f1", kid.ID, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("len = %d, want 2", len(hist))
	}
	// Equal timestamps fall back to insertion order.
	if hist[0].Title != "third" || hist[1].Title != "second" {
		t.Errorf("order = %q, %q; want third, second", hist[0].Title, hist[1].Title)
	}
	if !hist[0].Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", hist[0].Timestamp, at)
	}
}

func TestApplyTransfer(t *testing.T) {
	db := setupTestDB(t)
	admin, kid := setupFamily(t, db, 10)
	ls := NewLedgerStore(db, nil)

	debit := newTx(t, ledger.TxParams{
		MemberID: kid.ID, Title: "Transfer to Mom", Points: -4, Kind: model.KindTransfer,
		From: kid.ID, To: admin.ID,
	})
	credit := newTx(t, ledger.TxParams{
		MemberID: admin.ID, Title: "Transfer from Ann", Points: 4, Kind: model.KindTransfer,
		From: kid.ID, To: admin.ID,
	})

	tr, err := ls.ApplyTransfer(context.Background(), debit, credit, ledger.CanAfford("transfer", 4))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tr.From.Balance != 6 || tr.To.Balance != 14 {
		t.Errorf("balances = %d/%d, want 6/14", tr.From.Balance, tr.To.Balance)
	}

	txs, err := NewTransactionStore(db).ListByFamily(context.Background(), "f1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var legs int
	for _, tx := range txs {
		if tx.Kind == model.KindTransfer {
			legs++
			if tx.FromMemberID != kid.ID || tx.ToMemberID != admin.ID {
				t.Errorf("leg endpoints = %s -> %s", tx.FromMemberID, tx.ToMemberID)
			}
		}
	}
	if legs != 2 {
		t.Errorf("transfer legs = %d, want 2", legs)
	}
	assertBalanced(t, db, "f1")
}

func TestApplyTransferIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	admin, kid := setupFamily(t, db, 10)
	ls := NewLedgerStore(db, nil)

	// Fail the credit leg after the debit leg has been written.
	_, err := db.Exec(`CREATE TRIGGER fail_credit BEFORE INSERT ON transactions
		WHEN NEW.type = 'transfer' AND NEW.points > 0
		BEGIN SELECT RAISE(ABORT, 'credit leg failed'); END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	debit := newTx(t, ledger.TxParams{
		MemberID: kid.ID, Title: "Transfer to Mom", Points: -4, Kind: model.KindTransfer, From: kid.ID, To: admin.ID,
	})
	credit := newTx(t, ledger.TxParams{
		MemberID: admin.ID, Title: "Transfer from Ann", Points: 4, Kind: model.KindTransfer, From: kid.ID, To: admin.ID,
	})
	if _, err := ls.ApplyTransfer(context.Background(), debit, credit, nil); err == nil {
		t.Fatal("expected transfer to fail")
	}

	ms := NewMemberStore(db)
	for _, id := range []string{admin.ID, kid.ID} {
		m, err := ms.Get(context.Background(), "f1", id)
		if err != nil {
			t.Fatalf("get member: %v", err)
		}
		if m.Balance != 10 {
			t.Errorf("%s balance = %d, want 10", m.Name, m.Balance)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE type = 'transfer'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("transfer rows = %d, want 0", count)
	}
}

func TestApplyTransferRejectsSameMember(t *testing.T) {
	db := setupTestDB(t)
	admin, _ := setupFamily(t, db, 10)
	ls := NewLedgerStore(db, nil)

	leg := model.Transaction{FamilyID: "f1", MemberID: admin.ID}
	_, err := ls.ApplyTransfer(context.Background(), leg, leg, nil)
	if !errors.Is(err, ledger.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func dailyGrants(t *testing.T, day string, members ...*model.Member) []model.Transaction {
	t.Helper()
	var grants []model.Transaction
	for _, m := range members {
		grants = append(grants, newTx(t, ledger.TxParams{
			MemberID: m.ID, Title: "Daily bonus", Points: 1, Kind: model.KindEarn,
			GrantKey: ledger.GrantKey(m.ID, "Daily bonus", day),
		}))
	}
	return grants
}

// grantsFor is dailyGrants for goroutines, which must not call t.Fatalf.
func grantsFor(day string, members ...*model.Member) ([]model.Transaction, error) {
	var grants []model.Transaction
	for _, m := range members {
		g, err := ledger.NewTransaction(ledger.TxParams{
			FamilyID: "f1", MemberID: m.ID, Title: "Daily bonus", Points: 1, Kind: model.KindEarn,
			GrantKey: ledger.GrantKey(m.ID, "Daily bonus", day),
		})
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, nil
}

func TestGrantDailyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	admin, kid := setupFamily(t, db, 0)
	ls := NewLedgerStore(db, metrics.New(prometheus.NewRegistry()))
	ctx := context.Background()

	res, err := ls.GrantDaily(ctx, dailyGrants(t, "2026-03-14", admin, kid))
	if err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if len(res.Granted) != 2 || len(res.Skipped) != 0 {
		t.Fatalf("first run granted=%d skipped=%d", len(res.Granted), len(res.Skipped))
	}

	// Fresh transaction ids, same keys.
	res, err = ls.GrantDaily(ctx, dailyGrants(t, "2026-03-14", admin, kid))
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if len(res.Granted) != 0 || len(res.Skipped) != 2 {
		t.Fatalf("second run granted=%d skipped=%d", len(res.Granted), len(res.Skipped))
	}

	bal, _ := ls.Balance(ctx, "f1", kid.ID)
	if bal != 1 {
		t.Errorf("balance = %d, want 1", bal)
	}

	res, err = ls.GrantDaily(ctx, dailyGrants(t, "2026-03-15", kid))
	if err != nil {
		t.Fatalf("next day grant: %v", err)
	}
	if len(res.Granted) != 1 {
		t.Errorf("next day granted = %d, want 1", len(res.Granted))
	}
	assertBalanced(t, db, "f1")
}

func TestGrantDailyRequiresKey(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 0)
	ls := NewLedgerStore(db, nil)

	g := newTx(t, ledger.TxParams{MemberID: kid.ID, Title: "Daily bonus", Points: 1, Kind: model.KindEarn})
	if _, err := ls.GrantDaily(context.Background(), []model.Transaction{g}); !errors.Is(err, ledger.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestConcurrentRedeemNeverOverdraws(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 10)
	ls := NewLedgerStore(db, nil)
	ctx := context.Background()

	const workers = 5
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := ledger.NewTransaction(ledger.TxParams{
				FamilyID: "f1", MemberID: kid.ID, Title: "Ice cream", Points: -4, Kind: model.KindRedeem,
			})
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = ls.Apply(ctx, tx, ledger.CanAfford("redeem", 4))
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrInsufficientBalance):
			short++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 2 || short != workers-2 {
		t.Errorf("succeeded=%d rejected=%d, want 2 and %d", ok, short, workers-2)
	}

	bal, _ := ls.Balance(ctx, "f1", kid.ID)
	if bal != 2 {
		t.Errorf("balance = %d, want 2", bal)
	}
	assertBalanced(t, db, "f1")
}

func TestConcurrentEarnsAllLand(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 0)
	ls := NewLedgerStore(db, nil)
	ls.Retry = RetryPolicy{Attempts: 20, Base: 1}
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, _ := ledger.NewTransaction(ledger.TxParams{
				FamilyID: "f1", MemberID: kid.ID, Title: "Read", Points: 1, Kind: model.KindEarn,
			})
			if _, err := ls.Apply(ctx, tx, nil); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	bal, _ := ls.Balance(ctx, "f1", kid.ID)
	if bal != workers {
		t.Errorf("balance = %d, want %d", bal, workers)
	}
	assertBalanced(t, db, "f1")
}

func TestApplyGivesUpAfterRepeatedConflicts(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 5)
	ls := NewLedgerStore(db, nil)
	ls.Retry.Base = time.Millisecond
	ctx := context.Background()

	// Another writer moves the version after every read, so every CAS loses.
	var calls int
	interfere := func(m model.Member) error {
		calls++
		_, err := db.Exec(`UPDATE members SET version = version + 1 WHERE id = ?`, m.ID)
		return err
	}

	_, err := ls.Apply(ctx, newTx(t, ledger.TxParams{
		MemberID: kid.ID, Title: "Read", Points: 3, Kind: model.KindEarn,
	}), interfere)
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if calls != DefaultRetry.Attempts {
		t.Errorf("attempts = %d, want %d", calls, DefaultRetry.Attempts)
	}

	bal, _ := ls.Balance(ctx, "f1", kid.ID)
	if bal != 5 {
		t.Errorf("balance = %d, want 5", bal)
	}
	hist, err := ls.History(ctx, "f1", kid.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("history len = %d, want only the opening balance", len(hist))
	}
	assertBalanced(t, db, "f1")
}

func TestGrantDailyConcurrentDevices(t *testing.T) {
	db := setupTestDB(t)
	admin, kid := setupFamily(t, db, 0)
	ls := NewLedgerStore(db, nil)
	ctx := context.Background()

	const devices = 8
	var wg sync.WaitGroup
	granted := make([]int, devices)
	for i := range devices {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			grants, err := grantsFor("2026-03-14", admin, kid)
			if err != nil {
				t.Errorf("build grants: %v", err)
				return
			}
			res, err := ls.GrantDaily(ctx, grants)
			if err != nil {
				t.Errorf("grant: %v", err)
				return
			}
			granted[i] = len(res.Granted)
		}(i)
	}
	wg.Wait()

	var total int
	for _, n := range granted {
		total += n
	}
	if total != 2 {
		t.Errorf("grants committed = %d, want 2", total)
	}
	for _, m := range []*model.Member{admin, kid} {
		bal, _ := ls.Balance(ctx, "f1", m.ID)
		if bal != 1 {
			t.Errorf("%s balance = %d, want 1", m.Name, bal)
		}
	}
	assertBalanced(t, db, "f1")
}

func TestApplyCanceledContextIsTransient(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 0)
	ls := NewLedgerStore(db, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ls.Apply(ctx, newTx(t, ledger.TxParams{
		MemberID: kid.ID, Title: "Read", Points: 1, Kind: model.KindEarn,
	}), nil)
	if !errors.Is(err, ledger.ErrTransientIO) {
		t.Fatalf("err = %v, want ErrTransientIO", err)
	}
}

// Random sequences of ledger writes must keep every balance equal to the
// sum of its member's history.
func TestBalanceMatchesHistory(t *testing.T) {
	db := setupTestDB(t)
	admin, kid := setupFamily(t, db, 5)
	ls := NewLedgerStore(db, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	members := []*model.Member{admin, kid}

	for i := range 60 {
		m := members[rng.IntN(2)]
		other := members[0]
		if other == m {
			other = members[1]
		}
		pts := rng.IntN(9) + 1

		var err error
		switch rng.IntN(4) {
		case 0:
			_, err = ls.Apply(ctx, newTx(t, ledger.TxParams{
				MemberID: m.ID, Title: "earn", Points: pts, Kind: model.KindEarn,
			}), nil)
		case 1:
			_, err = ls.Apply(ctx, newTx(t, ledger.TxParams{
				MemberID: m.ID, Title: "penalty", Points: ledger.PenaltyPoints(pts), Kind: model.KindPenalty,
			}), nil)
		case 2:
			_, err = ls.Apply(ctx, newTx(t, ledger.TxParams{
				MemberID: m.ID, Title: "redeem", Points: -pts, Kind: model.KindRedeem,
			}), ledger.CanAfford("redeem", pts))
		case 3:
			_, err = ls.ApplyTransfer(ctx,
				newTx(t, ledger.TxParams{MemberID: m.ID, Title: "out", Points: -pts, Kind: model.KindTransfer, From: m.ID, To: other.ID}),
				newTx(t, ledger.TxParams{MemberID: other.ID, Title: "in", Points: pts, Kind: model.KindTransfer, From: m.ID, To: other.ID}),
				ledger.CanAfford("transfer", pts))
		}
		if err != nil && !errors.Is(err, ledger.ErrInsufficientBalance) {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	assertBalanced(t, db, "f1")
}

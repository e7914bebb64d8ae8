package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
)

func TestAccountCreateAndLookup(t *testing.T) {
	db := setupTestDB(t)
	setupFamily(t, db, 0)
	as := NewAccountStore(db)
	ctx := context.Background()

	a, err := as.Create(ctx, "acc1", " Mom@Example.com ", "hash", "f1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Email != "mom@example.com" {
		t.Errorf("email = %q", a.Email)
	}

	got, err := as.GetByEmail(ctx, "MOM@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != "acc1" {
		t.Fatalf("got %+v", got)
	}

	_, err = as.Create(ctx, "acc2", "mom@example.com", "hash", "f1")
	if !errors.Is(err, ledger.ErrDuplicate) {
		t.Errorf("duplicate email: err = %v, want ErrDuplicate", err)
	}

	if err := as.SetPassword(ctx, "acc1", "new-hash"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	got, _ = as.GetByID(ctx, "acc1")
	if got.PasswordHash != "new-hash" {
		t.Errorf("password hash not updated")
	}

	missing, err := as.GetByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Errorf("missing account: %v, %v", missing, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	_, kid := setupFamily(t, db, 0)
	ctx := context.Background()
	NewAccountStore(db).Create(ctx, "acc1", "mom@example.com", "hash", "f1")
	ss := NewSessionStore(db)

	sess, err := ss.Create(ctx, "s1", "acc1", "f1", "", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.FamilyID != "f1" || sess.MemberID != "" {
		t.Errorf("got %+v", sess)
	}

	if err := ss.SetMember(ctx, "s1", kid.ID); err != nil {
		t.Fatalf("set member: %v", err)
	}
	sess, _ = ss.Get(ctx, "s1")
	if sess.MemberID != kid.ID {
		t.Errorf("member = %q, want %q", sess.MemberID, kid.ID)
	}

	if _, err := ss.Create(ctx, "s-old", "acc1", "f1", "", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if got, _ := ss.Get(ctx, "s-old"); got != nil {
		t.Error("expired session should not be returned")
	}
	n, err := ss.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	if err := ss.DeleteByAccount(ctx, "acc1"); err != nil {
		t.Fatalf("delete by account: %v", err)
	}
	if got, _ := ss.Get(ctx, "s1"); got != nil {
		t.Error("session survived sign-out")
	}
}

func TestPasswordResetCodes(t *testing.T) {
	db := setupTestDB(t)
	setupFamily(t, db, 0)
	ctx := context.Background()
	NewAccountStore(db).Create(ctx, "acc1", "mom@example.com", "hash", "f1")
	rs := NewPasswordResetStore(db)

	first, err := rs.Create(ctx, "acc1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(first.Code) {
		t.Errorf("code = %q, want 6 digits", first.Code)
	}
	if until := time.Until(first.ExpiresAt); until < 14*time.Minute || until > 16*time.Minute {
		t.Errorf("expires in %v, want about 15m", until)
	}

	second, err := rs.Create(ctx, "acc1")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	latest, err := rs.GetLatest(ctx, "acc1")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("latest = %+v, want the second code", latest)
	}

	n, err := rs.IncrementAttempts(ctx, second.ID)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}

	if err := rs.MarkUsed(ctx, second.ID); err != nil {
		t.Fatalf("mark used: %v", err)
	}
	if latest, _ := rs.GetLatest(ctx, "acc1"); latest != nil {
		t.Error("used code still returned")
	}
}

func TestPushSubscribeUpserts(t *testing.T) {
	db := setupTestDB(t)
	setupFamily(t, db, 0)
	ctx := context.Background()
	NewAccountStore(db).Create(ctx, "acc1", "mom@example.com", "hash", "f1")
	ps := NewPushStore(db)

	sub, err := ps.Subscribe(ctx, "acc1", "f1", "https://push.example/1", "p256", "auth", "phone")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	again, err := ps.Subscribe(ctx, "acc1", "f1", "https://push.example/1", "p256-new", "auth-new", "phone")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if again.ID != sub.ID || again.P256dhKey != "p256-new" {
		t.Errorf("got %+v", again)
	}

	subs, _ := ps.ListByFamily(ctx, "f1")
	if len(subs) != 1 {
		t.Fatalf("subs = %d, want 1", len(subs))
	}
	if err := ps.DeleteByEndpoint(ctx, "https://push.example/1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subs, _ = ps.ListByFamily(ctx, "f1")
	if len(subs) != 0 {
		t.Errorf("subs = %d after delete", len(subs))
	}
}

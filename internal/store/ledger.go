package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/metrics"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a lost version check is retried.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 3, Base: 25 * time.Millisecond}

// LedgerStore owns every write that changes a member balance. Each change is
// a compare-and-set on members.version plus the transaction insert, committed
// together.
type LedgerStore struct {
	db      *sql.DB
	metrics *metrics.Metrics
	Retry   RetryPolicy
}

func NewLedgerStore(db *sql.DB, m *metrics.Metrics) *LedgerStore {
	return &LedgerStore{db: db, metrics: m, Retry: DefaultRetry}
}

func (s *LedgerStore) backoff() retry.Backoff {
	attempts := s.Retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	base := s.Retry.Base
	if base <= 0 {
		base = time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

func withRetry[T any](ctx context.Context, s *LedgerStore, op string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveApply(time.Since(start)) }()

	v, err := retry.DoValue(ctx, s.backoff(), func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		switch {
		case err == nil:
			return v, nil
		case errors.Is(err, ledger.ErrConflict):
			s.metrics.Conflict()
			return v, retry.RetryableError(err)
		case isBusy(err):
			return v, retry.RetryableError(err)
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return v, ledger.Wrap(ledger.ErrTransientIO, op, err)
		}
		return v, classify(op, err)
	}
	return v, nil
}

// casBalance adds delta to the member's balance if its version is still the
// one that was read.
func casBalance(ctx context.Context, q queryer, m *model.Member, delta int) error {
	res, err := q.ExecContext(ctx,
		`UPDATE members SET balance = balance + ?, version = version + 1
		 WHERE id = ? AND family_id = ? AND version = ?`,
		delta, m.ID, m.FamilyID, m.Version,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.E(ledger.ErrConflict, "update balance", "member "+m.ID+" changed concurrently")
	}
	return nil
}

func (s *LedgerStore) readMember(ctx context.Context, op, familyID, id string) (*model.Member, error) {
	m, err := getMember(ctx, s.db, familyID, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ledger.E(ledger.ErrNotFound, op, "member not found")
	}
	return m, nil
}

// Apply records t on its member and moves the balance by t.Points. check runs
// against every fresh read, so an affordability check is re-evaluated after a
// conflict. The returned member is the committed state.
func (s *LedgerStore) Apply(ctx context.Context, t model.Transaction, check ledger.Check) (*model.Member, error) {
	const op = "apply transaction"

	return withRetry(ctx, s, op, func(ctx context.Context) (*model.Member, error) {
		m, err := s.readMember(ctx, op, t.FamilyID, t.MemberID)
		if err != nil {
			return nil, err
		}
		if check != nil {
			if err := check(*m); err != nil {
				return nil, err
			}
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		if err := casBalance(ctx, tx, m, t.Points); err != nil {
			return nil, err
		}
		if err := insertTransaction(ctx, tx, t); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}

		m.Balance += t.Points
		m.Version++
		return m, nil
	})
}

// Transfer is the committed state of both sides of a transfer.
type Transfer struct {
	From *model.Member
	To   *model.Member
}

// ApplyTransfer commits a debit and a credit leg atomically: both balances
// and both transactions land in one commit or none does. check runs against
// the debited member.
func (s *LedgerStore) ApplyTransfer(ctx context.Context, debit, credit model.Transaction, check ledger.Check) (*Transfer, error) {
	const op = "apply transfer"

	if debit.FamilyID != credit.FamilyID || debit.MemberID == credit.MemberID {
		return nil, ledger.E(ledger.ErrInvalid, op, "transfer legs must belong to two members of one family")
	}

	return withRetry(ctx, s, op, func(ctx context.Context) (*Transfer, error) {
		from, err := s.readMember(ctx, op, debit.FamilyID, debit.MemberID)
		if err != nil {
			return nil, err
		}
		to, err := s.readMember(ctx, op, credit.FamilyID, credit.MemberID)
		if err != nil {
			return nil, err
		}
		if check != nil {
			if err := check(*from); err != nil {
				return nil, err
			}
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		if err := casBalance(ctx, tx, from, debit.Points); err != nil {
			return nil, err
		}
		if err := casBalance(ctx, tx, to, credit.Points); err != nil {
			return nil, err
		}
		if err := insertTransaction(ctx, tx, debit); err != nil {
			return nil, err
		}
		if err := insertTransaction(ctx, tx, credit); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}

		from.Balance += debit.Points
		from.Version++
		to.Balance += credit.Points
		to.Version++
		return &Transfer{From: from, To: to}, nil
	})
}

// GrantResult lists which grants were written and which members already had one.
type GrantResult struct {
	Granted []model.Transaction
	Skipped []string
}

// GrantDaily writes each grant whose GrantKey is not yet taken and credits its
// member. The unique grant_key column makes repeated or concurrent calls safe.
func (s *LedgerStore) GrantDaily(ctx context.Context, grants []model.Transaction) (*GrantResult, error) {
	const op = "grant daily"

	for _, g := range grants {
		if g.GrantKey == "" {
			return nil, ledger.E(ledger.ErrInvalid, op, "grant without idempotency key")
		}
	}

	res, err := withRetry(ctx, s, op, func(ctx context.Context) (*GrantResult, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()

		out := &GrantResult{}
		for _, g := range grants {
			inserted, err := tx.ExecContext(ctx,
				`INSERT INTO transactions (`+transactionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?)
				 ON CONFLICT(grant_key) DO NOTHING`,
				g.ID, g.FamilyID, g.MemberID, g.Title, g.Points, string(g.Kind), g.Timestamp.UnixMilli(), g.GrantKey,
			)
			if err != nil {
				return nil, err
			}
			if n, _ := inserted.RowsAffected(); n == 0 {
				out.Skipped = append(out.Skipped, g.MemberID)
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE members SET balance = balance + ?, version = version + 1 WHERE id = ? AND family_id = ?`,
				g.Points, g.MemberID, g.FamilyID,
			); err != nil {
				return nil, err
			}
			out.Granted = append(out.Granted, g)
		}

		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Granted(len(res.Granted), len(res.Skipped))
	return res, nil
}

func (s *LedgerStore) Balance(ctx context.Context, familyID, memberID string) (int, error) {
	m, err := s.readMember(ctx, "get balance", familyID, memberID)
	if err != nil {
		return 0, err
	}
	return m.Balance, nil
}

// History returns up to limit of the member's transactions, newest first.
func (s *LedgerStore) History(ctx context.Context, familyID, memberID string, limit int) ([]model.Transaction, error) {
	if _, err := s.readMember(ctx, "get history", familyID, memberID); err != nil {
		return nil, err
	}
	return NewTransactionStore(s.db).ListByMember(ctx, familyID, memberID, limit)
}

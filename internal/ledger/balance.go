package ledger

import (
	"fmt"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

// Sum returns the total of the points on txs.
func Sum(txs []model.Transaction) int {
	total := 0
	for _, t := range txs {
		total += t.Points
	}
	return total
}

// VerifyBalance checks that m.Balance equals the sum of m's transactions in txs.
// Transactions that belong to other members are ignored.
func VerifyBalance(m model.Member, txs []model.Transaction) error {
	total := 0
	for _, t := range txs {
		if t.MemberID == m.ID {
			total += t.Points
		}
	}
	if total != m.Balance {
		return E(ErrInvariantViolation, "verify balance",
			fmt.Sprintf("member %q has balance %d but history sums to %d", m.Name, m.Balance, total))
	}
	return nil
}

// CalendarDay formats t as a YYYY-MM-DD day in loc.
func CalendarDay(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.DateOnly)
}

// GrantKey is the idempotency key of a daily grant: one per member, title and day.
func GrantKey(memberID, title, day string) string {
	return memberID + "|" + title + "|" + day
}

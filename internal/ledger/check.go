package ledger

import (
	"fmt"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

// Check inspects a freshly read member before a balance change is written.
// A non-nil error aborts the change without retrying.
type Check func(m model.Member) error

// CanAfford rejects the change when m cannot cover cost.
func CanAfford(op string, cost int) Check {
	return func(m model.Member) error {
		if m.Balance < cost {
			return E(ErrInsufficientBalance, op,
				fmt.Sprintf("%s needs %d points but has %d", m.Name, cost, m.Balance))
		}
		return nil
	}
}

package ledger

import (
	"strings"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/google/uuid"
)

// TxParams describes a transaction before it is recorded.
type TxParams struct {
	FamilyID string
	MemberID string
	Title    string
	Points   int
	Kind     model.TransactionKind
	From     string
	To       string
	GrantKey string
	At       time.Time
}

// NewTransaction validates p and returns a transaction with a fresh id.
// Timestamps are stored with millisecond precision in UTC.
func NewTransaction(p TxParams) (model.Transaction, error) {
	const op = "new transaction"

	title := strings.TrimSpace(p.Title)
	if title == "" {
		return model.Transaction{}, E(ErrInvalid, op, "title is required")
	}
	if p.FamilyID == "" || p.MemberID == "" {
		return model.Transaction{}, E(ErrInvalid, op, "family and member are required")
	}
	if !p.Kind.Valid() {
		return model.Transaction{}, E(ErrInvalid, op, "unknown transaction type "+string(p.Kind))
	}

	switch p.Kind {
	case model.KindEarn, model.KindPenalty, model.KindRedeem:
		if p.Points == 0 {
			return model.Transaction{}, E(ErrInvalid, op, "points must not be zero")
		}
	case model.KindTransfer:
		if p.From == "" || p.To == "" {
			return model.Transaction{}, E(ErrInvalid, op, "transfer needs both members")
		}
		if p.From == p.To {
			return model.Transaction{}, E(ErrInvalid, op, "cannot transfer to the same member")
		}
		if p.MemberID != p.From && p.MemberID != p.To {
			return model.Transaction{}, E(ErrInvalid, op, "transfer leg must belong to one of its members")
		}
	}
	if p.Kind != model.KindTransfer && (p.From != "" || p.To != "") {
		return model.Transaction{}, E(ErrInvalid, op, "only transfers carry endpoints")
	}

	at := p.At
	if at.IsZero() {
		at = time.Now()
	}

	return model.Transaction{
		ID:           uuid.NewString(),
		FamilyID:     p.FamilyID,
		MemberID:     p.MemberID,
		Title:        title,
		Points:       p.Points,
		Timestamp:    at.UTC().Truncate(time.Millisecond),
		Kind:         p.Kind,
		FromMemberID: p.From,
		ToMemberID:   p.To,
		GrantKey:     p.GrantKey,
	}, nil
}

// PenaltyPoints normalises a penalty value to a debit.
func PenaltyPoints(points int) int {
	if points > 0 {
		return -points
	}
	return points
}

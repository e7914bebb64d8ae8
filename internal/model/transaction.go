package model

import "time"

type TransactionKind string

const (
	KindEarn       TransactionKind = "earn"
	KindPenalty    TransactionKind = "penalty"
	KindRedeem     TransactionKind = "redeem"
	KindTransfer   TransactionKind = "transfer"
	KindAdjustment TransactionKind = "adjustment"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case KindEarn, KindPenalty, KindRedeem, KindTransfer, KindAdjustment:
		return true
	}
	return false
}

// Transaction is an immutable signed point movement on one member's ledger.
// GrantKey is set only on daily grants and is unique across the store.
type Transaction struct {
	ID           string          `json:"id"`
	FamilyID     string          `json:"family_id"`
	MemberID     string          `json:"member_id"`
	Title        string          `json:"title"`
	Points       int             `json:"points"`
	Timestamp    time.Time       `json:"timestamp"`
	Kind         TransactionKind `json:"type"`
	FromMemberID string          `json:"from_member_id,omitempty"`
	ToMemberID   string          `json:"to_member_id,omitempty"`
	GrantKey     string          `json:"grant_key,omitempty"`
}

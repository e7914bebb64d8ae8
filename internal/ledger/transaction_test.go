package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

func TestNewTransaction(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 30, 0, 123456789, time.FixedZone("CST", 8*3600))
	tx, err := NewTransaction(TxParams{
		FamilyID: "f1",
		MemberID: "m1",
		Title:    "  扫地 ",
		Points:   1,
		Kind:     model.KindEarn,
		At:       at,
	})
	if err != nil {
		t.Fatalf("new transaction: %v", err)
	}
	if tx.ID == "" {
		t.Error("expected generated id")
	}
	if tx.Title != "扫地" {
		t.Errorf("title = %q, want %q", tx.Title, "扫地")
	}
	if tx.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", tx.Timestamp.Location())
	}
	if !tx.Timestamp.Equal(at.Truncate(time.Millisecond)) {
		t.Errorf("timestamp = %v, want %v", tx.Timestamp, at.Truncate(time.Millisecond))
	}
}

func TestNewTransactionUniqueIDs(t *testing.T) {
	p := TxParams{FamilyID: "f1", MemberID: "m1", Title: "x", Points: 1, Kind: model.KindEarn}
	a, _ := NewTransaction(p)
	b, _ := NewTransaction(p)
	if a.ID == b.ID {
		t.Error("expected distinct ids")
	}
}

func TestNewTransactionValidation(t *testing.T) {
	base := TxParams{FamilyID: "f1", MemberID: "m1", Title: "t", Points: 1, Kind: model.KindEarn}

	tests := []struct {
		name string
		mod  func(p *TxParams)
	}{
		{"empty title", func(p *TxParams) { p.Title = "   " }},
		{"zero earn", func(p *TxParams) { p.Points = 0 }},
		{"zero penalty", func(p *TxParams) { p.Kind, p.Points = model.KindPenalty, 0 }},
		{"zero redeem", func(p *TxParams) { p.Kind, p.Points = model.KindRedeem, 0 }},
		{"unknown kind", func(p *TxParams) { p.Kind = "bonus" }},
		{"missing member", func(p *TxParams) { p.MemberID = "" }},
		{"transfer without endpoints", func(p *TxParams) { p.Kind = model.KindTransfer }},
		{"transfer to self", func(p *TxParams) { p.Kind, p.From, p.To = model.KindTransfer, "m1", "m1" }},
		{"transfer leg for stranger", func(p *TxParams) { p.Kind, p.From, p.To = model.KindTransfer, "m2", "m3" }},
		{"endpoints on earn", func(p *TxParams) { p.From = "m2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mod(&p)
			_, err := NewTransaction(p)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestNewTransactionTransferLeg(t *testing.T) {
	tx, err := NewTransaction(TxParams{
		FamilyID: "f1", MemberID: "m1", Title: "Transfer to Bob", Points: -10,
		Kind: model.KindTransfer, From: "m1", To: "m2",
	})
	if err != nil {
		t.Fatalf("transfer leg: %v", err)
	}
	if tx.FromMemberID != "m1" || tx.ToMemberID != "m2" {
		t.Errorf("endpoints = %q -> %q", tx.FromMemberID, tx.ToMemberID)
	}
}

func TestPenaltyPoints(t *testing.T) {
	for in, want := range map[int]int{2: -2, -2: -2, 0: 0} {
		if got := PenaltyPoints(in); got != want {
			t.Errorf("PenaltyPoints(%d) = %d, want %d", in, got, want)
		}
	}
}

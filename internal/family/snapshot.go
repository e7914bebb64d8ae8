package family

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

// Export returns the family's complete persisted state.
func (d *Directory) Export(ctx context.Context, familyID string) (*model.Snapshot, error) {
	return d.snapshots.Export(ctx, familyID)
}

// Import replaces the family's members, catalog and history with snap. The
// snapshot is checked first: every balance must equal its history and every
// transaction must belong to a listed member. Nothing is written on failure.
func (d *Directory) Import(ctx context.Context, snap model.Snapshot) error {
	if err := Validate(snap); err != nil {
		return err
	}
	if err := d.snapshots.Replace(ctx, snap); err != nil {
		return err
	}
	d.logger.Info("family imported", "family_id", snap.Family.ID,
		"members", len(snap.Members), "transactions", len(snap.Transactions))
	d.emit(ctx, feed.EntityFamily, feed.ActionImported, snap.Family.ID, snap.Family.ID)
	return nil
}

// Validate checks a snapshot for structural and ledger consistency.
func Validate(snap model.Snapshot) error {
	const op = "import family"

	if strings.TrimSpace(snap.Family.ID) == "" {
		return ledger.E(ledger.ErrInvalid, op, "family id is required")
	}
	if len(snap.Members) == 0 {
		return ledger.E(ledger.ErrInvariantViolation, op, "a family must keep at least one member")
	}

	names := make(map[string]bool, len(snap.Members))
	ids := make(map[string]bool, len(snap.Members))
	admins := 0
	for _, m := range snap.Members {
		if m.ID == "" || strings.TrimSpace(m.Name) == "" {
			return ledger.E(ledger.ErrInvalid, op, "members need an id and a name")
		}
		if !m.Role.Valid() {
			return ledger.E(ledger.ErrInvalid, op, fmt.Sprintf("member %q has unknown role %q", m.Name, m.Role))
		}
		key := strings.ToLower(m.Name)
		if names[key] {
			return ledger.E(ledger.ErrDuplicate, op, fmt.Sprintf("member name %q appears twice", m.Name))
		}
		names[key] = true
		ids[m.ID] = true
		if m.Role == model.RoleAdmin {
			admins++
		}
	}
	if admins == 0 {
		return ledger.E(ledger.ErrInvariantViolation, op, "a family must keep at least one admin")
	}

	for _, t := range snap.Tasks {
		if !t.Category.Valid() {
			return ledger.E(ledger.ErrInvalid, op, fmt.Sprintf("task %q has unknown category %q", t.Title, t.Category))
		}
	}
	for _, r := range snap.Rewards {
		if !r.Type.Valid() || r.Points <= 0 {
			return ledger.E(ledger.ErrInvalid, op, fmt.Sprintf("reward %q is malformed", r.Title))
		}
	}
	for _, t := range snap.Transactions {
		if !ids[t.MemberID] {
			return ledger.E(ledger.ErrInvalid, op, fmt.Sprintf("transaction %s belongs to unknown member %s", t.ID, t.MemberID))
		}
		if !t.Kind.Valid() {
			return ledger.E(ledger.ErrInvalid, op, fmt.Sprintf("transaction %s has unknown type %q", t.ID, t.Kind))
		}
	}
	for _, m := range snap.Members {
		if err := ledger.VerifyBalance(m, snap.Transactions); err != nil {
			return err
		}
	}
	return nil
}

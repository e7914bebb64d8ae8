// Package family manages tenants: loading a family's state, provisioning and
// seeding new families, choosing the active member and administering members.
package family

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/ahkjxy/family-points-bank-sub000/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const DefaultAdminName = "Admin"

type Options struct {
	AdminName string
	PINCost   int
}

type Directory struct {
	families  *store.FamilyStore
	members   *store.MemberStore
	tasks     *store.TaskStore
	rewards   *store.RewardStore
	snapshots *store.SnapshotStore
	feed      feed.Publisher
	logger    *slog.Logger
	opts      Options
}

func NewDirectory(families *store.FamilyStore, members *store.MemberStore, tasks *store.TaskStore,
	rewards *store.RewardStore, snapshots *store.SnapshotStore, pub feed.Publisher, logger *slog.Logger, opts Options) *Directory {
	if opts.AdminName == "" {
		opts.AdminName = DefaultAdminName
	}
	if opts.PINCost == 0 {
		opts.PINCost = bcrypt.DefaultCost
	}
	if pub == nil {
		pub = feed.Nop{}
	}
	return &Directory{
		families:  families,
		members:   members,
		tasks:     tasks,
		rewards:   rewards,
		snapshots: snapshots,
		feed:      pub,
		logger:    logger.With("component", "family"),
		opts:      opts,
	}
}

func (d *Directory) emit(ctx context.Context, entity, action, familyID, id string) {
	feed.Emit(ctx, d.logger, d.feed, feed.NewEvent(entity, action, familyID, id))
}

// EnsureCurrentMemberID picks the member a client should show: preferredID
// when it still exists, otherwise the first admin, otherwise the first member.
func EnsureCurrentMemberID(members []model.Member, preferredID string) string {
	if preferredID != "" {
		for _, m := range members {
			if m.ID == preferredID {
				return preferredID
			}
		}
	}
	for _, m := range members {
		if m.Role == model.RoleAdmin {
			return m.ID
		}
	}
	if len(members) > 0 {
		return members[0].ID
	}
	return ""
}

// Load returns the family's members, tasks and rewards. The three lists are
// read concurrently.
func (d *Directory) Load(ctx context.Context, familyID string) (*model.FamilyState, error) {
	f, err := d.families.Get(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ledger.E(ledger.ErrNotFound, "load family", "family not found")
	}

	var (
		members []model.Member
		tasks   []model.Task
		rewards []model.Reward
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = d.members.List(gctx, familyID)
		return err
	})
	g.Go(func() error {
		var err error
		tasks, err = d.tasks.List(gctx, familyID)
		return err
	})
	g.Go(func() error {
		var err error
		rewards, err = d.rewards.List(gctx, familyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if members == nil {
		members = []model.Member{}
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	current := EnsureCurrentMemberID(members, f.CurrentMemberID)
	f.CurrentMemberID = current
	return &model.FamilyState{
		Family:          *f,
		Members:         members,
		Tasks:           tasks,
		Rewards:         rewards,
		CurrentMemberID: current,
	}, nil
}

// Provision creates the family on first touch and seeds it when empty.
func (d *Directory) Provision(ctx context.Context, familyID, name string) (*model.Family, error) {
	const op = "provision family"

	familyID = strings.TrimSpace(familyID)
	name = strings.TrimSpace(name)
	if familyID == "" {
		return nil, ledger.E(ledger.ErrInvalid, op, "family id is required")
	}
	if name == "" {
		name = familyID
	}

	f, err := d.families.Create(ctx, familyID, name)
	if err != nil {
		return nil, err
	}
	seeded, err := d.SeedIfEmpty(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if seeded {
		d.logger.Info("family seeded", "family_id", familyID)
		return d.families.Get(ctx, familyID)
	}
	return f, nil
}

// SeedIfEmpty adds the default admin and catalog to a family without members.
func (d *Directory) SeedIfEmpty(ctx context.Context, familyID string) (bool, error) {
	admin := model.Member{
		ID:   uuid.NewString(),
		Name: d.opts.AdminName,
		Role: model.RoleAdmin,
	}
	tasks := make([]model.Task, len(DefaultTasks))
	for i, t := range DefaultTasks {
		t.ID = uuid.NewString()
		tasks[i] = t
	}
	rewards := make([]model.Reward, len(DefaultRewards))
	for i, r := range DefaultRewards {
		r.ID = uuid.NewString()
		r.Status = model.StatusActive
		rewards[i] = r
	}
	return d.families.Seed(ctx, familyID, admin, tasks, rewards)
}

// RequireAdmin fails with ErrForbidden unless actorID is an admin of the family.
func (d *Directory) RequireAdmin(ctx context.Context, familyID, actorID string) error {
	a, err := d.actor(ctx, "require admin", familyID, actorID)
	if err != nil {
		return err
	}
	if !a.IsAdmin() {
		return ledger.E(ledger.ErrForbidden, "require admin", "only an admin can do this")
	}
	return nil
}

func (d *Directory) actor(ctx context.Context, op, familyID, actorID string) (*model.Member, error) {
	if actorID == "" {
		return nil, ledger.E(ledger.ErrForbidden, op, "no member selected")
	}
	a, err := d.members.Get(ctx, familyID, actorID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ledger.E(ledger.ErrForbidden, op, "acting member is not part of this family")
	}
	return a, nil
}

func (d *Directory) Rename(ctx context.Context, familyID, actorID, name string) (*model.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ledger.E(ledger.ErrInvalid, "rename family", "name is required")
	}
	if err := d.RequireAdmin(ctx, familyID, actorID); err != nil {
		return nil, err
	}
	f, err := d.families.Rename(ctx, familyID, name)
	if err != nil {
		return nil, err
	}
	d.emit(ctx, feed.EntityFamily, feed.ActionUpdated, familyID, familyID)
	return f, nil
}

// SetCurrentMember switches the family's active viewer. Members with a PIN
// must present it.
func (d *Directory) SetCurrentMember(ctx context.Context, familyID, memberID, pin string) (*model.Member, error) {
	const op = "switch member"

	m, err := d.members.Get(ctx, familyID, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ledger.E(ledger.ErrNotFound, op, "member not found")
	}
	if m.HasPIN {
		hash, err := d.members.GetPINHash(ctx, familyID, memberID)
		if err != nil {
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
			return nil, ledger.E(ledger.ErrForbidden, op, "incorrect PIN")
		}
	}
	if err := d.families.SetCurrentMember(ctx, familyID, memberID); err != nil {
		return nil, err
	}
	return m, nil
}

package family

import (
	"context"
	"strings"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type MemberInput struct {
	Name      string     `json:"name"`
	Role      model.Role `json:"role"`
	AvatarURL string     `json:"avatar_url"`
	Balance   int        `json:"balance"`
}

func (d *Directory) checkName(ctx context.Context, op, familyID, name, excludeID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ledger.E(ledger.ErrInvalid, op, "name is required")
	}
	exists, err := d.members.NameExists(ctx, familyID, name, excludeID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ledger.E(ledger.ErrDuplicate, op, "a member named "+name+" already exists")
	}
	return name, nil
}

// CreateMember adds a member. A non-zero starting balance is recorded as an
// opening adjustment so the balance still equals the history.
func (d *Directory) CreateMember(ctx context.Context, familyID, actorID string, in MemberInput) (*model.Member, error) {
	const op = "create member"

	if in.Role == "" {
		in.Role = model.RoleStandard
	}
	if !in.Role.Valid() {
		return nil, ledger.E(ledger.ErrInvalid, op, "unknown role "+string(in.Role))
	}
	if err := d.RequireAdmin(ctx, familyID, actorID); err != nil {
		return nil, err
	}
	name, err := d.checkName(ctx, op, familyID, in.Name, "")
	if err != nil {
		return nil, err
	}

	m := model.Member{
		ID:        uuid.NewString(),
		FamilyID:  familyID,
		Name:      name,
		Role:      in.Role,
		AvatarURL: in.AvatarURL,
	}
	var opening *model.Transaction
	if in.Balance != 0 {
		t, err := ledger.NewTransaction(ledger.TxParams{
			FamilyID: familyID,
			MemberID: m.ID,
			Title:    "Opening balance",
			Points:   in.Balance,
			Kind:     model.KindAdjustment,
		})
		if err != nil {
			return nil, err
		}
		opening = &t
	}

	created, err := d.members.Create(ctx, m, opening)
	if err != nil {
		return nil, err
	}
	d.emit(ctx, feed.EntityMember, feed.ActionCreated, familyID, created.ID)
	return created, nil
}

func (d *Directory) UpdateMember(ctx context.Context, familyID, actorID, id, name, avatarURL string) (*model.Member, error) {
	const op = "update member"

	if err := d.RequireAdmin(ctx, familyID, actorID); err != nil {
		return nil, err
	}
	name, err := d.checkName(ctx, op, familyID, name, id)
	if err != nil {
		return nil, err
	}
	m, err := d.members.Update(ctx, familyID, id, name, avatarURL)
	if err != nil {
		return nil, err
	}
	d.emit(ctx, feed.EntityMember, feed.ActionUpdated, familyID, id)
	return m, nil
}

// DeleteMember removes the member and its history. The last member and the
// last admin cannot be removed.
func (d *Directory) DeleteMember(ctx context.Context, familyID, actorID, id string) error {
	if err := d.RequireAdmin(ctx, familyID, actorID); err != nil {
		return err
	}
	if err := d.members.Delete(ctx, familyID, id); err != nil {
		return err
	}
	d.emit(ctx, feed.EntityMember, feed.ActionDeleted, familyID, id)
	return nil
}

func (d *Directory) ChangeRole(ctx context.Context, familyID, actorID, id string, role model.Role) (*model.Member, error) {
	if err := d.RequireAdmin(ctx, familyID, actorID); err != nil {
		return nil, err
	}
	m, err := d.members.SetRole(ctx, familyID, id, role)
	if err != nil {
		return nil, err
	}
	d.emit(ctx, feed.EntityMember, feed.ActionUpdated, familyID, id)
	return m, nil
}

func (d *Directory) ReorderMembers(ctx context.Context, familyID, actorID string, ids []string) error {
	if err := d.RequireAdmin(ctx, familyID, actorID); err != nil {
		return err
	}
	if err := d.members.UpdateSortOrder(ctx, familyID, ids); err != nil {
		return err
	}
	d.emit(ctx, feed.EntityMember, feed.ActionUpdated, familyID, "")
	return nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SetPIN protects switching to a member with a 4-digit PIN. Admins may set
// any member's PIN, others only their own.
func (d *Directory) SetPIN(ctx context.Context, familyID, actorID, id, pin string) error {
	const op = "set pin"

	if len(pin) != 4 || !isDigits(pin) {
		return ledger.E(ledger.ErrInvalid, op, "PIN must be exactly 4 digits")
	}
	if err := d.selfOrAdmin(ctx, op, familyID, actorID, id); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), d.opts.PINCost)
	if err != nil {
		return err
	}
	if err := d.members.SetPIN(ctx, familyID, id, string(hash)); err != nil {
		return err
	}
	d.emit(ctx, feed.EntityMember, feed.ActionUpdated, familyID, id)
	return nil
}

func (d *Directory) ClearPIN(ctx context.Context, familyID, actorID, id string) error {
	if err := d.selfOrAdmin(ctx, "clear pin", familyID, actorID, id); err != nil {
		return err
	}
	if err := d.members.ClearPIN(ctx, familyID, id); err != nil {
		return err
	}
	d.emit(ctx, feed.EntityMember, feed.ActionUpdated, familyID, id)
	return nil
}

func (d *Directory) selfOrAdmin(ctx context.Context, op, familyID, actorID, id string) error {
	a, err := d.actor(ctx, op, familyID, actorID)
	if err != nil {
		return err
	}
	if !a.IsAdmin() && a.ID != id {
		return ledger.E(ledger.ErrForbidden, op, "only an admin can change another member")
	}
	m, err := d.members.Get(ctx, familyID, id)
	if err != nil {
		return err
	}
	if m == nil {
		return ledger.E(ledger.ErrNotFound, op, "member not found")
	}
	return nil
}

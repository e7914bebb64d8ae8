// Package catalog manages a family's tasks and rewards, including the
// wishlist flow where members propose rewards for an admin to approve.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/google/uuid"
)

type TaskStore interface {
	Create(ctx context.Context, t model.Task) (*model.Task, error)
	Get(ctx context.Context, familyID, id string) (*model.Task, error)
	List(ctx context.Context, familyID string) ([]model.Task, error)
	Update(ctx context.Context, t model.Task) (*model.Task, error)
	Delete(ctx context.Context, familyID, id string) error
}

type RewardStore interface {
	Create(ctx context.Context, r model.Reward) (*model.Reward, error)
	Get(ctx context.Context, familyID, id string) (*model.Reward, error)
	List(ctx context.Context, familyID string) ([]model.Reward, error)
	Update(ctx context.Context, r model.Reward) (*model.Reward, error)
	SetStatus(ctx context.Context, familyID, id string, status model.RewardStatus) (*model.Reward, error)
	Delete(ctx context.Context, familyID, id string) error
}

type MemberReader interface {
	Get(ctx context.Context, familyID, id string) (*model.Member, error)
}

type TaskInput struct {
	Category    model.TaskCategory `json:"category"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Points      int                `json:"points"`
	Frequency   string             `json:"frequency"`
	ImageURL    string             `json:"image_url"`
}

func (in TaskInput) validate(op string) error {
	if strings.TrimSpace(in.Title) == "" {
		return ledger.E(ledger.ErrInvalid, op, "title is required")
	}
	if !in.Category.Valid() {
		return ledger.E(ledger.ErrInvalid, op, "unknown category "+string(in.Category))
	}
	if in.Points == 0 {
		return ledger.E(ledger.ErrInvalid, op, "points must not be zero")
	}
	return nil
}

type RewardInput struct {
	Title    string           `json:"title"`
	Points   int              `json:"points"`
	Type     model.RewardType `json:"type"`
	ImageURL string           `json:"image_url"`
}

func (in RewardInput) validate(op string) error {
	if strings.TrimSpace(in.Title) == "" {
		return ledger.E(ledger.ErrInvalid, op, "title is required")
	}
	if in.Points <= 0 {
		return ledger.E(ledger.ErrInvalid, op, "cost must be positive")
	}
	if !in.Type.Valid() {
		return ledger.E(ledger.ErrInvalid, op, "unknown reward type "+string(in.Type))
	}
	return nil
}

type Manager struct {
	tasks   TaskStore
	rewards RewardStore
	members MemberReader
	feed    feed.Publisher
	logger  *slog.Logger
}

func NewManager(tasks TaskStore, rewards RewardStore, members MemberReader, pub feed.Publisher, logger *slog.Logger) *Manager {
	if pub == nil {
		pub = feed.Nop{}
	}
	return &Manager{
		tasks:   tasks,
		rewards: rewards,
		members: members,
		feed:    pub,
		logger:  logger.With("component", "catalog"),
	}
}

func (m *Manager) actor(ctx context.Context, op, familyID, actorID string) (*model.Member, error) {
	if actorID == "" {
		return nil, ledger.E(ledger.ErrForbidden, op, "no member selected")
	}
	a, err := m.members.Get(ctx, familyID, actorID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ledger.E(ledger.ErrForbidden, op, "acting member is not part of this family")
	}
	return a, nil
}

func (m *Manager) requireAdmin(ctx context.Context, op, familyID, actorID string) error {
	a, err := m.actor(ctx, op, familyID, actorID)
	if err != nil {
		return err
	}
	if !a.IsAdmin() {
		return ledger.E(ledger.ErrForbidden, op, "only an admin can change the catalog")
	}
	return nil
}

func (m *Manager) emit(ctx context.Context, entity, action, familyID, id string) {
	feed.Emit(ctx, m.logger, m.feed, feed.NewEvent(entity, action, familyID, id))
}

func (m *Manager) ListTasks(ctx context.Context, familyID string) ([]model.Task, error) {
	tasks, err := m.tasks.List(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

func (m *Manager) CreateTask(ctx context.Context, familyID, actorID string, in TaskInput) (*model.Task, error) {
	const op = "create task"

	if err := in.validate(op); err != nil {
		return nil, err
	}
	if err := m.requireAdmin(ctx, op, familyID, actorID); err != nil {
		return nil, err
	}

	t, err := m.tasks.Create(ctx, model.Task{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		Category:    in.Category,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		Frequency:   strings.TrimSpace(in.Frequency),
		ImageURL:    in.ImageURL,
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, feed.EntityTask, feed.ActionCreated, familyID, t.ID)
	return t, nil
}

func (m *Manager) UpdateTask(ctx context.Context, familyID, actorID, id string, in TaskInput) (*model.Task, error) {
	const op = "update task"

	if err := in.validate(op); err != nil {
		return nil, err
	}
	if err := m.requireAdmin(ctx, op, familyID, actorID); err != nil {
		return nil, err
	}

	t, err := m.tasks.Update(ctx, model.Task{
		ID:          id,
		FamilyID:    familyID,
		Category:    in.Category,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		Frequency:   strings.TrimSpace(in.Frequency),
		ImageURL:    in.ImageURL,
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, feed.EntityTask, feed.ActionUpdated, familyID, id)
	return t, nil
}

// DeleteTask removes a task. Transactions that were earned from it keep
// their copied title and points.
func (m *Manager) DeleteTask(ctx context.Context, familyID, actorID, id string) error {
	if err := m.requireAdmin(ctx, "delete task", familyID, actorID); err != nil {
		return err
	}
	if err := m.tasks.Delete(ctx, familyID, id); err != nil {
		return err
	}
	m.emit(ctx, feed.EntityTask, feed.ActionDeleted, familyID, id)
	return nil
}

func (m *Manager) ListRewards(ctx context.Context, familyID string) ([]model.Reward, error) {
	rewards, err := m.rewards.List(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	return rewards, nil
}

func (m *Manager) CreateReward(ctx context.Context, familyID, actorID string, in RewardInput) (*model.Reward, error) {
	const op = "create reward"

	if err := in.validate(op); err != nil {
		return nil, err
	}
	if err := m.requireAdmin(ctx, op, familyID, actorID); err != nil {
		return nil, err
	}
	return m.createReward(ctx, familyID, in, model.StatusActive, "")
}

// RequestReward adds a wishlist entry that stays pending until an admin
// approves it. Any member may ask.
func (m *Manager) RequestReward(ctx context.Context, familyID, actorID string, in RewardInput) (*model.Reward, error) {
	const op = "request reward"

	if err := in.validate(op); err != nil {
		return nil, err
	}
	a, err := m.actor(ctx, op, familyID, actorID)
	if err != nil {
		return nil, err
	}
	return m.createReward(ctx, familyID, in, model.StatusPending, a.ID)
}

func (m *Manager) createReward(ctx context.Context, familyID string, in RewardInput, status model.RewardStatus, requestedBy string) (*model.Reward, error) {
	r, err := m.rewards.Create(ctx, model.Reward{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		Title:       strings.TrimSpace(in.Title),
		Points:      in.Points,
		Type:        in.Type,
		ImageURL:    in.ImageURL,
		Status:      status,
		RequestedBy: requestedBy,
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, feed.EntityReward, feed.ActionCreated, familyID, r.ID)
	return r, nil
}

func (m *Manager) UpdateReward(ctx context.Context, familyID, actorID, id string, in RewardInput) (*model.Reward, error) {
	const op = "update reward"

	if err := in.validate(op); err != nil {
		return nil, err
	}
	if err := m.requireAdmin(ctx, op, familyID, actorID); err != nil {
		return nil, err
	}

	r, err := m.rewards.Update(ctx, model.Reward{
		ID:       id,
		FamilyID: familyID,
		Title:    strings.TrimSpace(in.Title),
		Points:   in.Points,
		Type:     in.Type,
		ImageURL: in.ImageURL,
	})
	if err != nil {
		return nil, err
	}
	m.emit(ctx, feed.EntityReward, feed.ActionUpdated, familyID, id)
	return r, nil
}

func (m *Manager) DeleteReward(ctx context.Context, familyID, actorID, id string) error {
	if err := m.requireAdmin(ctx, "delete reward", familyID, actorID); err != nil {
		return err
	}
	if err := m.rewards.Delete(ctx, familyID, id); err != nil {
		return err
	}
	m.emit(ctx, feed.EntityReward, feed.ActionDeleted, familyID, id)
	return nil
}

// ApproveReward makes a wishlist entry redeemable.
func (m *Manager) ApproveReward(ctx context.Context, familyID, actorID, id string) (*model.Reward, error) {
	return m.review(ctx, "approve reward", familyID, actorID, id, model.StatusActive)
}

// RejectReward keeps the entry but marks it rejected so it cannot be redeemed.
func (m *Manager) RejectReward(ctx context.Context, familyID, actorID, id string) (*model.Reward, error) {
	return m.review(ctx, "reject reward", familyID, actorID, id, model.StatusRejected)
}

func (m *Manager) review(ctx context.Context, op, familyID, actorID, id string, status model.RewardStatus) (*model.Reward, error) {
	if err := m.requireAdmin(ctx, op, familyID, actorID); err != nil {
		return nil, err
	}
	r, err := m.rewards.SetStatus(ctx, familyID, id, status)
	if err != nil {
		return nil, err
	}
	m.emit(ctx, feed.EntityReward, feed.ActionUpdated, familyID, id)
	m.logger.Info("reward reviewed", "family_id", familyID, "reward_id", id, "status", status)
	return r, nil
}

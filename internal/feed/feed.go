// Package feed carries change notifications from the ledger to whoever is
// listening: browsers over websocket, a message broker, push devices.
// Delivery is best effort; nothing in the ledger depends on it.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

const (
	EntityTransaction = "transaction"
	EntityMember      = "member"
	EntityTask        = "task"
	EntityReward      = "reward"
	EntityFamily      = "family"
	EntitySession     = "session"

	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionImported = "imported"
)

// Event describes one committed change inside a family.
type Event struct {
	Type        string             `json:"type"`
	Entity      string             `json:"entity"`
	Action      string             `json:"action"`
	FamilyID    string             `json:"family_id"`
	ID          string             `json:"id,omitempty"`
	MemberID    string             `json:"member_id,omitempty"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	At          time.Time          `json:"at"`
}

// NewEvent builds an event whose Type is derived from entity and action.
func NewEvent(entity, action, familyID, id string) Event {
	return Event{
		Type:     fmt.Sprintf("%s_%s", entity, action),
		Entity:   entity,
		Action:   action,
		FamilyID: familyID,
		ID:       id,
		At:       time.Now().UTC(),
	}
}

// TransactionEvent announces a newly committed transaction.
func TransactionEvent(t model.Transaction) Event {
	e := NewEvent(EntityTransaction, ActionCreated, t.FamilyID, t.ID)
	e.MemberID = t.MemberID
	e.Transaction = &t
	e.At = t.Timestamp
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout delivers each event to every registered publisher. A failing
// publisher is logged and does not stop the others.
type Fanout struct {
	mu     sync.RWMutex
	pubs   []Publisher
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, pubs ...Publisher) *Fanout {
	return &Fanout{pubs: pubs, logger: logger}
}

func (f *Fanout) Add(p Publisher) {
	f.mu.Lock()
	f.pubs = append(f.pubs, p)
	f.mu.Unlock()
}

func (f *Fanout) Publish(ctx context.Context, e Event) error {
	f.mu.RLock()
	pubs := f.pubs
	f.mu.RUnlock()

	var errs []error
	for _, p := range pubs {
		if err := p.Publish(ctx, e); err != nil {
			f.logger.Warn("publish event", "type", e.Type, "family_id", e.FamilyID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes e and logs a failure instead of returning it.
func Emit(ctx context.Context, logger *slog.Logger, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Warn("change feed delivery failed", "type", e.Type, "family_id", e.FamilyID, "error", err)
	}
}

package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

const sendTimeout = 30 * time.Second

type Sender interface {
	Send(ctx context.Context, sub model.PushSubscription, payload Payload) error
}

type Subscriptions interface {
	ListByFamily(ctx context.Context, familyID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type MemberReader interface {
	Get(ctx context.Context, familyID, id string) (*model.Member, error)
}

// Notifier turns committed transactions into push notifications for every
// device subscribed to the family. Sends run in the background; Wait blocks
// until they finish.
type Notifier struct {
	sender  Sender
	subs    Subscriptions
	members MemberReader
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewNotifier(sender Sender, subs Subscriptions, members MemberReader, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		subs:    subs,
		members: members,
		logger:  logger.With("component", "push"),
	}
}

// Compose builds the notification for a transaction.
func Compose(memberName string, t model.Transaction) Payload {
	verb := "earned"
	points := t.Points
	switch {
	case t.Kind == model.KindRedeem:
		verb = "redeemed"
		points = -points
	case t.Points < 0:
		verb = "lost"
		points = -points
	}
	return Payload{
		Title: fmt.Sprintf("%s %s %d points", memberName, verb, points),
		Body:  t.Title,
		URL:   "/members/" + t.MemberID,
		Tag:   "tx-" + t.MemberID,

		Urgent: t.Kind == model.KindPenalty,
	}
}

// Publish implements feed.Publisher. Only transaction events notify.
func (n *Notifier) Publish(ctx context.Context, e feed.Event) error {
	if e.Entity != feed.EntityTransaction || e.Transaction == nil {
		return nil
	}

	subs, err := n.subs.ListByFamily(ctx, e.FamilyID)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	name := e.Transaction.MemberID
	if m, err := n.members.Get(ctx, e.FamilyID, e.Transaction.MemberID); err == nil && m != nil {
		name = m.Name
	}
	payload := Compose(name, *e.Transaction)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		n.deliver(ctx, subs, payload)
	}()
	return nil
}

func (n *Notifier) deliver(ctx context.Context, subs []model.PushSubscription, payload Payload) {
	for _, sub := range subs {
		err := n.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			if derr := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); derr != nil {
				n.logger.Error("delete expired subscription", "id", sub.ID, "error", derr)
			} else {
				n.logger.Info("removed expired subscription", "id", sub.ID, "family_id", sub.FamilyID)
			}
		default:
			n.logger.Warn("send push", "id", sub.ID, "family_id", sub.FamilyID, "error", err)
		}
	}
}

// Wait blocks until background sends have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

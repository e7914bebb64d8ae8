// Package action turns user intents (earn, penalty, redeem, transfer,
// adjustment, daily grant) into validated ledger transactions.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/feed"
	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/metrics"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/ahkjxy/family-points-bank-sub000/internal/store"
)

// Ledger is the balance-changing side of the store.
type Ledger interface {
	Apply(ctx context.Context, t model.Transaction, check ledger.Check) (*model.Member, error)
	ApplyTransfer(ctx context.Context, debit, credit model.Transaction, check ledger.Check) (*store.Transfer, error)
	GrantDaily(ctx context.Context, grants []model.Transaction) (*store.GrantResult, error)
	Balance(ctx context.Context, familyID, memberID string) (int, error)
	History(ctx context.Context, familyID, memberID string, limit int) ([]model.Transaction, error)
}

type MemberReader interface {
	Get(ctx context.Context, familyID, id string) (*model.Member, error)
	List(ctx context.Context, familyID string) ([]model.Member, error)
}

type TaskReader interface {
	Get(ctx context.Context, familyID, id string) (*model.Task, error)
}

type RewardReader interface {
	Get(ctx context.Context, familyID, id string) (*model.Reward, error)
}

// Options configure the daily grant and the clock.
type Options struct {
	GrantTitle  string
	GrantPoints int
	Location    *time.Location
	Now         func() time.Time
}

const (
	DefaultGrantTitle  = "Daily bonus"
	DefaultGrantPoints = 1
)

type Resolver struct {
	ledger  Ledger
	members MemberReader
	tasks   TaskReader
	rewards RewardReader
	feed    feed.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	opts    Options
}

func NewResolver(l Ledger, members MemberReader, tasks TaskReader, rewards RewardReader,
	pub feed.Publisher, m *metrics.Metrics, logger *slog.Logger, opts Options) *Resolver {
	// The grant key must use the same title the stored transaction gets.
	opts.GrantTitle = strings.TrimSpace(opts.GrantTitle)
	if opts.GrantTitle == "" {
		opts.GrantTitle = DefaultGrantTitle
	}
	if opts.GrantPoints == 0 {
		opts.GrantPoints = DefaultGrantPoints
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pub == nil {
		pub = feed.Nop{}
	}
	return &Resolver{
		ledger:  l,
		members: members,
		tasks:   tasks,
		rewards: rewards,
		feed:    pub,
		metrics: m,
		logger:  logger.With("component", "action"),
		opts:    opts,
	}
}

// Result is the committed transaction and the member state after it.
type Result struct {
	Member      *model.Member     `json:"member"`
	Transaction model.Transaction `json:"transaction"`
}

type TransferRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Points  int    `json:"points"`
	Message string `json:"message"`
}

type TransferResult struct {
	From   *model.Member     `json:"from"`
	To     *model.Member     `json:"to"`
	Debit  model.Transaction `json:"debit"`
	Credit model.Transaction `json:"credit"`
}

type GrantResult struct {
	Granted []model.Transaction `json:"granted"`
	Skipped []string            `json:"skipped"`
}

func (r *Resolver) actor(ctx context.Context, op, familyID, actorID string) (*model.Member, error) {
	if actorID == "" {
		return nil, ledger.E(ledger.ErrForbidden, op, "no member selected")
	}
	m, err := r.members.Get(ctx, familyID, actorID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ledger.E(ledger.ErrForbidden, op, "acting member is not part of this family")
	}
	return m, nil
}

// selfOrAdmin lets admins act on anyone and standard members only on themselves.
func selfOrAdmin(op string, actor *model.Member, memberID string) error {
	if actor.IsAdmin() || actor.ID == memberID {
		return nil
	}
	return ledger.E(ledger.ErrForbidden, op, "only an admin can act for another member")
}

func (r *Resolver) reject(err error) error {
	r.metrics.Rejected(err)
	return err
}

func (r *Resolver) committed(ctx context.Context, txs ...model.Transaction) {
	for _, t := range txs {
		r.metrics.TransactionCommitted(t)
		feed.Emit(ctx, r.logger, r.feed, feed.TransactionEvent(t))
	}
}

func (r *Resolver) apply(ctx context.Context, p ledger.TxParams, check ledger.Check) (*Result, error) {
	p.At = r.opts.Now()
	t, err := ledger.NewTransaction(p)
	if err != nil {
		return nil, r.reject(err)
	}
	m, err := r.ledger.Apply(ctx, t, check)
	if err != nil {
		return nil, r.reject(err)
	}
	r.committed(ctx, t)
	r.logger.Debug("transaction committed", "family_id", t.FamilyID, "member_id", t.MemberID, "type", t.Kind, "points", t.Points)
	return &Result{Member: m, Transaction: t}, nil
}

// Earn credits memberID with the points of a non-penalty task.
func (r *Resolver) Earn(ctx context.Context, familyID, actorID, memberID, taskID string) (*Result, error) {
	const op = "earn"

	actor, err := r.actor(ctx, op, familyID, actorID)
	if err != nil {
		return nil, r.reject(err)
	}
	if err := selfOrAdmin(op, actor, memberID); err != nil {
		return nil, r.reject(err)
	}
	task, err := r.tasks.Get(ctx, familyID, taskID)
	if err != nil {
		return nil, r.reject(err)
	}
	if task == nil {
		return nil, r.reject(ledger.E(ledger.ErrNotFound, op, "task not found"))
	}
	if task.Category == model.CategoryPenalty {
		return nil, r.reject(ledger.E(ledger.ErrInvalid, op, "penalty tasks cannot be earned"))
	}

	return r.apply(ctx, ledger.TxParams{
		FamilyID: familyID,
		MemberID: memberID,
		Title:    task.Title,
		Points:   task.Points,
		Kind:     model.KindEarn,
	}, nil)
}

// Penalize debits memberID by the magnitude of a penalty task.
func (r *Resolver) Penalize(ctx context.Context, familyID, actorID, memberID, taskID string) (*Result, error) {
	const op = "penalty"

	actor, err := r.actor(ctx, op, familyID, actorID)
	if err != nil {
		return nil, r.reject(err)
	}
	if err := selfOrAdmin(op, actor, memberID); err != nil {
		return nil, r.reject(err)
	}
	task, err := r.tasks.Get(ctx, familyID, taskID)
	if err != nil {
		return nil, r.reject(err)
	}
	if task == nil {
		return nil, r.reject(ledger.E(ledger.ErrNotFound, op, "task not found"))
	}
	if task.Category != model.CategoryPenalty {
		return nil, r.reject(ledger.E(ledger.ErrInvalid, op, "only penalty tasks can be applied as penalties"))
	}

	return r.apply(ctx, ledger.TxParams{
		FamilyID: familyID,
		MemberID: memberID,
		Title:    task.Title,
		Points:   ledger.PenaltyPoints(task.Points),
		Kind:     model.KindPenalty,
	}, nil)
}

// Redeem spends the cost of an active reward. The balance check runs against
// the member as read inside the store, so concurrent redeems cannot overdraw.
func (r *Resolver) Redeem(ctx context.Context, familyID, actorID, memberID, rewardID string) (*Result, error) {
	const op = "redeem"

	actor, err := r.actor(ctx, op, familyID, actorID)
	if err != nil {
		return nil, r.reject(err)
	}
	if err := selfOrAdmin(op, actor, memberID); err != nil {
		return nil, r.reject(err)
	}
	reward, err := r.rewards.Get(ctx, familyID, rewardID)
	if err != nil {
		return nil, r.reject(err)
	}
	if reward == nil {
		return nil, r.reject(ledger.E(ledger.ErrNotFound, op, "reward not found"))
	}
	if reward.Status != model.StatusActive {
		return nil, r.reject(ledger.E(ledger.ErrInvalid, op, "reward is not available yet"))
	}

	return r.apply(ctx, ledger.TxParams{
		FamilyID: familyID,
		MemberID: memberID,
		Title:    reward.Title,
		Points:   -reward.Points,
		Kind:     model.KindRedeem,
	}, ledger.CanAfford(op, reward.Points))
}

// Transfer moves points between two members of the family as one commit.
func (r *Resolver) Transfer(ctx context.Context, familyID, actorID string, req TransferRequest) (*TransferResult, error) {
	const op = "transfer"

	if req.Points <= 0 {
		return nil, r.reject(ledger.E(ledger.ErrInvalid, op, "points must be positive"))
	}
	if req.From == "" || req.To == "" {
		return nil, r.reject(ledger.E(ledger.ErrInvalid, op, "both members are required"))
	}
	if req.From == req.To {
		return nil, r.reject(ledger.E(ledger.ErrInvalid, op, "cannot transfer to the same member"))
	}

	actor, err := r.actor(ctx, op, familyID, actorID)
	if err != nil {
		return nil, r.reject(err)
	}
	if !actor.IsAdmin() && actor.ID != req.From {
		return nil, r.reject(ledger.E(ledger.ErrForbidden, op, "only the sender or an admin can transfer points"))
	}

	from, err := r.member(ctx, op, familyID, req.From)
	if err != nil {
		return nil, r.reject(err)
	}
	to, err := r.member(ctx, op, familyID, req.To)
	if err != nil {
		return nil, r.reject(err)
	}

	debitTitle, creditTitle := "Transfer to "+to.Name, "Transfer from "+from.Name
	if msg := strings.TrimSpace(req.Message); msg != "" {
		debitTitle, creditTitle = msg, msg
	}

	now := r.opts.Now()
	debit, err := ledger.NewTransaction(ledger.TxParams{
		FamilyID: familyID, MemberID: from.ID, Title: debitTitle, Points: -req.Points,
		Kind: model.KindTransfer, From: from.ID, To: to.ID, At: now,
	})
	if err != nil {
		return nil, r.reject(err)
	}
	credit, err := ledger.NewTransaction(ledger.TxParams{
		FamilyID: familyID, MemberID: to.ID, Title: creditTitle, Points: req.Points,
		Kind: model.KindTransfer, From: from.ID, To: to.ID, At: now,
	})
	if err != nil {
		return nil, r.reject(err)
	}

	res, err := r.ledger.ApplyTransfer(ctx, debit, credit, ledger.CanAfford(op, req.Points))
	if err != nil {
		return nil, r.reject(err)
	}
	r.committed(ctx, debit, credit)
	return &TransferResult{From: res.From, To: res.To, Debit: debit, Credit: credit}, nil
}

// Adjust applies an arbitrary signed correction. Admins only.
func (r *Resolver) Adjust(ctx context.Context, familyID, actorID, memberID string, points int, memo string) (*Result, error) {
	const op = "adjust"

	actor, err := r.actor(ctx, op, familyID, actorID)
	if err != nil {
		return nil, r.reject(err)
	}
	if !actor.IsAdmin() {
		return nil, r.reject(ledger.E(ledger.ErrForbidden, op, "only an admin can adjust balances"))
	}
	if points == 0 {
		return nil, r.reject(ledger.E(ledger.ErrInvalid, op, "adjustment must not be zero"))
	}
	memo = strings.TrimSpace(memo)
	if memo == "" {
		memo = "Manual adjustment"
	}

	return r.apply(ctx, ledger.TxParams{
		FamilyID: familyID,
		MemberID: memberID,
		Title:    memo,
		Points:   points,
		Kind:     model.KindAdjustment,
	}, nil)
}

// GrantDaily credits the configured bonus to each listed member at most once
// per calendar day. An empty list means every member of the family.
func (r *Resolver) GrantDaily(ctx context.Context, familyID string, memberIDs []string) (*GrantResult, error) {
	const op = "grant daily"

	members, err := r.members.List(ctx, familyID)
	if err != nil {
		return nil, r.reject(err)
	}
	byID := make(map[string]bool, len(members))
	for _, m := range members {
		byID[m.ID] = true
	}
	if len(memberIDs) == 0 {
		for _, m := range members {
			memberIDs = append(memberIDs, m.ID)
		}
	}

	now := r.opts.Now()
	day := ledger.CalendarDay(now, r.opts.Location)
	grants := make([]model.Transaction, 0, len(memberIDs))
	seen := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !byID[id] {
			return nil, r.reject(ledger.E(ledger.ErrNotFound, op, fmt.Sprintf("member %s not found", id)))
		}
		t, err := ledger.NewTransaction(ledger.TxParams{
			FamilyID: familyID,
			MemberID: id,
			Title:    r.opts.GrantTitle,
			Points:   r.opts.GrantPoints,
			Kind:     model.KindEarn,
			GrantKey: ledger.GrantKey(id, r.opts.GrantTitle, day),
			At:       now,
		})
		if err != nil {
			return nil, r.reject(err)
		}
		grants = append(grants, t)
	}
	if len(grants) == 0 {
		return &GrantResult{Granted: []model.Transaction{}, Skipped: []string{}}, nil
	}

	res, err := r.ledger.GrantDaily(ctx, grants)
	if err != nil {
		return nil, r.reject(err)
	}
	r.committed(ctx, res.Granted...)
	r.logger.Info("daily grant", "family_id", familyID, "day", day, "granted", len(res.Granted), "skipped", len(res.Skipped))

	out := &GrantResult{Granted: res.Granted, Skipped: res.Skipped}
	if out.Granted == nil {
		out.Granted = []model.Transaction{}
	}
	if out.Skipped == nil {
		out.Skipped = []string{}
	}
	return out, nil
}

func (r *Resolver) member(ctx context.Context, op, familyID, id string) (*model.Member, error) {
	m, err := r.members.Get(ctx, familyID, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ledger.E(ledger.ErrNotFound, op, "member not found")
	}
	return m, nil
}

func (r *Resolver) Balance(ctx context.Context, familyID, memberID string) (int, error) {
	return r.ledger.Balance(ctx, familyID, memberID)
}

// History returns the member's transactions newest first; limit <= 0 means all.
func (r *Resolver) History(ctx context.Context, familyID, memberID string, limit int) ([]model.Transaction, error) {
	return r.ledger.History(ctx, familyID, memberID, limit)
}

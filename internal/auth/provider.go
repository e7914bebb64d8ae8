package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
	"github.com/ahkjxy/family-points-bank-sub000/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

const (
	minPasswordLen   = 8
	maxResetAttempts = 5
	DefaultTTL       = 30 * 24 * time.Hour
)

// Families is the part of the family directory sign-up needs.
type Families interface {
	Provision(ctx context.Context, familyID, name string) (*model.Family, error)
	Load(ctx context.Context, familyID string) (*model.FamilyState, error)
}

// ResetMailer delivers password reset codes.
type ResetMailer interface {
	Configured() bool
	SendResetCode(ctx context.Context, toEmail, code, familyName string) error
}

// SessionChange is reported after a session is created, re-pointed or revoked.
type SessionChange struct {
	Action  string
	Session model.Session
}

type Options struct {
	TTL             time.Duration
	BcryptCost      int
	OnSessionChange func(ctx context.Context, c SessionChange)
}

// Session is what a client receives after signing in.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID string    `json:"account_id"`
	FamilyID  string    `json:"family_id"`
	MemberID  string    `json:"member_id"`
}

type Provider struct {
	accounts *store.AccountStore
	sessions *store.SessionStore
	resets   *store.PasswordResetStore
	families Families
	mailer   ResetMailer
	signer   *Signer
	logger   *slog.Logger
	opts     Options
}

func NewProvider(accounts *store.AccountStore, sessions *store.SessionStore, resets *store.PasswordResetStore,
	families Families, mailer ResetMailer, signer *Signer, logger *slog.Logger, opts Options) *Provider {
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Provider{
		accounts: accounts,
		sessions: sessions,
		resets:   resets,
		families: families,
		mailer:   mailer,
		signer:   signer,
		logger:   logger.With("component", "auth"),
		opts:     opts,
	}
}

func (p *Provider) changed(ctx context.Context, action string, s model.Session) {
	if p.opts.OnSessionChange != nil {
		p.opts.OnSessionChange(ctx, SessionChange{Action: action, Session: s})
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ledger.E(ledger.ErrInvalid, "sign up", "a valid email address is required")
	}
	return email, nil
}

func checkPassword(op, password string) error {
	if len(password) < minPasswordLen {
		return ledger.E(ledger.ErrInvalid, op, "password must be at least 8 characters")
	}
	return nil
}

// SignUp registers an account for a family. The first sign-up of a family id
// provisions and seeds it; a family that already has an account is refused.
func (p *Provider) SignUp(ctx context.Context, familyID, email, password string) (*Session, error) {
	const op = "sign up"

	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return nil, ledger.E(ledger.ErrInvalid, op, "family id is required")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(op, password); err != nil {
		return nil, err
	}

	existing, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ledger.E(ledger.ErrDuplicate, op, "an account with this email already exists")
	}
	n, err := p.accounts.CountByFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ledger.E(ledger.ErrForbidden, op, "this family is already registered; sign in instead")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	if _, err := p.families.Provision(ctx, familyID, familyID); err != nil {
		return nil, err
	}
	acc, err := p.accounts.Create(ctx, uuid.NewString(), email, string(hash), familyID)
	if err != nil {
		return nil, err
	}
	p.logger.Info("account created", "account_id", acc.ID, "family_id", familyID)
	return p.startSession(ctx, acc)
}

// SignIn checks the password and opens a new session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	acc, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return p.startSession(ctx, acc)
}

func (p *Provider) startSession(ctx context.Context, acc *model.Account) (*Session, error) {
	state, err := p.families.Load(ctx, acc.FamilyID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expires := now.Add(p.opts.TTL)
	sess, err := p.sessions.Create(ctx, uuid.NewString(), acc.ID, acc.FamilyID, state.CurrentMemberID, expires)
	if err != nil {
		return nil, err
	}
	token, err := p.signer.Issue(acc.ID, acc.FamilyID, sess.ID, now, expires)
	if err != nil {
		return nil, err
	}
	p.changed(ctx, "created", *sess)

	return &Session{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		AccountID: acc.ID,
		FamilyID:  acc.FamilyID,
		MemberID:  sess.MemberID,
	}, nil
}

// Authenticate resolves a bearer token to the live session behind it.
func (p *Provider) Authenticate(ctx context.Context, token string) (AuthContext, error) {
	claims, err := p.signer.Parse(token)
	if err != nil {
		return AuthContext{}, err
	}
	sess, err := p.sessions.Get(ctx, claims.ID)
	if err != nil {
		return AuthContext{}, err
	}
	if sess == nil || sess.AccountID != claims.Subject || sess.FamilyID != claims.FamilyID {
		return AuthContext{}, ErrInvalidToken
	}
	return AuthContext{
		AccountID: sess.AccountID,
		FamilyID:  sess.FamilyID,
		MemberID:  sess.MemberID,
		SessionID: sess.ID,
	}, nil
}

// SelectMember records which member is acting on this session.
func (p *Provider) SelectMember(ctx context.Context, ac AuthContext, memberID string) error {
	if err := p.sessions.SetMember(ctx, ac.SessionID, memberID); err != nil {
		return err
	}
	p.changed(ctx, "updated", model.Session{
		ID: ac.SessionID, AccountID: ac.AccountID, FamilyID: ac.FamilyID, MemberID: memberID,
	})
	return nil
}

// SignOut revokes the session; its token stops working immediately.
func (p *Provider) SignOut(ctx context.Context, ac AuthContext) error {
	if err := p.sessions.Delete(ctx, ac.SessionID); err != nil {
		return err
	}
	p.changed(ctx, "deleted", model.Session{ID: ac.SessionID, AccountID: ac.AccountID, FamilyID: ac.FamilyID})
	return nil
}

// RequestPasswordReset issues a reset code and mails it when a mailer is
// configured. Unknown emails return a nil reset and no error so callers
// cannot probe for accounts.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) (*model.PasswordReset, error) {
	acc, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		p.logger.Info("password reset for unknown email")
		return nil, nil
	}

	reset, err := p.resets.Create(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	if p.mailer != nil && p.mailer.Configured() {
		if err := p.mailer.SendResetCode(ctx, acc.Email, reset.Code, acc.FamilyID); err != nil {
			p.logger.Error("send reset code", "account_id", acc.ID, "error", err)
			return nil, ledger.Wrap(ledger.ErrTransientIO, "request password reset", err)
		}
	}
	p.logger.Info("password reset requested", "account_id", acc.ID)
	return reset, nil
}

// ResetPassword sets a new password when code matches the latest unused
// code. Codes allow a few wrong guesses and are single use. All sessions of
// the account are revoked.
func (p *Provider) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	const op = "reset password"

	if err := checkPassword(op, newPassword); err != nil {
		return err
	}
	acc, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrInvalidCredentials
	}

	latest, err := p.resets.GetLatest(ctx, acc.ID)
	if err != nil {
		return err
	}
	if latest == nil {
		return ledger.E(ledger.ErrForbidden, op, "code has expired or was already used")
	}
	if latest.Attempts >= maxResetAttempts {
		p.resets.MarkUsed(ctx, latest.ID)
		return ledger.E(ledger.ErrForbidden, op, "too many incorrect attempts; request a new code")
	}
	if subtle.ConstantTimeCompare([]byte(latest.Code), []byte(strings.TrimSpace(code))) != 1 {
		n, err := p.resets.IncrementAttempts(ctx, latest.ID)
		if err != nil {
			return err
		}
		if n >= maxResetAttempts {
			p.resets.MarkUsed(ctx, latest.ID)
		}
		return ledger.E(ledger.ErrForbidden, op, "incorrect code")
	}
	if err := p.resets.MarkUsed(ctx, latest.ID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.opts.BcryptCost)
	if err != nil {
		return err
	}
	if err := p.accounts.SetPassword(ctx, acc.ID, string(hash)); err != nil {
		return err
	}
	if err := p.sessions.DeleteByAccount(ctx, acc.ID); err != nil {
		return err
	}
	p.logger.Info("password reset", "account_id", acc.ID)
	return nil
}

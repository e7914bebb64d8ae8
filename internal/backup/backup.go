// Package backup archives family snapshots, encrypted with a passphrase, in
// an S3-compatible bucket and restores them.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

const suffix = ".json.enc"

var ErrNotConfigured = errors.New("backup not configured: S3 credentials missing")

// Bucket is where archives live.
type Bucket interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Snapshots exports and imports whole families.
type Snapshots interface {
	Export(ctx context.Context, familyID string) (*model.Snapshot, error)
	Import(ctx context.Context, snap model.Snapshot) error
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Archiver writes and reads snapshot archives. A nil bucket disables it.
type Archiver struct {
	mu     sync.RWMutex
	status Status

	bucket    Bucket
	snapshots Snapshots
	logger    *slog.Logger
	now       func() time.Time
}

func NewArchiver(bucket Bucket, snapshots Snapshots, logger *slog.Logger) *Archiver {
	a := &Archiver{
		bucket:    bucket,
		snapshots: snapshots,
		logger:    logger.With("component", "backup"),
		now:       time.Now,
		status:    Status{State: StateDisabled},
	}
	if bucket != nil {
		a.status.State = StateIdle
	}
	return a
}

func (a *Archiver) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Archiver) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

func (a *Archiver) fail(err error) error {
	a.setStatus(Status{State: StateError, Error: err.Error()})
	return err
}

// Key returns the object key of an archive taken at t.
func Key(familyID string, t time.Time) string {
	return path.Join(familyID, "snapshot-"+t.UTC().Format("2006-01-02T150405Z")+suffix)
}

// Archive exports the family, encrypts it and stores it. It returns the key.
func (a *Archiver) Archive(ctx context.Context, familyID, passphrase string) (string, error) {
	if a.bucket == nil {
		return "", ErrNotConfigured
	}
	if passphrase == "" {
		return "", ledger.E(ledger.ErrInvalid, "archive family", "passphrase is required")
	}

	a.setStatus(Status{State: StateRunning})

	snap, err := a.snapshots.Export(ctx, familyID)
	if err != nil {
		return "", a.fail(err)
	}
	plain, err := json.Marshal(snap)
	if err != nil {
		return "", a.fail(fmt.Errorf("marshal snapshot: %w", err))
	}
	enc, err := Encrypt(plain, passphrase)
	if err != nil {
		return "", a.fail(err)
	}

	now := a.now()
	key := Key(familyID, now)
	if err := a.bucket.Put(ctx, key, enc); err != nil {
		return "", a.fail(ledger.Wrap(ledger.ErrTransientIO, "archive family", err))
	}

	a.setStatus(Status{State: StateIdle, LastBackup: &now, LastKey: key})
	a.logger.Info("family archived", "family_id", familyID, "key", key,
		"members", len(snap.Members), "transactions", len(snap.Transactions), "bytes", len(enc))
	return key, nil
}

// List returns the family's archive keys, newest first.
func (a *Archiver) List(ctx context.Context, familyID string) ([]string, error) {
	if a.bucket == nil {
		return nil, ErrNotConfigured
	}
	keys, err := a.bucket.List(ctx, familyID+"/")
	if err != nil {
		return nil, ledger.Wrap(ledger.ErrTransientIO, "list archives", err)
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			out = append(out, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Restore replaces the family with the archive at key. An empty key restores
// the newest archive. The archive must belong to familyID.
func (a *Archiver) Restore(ctx context.Context, familyID, key, passphrase string) (*model.Snapshot, error) {
	const op = "restore family"

	if a.bucket == nil {
		return nil, ErrNotConfigured
	}
	if key == "" {
		keys, err := a.List(ctx, familyID)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, ledger.E(ledger.ErrNotFound, op, "no archives for family "+familyID)
		}
		key = keys[0]
	}
	if !strings.HasPrefix(key, familyID+"/") {
		return nil, ledger.E(ledger.ErrForbidden, op, "archive belongs to another family")
	}

	enc, err := a.bucket.Get(ctx, key)
	if err != nil {
		return nil, ledger.Wrap(ledger.ErrTransientIO, op, err)
	}
	plain, err := Decrypt(enc, passphrase)
	if err != nil {
		return nil, ledger.Wrap(ledger.ErrForbidden, op, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(plain, &snap); err != nil {
		return nil, ledger.Wrap(ledger.ErrInvalid, op, err)
	}
	if snap.Family.ID != familyID {
		return nil, ledger.E(ledger.ErrForbidden, op, "archive belongs to another family")
	}
	if err := a.snapshots.Import(ctx, snap); err != nil {
		return nil, err
	}

	a.logger.Info("family restored", "family_id", familyID, "key", key)
	return &snap, nil
}

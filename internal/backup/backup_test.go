package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahkjxy/family-points-bank-sub000/internal/ledger"
	"github.com/ahkjxy/family-points-bank-sub000/internal/model"
)

type memBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: make(map[string][]byte)}
}

func (b *memBucket) Put(_ context.Context, key string, data []byte) error {
	if b.putErr != nil {
		return b.putErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return data, nil
}

func (b *memBucket) List(_ context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

type fakeSnapshots struct {
	exported model.Snapshot
	imported []model.Snapshot
}

func (f *fakeSnapshots) Export(_ context.Context, familyID string) (*model.Snapshot, error) {
	if familyID != f.exported.Family.ID {
		return nil, ledger.E(ledger.ErrNotFound, "export", "family not found")
	}
	s := f.exported
	return &s, nil
}

func (f *fakeSnapshots) Import(_ context.Context, snap model.Snapshot) error {
	f.imported = append(f.imported, snap)
	return nil
}

func testSnapshot() model.Snapshot {
	return model.Snapshot{
		Family:  model.Family{ID: "f1", Name: "Smiths"},
		Members: []model.Member{{ID: "m1", FamilyID: "f1", Name: "Mom", Role: model.RoleAdmin, Balance: 5}},
		Transactions: []model.Transaction{
			{ID: "t1", FamilyID: "f1", MemberID: "m1", Title: "Opening balance", Points: 5, Kind: model.KindAdjustment},
		},
	}
}

func newTestArchiver(bucket Bucket, snaps Snapshots) *Archiver {
	return NewArchiver(bucket, snaps, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestArchiverDisabled(t *testing.T) {
	a := newTestArchiver(nil, &fakeSnapshots{})
	if a.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", a.Status().State, StateDisabled)
	}
	if _, err := a.Archive(context.Background(), "f1", "pass"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("archive err = %v, want ErrNotConfigured", err)
	}
	if _, err := a.Restore(context.Background(), "f1", "", "pass"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("restore err = %v, want ErrNotConfigured", err)
	}
}

func TestArchiveAndRestore(t *testing.T) {
	bucket := newMemBucket()
	snaps := &fakeSnapshots{exported: testSnapshot()}
	a := newTestArchiver(bucket, snaps)
	a.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	key, err := a.Archive(ctx, "f1", "hunter22")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if key != "f1/snapshot-2026-03-14T093000Z.json.enc" {
		t.Errorf("key = %q", key)
	}
	if strings.Contains(string(bucket.objects[key]), "Smiths") {
		t.Error("archive is stored in plain text")
	}
	st := a.Status()
	if st.State != StateIdle || st.LastKey != key || st.LastBackup == nil {
		t.Errorf("status = %+v", st)
	}

	snap, err := a.Restore(ctx, "f1", "", "hunter22")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if snap.Family.Name != "Smiths" || len(snap.Transactions) != 1 {
		t.Errorf("restored snapshot = %+v", snap)
	}
	if len(snaps.imported) != 1 {
		t.Fatalf("imported %d snapshots, want 1", len(snaps.imported))
	}
}

func TestRestoreWrongPassphrase(t *testing.T) {
	bucket := newMemBucket()
	snaps := &fakeSnapshots{exported: testSnapshot()}
	a := newTestArchiver(bucket, snaps)
	ctx := context.Background()

	key, err := a.Archive(ctx, "f1", "right")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, err = a.Restore(ctx, "f1", key, "wrong")
	if !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if len(snaps.imported) != 0 {
		t.Error("nothing should be imported")
	}
}

func TestRestoreOtherFamilyRefused(t *testing.T) {
	bucket := newMemBucket()
	a := newTestArchiver(bucket, &fakeSnapshots{exported: testSnapshot()})
	ctx := context.Background()

	key, err := a.Archive(ctx, "f1", "pass")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := a.Restore(ctx, "f2", key, "pass"); !errors.Is(err, ledger.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if _, err := a.Restore(ctx, "f2", "", "pass"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	bucket := newMemBucket()
	a := newTestArchiver(bucket, &fakeSnapshots{exported: testSnapshot()})
	ctx := context.Background()

	times := []time.Time{
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	for _, ts := range times {
		a.now = func() time.Time { return ts }
		if _, err := a.Archive(ctx, "f1", "pass"); err != nil {
			t.Fatalf("archive: %v", err)
		}
	}
	bucket.objects["f1/notes.txt"] = []byte("ignored")

	keys, err := a.List(ctx, "f1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{Key("f1", times[1]), Key("f1", times[2]), Key("f1", times[0])}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestArchiveUploadFailure(t *testing.T) {
	bucket := newMemBucket()
	bucket.putErr = errors.New("connection reset")
	a := newTestArchiver(bucket, &fakeSnapshots{exported: testSnapshot()})

	_, err := a.Archive(context.Background(), "f1", "pass")
	if !errors.Is(err, ledger.ErrTransientIO) {
		t.Errorf("err = %v, want ErrTransientIO", err)
	}
	if a.Status().State != StateError {
		t.Errorf("state = %q, want %q", a.Status().State, StateError)
	}
}

package changedetect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-dtu/internal/device"
)

func snap(key, fingerprint string) *device.Snapshot {
	return &device.Snapshot{DeviceMessageID: key, Fingerprint: fingerprint}
}

// failingStore returns err from every call.
type failingStore struct{ err error }

func (f failingStore) Lookup(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, f.err
}
func (f failingStore) Put(context.Context, string, Entry, time.Duration) error { return f.err }
func (f failingStore) Delete(context.Context, string) error                   { return f.err }
func (f failingStore) Ping(context.Context) error                             { return f.err }

func TestDetector_Evaluate(t *testing.T) {
	tests := []struct {
		name        string
		cached      *Entry
		fingerprint string
		want        Verdict
	}{
		{name: "no entry", cached: nil, fingerprint: "", want: FirstSeen},
		{name: "equal empty", cached: &Entry{Fingerprint: "", RowID: "r1"}, fingerprint: "", want: Unchanged},
		{name: "equal codes", cached: &Entry{Fingerprint: "3,5", RowID: "r1"}, fingerprint: "3,5", want: Unchanged},
		{name: "case insensitive", cached: &Entry{Fingerprint: "E1", RowID: "r1"}, fingerprint: "e1", want: Unchanged},
		{name: "warning raised", cached: &Entry{Fingerprint: "", RowID: "r1"}, fingerprint: "3", want: Changed},
		{name: "warning cleared", cached: &Entry{Fingerprint: "3", RowID: "r1"}, fingerprint: "", want: Changed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := NewMemoryStore()
			d := NewDetector(store, Config{})
			if tt.cached != nil {
				if err := store.Put(ctx, d.Key("dev-1"), *tt.cached, time.Hour); err != nil {
					t.Fatalf("Put() error = %v", err)
				}
			}

			res, err := d.Evaluate(ctx, snap("dev-1", tt.fingerprint))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Verdict != tt.want {
				t.Errorf("Verdict = %v, want %v", res.Verdict, tt.want)
			}
			if tt.want == FirstSeen && res.Entry != nil {
				t.Errorf("Entry = %+v, want nil for FirstSeen", res.Entry)
			}
			if tt.want != FirstSeen && (res.Entry == nil || res.Entry.RowID != "r1") {
				t.Errorf("Entry = %+v, want row r1", res.Entry)
			}
		})
	}
}

func TestDetector_CommitThenEvaluate(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryStore(), Config{KeyPrefix: "t:", TTL: time.Hour})

	if err := d.Commit(ctx, snap("dev-1", "3"), "row-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	res, err := d.Evaluate(ctx, snap("dev-1", "3"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Verdict != Unchanged || res.Entry.RowID != "row-1" {
		t.Errorf("Evaluate() = %+v, want Unchanged against row-1", res)
	}

	// Keys are independent.
	res, err = d.Evaluate(ctx, snap("dev-2", "3"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Verdict != FirstSeen {
		t.Errorf("other key Verdict = %v, want FirstSeen", res.Verdict)
	}

	if err := d.Forget(ctx, "dev-1"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	res, _ = d.Evaluate(ctx, snap("dev-1", "3"))
	if res.Verdict != FirstSeen {
		t.Errorf("after Forget Verdict = %v, want FirstSeen", res.Verdict)
	}
}

func TestDetector_CommitEmptyRowID(t *testing.T) {
	d := NewDetector(NewMemoryStore(), Config{})
	if err := d.Commit(context.Background(), snap("dev-1", ""), ""); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Commit() error = %v, want ErrInvalidEntry", err)
	}
}

func TestDetector_FailOpen(t *testing.T) {
	storeErr := errors.New("connection refused")
	d := NewDetector(failingStore{err: storeErr}, Config{})
	ctx := context.Background()

	res, err := d.Evaluate(ctx, snap("dev-1", "3"))
	if !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("Evaluate() error = %v, want ErrCacheUnavailable", err)
	}
	if !errors.Is(err, storeErr) {
		t.Errorf("Evaluate() error = %v, want it to wrap the store error", err)
	}
	if res.Verdict != FirstSeen {
		t.Errorf("Verdict = %v, want FirstSeen", res.Verdict)
	}

	if err := d.Commit(ctx, snap("dev-1", "3"), "row-1"); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Commit() error = %v, want ErrCacheUnavailable", err)
	}
	if err := d.Forget(ctx, "dev-1"); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Forget() error = %v, want ErrCacheUnavailable", err)
	}
	if err := d.Ping(ctx); !errors.Is(err, ErrCacheUnavailable) {
		t.Errorf("Ping() error = %v, want ErrCacheUnavailable", err)
	}
}

func TestNewDetector_Defaults(t *testing.T) {
	d := NewDetector(NewMemoryStore(), Config{})
	if got := d.Key("smoke-17"); got != "dtu:device:smoke-17" {
		t.Errorf("Key() = %q, want dtu:device:smoke-17", got)
	}
	if d.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", d.ttl, DefaultTTL)
	}
}

func TestVerdict_String(t *testing.T) {
	tests := map[Verdict]string{
		FirstSeen:   "first_seen",
		Changed:     "changed",
		Unchanged:   "unchanged",
		Verdict(42): "verdict(42)",
	}
	for v, want := range tests {
		if got := v.String(); got != want {
			t.Errorf("Verdict(%d).String() = %q, want %q", int(v), got, want)
		}
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	if err := store.Put(ctx, "a", Entry{Fingerprint: "", RowID: "r1"}, time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "b", Entry{Fingerprint: "", RowID: "r2"}, 3*time.Hour); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	now = now.Add(2 * time.Hour)

	if _, found, _ := store.Lookup(ctx, "a"); found {
		t.Error("expired entry a still found")
	}
	if _, found, _ := store.Lookup(ctx, "b"); !found {
		t.Error("entry b should not have expired")
	}

	now = now.Add(2 * time.Hour)
	if removed := store.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestMemoryStore_RunSweeperStops(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper did not stop after cancel")
	}
}

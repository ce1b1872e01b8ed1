package ingest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-dtu/internal/changedetect"
	"github.com/nerrad567/gray-logic-dtu/internal/device"
	"github.com/nerrad567/gray-logic-dtu/internal/frame"
	"github.com/nerrad567/gray-logic-dtu/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-dtu/migrations"
)

// pipeline is a processor wired to a migrated SQLite file and an
// in-memory fingerprint cache.
type pipeline struct {
	proc     *Processor
	exec     *Executor
	store    *device.SQLiteSnapshotStore
	cache    *changedetect.MemoryStore
	detector *changedetect.Detector
	metrics  *Metrics
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "dtu.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func newPipeline(t *testing.T, cfg Config) *pipeline {
	t.Helper()
	return newPipelineWithCache(t, cfg, changedetect.NewMemoryStore())
}

func newPipelineWithCache(t *testing.T, cfg Config, cache changedetect.Store) *pipeline {
	t.Helper()

	db := openTestDB(t)
	store := device.NewSQLiteSnapshotStore(db.DB)
	detector := changedetect.NewDetector(cache, changedetect.Config{})
	metrics := NewMetrics(prometheus.NewRegistry())

	exec := NewExecutor(store, detector)
	exec.SetMetrics(metrics)

	proc := NewProcessor(cfg, device.NewRegistry(), detector, exec)
	proc.SetMetrics(metrics)

	p := &pipeline{
		proc:     proc,
		exec:     exec,
		store:    store,
		detector: detector,
		metrics:  metrics,
	}
	if mem, ok := cache.(*changedetect.MemoryStore); ok {
		p.cache = mem
	}
	return p
}

// smokeFrame encodes a smoke sensor frame for key with the given warning codes.
func smokeFrame(t *testing.T, key string, pt int, warnings ...int) []byte {
	t.Helper()
	records := []frame.DataRecord{{Type: frame.DataTypePT, Readings: []int{pt}}}
	if len(warnings) > 0 {
		records = append(records, frame.DataRecord{Type: frame.DataTypeWarning, Readings: warnings})
	}
	raw, err := frame.Encode(&frame.Message{
		DeviceID:        "DTU-0001",
		DeviceMessageID: key,
		DeviceType:      frame.DeviceTypeSmokeSensor,
		CapturedAt:      time.Unix(1767225600, 0),
		Records:         records,
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return raw
}

func (p *pipeline) mustProcess(t *testing.T, raw []byte, want Outcome) {
	t.Helper()
	got, err := p.proc.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got != want {
		t.Fatalf("Process() = %s, want %s", got, want)
	}
}

func (p *pipeline) count(t *testing.T, key string, status device.Status) int {
	t.Helper()
	n, err := p.store.CountByStatus(context.Background(), key, status)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	return n
}

func (p *pipeline) current(t *testing.T, key string) *device.Snapshot {
	t.Helper()
	snap, err := p.store.GetCurrent(context.Background(), key)
	if err != nil {
		t.Fatalf("GetCurrent(%s) error = %v", key, err)
	}
	return snap
}

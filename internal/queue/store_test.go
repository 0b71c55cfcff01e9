package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/models"
)

func newQueueTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.WorkItem{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestEnqueueAndPending(t *testing.T) {
	store := NewStore(newQueueTestDB(t), nil, zerolog.Nop())
	ctx := context.Background()

	items, err := store.Enqueue(ctx, "", "a", "b", "c")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(items) != 3 || items[0].ID == 0 || items[0].Source != DefaultSource {
		t.Fatalf("unexpected items: %+v", items)
	}

	n, err := store.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if n != 3 {
		t.Fatalf("pending = %d, want 3", n)
	}
}

func TestClaimIsFIFOAndMarksDispatched(t *testing.T) {
	db := newQueueTestDB(t)
	store := NewStore(db, nil, zerolog.Nop())
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, "jobs", "first", "second"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	item, err := store.Claim(ctx, "run-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if item.Payload != "first" || !item.Dispatched() || item.RunID != "run-1" {
		t.Fatalf("claimed %+v", item)
	}

	var stored models.WorkItem
	if err := db.First(&stored, item.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.DispatchedAt == nil || !stored.DispatchedAt.Equal(fixed) {
		t.Fatalf("dispatched_at = %v, want %v", stored.DispatchedAt, fixed)
	}

	if n, _ := store.Pending(ctx); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}

func TestClaimEmptyQueue(t *testing.T) {
	store := NewStore(newQueueTestDB(t), nil, zerolog.Nop())
	if _, err := store.Claim(context.Background(), "run"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestSequenceDrainsQueueAndPublishes(t *testing.T) {
	bus := events.NewBus()
	dispatched := bus.Subscribe(events.EventItemDispatched)
	store := NewStore(newQueueTestDB(t), bus, zerolog.Nop())
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, "jobs", "x", "y"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	seq := store.Sequence(ctx, "run-7")
	var got []string
	for {
		item, ok := seq.Next()
		if !ok {
			break
		}
		got = append(got, item.Payload)
	}

	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("drained %v, want [x y]", got)
	}
	if err := store.Err(); err != nil {
		t.Fatalf("unexpected sequence error: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case p := <-dispatched:
			if p["run_id"] != "run-7" || p["source"] != "jobs" {
				t.Fatalf("payload = %v", p)
			}
		default:
			t.Fatalf("missing item.dispatched event %d", i)
		}
	}
}

func TestSequenceStopsOnDatabaseError(t *testing.T) {
	db := newQueueTestDB(t)
	store := NewStore(db, nil, zerolog.Nop())
	if err := db.Migrator().DropTable(&models.WorkItem{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	if _, ok := store.Sequence(context.Background(), "run").Next(); ok {
		t.Fatal("expected sequence to end")
	}
	if store.Err() == nil {
		t.Fatal("expected Err to report the failed claim")
	}
}

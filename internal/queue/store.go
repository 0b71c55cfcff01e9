/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package queue persists work items and hands them to the driver one pull at a time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/cadence/internal/driver"
	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/models"
	"github.com/friendsincode/cadence/internal/telemetry"
)

// DefaultSource labels items enqueued without an explicit source.
const DefaultSource = "default"

// maxClaimAttempts bounds retries when another instance claims the same row first.
const maxClaimAttempts = 5

// ErrClaimContention is returned when every claim attempt lost a race.
var ErrClaimContention = errors.New("queue: could not claim item after repeated contention")

// Store is a gorm-backed FIFO of work items.
type Store struct {
	db        *gorm.DB
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	lastErr error
}

// NewStore creates a store. A nil publisher discards item events.
func NewStore(db *gorm.DB, publisher events.Publisher, logger zerolog.Logger) *Store {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Store{
		db:        db,
		publisher: publisher,
		logger:    logger.With().Str("component", "queue").Logger(),
		now:       time.Now,
	}
}

// Enqueue appends payloads under source and returns the stored items.
func (s *Store) Enqueue(ctx context.Context, source string, payloads ...string) ([]models.WorkItem, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	if source == "" {
		source = DefaultSource
	}

	items := make([]models.WorkItem, len(payloads))
	for i, p := range payloads {
		items[i] = models.WorkItem{Payload: p, Source: source}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&items, 500).Error; err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	s.logger.Debug().Str("source", source).Int("count", len(items)).Msg("items enqueued")
	return items, nil
}

// Pending counts items not yet dispatched.
func (s *Store) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.WorkItem{}).
		Where("dispatched_at IS NULL").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// Claim marks the oldest pending item as dispatched by runID and returns it.
// It returns gorm.ErrRecordNotFound when nothing is pending.
func (s *Store) Claim(ctx context.Context, runID string) (models.WorkItem, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		var item models.WorkItem
		err := s.db.WithContext(ctx).
			Where("dispatched_at IS NULL").
			Order("id ASC").
			Take(&item).Error
		if err != nil {
			return models.WorkItem{}, err
		}

		at := s.now().UTC()
		res := s.db.WithContext(ctx).
			Model(&models.WorkItem{}).
			Where("id = ? AND dispatched_at IS NULL", item.ID).
			Updates(map[string]any{"dispatched_at": at, "run_id": runID})
		if res.Error != nil {
			return models.WorkItem{}, fmt.Errorf("claim item %d: %w", item.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			item.DispatchedAt = &at
			item.RunID = runID
			return item, nil
		}
		s.logger.Debug().Uint("item_id", item.ID).Int("attempt", attempt+1).Msg("item claimed elsewhere, retrying")
	}
	return models.WorkItem{}, ErrClaimContention
}

// Sequence adapts the store to the driver's pull interface. Each pull claims
// one item. The sequence ends when the queue is empty or a claim fails; Err
// distinguishes the two.
func (s *Store) Sequence(ctx context.Context, runID string) driver.Sequence[models.WorkItem] {
	return driver.SequenceFunc[models.WorkItem](func() (models.WorkItem, bool) {
		item, err := s.Claim(ctx, runID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			s.logger.Info().Str("run_id", runID).Msg("queue drained")
			return models.WorkItem{}, false
		case err != nil:
			s.setErr(err)
			s.logger.Error().Err(err).Str("run_id", runID).Msg("claim failed, ending sequence")
			return models.WorkItem{}, false
		}

		telemetry.ItemsDispatchedTotal.WithLabelValues(item.Source).Inc()
		s.publisher.Publish(events.EventItemDispatched, events.Payload{
			"run_id":  runID,
			"item_id": item.ID,
			"source":  item.Source,
		})
		return item, true
	})
}

// Err returns the error that ended the last sequence early, if any.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

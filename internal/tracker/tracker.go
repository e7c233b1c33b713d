// Package tracker maintains a per-user sliding window of recent messages in
// durable storage and classifies burst behavior against a threshold.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slackmod/internal/config"
	"slackmod/internal/storage"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const maxExcerptLen = 500

// conflictRetries bounds how many times a lost save race is retried before
// the event is given up as uncounted.
const conflictRetries = 3

type Store interface {
	LoadMessages(ctx context.Context, userID string) ([]storage.MessageRecord, int64, error)
	SaveMessages(ctx context.Context, userID string, records []storage.MessageRecord, lastUpdated int64, version int64) error
	DeleteMessages(ctx context.Context, userID string) error
}

type Result struct {
	Exceeded bool
	Count    int
	Records  []storage.MessageRecord
}

type Tracker struct {
	store     Store
	logger    *zap.Logger
	threshold int
	window    time.Duration
	maxKept   int
	now       func() time.Time
}

func New(store Store, cfg config.Tracker, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:     store,
		logger:    logger,
		threshold: cfg.MessageThreshold,
		window:    time.Duration(cfg.WindowSeconds) * time.Second,
		maxKept:   cfg.MaxTracked,
		now:       time.Now,
	}
}

// Track records a new message for the user, slides the window forward, and
// reports whether the threshold is now met. The pruned set is persisted on
// every call, below threshold or not. Records are only returned when the
// threshold is exceeded.
func (t *Tracker) Track(ctx context.Context, userID, channelID, messageTS, text string) (Result, error) {
	var result Result

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), conflictRetries), ctx)
	operation := func() error {
		res, err := t.trackOnce(ctx, userID, channelID, messageTS, text)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return Result{}, fmt.Errorf("track %s: %w", userID, err)
	}
	return result, nil
}

func (t *Tracker) trackOnce(ctx context.Context, userID, channelID, messageTS, text string) (Result, error) {
	records, version, err := t.store.LoadMessages(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	now := t.now().Unix()
	cutoff := now - int64(t.window/time.Second)

	// Boundary record (timestamp == cutoff) is retained; strictly older
	// records fall out of the window.
	kept := records[:0]
	for _, record := range records {
		if record.Timestamp >= cutoff {
			kept = append(kept, record)
		}
	}

	kept = append(kept, storage.MessageRecord{
		Timestamp: now,
		ChannelID: channelID,
		MessageTS: messageTS,
		Text:      truncate(text, maxExcerptLen),
	})

	// Hard cap so a user messaging faster than the window evicts cannot grow
	// the record without bound. Oldest entries are dropped first.
	if len(kept) > t.maxKept {
		dropped := len(kept) - t.maxKept
		kept = kept[dropped:]
		t.logger.Warn("tracked messages capped",
			zap.String("user_id", userID),
			zap.Int("dropped", dropped),
		)
	}

	if err := t.store.SaveMessages(ctx, userID, kept, now, version); err != nil {
		return Result{}, err
	}

	result := Result{Count: len(kept)}
	if len(kept) >= t.threshold {
		result.Exceeded = true
		result.Records = append([]storage.MessageRecord(nil), kept...)
	}
	return result, nil
}

// Get returns the user's tracked records as stored, in insertion order.
func (t *Tracker) Get(ctx context.Context, userID string) ([]storage.MessageRecord, error) {
	records, _, err := t.store.LoadMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Clear drops all tracked state for the user.
func (t *Tracker) Clear(ctx context.Context, userID string) error {
	return t.store.DeleteMessages(ctx, userID)
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

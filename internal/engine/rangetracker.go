package engine

import (
	"context"
	"time"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

// RangeTrackerConfig holds parameters for the reference range tracker.
type RangeTrackerConfig struct {
	// QualifyingHourEnabled restricts range replacement to bars opening at
	// QualifyingHour (UTC). When disabled every new reference bar qualifies.
	QualifyingHourEnabled bool
	QualifyingHour        int
}

// RangeTracker maintains the current high/low reference range and decides
// when a newly closed reference-timeframe bar should replace it.
type RangeTracker struct {
	cfg    RangeTrackerConfig
	logger ports.Logger

	current  domain.ReferenceRange
	lastSeen time.Time // open time of the last bar inspected, qualifying or not
}

// NewRangeTracker creates a new reference range tracker.
func NewRangeTracker(cfg RangeTrackerConfig, logger ports.Logger) *RangeTracker {
	return &RangeTracker{cfg: cfg, logger: logger}
}

// Current returns the active reference range. The zero value means no range
// has been accepted yet.
func (t *RangeTracker) Current() domain.ReferenceRange {
	return t.current
}

// Update inspects a newly closed reference-timeframe bar and returns true
// when it replaced the active range. A nil bar leaves the previous range
// intact (fail-safe, never fail-open).
func (t *RangeTracker) Update(ctx context.Context, kline *domain.Kline) bool {
	if kline == nil {
		t.logger.Debug(ctx, "rangeTracker: no reference bar available, keeping previous range")
		return false
	}
	if !kline.OpenTime.After(t.lastSeen) {
		// Already inspected this bar on a previous cycle.
		return false
	}
	t.lastSeen = kline.OpenTime

	if t.cfg.QualifyingHourEnabled && kline.OpenTime.UTC().Hour() != t.cfg.QualifyingHour {
		t.logger.Debug(ctx, "rangeTracker: reference bar outside qualifying hour", map[string]interface{}{
			"openTime":       kline.OpenTime,
			"qualifyingHour": t.cfg.QualifyingHour,
		})
		return false
	}
	if kline.High <= kline.Low || kline.Low <= 0 {
		t.logger.Warn(ctx, "rangeTracker: rejecting degenerate reference bar", map[string]interface{}{
			"high": kline.High,
			"low":  kline.Low,
		})
		return false
	}

	t.current = domain.ReferenceRange{
		High:     kline.High,
		Low:      kline.Low,
		OpenTime: kline.OpenTime,
	}
	t.logger.Info(ctx, "rangeTracker: reference range replaced", map[string]interface{}{
		"high":     t.current.High,
		"low":      t.current.Low,
		"openTime": t.current.OpenTime,
	})
	return true
}

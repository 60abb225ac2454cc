package engine

import (
	"context"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

// LifecycleConfig holds the breakeven and trailing-stop parameters.
type LifecycleConfig struct {
	BreakevenTriggerR      float64 // R-multiple at which the stop moves to entry
	TrailingTriggerR       float64 // R-multiple at which trailing engages (typically higher)
	TrailingDistancePoints float64 // Trailing stop offset from current price, in points
}

// StopModFunc applies a stop modification for a position. clearTakeProfit
// requests removal of the take-profit order (trailing supersedes the
// original target). It returns an error when the exchange rejects the
// modification; the caller retries on the next eligible cycle.
type StopModFunc func(ctx context.Context, pos *domain.Position, newStop float64, clearTakeProfit bool) error

// LifecycleManager applies breakeven and trailing-stop adjustments to open
// positions. Both adjustments are single, monotonic ratchets: the breakeven
// move happens at most once per position and trailing updates only ever
// tighten the stop.
type LifecycleManager struct {
	cfg      LifecycleConfig
	logger   ports.Logger
	notifier ports.LevelNotifier

	breakevenDone  map[int64]struct{}
	trailingActive map[int64]struct{}
}

// NewLifecycleManager creates a lifecycle manager with empty tracking sets.
func NewLifecycleManager(cfg LifecycleConfig, logger ports.Logger, notifier ports.LevelNotifier) *LifecycleManager {
	return &LifecycleManager{
		cfg:            cfg,
		logger:         logger,
		notifier:       notifier,
		breakevenDone:  make(map[int64]struct{}),
		trailingActive: make(map[int64]struct{}),
	}
}

// TrailingActive reports whether trailing has engaged for the position id.
func (m *LifecycleManager) TrailingActive(positionID int64) bool {
	_, ok := m.trailingActive[positionID]
	return ok
}

// BreakevenApplied reports whether the breakeven move has been recorded for
// the position id.
func (m *LifecycleManager) BreakevenApplied(positionID int64) bool {
	_, ok := m.breakevenDone[positionID]
	return ok
}

// Forget drops the tracking entries for a closed position.
func (m *LifecycleManager) Forget(positionID int64) {
	delete(m.breakevenDone, positionID)
	delete(m.trailingActive, positionID)
}

// Manage evaluates one open position against the current price and applies
// at most one stop adjustment per call. Failed modifications leave the
// tracking flags untouched so the adjustment is retried next cycle.
func (m *LifecycleManager) Manage(ctx context.Context, pos *domain.Position, currentPrice float64, specs *ports.SymbolSpecs, modify StopModFunc) {
	if pos == nil || !pos.IsOpen() {
		return
	}
	r := pos.RMultiple(currentPrice)
	sign := pos.Side.Sign()

	// Trailing first: once its trigger is reached it supersedes breakeven
	// (and the original take-profit).
	if m.cfg.TrailingTriggerR > 0 && r >= m.cfg.TrailingTriggerR && specs != nil && specs.PointSize > 0 {
		newStop := currentPrice - sign*m.cfg.TrailingDistancePoints*specs.PointSize
		// Only ever tighten: the new stop must sit on the favorable side of
		// the current one.
		if sign*(newStop-pos.StopLoss) > 0 {
			clearTP := !m.TrailingActive(pos.ID)
			if err := modify(ctx, pos, newStop, clearTP); err != nil {
				m.logger.Warn(ctx, "lifecycle: trailing stop modification rejected, will retry", map[string]interface{}{
					"positionID": pos.ID,
					"newStop":    newStop,
					"error":      err.Error(),
				})
				return
			}
			m.trailingActive[pos.ID] = struct{}{}
			pos.StopLoss = newStop
			if clearTP {
				pos.TakeProfit = 0
			}
			m.notifier.StopAdjusted(ctx, pos.Symbol, pos.ID, newStop)
			m.logger.Info(ctx, "lifecycle: trailing stop advanced", map[string]interface{}{
				"positionID": pos.ID,
				"rMultiple":  r,
				"newStop":    newStop,
			})
		}
		return
	}

	// Breakeven: move the stop to entry exactly once, keeping the target.
	if m.cfg.BreakevenTriggerR > 0 && r >= m.cfg.BreakevenTriggerR && !m.BreakevenApplied(pos.ID) {
		// Idempotence is checked both by membership and by price: a stop
		// already at or beyond entry needs no order.
		if sign*(pos.StopLoss-pos.EntryPrice) >= 0 {
			m.breakevenDone[pos.ID] = struct{}{}
			return
		}
		if err := modify(ctx, pos, pos.EntryPrice, false); err != nil {
			m.logger.Warn(ctx, "lifecycle: breakeven modification rejected, will retry", map[string]interface{}{
				"positionID": pos.ID,
				"error":      err.Error(),
			})
			return
		}
		m.breakevenDone[pos.ID] = struct{}{}
		pos.StopLoss = pos.EntryPrice
		m.notifier.StopAdjusted(ctx, pos.Symbol, pos.ID, pos.EntryPrice)
		m.logger.Info(ctx, "lifecycle: stop moved to breakeven", map[string]interface{}{
			"positionID": pos.ID,
			"rMultiple":  r,
			"entry":      pos.EntryPrice,
		})
	}
}

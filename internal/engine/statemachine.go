package engine

import (
	"context"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

// maxExtremeLookback caps the number of bars scanned between breakout and
// reversal when locating the stop extreme.
const maxExtremeLookback = 100

// SideMachine drives breakout-reversal detection for one trade direction.
// Long and short machines are the same code parametrized by the side's sign;
// the comparisons are exact mirrors.
type SideMachine struct {
	side   domain.Side
	logger ports.Logger
	state  domain.SideState
}

// NewSideMachine creates a state machine for the given direction.
func NewSideMachine(side domain.Side, logger ports.Logger) *SideMachine {
	return &SideMachine{side: side, logger: logger}
}

// Side returns the direction this machine detects.
func (m *SideMachine) Side() domain.Side {
	return m.side
}

// State returns a copy of the current detection state.
func (m *SideMachine) State() domain.SideState {
	return m.state
}

// Reset clears the machine back to idle. Called when the reference range is
// replaced and after every trade decision.
func (m *SideMachine) Reset() {
	m.state.Reset()
}

// boundary returns the range boundary this side breaks out of: the low for
// long setups, the high for short setups.
func (m *SideMachine) boundary(rng domain.ReferenceRange) float64 {
	if m.side == domain.Short {
		return rng.High
	}
	return rng.Low
}

// beyond reports whether price sits outside the range past this side's
// boundary (below the low for long, above the high for short).
func (m *SideMachine) beyond(rng domain.ReferenceRange, price float64) bool {
	return m.side.Sign()*(price-m.boundary(rng)) < 0
}

// Advance feeds one newly closed signal-timeframe bar through the state
// machine. canEnter gates the Idle transition: it must be false whenever a
// position of this side is open, the instrument is disabled, or the trading
// window is closed. It returns true when the bar confirmed a reversal; the
// caller must evaluate filters and then Reset the machine for that bar.
func (m *SideMachine) Advance(ctx context.Context, rng domain.ReferenceRange, kline *domain.Kline, canEnter bool) bool {
	if !rng.IsValid() || kline == nil {
		return false
	}

	switch m.state.Phase {
	case domain.PhaseIdle:
		if !canEnter {
			return false
		}
		if m.beyond(rng, kline.Close) {
			m.state.Phase = domain.PhaseBreakoutDetected
			m.state.BreakoutTime = kline.OpenTime
			m.state.BreakoutVolume = kline.Volume
			m.logger.Info(ctx, "sideMachine: breakout detected", map[string]interface{}{
				"side":     m.side,
				"close":    kline.Close,
				"boundary": m.boundary(rng),
				"volume":   kline.Volume,
			})
		}
	case domain.PhaseBreakoutDetected:
		if !m.beyond(rng, kline.Close) {
			m.state.Phase = domain.PhaseReversalConfirmed
			m.state.ReversalTime = kline.OpenTime
			m.state.ReversalVolume = kline.Volume
			m.logger.Info(ctx, "sideMachine: reversal back inside range", map[string]interface{}{
				"side":     m.side,
				"close":    kline.Close,
				"boundary": m.boundary(rng),
				"volume":   kline.Volume,
			})
			return true
		}
		// Price extended beyond the breakout: keep waiting. Only a fresh
		// reference range invalidates the sequence.
	case domain.PhaseReversalConfirmed:
		// The confirmed state lives for exactly one bar; the caller resets
		// after its trade decision. Reaching here means it did not.
		m.logger.Warn(ctx, "sideMachine: stale reversal state, resetting", map[string]interface{}{"side": m.side})
		m.Reset()
	}
	return false
}

// StopExtreme scans the bars between breakout and reversal (capped at
// maxExtremeLookback) that closed beyond the boundary, and returns the
// lowest low (long) or highest high (short) for stop placement. Bars whose
// candle direction agrees with the reversal (bullish for long, bearish for
// short) are preferred; when none match, any qualifying bar is used.
func (m *SideMachine) StopExtreme(rng domain.ReferenceRange, klines []*domain.Kline) (float64, bool) {
	if m.state.BreakoutTime.IsZero() {
		return 0, false
	}

	sign := m.side.Sign()
	var preferred, fallback float64
	var havePreferred, haveFallback bool
	scanned := 0

	// Walk backwards from the most recent bar; the window is bounded by the
	// breakout time and the scan cap.
	for i := len(klines) - 1; i >= 0 && scanned < maxExtremeLookback; i-- {
		k := klines[i]
		if k.OpenTime.Before(m.state.BreakoutTime) {
			break
		}
		if !m.state.ReversalTime.IsZero() && k.OpenTime.After(m.state.ReversalTime) {
			continue
		}
		scanned++
		if !m.beyond(rng, k.Close) {
			continue
		}

		extreme := k.Low
		if m.side == domain.Short {
			extreme = k.High
		}
		directionMatch := (m.side == domain.Long && k.IsBullish()) || (m.side == domain.Short && k.IsBearish())

		if directionMatch {
			if !havePreferred || sign*(preferred-extreme) > 0 {
				preferred = extreme
				havePreferred = true
			}
		}
		if !haveFallback || sign*(fallback-extreme) > 0 {
			fallback = extreme
			haveFallback = true
		}
	}

	if havePreferred {
		return preferred, true
	}
	if haveFallback {
		return fallback, true
	}
	return 0, false
}

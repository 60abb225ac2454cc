package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fakeoutBot/internal/domain"
)

var testRange = domain.ReferenceRange{
	High:     1.0850,
	Low:      1.0800,
	OpenTime: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
}

func barAt(minute int, open, high, low, close, volume float64) *domain.Kline {
	return testKline(testRange.OpenTime.Add(time.Duration(minute)*time.Minute), open, high, low, close, volume)
}

func TestSideMachine_Advance(t *testing.T) {
	ctx := context.Background()

	t.Run("long breakout then reversal", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})

		// Close inside the range: nothing happens.
		assert.False(t, m.Advance(ctx, testRange, barAt(0, 1.0820, 1.0830, 1.0810, 1.0825, 1000), true))
		assert.Equal(t, domain.PhaseIdle, m.State().Phase)

		// Close below the low: breakout detected.
		breakout := barAt(5, 1.0810, 1.0815, 1.0780, 1.0795, 400)
		assert.False(t, m.Advance(ctx, testRange, breakout, true))
		assert.Equal(t, domain.PhaseBreakoutDetected, m.State().Phase)
		assert.Equal(t, breakout.OpenTime, m.State().BreakoutTime)
		assert.Equal(t, 400.0, m.State().BreakoutVolume)

		// Still below: waiting.
		assert.False(t, m.Advance(ctx, testRange, barAt(10, 1.0795, 1.0798, 1.0785, 1.0790, 500), true))
		assert.Equal(t, domain.PhaseBreakoutDetected, m.State().Phase)

		// Close back inside: reversal confirmed.
		reversal := barAt(15, 1.0790, 1.0815, 1.0788, 1.0810, 2200)
		assert.True(t, m.Advance(ctx, testRange, reversal, true))
		assert.Equal(t, domain.PhaseReversalConfirmed, m.State().Phase)
		assert.Equal(t, reversal.OpenTime, m.State().ReversalTime)
		assert.Equal(t, 2200.0, m.State().ReversalVolume)
	})

	t.Run("short is the exact mirror", func(t *testing.T) {
		m := NewSideMachine(domain.Short, &mockLogger{})

		assert.False(t, m.Advance(ctx, testRange, barAt(0, 1.0830, 1.0880, 1.0825, 1.0870, 400), true))
		assert.Equal(t, domain.PhaseBreakoutDetected, m.State().Phase)

		assert.True(t, m.Advance(ctx, testRange, barAt(5, 1.0870, 1.0875, 1.0835, 1.0840, 2200), true))
		assert.Equal(t, domain.PhaseReversalConfirmed, m.State().Phase)
	})

	t.Run("canEnter gates only the idle transition", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})

		// Breakout bar arrives while entry is blocked: no transition.
		assert.False(t, m.Advance(ctx, testRange, barAt(0, 1.0810, 1.0815, 1.0780, 1.0795, 400), false))
		assert.Equal(t, domain.PhaseIdle, m.State().Phase)

		// Once the breakout has been armed, a later block does not stall the
		// reversal detection.
		assert.False(t, m.Advance(ctx, testRange, barAt(5, 1.0810, 1.0815, 1.0780, 1.0795, 400), true))
		assert.True(t, m.Advance(ctx, testRange, barAt(10, 1.0795, 1.0815, 1.0790, 1.0810, 2200), false))
	})

	t.Run("close exactly on the boundary is not a breakout", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})
		assert.False(t, m.Advance(ctx, testRange, barAt(0, 1.0810, 1.0815, 1.0795, 1.0800, 400), true))
		assert.Equal(t, domain.PhaseIdle, m.State().Phase)
	})

	t.Run("invalid range freezes the machine", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})
		assert.False(t, m.Advance(ctx, domain.ReferenceRange{}, barAt(0, 1.0810, 1.0815, 1.0780, 1.0795, 400), true))
		assert.Equal(t, domain.PhaseIdle, m.State().Phase)
	})

	t.Run("stale confirmed state resets", func(t *testing.T) {
		logger := &mockLogger{}
		m := NewSideMachine(domain.Long, logger)
		m.Advance(ctx, testRange, barAt(0, 1.0810, 1.0815, 1.0780, 1.0795, 400), true)
		require.True(t, m.Advance(ctx, testRange, barAt(5, 1.0795, 1.0815, 1.0790, 1.0810, 2200), true))

		// The caller failed to reset; the next bar must clear the state
		// instead of re-confirming.
		assert.False(t, m.Advance(ctx, testRange, barAt(10, 1.0810, 1.0820, 1.0805, 1.0815, 1000), true))
		assert.Equal(t, domain.PhaseIdle, m.State().Phase)
		assert.Len(t, logger.warnMsgs, 1)
	})
}

func TestSideMachine_StopExtreme(t *testing.T) {
	ctx := context.Background()

	t.Run("prefers bars matching the reversal direction", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})
		breakout := barAt(0, 1.0810, 1.0815, 1.0785, 1.0795, 400) // bearish, low 1.0785
		bullish := barAt(5, 1.0790, 1.0798, 1.0780, 1.0796, 500)  // bullish, low 1.0780
		reversal := barAt(10, 1.0796, 1.0815, 1.0790, 1.0810, 2200)

		m.Advance(ctx, testRange, breakout, true)
		m.Advance(ctx, testRange, bullish, true)
		require.True(t, m.Advance(ctx, testRange, reversal, true))

		extreme, ok := m.StopExtreme(testRange, []*domain.Kline{breakout, bullish, reversal})
		require.True(t, ok)
		assert.Equal(t, 1.0780, extreme)
	})

	t.Run("falls back to any qualifying bar", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})
		breakout := barAt(0, 1.0810, 1.0815, 1.0780, 1.0795, 400) // bearish, the only bar beyond
		reversal := barAt(5, 1.0795, 1.0815, 1.0790, 1.0810, 2200)

		m.Advance(ctx, testRange, breakout, true)
		require.True(t, m.Advance(ctx, testRange, reversal, true))

		extreme, ok := m.StopExtreme(testRange, []*domain.Kline{breakout, reversal})
		require.True(t, ok)
		assert.Equal(t, 1.0780, extreme)
	})

	t.Run("short side uses the highest high", func(t *testing.T) {
		m := NewSideMachine(domain.Short, &mockLogger{})
		breakout := barAt(0, 1.0840, 1.0895, 1.0835, 1.0880, 400) // bullish, high 1.0895
		extension := barAt(5, 1.0880, 1.0910, 1.0875, 1.0870, 500)
		reversal := barAt(10, 1.0870, 1.0875, 1.0835, 1.0840, 2200)

		m.Advance(ctx, testRange, breakout, true)
		m.Advance(ctx, testRange, extension, true)
		require.True(t, m.Advance(ctx, testRange, reversal, true))

		// The bearish extension bar matches the short preference and carries
		// the highest high of the window.
		extreme, ok := m.StopExtreme(testRange, []*domain.Kline{breakout, extension, reversal})
		require.True(t, ok)
		assert.Equal(t, 1.0910, extreme)
	})

	t.Run("no breakout means no extreme", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})
		_, ok := m.StopExtreme(testRange, []*domain.Kline{barAt(0, 1.0820, 1.0830, 1.0810, 1.0825, 1000)})
		assert.False(t, ok)
	})

	t.Run("bars outside the breakout window are ignored", func(t *testing.T) {
		m := NewSideMachine(domain.Long, &mockLogger{})
		old := barAt(-10, 1.0800, 1.0805, 1.0700, 1.0702, 400) // before the breakout, much lower low
		breakout := barAt(0, 1.0810, 1.0815, 1.0780, 1.0795, 400)
		reversal := barAt(5, 1.0795, 1.0815, 1.0790, 1.0810, 2200)

		m.Advance(ctx, testRange, breakout, true)
		require.True(t, m.Advance(ctx, testRange, reversal, true))

		extreme, ok := m.StopExtreme(testRange, []*domain.Kline{old, breakout, reversal})
		require.True(t, ok)
		assert.Equal(t, 1.0780, extreme)
	})
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fakeoutBot/internal/ports"
)

func newTestGate(cfg GateConfig) *PerformanceGate {
	return NewPerformanceGate(cfg, "EURUSDT", &mockLogger{})
}

func TestPerformanceGate_MinTradesFloor(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(GateConfig{MinTrades: 5, MaxConsecutiveLosses: 3})

	// Three straight losses would trip the cap, but the sample is too small.
	for i := int64(1); i <= 3; i++ {
		g.OnTradeSettled(ctx, settledTrade(i, -10))
	}
	assert.True(t, g.Enabled())

	g.OnTradeSettled(ctx, settledTrade(4, -10))
	assert.True(t, g.Enabled())

	// Fifth trade reaches the floor; the streak condition now applies.
	g.OnTradeSettled(ctx, settledTrade(5, -10))
	assert.False(t, g.Enabled())
	assert.Contains(t, g.Stats().DisableReason, "consecutive losses")
}

func TestPerformanceGate_DisableConditions(t *testing.T) {
	ctx := context.Background()

	t.Run("consecutive loss cap", func(t *testing.T) {
		g := newTestGate(GateConfig{MinTrades: 1, MaxConsecutiveLosses: 2})
		g.OnTradeSettled(ctx, settledTrade(1, -10))
		assert.True(t, g.Enabled())
		g.OnTradeSettled(ctx, settledTrade(2, -10))
		assert.False(t, g.Enabled())
	})

	t.Run("win rate floor", func(t *testing.T) {
		g := newTestGate(GateConfig{MinTrades: 4, MinWinRate: 0.5})
		g.OnTradeSettled(ctx, settledTrade(1, 10))
		g.OnTradeSettled(ctx, settledTrade(2, -10))
		g.OnTradeSettled(ctx, settledTrade(3, 10))
		g.OnTradeSettled(ctx, settledTrade(4, -10))
		// 50% exactly: not below the floor.
		assert.True(t, g.Enabled())
		g.OnTradeSettled(ctx, settledTrade(5, -10))
		assert.False(t, g.Enabled())
		assert.Contains(t, g.Stats().DisableReason, "win rate")
	})

	t.Run("net loss ceiling", func(t *testing.T) {
		g := newTestGate(GateConfig{MinTrades: 1, MaxNetLoss: -150})
		g.OnTradeSettled(ctx, settledTrade(1, -100))
		assert.True(t, g.Enabled())
		g.OnTradeSettled(ctx, settledTrade(2, -60))
		assert.False(t, g.Enabled())
		assert.Contains(t, g.Stats().DisableReason, "net profit")
	})

	t.Run("winning record stays enabled", func(t *testing.T) {
		g := newTestGate(GateConfig{MinTrades: 1, MinWinRate: 0.3, MaxNetLoss: -150, MaxConsecutiveLosses: 5})
		for i := int64(1); i <= 10; i++ {
			pnl := 20.0
			if i%3 == 0 {
				pnl = -10
			}
			g.OnTradeSettled(ctx, settledTrade(i, pnl))
		}
		assert.True(t, g.Enabled())
	})
}

func TestPerformanceGate_DisabledAtUsesExitTime(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(GateConfig{MinTrades: 1, MaxConsecutiveLosses: 1})

	trade := settledTrade(1, -10)
	trade.ExitTime = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	g.OnTradeSettled(ctx, trade)

	require.False(t, g.Enabled())
	assert.Equal(t, trade.ExitTime, g.Stats().DisabledAt)
}

func TestPerformanceGate_CoolingResetsToCleanSlate(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(GateConfig{MinTrades: 1, MaxConsecutiveLosses: 1, CoolingPeriod: 24 * time.Hour})

	trade := settledTrade(1, -10)
	trade.ExitTime = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	g.OnTradeSettled(ctx, trade)
	require.False(t, g.Enabled())

	// Still cooling.
	g.CheckCooling(ctx, trade.ExitTime.Add(23*time.Hour))
	assert.False(t, g.Enabled())

	// Cooling elapsed: re-enabled with zeroed statistics, not a resumed record.
	g.CheckCooling(ctx, trade.ExitTime.Add(25*time.Hour))
	assert.True(t, g.Enabled())
	assert.Equal(t, PerformanceStats{Enabled: true}, g.Stats())
}

func TestPerformanceGate_CoolingDisabledKeepsInstrumentOff(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(GateConfig{MinTrades: 1, MaxConsecutiveLosses: 1})

	g.OnTradeSettled(ctx, settledTrade(1, -10))
	require.False(t, g.Enabled())

	g.CheckCooling(ctx, time.Now().Add(1000*time.Hour))
	assert.False(t, g.Enabled())
}

func TestPerformanceGate_Warm(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(GateConfig{MinTrades: 5, MinWinRate: 0.5})

	g.Warm(&ports.SymbolTradeStats{
		TotalTrades: 4,
		Wins:        1,
		Losses:      3,
		TotalProfit: 30,
		TotalLoss:   -90,
	})
	assert.True(t, g.Enabled())
	assert.Equal(t, 4, g.Stats().TotalTrades)

	// The fifth trade reaches the floor with a 40% win rate.
	g.OnTradeSettled(ctx, settledTrade(1, 10))
	assert.False(t, g.Enabled())

	g.Warm(nil) // no-op
}

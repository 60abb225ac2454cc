package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdaptiveController_StrictModeRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewAdaptiveController(AdaptiveConfig{
		TriggerLosses:            3,
		RecoveryWins:             2,
		VolumeFilterRequired:     true,
		DivergenceFilterRequired: false,
	}, &mockLogger{})

	assert.True(t, a.VolumeFilterRequired())
	assert.False(t, a.DivergenceFilterRequired())
	assert.False(t, a.Active())

	// Two losses: not yet strict.
	a.OnTradeSettled(ctx, settledTrade(1, -10))
	a.OnTradeSettled(ctx, settledTrade(2, -10))
	assert.False(t, a.Active())
	assert.False(t, a.DivergenceFilterRequired())

	// Third consecutive loss: both filters forced on.
	a.OnTradeSettled(ctx, settledTrade(3, -10))
	assert.True(t, a.Active())
	assert.True(t, a.VolumeFilterRequired())
	assert.True(t, a.DivergenceFilterRequired())

	// One win is not enough to recover.
	a.OnTradeSettled(ctx, settledTrade(4, 20))
	assert.True(t, a.Active())

	// Second consecutive win: baseline restored exactly.
	a.OnTradeSettled(ctx, settledTrade(5, 20))
	assert.False(t, a.Active())
	assert.True(t, a.VolumeFilterRequired())
	assert.False(t, a.DivergenceFilterRequired())
}

func TestAdaptiveController_LossStreakBrokenByWin(t *testing.T) {
	ctx := context.Background()
	a := NewAdaptiveController(AdaptiveConfig{TriggerLosses: 3, RecoveryWins: 2}, &mockLogger{})

	a.OnTradeSettled(ctx, settledTrade(1, -10))
	a.OnTradeSettled(ctx, settledTrade(2, -10))
	a.OnTradeSettled(ctx, settledTrade(3, 5)) // resets the streak
	a.OnTradeSettled(ctx, settledTrade(4, -10))
	a.OnTradeSettled(ctx, settledTrade(5, -10))
	assert.False(t, a.Active())

	a.OnTradeSettled(ctx, settledTrade(6, -10))
	assert.True(t, a.Active())
}

func TestAdaptiveController_DedupsBySettlementID(t *testing.T) {
	ctx := context.Background()
	a := NewAdaptiveController(AdaptiveConfig{TriggerLosses: 2, RecoveryWins: 1}, &mockLogger{})

	loss := settledTrade(1, -10)
	a.OnTradeSettled(ctx, loss)
	// The same settlement observed again must not advance the streak.
	a.OnTradeSettled(ctx, loss)
	a.OnTradeSettled(ctx, settledTrade(1, -10))
	assert.False(t, a.Active())

	a.OnTradeSettled(ctx, settledTrade(2, -10))
	assert.True(t, a.Active())
}

func TestAdaptiveController_ZeroPNLCountsAsLoss(t *testing.T) {
	ctx := context.Background()
	a := NewAdaptiveController(AdaptiveConfig{TriggerLosses: 2, RecoveryWins: 1}, &mockLogger{})

	a.OnTradeSettled(ctx, settledTrade(1, 0))
	a.OnTradeSettled(ctx, settledTrade(2, 0))
	assert.True(t, a.Active())
}

func TestAdaptiveController_NilTradeIgnored(t *testing.T) {
	a := NewAdaptiveController(AdaptiveConfig{TriggerLosses: 1, RecoveryWins: 1}, &mockLogger{})
	a.OnTradeSettled(context.Background(), nil)
	assert.False(t, a.Active())
}

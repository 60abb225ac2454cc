package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fakeoutBot/internal/domain"
)

func testEngineConfig() Config {
	return Config{
		Symbol:         "EURUSDT",
		SignalInterval: "5m",
		RangeInterval:  "1h",
		BalanceAsset:   "USDT",
		Filters: domain.FilterSettings{
			BreakoutVolumeMaxRatio: 0.8,
			ReversalVolumeMinRatio: 1.8,
			DivergenceLookback:     3,
		},
		VolumeLookback:   4,
		RSIPeriod:        3,
		MACDFastPeriod:   2,
		MACDSlowPeriod:   3,
		MACDSignalPeriod: 2,
		Adaptive: AdaptiveConfig{
			TriggerLosses:        3,
			RecoveryWins:         2,
			VolumeFilterRequired: true,
		},
		Gate: GateConfig{
			MinTrades:            5,
			MaxConsecutiveLosses: 5,
			CoolingPeriod:        24 * time.Hour,
		},
		Sizing: SizingConfig{
			StopOffsetPct:   0.0002,
			RiskRewardRatio: 2.0,
			RiskPercent:     0.01,
		},
		Lifecycle: LifecycleConfig{
			BreakevenTriggerR:      1.0,
			TrailingTriggerR:       1.5,
			TrailingDistancePoints: 20,
		},
	}
}

type engineHarness struct {
	engine    *Engine
	exchange  *mockExchange
	posRepo   *mockPositionRepo
	tradeRepo *mockTradeRepo
	notifier  *mockNotifier
	logger    *mockLogger
}

func newEngineHarness(t *testing.T, cfg Config) *engineHarness {
	t.Helper()
	h := &engineHarness{
		exchange: &mockExchange{
			specs:        testSpecs(),
			bid:          1.0810,
			ask:          1.0812,
			balance:      10000,
			avgFillPrice: 1.0812,
		},
		posRepo:   newMockPositionRepo(),
		tradeRepo: &mockTradeRepo{},
		notifier:  &mockNotifier{},
		logger:    &mockLogger{},
	}
	eng, err := New(cfg, h.logger, h.exchange, h.posRepo, h.tradeRepo, h.notifier)
	require.NoError(t, err)
	h.engine = eng
	require.NoError(t, eng.Init(context.Background()))
	return h
}

// driveRange installs the 1.0800-1.0850 reference range.
func (h *engineHarness) driveRange(ctx context.Context) {
	h.engine.OnRangeKline(ctx, testKline(testRange.OpenTime, 1.0820, 1.0850, 1.0800, 1.0830, 5000))
}

// driveSetup feeds three quiet inside bars, the low-volume downside breakout
// bar and a reversal bar with the given volume. The prior-bar volume average
// at evaluation time is 1000.
func (h *engineHarness) driveSetup(ctx context.Context, reversalVolume float64) {
	h.engine.OnSignalKline(ctx, barAt(5, 1.0820, 1.0830, 1.0815, 1.0825, 1000))
	h.engine.OnSignalKline(ctx, barAt(10, 1.0825, 1.0832, 1.0818, 1.0822, 1000))
	h.engine.OnSignalKline(ctx, barAt(15, 1.0822, 1.0828, 1.0812, 1.0820, 1600))
	h.engine.OnSignalKline(ctx, barAt(20, 1.0820, 1.0821, 1.0780, 1.0795, 400))
	h.engine.OnSignalKline(ctx, barAt(25, 1.0795, 1.0815, 1.0790, 1.0810, reversalVolume))
}

func TestNew(t *testing.T) {
	logger := &mockLogger{}
	exchange := &mockExchange{}
	posRepo := newMockPositionRepo()
	tradeRepo := &mockTradeRepo{}
	notifier := &mockNotifier{}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{"valid", func(cfg *Config) {}, ""},
		{"missing symbol", func(cfg *Config) { cfg.Symbol = "" }, "Symbol"},
		{"zero volume lookback", func(cfg *Config) { cfg.VolumeLookback = 0 }, "VolumeLookback"},
		{"tiny divergence lookback", func(cfg *Config) { cfg.Filters.DivergenceLookback = 2 }, "DivergenceLookback"},
		{"zero oscillator period", func(cfg *Config) { cfg.RSIPeriod = 0 }, "oscillator"},
		{"bad sizing", func(cfg *Config) { cfg.Sizing.RiskPercent = 0 }, "sizing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testEngineConfig()
			tt.mutate(&cfg)
			_, err := New(cfg, logger, exchange, posRepo, tradeRepo, notifier)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}

	t.Run("missing dependencies", func(t *testing.T) {
		_, err := New(testEngineConfig(), nil, exchange, posRepo, tradeRepo, notifier)
		assert.Error(t, err)
		_, err = New(testEngineConfig(), logger, nil, posRepo, tradeRepo, notifier)
		assert.Error(t, err)
		_, err = New(testEngineConfig(), logger, exchange, posRepo, tradeRepo, nil)
		assert.Error(t, err)
	})
}

func TestEngine_Init_RestoresState(t *testing.T) {
	ctx := context.Background()
	h := &engineHarness{
		exchange:  &mockExchange{specs: testSpecs()},
		posRepo:   newMockPositionRepo(),
		tradeRepo: &mockTradeRepo{todayCount: 2},
		notifier:  &mockNotifier{},
		logger:    &mockLogger{},
	}
	existing := openLongPosition()
	h.posRepo.positions[existing.ID] = existing
	duplicate := openLongPosition()
	duplicate.ID = 99
	h.posRepo.positions[duplicate.ID] = duplicate

	eng, err := New(testEngineConfig(), h.logger, h.exchange, h.posRepo, h.tradeRepo, h.notifier)
	require.NoError(t, err)
	require.NoError(t, eng.Init(ctx))

	// One position per side; the duplicate long is reported, not restored.
	assert.Len(t, eng.openPositions, 1)
	assert.NotNil(t, eng.openPositions[domain.Long])
	assert.Equal(t, 2, eng.tradesToday)

	found := false
	for _, msg := range h.logger.warnMsgs {
		if strings.Contains(msg, "duplicate open position") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngine_ConfirmedLongSignalOpensPosition(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	// Entry, protective stop and take-profit in order.
	require.Len(t, h.exchange.placedOrders, 3)

	entry := h.exchange.placedOrders[0]
	assert.Equal(t, "market", entry.kind)
	assert.Equal(t, domain.Buy, entry.side)
	assert.Equal(t, "2.927", entry.quantity)
	assert.True(t, strings.HasPrefix(entry.clientOrderID, "fbx-"))

	stop := h.exchange.placedOrders[1]
	assert.Equal(t, "stop", stop.kind)
	assert.Equal(t, domain.Sell, stop.side)
	assert.Equal(t, "1.07778", stop.price)

	tp := h.exchange.placedOrders[2]
	assert.Equal(t, "tp", tp.kind)
	assert.Equal(t, domain.Sell, tp.side)
	assert.Equal(t, "1.08803", tp.price)

	// Persisted position mirrors the plan.
	require.Len(t, h.posRepo.positions, 1)
	pos := h.engine.openPositions[domain.Long]
	require.NotNil(t, pos)
	assert.Equal(t, 1.0812, pos.EntryPrice)
	assert.InDelta(t, 1.0777844, pos.StopLoss, 1e-7)
	assert.InDelta(t, 1.0880312, pos.TakeProfit, 1e-7)
	assert.InDelta(t, 2.927, pos.Quantity, 1e-9)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	require.NotNil(t, pos.StopLossOrderID)
	require.NotNil(t, pos.TakeProfitOrderID)

	// Both machines must be armed for the next sequence.
	assert.Equal(t, domain.PhaseIdle, h.engine.machines[0].State().Phase)
	assert.Equal(t, domain.PhaseIdle, h.engine.machines[1].State().Phase)
}

func TestEngine_WeakReversalVolumeAbandonsSignal(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)
	h.driveSetup(ctx, 1200) // ratio 1.2, below the 1.8 floor

	assert.Empty(t, h.exchange.placedOrders)
	assert.Empty(t, h.posRepo.positions)
	// The confirmation is consumed either way.
	assert.Equal(t, domain.PhaseIdle, h.engine.machines[0].State().Phase)
}

func TestEngine_HeavyBreakoutVolumeAbandonsSignal(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)

	h.engine.OnSignalKline(ctx, barAt(5, 1.0820, 1.0830, 1.0815, 1.0825, 1000))
	h.engine.OnSignalKline(ctx, barAt(10, 1.0825, 1.0832, 1.0818, 1.0822, 1000))
	h.engine.OnSignalKline(ctx, barAt(15, 1.0822, 1.0828, 1.0812, 1.0820, 1000))
	// A genuine high-volume breakdown is not a fakeout candidate.
	h.engine.OnSignalKline(ctx, barAt(20, 1.0820, 1.0821, 1.0780, 1.0795, 3000))
	h.engine.OnSignalKline(ctx, barAt(25, 1.0795, 1.0815, 1.0790, 1.0810, 2800))

	assert.Empty(t, h.exchange.placedOrders)
}

func TestEngine_DisabledInstrumentTakesNoTrades(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())

	// Five straight losses trip the consecutive-loss cap.
	for i := int64(1); i <= 5; i++ {
		h.engine.gate.OnTradeSettled(ctx, settledTrade(i, -10))
	}
	require.False(t, h.engine.gate.Enabled())

	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	assert.Empty(t, h.exchange.placedOrders)
	// The machine never left idle: detection itself is gated.
	assert.Equal(t, domain.PhaseIdle, h.engine.machines[0].State().Phase)
}

func TestEngine_DailyCapBlocksNewEntries(t *testing.T) {
	ctx := context.Background()
	cfg := testEngineConfig()
	cfg.MaxOrdersPerDay = 2
	h := newEngineHarness(t, cfg)
	h.engine.tradesToday = 2

	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	assert.Empty(t, h.exchange.placedOrders)
}

func TestEngine_DailyCapResetsOnNewUTCDay(t *testing.T) {
	ctx := context.Background()
	cfg := testEngineConfig()
	cfg.MaxOrdersPerDay = 2
	h := newEngineHarness(t, cfg)

	// The counter was filled yesterday; today's first signal bar rolls it over.
	h.engine.tradesToday = 2
	h.engine.tradingDay = time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)

	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	assert.Len(t, h.exchange.placedOrders, 3)
	assert.Equal(t, 1, h.engine.tradesToday)
}

func TestEngine_RangeReplacementResetsMachines(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)

	// Arm a breakout, then replace the range before any reversal.
	h.engine.OnSignalKline(ctx, barAt(5, 1.0820, 1.0821, 1.0780, 1.0795, 400))
	require.Equal(t, domain.PhaseBreakoutDetected, h.engine.machines[0].State().Phase)

	h.engine.OnRangeKline(ctx, testKline(testRange.OpenTime.Add(time.Hour), 1.0795, 1.0840, 1.0790, 1.0820, 5000))
	assert.Equal(t, domain.PhaseIdle, h.engine.machines[0].State().Phase)
	assert.Len(t, h.notifier.levelEvents, 2)

	// A close back above the old low is no longer a reversal for the new range.
	h.engine.OnSignalKline(ctx, barAt(70, 1.0795, 1.0815, 1.0792, 1.0810, 2200))
	assert.Empty(t, h.exchange.placedOrders)
}

func TestEngine_FormingBarsAreIgnored(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)

	forming := barAt(5, 1.0820, 1.0821, 1.0780, 1.0795, 400)
	forming.IsFinal = false
	h.engine.OnSignalKline(ctx, forming)
	assert.Equal(t, domain.PhaseIdle, h.engine.machines[0].State().Phase)
	assert.Empty(t, h.engine.klineCache)
}

func TestEngine_StopSettlement(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)
	require.Len(t, h.posRepo.positions, 1)

	pos := h.engine.openPositions[domain.Long]
	require.NotNil(t, pos)

	h.exchange.markPrice = pos.StopLoss - 0.0001
	h.engine.OnTick(ctx)

	// Position settled at the stop.
	assert.Empty(t, h.engine.openPositions)
	assert.Equal(t, domain.StatusClosed, pos.Status)
	assert.Equal(t, domain.CloseReasonStopLoss, pos.CloseReason)
	assert.Equal(t, pos.StopLoss, pos.ExitPrice)

	require.Len(t, h.tradeRepo.trades, 1)
	trade := h.tradeRepo.trades[0]
	assert.Equal(t, pos.ID, trade.PositionID)
	assert.InDelta(t, -0.0034156*2.927, trade.PNL, 1e-6)
	assert.False(t, trade.IsWin())

	// Both protective orders were cancelled during cleanup.
	assert.Len(t, h.exchange.cancelled, 2)

	// The outcome reached the performance counters.
	assert.Equal(t, 1, h.engine.gate.Stats().TotalTrades)
	assert.Equal(t, 1, h.engine.gate.Stats().Losses)
}

func TestEngine_TakeProfitSettlement(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	pos := h.engine.openPositions[domain.Long]
	require.NotNil(t, pos)

	h.exchange.markPrice = pos.TakeProfit + 0.0001
	h.engine.OnTick(ctx)

	assert.Equal(t, domain.CloseReasonTakeProfit, pos.CloseReason)
	require.Len(t, h.tradeRepo.trades, 1)
	assert.True(t, h.tradeRepo.trades[0].IsWin())
	assert.Equal(t, 1, h.engine.gate.Stats().Wins)
}

func TestEngine_TrailingStopSettlementReason(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	pos := h.engine.openPositions[domain.Long]
	require.NotNil(t, pos)

	// Run up far enough to engage trailing (but short of the original
	// target), then fall back to the new stop.
	h.exchange.markPrice = pos.EntryPrice + 1.7*pos.InitialRisk
	h.engine.OnTick(ctx)
	require.True(t, h.engine.lifecycle.TrailingActive(pos.ID))
	assert.Equal(t, 0.0, pos.TakeProfit)
	assert.Nil(t, pos.TakeProfitOrderID)

	h.exchange.markPrice = pos.StopLoss - 0.0001
	h.engine.OnTick(ctx)

	assert.Equal(t, domain.CloseReasonTrailingStop, pos.CloseReason)
	require.Len(t, h.tradeRepo.trades, 1)
	assert.True(t, h.tradeRepo.trades[0].IsWin())
}

func TestEngine_StopModifyFailureKeepsExistingStop(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	pos := h.engine.openPositions[domain.Long]
	require.NotNil(t, pos)
	require.NotNil(t, pos.StopLossOrderID)
	originalStopID := *pos.StopLossOrderID
	originalStop := pos.StopLoss

	// Breakeven triggers but the replacement order is rejected. The old stop
	// must stay on the exchange untouched.
	h.exchange.stopErr = errExchange
	h.exchange.markPrice = pos.EntryPrice + 1.2*pos.InitialRisk
	h.engine.OnTick(ctx)

	assert.Empty(t, h.exchange.cancelled)
	require.NotNil(t, pos.StopLossOrderID)
	assert.Equal(t, originalStopID, *pos.StopLossOrderID)
	assert.Equal(t, originalStop, pos.StopLoss)

	// Next tick the exchange recovers and the breakeven move goes through,
	// retiring the superseded order.
	h.exchange.stopErr = nil
	h.engine.OnTick(ctx)

	assert.Len(t, h.exchange.cancelled, 1)
	require.NotNil(t, pos.StopLossOrderID)
	assert.NotEqual(t, originalStopID, *pos.StopLossOrderID)
	assert.Equal(t, pos.EntryPrice, pos.StopLoss)
}

func TestEngine_StopPlacementFailureTriggersEmergencyClose(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.exchange.stopErr = errExchange
	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	// Entry went through, the stop failed, and a closing market order was
	// placed; nothing was persisted.
	require.Len(t, h.exchange.placedOrders, 2)
	assert.Equal(t, "market", h.exchange.placedOrders[0].kind)
	assert.Equal(t, domain.Buy, h.exchange.placedOrders[0].side)
	assert.Equal(t, "market", h.exchange.placedOrders[1].kind)
	assert.Equal(t, domain.Sell, h.exchange.placedOrders[1].side)
	assert.Empty(t, h.posRepo.positions)
	assert.Empty(t, h.engine.openPositions)
}

func TestEngine_PersistFailureUnwindsOrders(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, testEngineConfig())
	h.posRepo.createErr = errExchange
	h.driveRange(ctx)
	h.driveSetup(ctx, 2200)

	// Entry, SL and TP were placed, then both protective orders cancelled
	// and the exposure flattened.
	require.Len(t, h.exchange.placedOrders, 4)
	assert.Equal(t, "market", h.exchange.placedOrders[3].kind)
	assert.Equal(t, domain.Sell, h.exchange.placedOrders[3].side)
	assert.Len(t, h.exchange.cancelled, 2)
	assert.Empty(t, h.engine.openPositions)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/metrics"
	"fakeoutBot/internal/ports"
	"fakeoutBot/internal/strategy/indicators"
)

const defaultKlineCacheSize = 500 // Limit cache size to avoid memory issues

// Config bundles every per-instrument parameter of the engine.
type Config struct {
	Symbol          string
	SignalInterval  string // e.g. "5m"
	RangeInterval   string // e.g. "1h"
	BalanceAsset    string // e.g. "USDT"
	MaxOrdersPerDay int    // 0 = unlimited
	KlineCacheSize  int

	// Trading window (UTC hours, [start, end)); equal values disable the check.
	TradingHourStart int
	TradingHourEnd   int

	// Confirmation filters.
	Filters        domain.FilterSettings
	VolumeLookback int

	// Oscillator periods.
	RSIPeriod        int
	MACDFastPeriod   int
	MACDSlowPeriod   int
	MACDSignalPeriod int

	Range     RangeTrackerConfig
	Adaptive  AdaptiveConfig
	Gate      GateConfig
	Sizing    SizingConfig
	Lifecycle LifecycleConfig
}

// Engine is the per-instrument false-breakout trading engine. It owns the
// reference range, both side state machines, the confirmation filters, the
// adaptive controller, the performance gate and the position lifecycle
// manager, and mutates them only within the handler of the current event.
type Engine struct {
	cfg       Config
	logger    ports.Logger
	exchange  ports.ExchangeClient
	posRepo   ports.PositionRepository
	tradeRepo ports.TradeRepository
	notifier  ports.LevelNotifier

	tracker      *RangeTracker
	machines     []*SideMachine
	volumeFilter *VolumeFilter
	divergence   *DivergenceFilter
	adaptive     *AdaptiveController
	gate         *PerformanceGate
	sizer        *Sizer
	lifecycle    *LifecycleManager

	// State fields
	mu            sync.Mutex // Serializes event handling per instrument
	specs         *ports.SymbolSpecs
	klineCache    []*domain.Kline
	openPositions map[domain.Side]*domain.Position
	tradesToday   int
	tradingDay    time.Time // UTC midnight of the day tradesToday counts for
}

// New creates an engine instance. All collaborators are required.
func New(
	cfg Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	posRepo ports.PositionRepository,
	tradeRepo ports.TradeRepository,
	notifier ports.LevelNotifier,
) (*Engine, error) {
	if logger == nil || exchange == nil || posRepo == nil || tradeRepo == nil || notifier == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("engine Symbol must be set")
	}
	if cfg.VolumeLookback <= 0 {
		return nil, fmt.Errorf("engine VolumeLookback must be positive")
	}
	if cfg.Filters.DivergenceLookback < 3 {
		return nil, fmt.Errorf("engine DivergenceLookback must be at least 3")
	}
	if cfg.RSIPeriod <= 0 || cfg.MACDFastPeriod <= 0 || cfg.MACDSlowPeriod <= 0 {
		return nil, fmt.Errorf("oscillator periods must be positive")
	}
	if cfg.KlineCacheSize <= 0 {
		cfg.KlineCacheSize = defaultKlineCacheSize
	}

	sizer, err := NewSizer(cfg.Sizing, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid sizing configuration: %w", err)
	}

	rsi := indicators.NewRSI(indicators.RSIConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
	})
	macd := indicators.NewMACD(indicators.MACDConfig{
		FastPeriod:   cfg.MACDFastPeriod,
		SlowPeriod:   cfg.MACDSlowPeriod,
		SignalPeriod: cfg.MACDSignalPeriod,
	})

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		exchange:  exchange,
		posRepo:   posRepo,
		tradeRepo: tradeRepo,
		notifier:  notifier,
		tracker:   NewRangeTracker(cfg.Range, logger),
		machines: []*SideMachine{
			NewSideMachine(domain.Long, logger),
			NewSideMachine(domain.Short, logger),
		},
		volumeFilter:  NewVolumeFilter(cfg.Filters, cfg.VolumeLookback, logger),
		divergence:    NewDivergenceFilter(cfg.Filters, rsi, macd, logger),
		adaptive:      NewAdaptiveController(cfg.Adaptive, logger),
		gate:          NewPerformanceGate(cfg.Gate, cfg.Symbol, logger),
		sizer:         sizer,
		lifecycle:     NewLifecycleManager(cfg.Lifecycle, logger, notifier),
		klineCache:    make([]*domain.Kline, 0, cfg.KlineCacheSize),
		openPositions: make(map[domain.Side]*domain.Position),
	}, nil
}

// Symbol returns the instrument this engine trades.
func (e *Engine) Symbol() string {
	return e.cfg.Symbol
}

// SignalInterval returns the signal-timeframe stream interval.
func (e *Engine) SignalInterval() string {
	return e.cfg.SignalInterval
}

// RangeInterval returns the reference-timeframe stream interval.
func (e *Engine) RangeInterval() string {
	return e.cfg.RangeInterval
}

// Init synchronizes startup state: instrument specs, historical klines, open
// positions from the repository, persisted trade stats for the gate and
// today's trade count.
func (e *Engine) Init(ctx context.Context) error {
	op := "engineInit"

	specs, err := e.exchange.GetSymbolSpecs(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to load symbol specs for %s: %w", e.cfg.Symbol, err)
	}
	e.specs = specs
	e.logger.Info(ctx, op+": symbol specs loaded", map[string]interface{}{
		"symbol":    specs.Symbol,
		"pointSize": specs.PointSize,
		"minQty":    specs.MinQuantity,
		"stepQty":   specs.StepQuantity,
	})

	// Seed the signal kline cache.
	klines, err := e.exchange.GetKlines(ctx, e.cfg.Symbol, e.cfg.SignalInterval, e.cfg.KlineCacheSize)
	if err != nil {
		return fmt.Errorf("failed to load initial signal klines: %w", err)
	}
	e.klineCache = klines
	e.logger.Info(ctx, op+": signal klines loaded", map[string]interface{}{"count": len(klines)})

	// Seed the reference range from recent reference bars, oldest first, so
	// the most recent qualifying bar wins.
	refBars, err := e.exchange.GetKlines(ctx, e.cfg.Symbol, e.cfg.RangeInterval, 48)
	if err != nil {
		return fmt.Errorf("failed to load initial reference bars: %w", err)
	}
	for _, bar := range refBars {
		if e.tracker.Update(ctx, bar) {
			e.notifier.LevelsReplaced(ctx, e.cfg.Symbol, e.tracker.Current().High, e.tracker.Current().Low)
		}
	}

	// Restore open positions (at most one per side).
	open, err := e.posRepo.FindOpenBySymbol(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to query open positions: %w", err)
	}
	for _, pos := range open {
		if _, dup := e.openPositions[pos.Side]; dup {
			e.logger.Warn(ctx, op+": duplicate open position for side, keeping first", map[string]interface{}{
				"positionID": pos.ID,
				"side":       pos.Side,
			})
			continue
		}
		e.openPositions[pos.Side] = pos
		e.logger.Info(ctx, op+": restored open position", map[string]interface{}{
			"positionID": pos.ID,
			"side":       pos.Side,
			"entryPrice": pos.EntryPrice,
			"stopLoss":   pos.StopLoss,
			"takeProfit": pos.TakeProfit,
		})
	}
	metrics.PositionsOpen.WithLabelValues(e.cfg.Symbol).Set(float64(len(e.openPositions)))

	// Warm the performance gate from persisted history.
	stats, err := e.tradeRepo.StatsBySymbol(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to load trade stats: %w", err)
	}
	e.gate.Warm(stats)

	tradesCount, err := e.tradeRepo.CountTodayBySymbol(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to count today's trades: %w", err)
	}
	e.tradesToday = tradesCount
	e.tradingDay = time.Now().UTC().Truncate(24 * time.Hour)
	e.logger.Info(ctx, op+": state synchronized", map[string]interface{}{"tradesToday": e.tradesToday})
	return nil
}

// rollTradingDay resets the daily trade counter once the UTC date moves past
// the day the counter was synchronized for.
func (e *Engine) rollTradingDay(ctx context.Context, now time.Time) {
	day := now.UTC().Truncate(24 * time.Hour)
	if day.Equal(e.tradingDay) {
		return
	}
	if e.tradesToday > 0 {
		e.logger.Info(ctx, "engine: daily trade counter reset", map[string]interface{}{
			"previousCount": e.tradesToday,
			"tradingDay":    day.Format("2006-01-02"),
		})
	}
	e.tradesToday = 0
	e.tradingDay = day
}

// OnRangeKline processes a newly closed reference-timeframe bar. Replacing
// the range resets both side state machines.
func (e *Engine) OnRangeKline(ctx context.Context, kline *domain.Kline) {
	if kline != nil && !kline.IsFinal {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.tracker.Update(ctx, kline) {
		return
	}
	for _, m := range e.machines {
		m.Reset()
	}
	rng := e.tracker.Current()
	e.notifier.LevelsReplaced(ctx, e.cfg.Symbol, rng.High, rng.Low)
	metrics.RangeReplacements.WithLabelValues(e.cfg.Symbol).Inc()
}

// OnSignalKline processes a newly closed signal-timeframe bar: it advances
// both side state machines and evaluates filters for any confirmed reversal.
func (e *Engine) OnSignalKline(ctx context.Context, kline *domain.Kline) {
	if kline == nil || !kline.IsFinal {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rollTradingDay(ctx, time.Now().UTC())

	e.klineCache = append(e.klineCache, kline)
	if len(e.klineCache) > e.cfg.KlineCacheSize {
		e.klineCache = e.klineCache[len(e.klineCache)-e.cfg.KlineCacheSize:]
	}

	rng := e.tracker.Current()
	for _, m := range e.machines {
		canEnter, reason := e.canEnter(m.Side(), kline)
		if !canEnter {
			e.logger.Debug(ctx, "engine: entry blocked", map[string]interface{}{
				"side":   m.Side(),
				"reason": reason,
			})
		}
		if m.Advance(ctx, rng, kline, canEnter) {
			e.evaluateSignal(ctx, m, kline)
		}
	}
}

// OnTick runs the live cycle: gate cooling, settlement detection and stop
// lifecycle management over open positions.
func (e *Engine) OnTick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gate.CheckCooling(ctx, time.Now().UTC())

	for side, pos := range e.openPositions {
		price, err := e.exchange.GetMarkPrice(ctx, e.cfg.Symbol)
		if err != nil {
			// Data unavailable: skip this step, retry next tick.
			e.logger.Debug(ctx, "engine: mark price unavailable, skipping live cycle", map[string]interface{}{
				"side":  side,
				"error": err.Error(),
			})
			continue
		}
		if e.settleIfTriggered(ctx, pos, price) {
			continue
		}
		e.lifecycle.Manage(ctx, pos, price, e.specs, e.moveStop)
		if err := e.posRepo.Update(ctx, pos); err != nil {
			e.logger.Error(ctx, err, "engine: failed to persist position after lifecycle pass", map[string]interface{}{
				"positionID": pos.ID,
			})
		}
	}
}

// canTradeHours reports whether the configured trading window admits the
// bar's open time. Equal bounds disable the check; a wrapped window
// (start > end) spans midnight.
func (e *Engine) canTradeHours(t time.Time) bool {
	start, end := e.cfg.TradingHourStart, e.cfg.TradingHourEnd
	if start == end {
		return true
	}
	h := t.UTC().Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// canEnter gates the Idle transition of a side machine.
func (e *Engine) canEnter(side domain.Side, kline *domain.Kline) (bool, string) {
	if e.specs == nil {
		return false, "symbol specs not loaded"
	}
	if !e.gate.Enabled() {
		return false, "instrument disabled by performance gate"
	}
	if _, open := e.openPositions[side]; open {
		return false, fmt.Sprintf("%s position already open", side)
	}
	if e.cfg.MaxOrdersPerDay > 0 && e.tradesToday >= e.cfg.MaxOrdersPerDay {
		return false, fmt.Sprintf("daily trade limit reached (%d/%d)", e.tradesToday, e.cfg.MaxOrdersPerDay)
	}
	if !e.canTradeHours(kline.OpenTime) {
		return false, "outside trading hours"
	}
	return true, ""
}

// rejectSignal logs and counts an abandoned confirmation.
func (e *Engine) rejectSignal(ctx context.Context, side domain.Side, reason string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["side"] = side
	fields["reason"] = reason
	e.logger.Info(ctx, "engine: signal abandoned", fields)
	metrics.SignalsRejected.WithLabelValues(e.cfg.Symbol, reason).Inc()
}

// evaluateSignal runs the required filters over a confirmed reversal and, if
// all pass, sizes and submits the entry. Whatever the outcome, the side
// machine resets so the same range cannot retrigger a duplicate signal.
func (e *Engine) evaluateSignal(ctx context.Context, m *SideMachine, kline *domain.Kline) {
	defer m.Reset()

	side := m.Side()
	state := m.State()
	rng := e.tracker.Current()

	// The gate may have tripped since the breakout bar.
	if !e.gate.Enabled() {
		e.rejectSignal(ctx, side, "gate_disabled", nil)
		return
	}

	if e.adaptive.VolumeFilterRequired() {
		breakout := e.volumeFilter.IsBreakoutVolumeLow(ctx, e.klineCache, state.BreakoutVolume)
		if !breakout.Passed {
			e.rejectSignal(ctx, side, "breakout_volume", map[string]interface{}{
				"ratio":     breakout.Ratio,
				"maxRatio":  e.cfg.Filters.BreakoutVolumeMaxRatio,
				"avgVolume": breakout.AverageVolume,
				"volume":    state.BreakoutVolume,
			})
			return
		}
		reversal := e.volumeFilter.IsReversalVolumeHigh(ctx, e.klineCache, state.ReversalVolume)
		if !reversal.Passed {
			e.rejectSignal(ctx, side, "reversal_volume", map[string]interface{}{
				"ratio":     reversal.Ratio,
				"minRatio":  e.cfg.Filters.ReversalVolumeMinRatio,
				"avgVolume": reversal.AverageVolume,
				"volume":    state.ReversalVolume,
			})
			return
		}
	}

	if e.adaptive.DivergenceFilterRequired() {
		div := e.divergence.Evaluate(ctx, side, e.klineCache)
		if !div.Confirmed {
			e.rejectSignal(ctx, side, "divergence", map[string]interface{}{
				"determined": div.Determined,
				"rsi":        div.RSI,
				"macd":       div.MACD,
			})
			return
		}
	}

	metrics.SignalsConfirmed.WithLabelValues(e.cfg.Symbol, string(side)).Inc()

	extreme, ok := m.StopExtreme(rng, e.klineCache)
	if !ok {
		e.rejectSignal(ctx, side, "no_stop_extreme", nil)
		return
	}

	bid, ask, err := e.exchange.GetBookTicker(ctx, e.cfg.Symbol)
	if err != nil {
		e.rejectSignal(ctx, side, "data_unavailable", map[string]interface{}{"error": err.Error()})
		return
	}
	entryPrice := ask
	if side == domain.Short {
		entryPrice = bid
	}

	balance, err := e.exchange.GetAccountBalance(ctx, e.cfg.BalanceAsset)
	if err != nil {
		e.rejectSignal(ctx, side, "data_unavailable", map[string]interface{}{"error": err.Error()})
		return
	}

	plan, err := e.sizer.Plan(ctx, side, entryPrice, extreme, balance, e.specs)
	if err != nil {
		reason := "invalid_order_params"
		if errors.Is(err, ports.ErrSizingBelowMinimum) {
			reason = "sizing_below_minimum"
		}
		e.rejectSignal(ctx, side, reason, map[string]interface{}{
			"error":   err.Error(),
			"entry":   entryPrice,
			"extreme": extreme,
		})
		return
	}

	if err := e.enterPosition(ctx, plan); err != nil {
		// Execution rejected: logged, no retry. The opportunity is lost
		// for this confirmation.
		e.rejectSignal(ctx, side, "execution_rejected", map[string]interface{}{"error": err.Error()})
	}
}

// formatPrice formats a price to the instrument's precision.
func (e *Engine) formatPrice(price float64) string {
	prec := 2
	if e.specs != nil && e.specs.PricePrecision > 0 {
		prec = e.specs.PricePrecision
	}
	return strconv.FormatFloat(price, 'f', prec, 64)
}

// formatQuantity formats a quantity to the instrument's precision.
func (e *Engine) formatQuantity(quantity float64) string {
	prec := 3
	if e.specs != nil && e.specs.QuantityPrecision > 0 {
		prec = e.specs.QuantityPrecision
	}
	return strconv.FormatFloat(quantity, 'f', prec, 64)
}

// newOrderTag builds a client order id for correlation in exchange logs.
func newOrderTag() string {
	return "fbx-" + uuid.NewString()[:8]
}

func (e *Engine) enterPosition(ctx context.Context, plan *OrderPlan) error {
	op := "enterPosition"
	e.logger.Info(ctx, op+": attempting to enter position", map[string]interface{}{
		"side":       plan.Side,
		"entryPrice": plan.EntryPrice,
		"stopLoss":   plan.StopLoss,
		"takeProfit": plan.TakeProfit,
		"quantity":   plan.Quantity,
	})

	quantityStr := e.formatQuantity(plan.Quantity)
	slPriceStr := e.formatPrice(plan.StopLoss)
	tpPriceStr := e.formatPrice(plan.TakeProfit)
	entrySide := plan.Side.EntryOrderSide()
	exitSide := plan.Side.ExitOrderSide()

	// 1. Entry market order.
	entryOrder, err := e.exchange.PlaceMarketOrder(ctx, e.cfg.Symbol, entrySide, quantityStr, newOrderTag())
	if err != nil {
		e.logger.Error(ctx, err, op+": failed to place entry market order")
		return fmt.Errorf("entry market order failed: %w", err)
	}
	actualEntryPrice := entryOrder.AvgPrice
	if actualEntryPrice == 0 {
		e.logger.Warn(ctx, op+": entry order AvgPrice is 0, using planned price as fallback", map[string]interface{}{
			"orderID":       entryOrder.OrderID,
			"fallbackPrice": plan.EntryPrice,
		})
		actualEntryPrice = plan.EntryPrice
	}

	// 2. Protective stop order (opposite side).
	slOrder, err := e.exchange.PlaceStopMarketOrder(ctx, e.cfg.Symbol, exitSide, quantityStr, slPriceStr)
	if err != nil {
		e.logger.Error(ctx, err, op+": failed to place stop loss order")
		// Critical failure: an open position without a stop. Close it
		// immediately as a safety measure.
		e.logger.Warn(ctx, op+": attempting emergency close due to SL placement failure...")
		if closeErr := e.emergencyClose(ctx, quantityStr, exitSide); closeErr != nil {
			e.logger.Error(ctx, closeErr, op+": EMERGENCY CLOSE FAILED")
		}
		return fmt.Errorf("stop loss order failed after entry: %w (emergency close attempted)", err)
	}

	// 3. Take-profit order (opposite side).
	tpOrder, err := e.exchange.PlaceTakeProfitMarketOrder(ctx, e.cfg.Symbol, exitSide, quantityStr, tpPriceStr)
	if err != nil {
		e.logger.Error(ctx, err, op+": failed to place take profit order")
		e.logger.Warn(ctx, op+": attempting emergency close due to TP placement failure...")
		if cancelErr := e.cancelOrderWarn(ctx, slOrder.OrderID, "SL"); cancelErr != nil {
			e.logger.Error(ctx, cancelErr, op+": failed to cancel SL order during TP failure cleanup")
		}
		if closeErr := e.emergencyClose(ctx, quantityStr, exitSide); closeErr != nil {
			e.logger.Error(ctx, closeErr, op+": EMERGENCY CLOSE FAILED after TP failure")
		}
		return fmt.Errorf("take profit order failed after entry: %w (emergency close attempted)", err)
	}

	// 4. Persist and update internal state.
	newPosition := &domain.Position{
		Symbol:            e.cfg.Symbol,
		Side:              plan.Side,
		EntryPrice:        actualEntryPrice,
		Quantity:          plan.Quantity,
		StopLoss:          plan.StopLoss,
		TakeProfit:        plan.TakeProfit,
		InitialRisk:       plan.InitialRisk,
		EntryTime:         time.Now().UTC(),
		Status:            domain.StatusOpen,
		StopLossOrderID:   ptrToString(strconv.FormatInt(slOrder.OrderID, 10)),
		TakeProfitOrderID: ptrToString(strconv.FormatInt(tpOrder.OrderID, 10)),
	}
	posID, err := e.posRepo.Create(ctx, newPosition)
	if err != nil {
		e.logger.Error(ctx, err, op+": failed to save new position to repository")
		e.logger.Warn(ctx, op+": attempting emergency close due to DB save failure...")
		if cancelErr := e.cancelOrderWarn(ctx, slOrder.OrderID, "SL"); cancelErr != nil {
			e.logger.Error(ctx, cancelErr, op+": failed to cancel SL order during DB failure cleanup")
		}
		if cancelErr := e.cancelOrderWarn(ctx, tpOrder.OrderID, "TP"); cancelErr != nil {
			e.logger.Error(ctx, cancelErr, op+": failed to cancel TP order during DB failure cleanup")
		}
		if closeErr := e.emergencyClose(ctx, quantityStr, exitSide); closeErr != nil {
			e.logger.Error(ctx, closeErr, op+": EMERGENCY CLOSE FAILED after DB failure")
		}
		return fmt.Errorf("failed to save position to DB after placing orders: %w (emergency close attempted)", err)
	}
	newPosition.ID = posID

	e.openPositions[plan.Side] = newPosition
	e.tradesToday++
	metrics.OrdersSubmitted.WithLabelValues(e.cfg.Symbol, string(plan.Side)).Inc()
	metrics.PositionsOpen.WithLabelValues(e.cfg.Symbol).Set(float64(len(e.openPositions)))
	e.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"positionID": newPosition.ID,
		"side":       newPosition.Side,
		"entryPrice": actualEntryPrice,
		"stopLoss":   newPosition.StopLoss,
		"takeProfit": newPosition.TakeProfit,
		"quantity":   newPosition.Quantity,
	})
	return nil
}

// settleIfTriggered checks whether the mark price has crossed the position's
// stop or target, and settles it if so. Returns true when the position was
// settled this cycle.
func (e *Engine) settleIfTriggered(ctx context.Context, pos *domain.Position, price float64) bool {
	sign := pos.Side.Sign()
	if pos.StopLoss > 0 && sign*(price-pos.StopLoss) <= 0 {
		reason := domain.CloseReasonStopLoss
		if e.lifecycle.TrailingActive(pos.ID) {
			reason = domain.CloseReasonTrailingStop
		}
		e.settle(ctx, pos, pos.StopLoss, reason)
		return true
	}
	if pos.TakeProfit > 0 && sign*(price-pos.TakeProfit) >= 0 {
		e.settle(ctx, pos, pos.TakeProfit, domain.CloseReasonTakeProfit)
		return true
	}
	return false
}

// settle records a closed position: cancels leftover protective orders,
// persists the outcome and feeds the adaptive controller and the
// performance gate.
func (e *Engine) settle(ctx context.Context, pos *domain.Position, exitPrice float64, reason domain.CloseReason) {
	op := "settle"

	// The exchange-side protective order that fired removed itself; cancel
	// its sibling (and itself, tolerantly, in case detection ran early).
	if pos.StopLossOrderID != nil {
		if id, err := strconv.ParseInt(*pos.StopLossOrderID, 10, 64); err == nil {
			_ = e.cancelOrderWarn(ctx, id, "SL")
		}
	}
	if pos.TakeProfitOrderID != nil {
		if id, err := strconv.ParseInt(*pos.TakeProfitOrderID, 10, 64); err == nil {
			_ = e.cancelOrderWarn(ctx, id, "TP")
		}
	}

	pnl := (exitPrice - pos.EntryPrice) * pos.Quantity * pos.Side.Sign()
	pos.ExitPrice = exitPrice
	pos.ExitTime = time.Now().UTC()
	pos.Status = domain.StatusClosed
	pos.PNL = pnl
	pos.CloseReason = reason

	if err := e.posRepo.Update(ctx, pos); err != nil {
		e.logger.Error(ctx, err, op+": failed to update closed position in repository", map[string]interface{}{
			"positionID": pos.ID,
		})
	}

	trade := &domain.Trade{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    pos.Quantity,
		PNL:         pnl,
		EntryTime:   pos.EntryTime,
		ExitTime:    pos.ExitTime,
		CloseReason: reason,
	}
	tradeID, err := e.tradeRepo.CreateTrade(ctx, trade)
	if err != nil {
		// The gate still sees the outcome (safety first); the adaptive
		// controller is skipped because it dedups on the settlement id.
		e.logger.Error(ctx, err, op+": failed to persist trade settlement", map[string]interface{}{
			"positionID": pos.ID,
		})
	} else {
		trade.ID = tradeID
		e.adaptive.OnTradeSettled(ctx, trade)
	}
	wasEnabled := e.gate.Enabled()
	e.gate.OnTradeSettled(ctx, trade)
	if wasEnabled && !e.gate.Enabled() {
		metrics.GateDisablements.WithLabelValues(e.cfg.Symbol).Inc()
	}

	e.lifecycle.Forget(pos.ID)
	delete(e.openPositions, pos.Side)
	metrics.PositionsOpen.WithLabelValues(e.cfg.Symbol).Set(float64(len(e.openPositions)))

	e.logger.Info(ctx, op+": trade settled", map[string]interface{}{
		"positionID": pos.ID,
		"side":       pos.Side,
		"pnl":        pnl,
		"reason":     reason,
		"isWin":      trade.IsWin(),
	})
}

// moveStop replaces the position's protective stop order on the exchange and
// optionally removes its take-profit order. On failure nothing is marked
// applied so the lifecycle manager retries next cycle.
//
// The replacement is placed before the old order is cancelled so the
// position is never left without an exchange-side stop. A failed cancel of
// the superseded order only logs a warning.
func (e *Engine) moveStop(ctx context.Context, pos *domain.Position, newStop float64, clearTakeProfit bool) error {
	op := "moveStop"
	quantityStr := e.formatQuantity(pos.Quantity)
	stopStr := e.formatPrice(newStop)

	slOrder, err := e.exchange.PlaceStopMarketOrder(ctx, e.cfg.Symbol, pos.Side.ExitOrderSide(), quantityStr, stopStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrStopModificationFailed, err)
	}
	if pos.StopLossOrderID != nil {
		if id, parseErr := strconv.ParseInt(*pos.StopLossOrderID, 10, 64); parseErr == nil {
			_ = e.cancelOrderWarn(ctx, id, "SL")
		}
	}
	pos.StopLossOrderID = ptrToString(strconv.FormatInt(slOrder.OrderID, 10))

	if clearTakeProfit && pos.TakeProfitOrderID != nil {
		if id, err := strconv.ParseInt(*pos.TakeProfitOrderID, 10, 64); err == nil {
			_ = e.cancelOrderWarn(ctx, id, "TP")
		}
		pos.TakeProfitOrderID = nil
	}

	kind := "breakeven"
	if clearTakeProfit || e.lifecycle.TrailingActive(pos.ID) {
		kind = "trailing"
	}
	metrics.StopAdjustments.WithLabelValues(e.cfg.Symbol, kind).Inc()
	e.logger.Debug(ctx, op+": stop order replaced", map[string]interface{}{
		"positionID": pos.ID,
		"newStop":    newStop,
		"orderID":    slOrder.OrderID,
	})
	return nil
}

// emergencyClose places a market order to flatten current exposure. Used
// when protective order placement fails after entry.
func (e *Engine) emergencyClose(ctx context.Context, quantityStr string, closeSide domain.OrderSide) error {
	op := "emergencyClose"
	e.logger.Warn(ctx, op+": placing emergency closing order", map[string]interface{}{
		"side":     closeSide,
		"quantity": quantityStr,
	})
	_, err := e.exchange.PlaceMarketOrder(ctx, e.cfg.Symbol, closeSide, quantityStr, newOrderTag())
	if err != nil {
		e.logger.Error(ctx, err, op+": FAILED TO PLACE EMERGENCY CLOSE ORDER")
		return fmt.Errorf("emergency close order placement failed: %w", err)
	}
	e.logger.Info(ctx, op+": emergency close order placed successfully")
	return nil
}

// cancelOrderWarn attempts to cancel an order and logs a warning on failure.
func (e *Engine) cancelOrderWarn(ctx context.Context, orderID int64, orderType string) error {
	op := "cancelOrderWarn"
	_, err := e.exchange.CancelOrder(ctx, e.cfg.Symbol, orderID)
	if err != nil {
		// Ignore "order does not exist": it may already be filled or cancelled.
		if errors.Is(err, ports.ErrOrderNotFound) {
			e.logger.Warn(ctx, op+": order not found, likely already filled or cancelled", map[string]interface{}{
				"orderID": orderID,
				"type":    orderType,
			})
			return nil
		}
		e.logger.Error(ctx, err, op+": failed to cancel order", map[string]interface{}{
			"orderID": orderID,
			"type":    orderType,
		})
		return err
	}
	return nil
}

// ptrToString converts a string to a pointer to a string.
func ptrToString(s string) *string {
	return &s
}

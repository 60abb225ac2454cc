package engine

import (
	"context"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
	"fakeoutBot/internal/strategy/indicators"
)

// DivergenceResult reports the outcome of a divergence evaluation with
// enough context to diagnose why a signal was or was not confirmed.
type DivergenceResult struct {
	Confirmed  bool
	Determined bool // false when no swing point was found or data was short
	RSI        bool // RSI-vs-price divergence present
	MACD       bool // MACD-vs-price divergence present
}

// DivergenceFilter detects bullish/bearish divergence between price extremes
// and two momentum oscillators: a bounded one (RSI) and an unbounded one
// (MACD line). Both are evaluated identically against price; the
// RequireBothIndicators setting chooses AND or OR.
type DivergenceFilter struct {
	settings domain.FilterSettings
	rsi      *indicators.RSI
	macd     *indicators.MACD
	logger   ports.Logger
}

// NewDivergenceFilter creates the divergence filter.
func NewDivergenceFilter(settings domain.FilterSettings, rsi *indicators.RSI, macd *indicators.MACD, logger ports.Logger) *DivergenceFilter {
	return &DivergenceFilter{settings: settings, rsi: rsi, macd: macd, logger: logger}
}

// Evaluate looks for a divergence agreeing with the side's reversal over the
// configured lookback of closed bars. An undetermined outcome (no swing
// point, insufficient data) is treated as not confirmed.
func (f *DivergenceFilter) Evaluate(ctx context.Context, side domain.Side, klines []*domain.Kline) DivergenceResult {
	n := f.settings.DivergenceLookback
	if n < 3 || len(klines) < n {
		f.logger.Debug(ctx, "divergenceFilter: insufficient bars for lookback", map[string]interface{}{
			"lookback": n,
			"bars":     len(klines),
		})
		return DivergenceResult{}
	}

	rsiSeries, err := f.rsi.Series(ctx, klines, n)
	if err != nil {
		f.logger.Warn(ctx, "divergenceFilter: RSI series unavailable", map[string]interface{}{"error": err.Error()})
		return DivergenceResult{}
	}
	macdSeries, err := f.macd.Series(ctx, klines, n)
	if err != nil {
		f.logger.Warn(ctx, "divergenceFilter: MACD series unavailable", map[string]interface{}{"error": err.Error()})
		return DivergenceResult{}
	}

	window := klines[len(klines)-n:]
	swing := findSwingIndex(side, window)
	if swing < 0 {
		f.logger.Debug(ctx, "divergenceFilter: no swing point in lookback window", map[string]interface{}{"side": side})
		return DivergenceResult{}
	}

	res := DivergenceResult{
		Determined: true,
		RSI:        divergesAt(side, window, rsiSeries, swing),
		MACD:       divergesAt(side, window, macdSeries, swing),
	}
	if f.settings.RequireBothIndicators {
		res.Confirmed = res.RSI && res.MACD
	} else {
		res.Confirmed = res.RSI || res.MACD
	}
	return res
}

// findSwingIndex returns the index of the nearest local swing extreme in the
// window, scanning back from the bar before the most recent one. A swing low
// (long side) is strictly lower than both neighbors; a swing high (short
// side) strictly higher. Returns -1 when none exists.
func findSwingIndex(side domain.Side, window []*domain.Kline) int {
	for i := len(window) - 2; i >= 1; i-- {
		if side == domain.Long {
			if window[i].Low < window[i-1].Low && window[i].Low < window[i+1].Low {
				return i
			}
		} else {
			if window[i].High > window[i-1].High && window[i].High > window[i+1].High {
				return i
			}
		}
	}
	return -1
}

// divergesAt compares the most recently closed bar against the swing point:
// bullish divergence is a lower price low with a higher oscillator value,
// bearish a higher price high with a lower oscillator value.
func divergesAt(side domain.Side, window []*domain.Kline, osc []float64, swing int) bool {
	last := len(window) - 1
	if side == domain.Long {
		return window[last].Low < window[swing].Low && osc[last] > osc[swing]
	}
	return window[last].High > window[swing].High && osc[last] < osc[swing]
}

package indicators

import (
	"context"
	"fakeoutBot/internal/domain"
	"fmt"
)

// MACDConfig holds configuration for the MACD indicator.
type MACDConfig struct {
	FastPeriod   int // e.g., 12
	SlowPeriod   int // e.g., 26
	SignalPeriod int // e.g., 9
}

// MACD implements the Moving Average Convergence Divergence indicator.
// Calculate returns the MACD line (fast EMA minus slow EMA), an unbounded
// momentum oscillator.
type MACD struct {
	config MACDConfig
}

// NewMACD creates a new MACD indicator instance.
func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

// Name returns the name of the indicator.
func (m *MACD) Name() string {
	return "MACD"
}

// RequiredDataPoints returns the minimum number of klines needed for calculation.
func (m *MACD) RequiredDataPoints() int {
	return m.config.SlowPeriod + m.config.SignalPeriod
}

// Calculate computes the current MACD line value for the given klines.
func (m *MACD) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if m.config.FastPeriod <= 0 || m.config.SlowPeriod <= 0 {
		return 0, fmt.Errorf("MACD periods must be positive (fast=%d, slow=%d)", m.config.FastPeriod, m.config.SlowPeriod)
	}
	if m.config.FastPeriod >= m.config.SlowPeriod {
		return 0, fmt.Errorf("MACD fast period (%d) must be less than slow period (%d)", m.config.FastPeriod, m.config.SlowPeriod)
	}
	if len(klines) < m.config.SlowPeriod {
		return 0, fmt.Errorf("not enough data (%d) to calculate MACD for slow period %d", len(klines), m.config.SlowPeriod)
	}

	fast, err := emaOverCloses(klines, m.config.FastPeriod)
	if err != nil {
		return 0, err
	}
	slow, err := emaOverCloses(klines, m.config.SlowPeriod)
	if err != nil {
		return 0, err
	}
	return fast - slow, nil
}

// Series computes the MACD line for each of the last count closed bars,
// aligned index-for-index with klines[len(klines)-count:].
func (m *MACD) Series(ctx context.Context, klines []*domain.Kline, count int) ([]float64, error) {
	if count <= 0 {
		return nil, fmt.Errorf("series count must be positive, got %d", count)
	}
	if len(klines) < m.config.SlowPeriod+count-1 {
		return nil, fmt.Errorf("not enough data (%d) for MACD series of %d values with slow period %d", len(klines), count, m.config.SlowPeriod)
	}
	values := make([]float64, 0, count)
	for i := len(klines) - count; i < len(klines); i++ {
		v, err := m.Calculate(ctx, klines[:i+1])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// emaOverCloses computes an EMA over kline close prices, seeded with the SMA
// of the first period values.
func emaOverCloses(klines []*domain.Kline, period int) (float64, error) {
	if len(klines) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(klines), period)
	}

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += klines[i].Close
	}
	ema := sma / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(klines); i++ {
		ema = (klines[i].Close-ema)*multiplier + ema
	}
	return ema, nil
}

package engine

import (
	"context"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
	"fakeoutBot/internal/strategy/indicators"
)

// VolumeCheck carries the outcome of one volume classification for logging
// and diagnostics.
type VolumeCheck struct {
	Passed        bool
	Ratio         float64
	AverageVolume float64
}

// VolumeFilter classifies breakout and reversal volumes against a rolling
// average of prior signal-timeframe bars.
//
// A weak breakout volume is the good outcome for the breakout bar (the move
// lacked genuine momentum); a strong reversal volume is the good outcome for
// the reversal bar (conviction behind the snap back).
type VolumeFilter struct {
	settings domain.FilterSettings
	avg      *indicators.AverageVolume
	logger   ports.Logger
}

// NewVolumeFilter creates a volume confirmation filter. lookback is the
// number of prior bars averaged (excluding the bar under classification).
func NewVolumeFilter(settings domain.FilterSettings, lookback int, logger ports.Logger) *VolumeFilter {
	return &VolumeFilter{
		settings: settings,
		avg: indicators.NewAverageVolume(indicators.AverageVolumeConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: lookback},
		}),
		logger: logger,
	}
}

// averageVolume computes the rolling average; a non-positive average fails
// every check closed, never open.
func (f *VolumeFilter) averageVolume(ctx context.Context, klines []*domain.Kline) (float64, bool) {
	avg, err := f.avg.Calculate(ctx, klines)
	if err != nil {
		f.logger.Warn(ctx, "volumeFilter: average volume unavailable", map[string]interface{}{"error": err.Error()})
		return 0, false
	}
	if avg <= 0 {
		f.logger.Warn(ctx, "volumeFilter: average volume is zero or negative, failing closed", map[string]interface{}{"avg": avg})
		return 0, false
	}
	return avg, true
}

// IsBreakoutVolumeLow checks that the breaching bar's volume stayed at or
// below the configured multiple of the rolling average.
func (f *VolumeFilter) IsBreakoutVolumeLow(ctx context.Context, klines []*domain.Kline, breakoutVolume float64) VolumeCheck {
	avg, ok := f.averageVolume(ctx, klines)
	if !ok {
		return VolumeCheck{}
	}
	ratio := breakoutVolume / avg
	return VolumeCheck{
		Passed:        ratio <= f.settings.BreakoutVolumeMaxRatio,
		Ratio:         ratio,
		AverageVolume: avg,
	}
}

// IsReversalVolumeHigh checks that the reversal bar's volume reached at
// least the configured multiple of the rolling average.
func (f *VolumeFilter) IsReversalVolumeHigh(ctx context.Context, klines []*domain.Kline, reversalVolume float64) VolumeCheck {
	avg, ok := f.averageVolume(ctx, klines)
	if !ok {
		return VolumeCheck{}
	}
	ratio := reversalVolume / avg
	return VolumeCheck{
		Passed:        ratio >= f.settings.ReversalVolumeMinRatio,
		Ratio:         ratio,
		AverageVolume: avg,
	}
}

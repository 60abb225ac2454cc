package indicators

import (
	"context"
	"fakeoutBot/internal/domain"
	"fmt"
)

// AverageVolumeConfig holds configuration for the rolling volume average.
type AverageVolumeConfig struct {
	IndicatorConfig
}

// AverageVolume computes the simple rolling average of bar volumes over the
// configured period, excluding the most recent bar. The excluded bar is the
// one whose volume is being classified against the average.
type AverageVolume struct {
	BaseIndicator
}

// NewAverageVolume creates a new rolling volume average instance.
func NewAverageVolume(config AverageVolumeConfig) *AverageVolume {
	return &AverageVolume{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
	}
}

// Name returns the name of the indicator.
func (a *AverageVolume) Name() string {
	return "AvgVolume"
}

// RequiredDataPoints returns the minimum number of klines needed for calculation.
func (a *AverageVolume) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the average volume of the period bars preceding the
// final kline in the slice.
func (a *AverageVolume) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	period := a.Config.Period
	if period <= 0 {
		return 0, fmt.Errorf("average volume period must be positive, got %d", period)
	}
	if len(klines) < period+1 {
		return 0, fmt.Errorf("not enough data (%d) to average volume over %d prior bars", len(klines), period)
	}

	total := 0.0
	// Skip the final bar: it is the candidate whose volume gets classified.
	for i := len(klines) - period - 1; i < len(klines)-1; i++ {
		total += klines[i].Volume
	}
	return total / float64(period), nil
}

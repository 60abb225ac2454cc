package engine

import (
	"context"
	"fmt"
	"math"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

// SizingConfig holds parameters for stop/target placement and volume sizing.
type SizingConfig struct {
	StopOffsetPct   float64 // Stop sits this fraction beyond the extreme (e.g. 0.0002 = 0.02%)
	RiskRewardRatio float64 // Take-profit distance as a multiple of risk
	RiskPercent     float64 // Fraction of account balance risked per trade
	UserMinQuantity float64 // Operator floor on order size (0 = exchange minimum only)
	UserMaxQuantity float64 // Operator cap on order size (0 = exchange maximum only)
}

// OrderPlan is a fully validated set of order parameters for one entry.
type OrderPlan struct {
	Side        domain.Side
	EntryPrice  float64
	StopLoss    float64
	TakeProfit  float64
	Quantity    float64
	InitialRisk float64 // Entry-to-stop distance in price units
}

// Sizer converts a confirmed signal into concrete order parameters.
type Sizer struct {
	cfg    SizingConfig
	logger ports.Logger
}

// NewSizer creates a position sizing and stop calculator.
func NewSizer(cfg SizingConfig, logger ports.Logger) (*Sizer, error) {
	if cfg.RiskPercent <= 0 || cfg.RiskPercent > 0.5 {
		return nil, fmt.Errorf("RiskPercent (%f) must be >0 and <=0.5", cfg.RiskPercent)
	}
	if cfg.RiskRewardRatio <= 0 {
		return nil, fmt.Errorf("RiskRewardRatio must be positive")
	}
	if cfg.StopOffsetPct < 0 {
		return nil, fmt.Errorf("StopOffsetPct cannot be negative")
	}
	return &Sizer{cfg: cfg, logger: logger}, nil
}

// Plan computes stop, target and volume for an entry at entryPrice with the
// stop anchored beyond extreme. It returns ports.ErrInvalidOrderParams when
// the stop or target is unusable and ports.ErrSizingBelowMinimum when the
// clamped volume stays under the effective floor; in both cases the signal
// must be abandoned for this bar with no order submitted.
func (s *Sizer) Plan(ctx context.Context, side domain.Side, entryPrice, extreme, balance float64, specs *ports.SymbolSpecs) (*OrderPlan, error) {
	if specs == nil {
		return nil, fmt.Errorf("symbol specs are required for sizing: %w", ports.ErrDataUnavailable)
	}
	sign := side.Sign()

	stop := extreme * (1 - sign*s.cfg.StopOffsetPct)
	risk := math.Abs(entryPrice - stop)
	target := entryPrice + sign*risk*s.cfg.RiskRewardRatio

	if stop <= 0 || target <= 0 {
		return nil, fmt.Errorf("non-positive stop (%.8f) or target (%.8f): %w", stop, target, ports.ErrInvalidOrderParams)
	}
	// The stop must sit on the losing side of the entry.
	if sign*(entryPrice-stop) <= 0 {
		return nil, fmt.Errorf("stop %.8f on wrong side of entry %.8f for %s: %w", stop, entryPrice, side, ports.ErrInvalidOrderParams)
	}

	if specs.PointSize <= 0 || specs.PointValue <= 0 {
		return nil, fmt.Errorf("invalid point size/value for %s: %w", specs.Symbol, ports.ErrInvalidOrderParams)
	}
	riskAmount := balance * s.cfg.RiskPercent
	stopDistancePoints := risk / specs.PointSize
	if stopDistancePoints <= 0 {
		return nil, fmt.Errorf("zero stop distance: %w", ports.ErrInvalidOrderParams)
	}
	quantity := riskAmount / (stopDistancePoints * specs.PointValue)

	// Floor to the instrument's volume step.
	if specs.StepQuantity > 0 {
		quantity = math.Floor(quantity/specs.StepQuantity) * specs.StepQuantity
	}

	effectiveMin := math.Max(specs.MinQuantity, s.cfg.UserMinQuantity)
	effectiveMax := specs.MaxQuantity
	if s.cfg.UserMaxQuantity > 0 {
		effectiveMax = math.Min(effectiveMax, s.cfg.UserMaxQuantity)
	}
	if effectiveMax > 0 && quantity > effectiveMax {
		quantity = effectiveMax
	}
	if quantity < effectiveMin {
		return nil, fmt.Errorf("volume %.8f under effective minimum %.8f: %w", quantity, effectiveMin, ports.ErrSizingBelowMinimum)
	}

	s.logger.Debug(ctx, "sizer: order plan computed", map[string]interface{}{
		"side":       side,
		"entry":      entryPrice,
		"stop":       stop,
		"target":     target,
		"quantity":   quantity,
		"riskAmount": riskAmount,
	})
	return &OrderPlan{
		Side:        side,
		EntryPrice:  entryPrice,
		StopLoss:    stop,
		TakeProfit:  target,
		Quantity:    quantity,
		InitialRisk: risk,
	}, nil
}

package engine

import (
	"context"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

// AdaptiveConfig holds parameters for the adaptive filter controller.
type AdaptiveConfig struct {
	TriggerLosses int // Consecutive losses that force both filters on
	RecoveryWins  int // Consecutive wins that restore the baseline

	// Initial (baseline) filter requirements for the run.
	VolumeFilterRequired     bool
	DivergenceFilterRequired bool
}

// AdaptiveController loosens or tightens confirmation strictness based on
// recent settled trades. It toggles whether the volume and divergence
// filters are mandatory; it never changes their numeric thresholds.
type AdaptiveController struct {
	cfg    AdaptiveConfig
	logger ports.Logger

	active             bool
	consecutiveWins    int
	consecutiveLosses  int
	volumeRequired     bool
	divergenceRequired bool
	baselineVolume     bool
	baselineDivergence bool
	lastSettledTradeID int64
}

// NewAdaptiveController creates the controller with the configured baseline
// filter state.
func NewAdaptiveController(cfg AdaptiveConfig, logger ports.Logger) *AdaptiveController {
	return &AdaptiveController{
		cfg:                cfg,
		logger:             logger,
		volumeRequired:     cfg.VolumeFilterRequired,
		divergenceRequired: cfg.DivergenceFilterRequired,
	}
}

// VolumeFilterRequired reports whether the volume filter must pass before an
// entry is taken.
func (a *AdaptiveController) VolumeFilterRequired() bool { return a.volumeRequired }

// DivergenceFilterRequired reports whether the divergence filter must pass
// before an entry is taken.
func (a *AdaptiveController) DivergenceFilterRequired() bool { return a.divergenceRequired }

// Active reports whether the strict override is currently engaged.
func (a *AdaptiveController) Active() bool { return a.active }

// OnTradeSettled updates the win/loss streaks with one settled trade and
// toggles the filter requirements when a streak threshold is crossed. Trades
// are keyed by their monotonically increasing settlement ID so the same
// outcome observed on consecutive polls is counted once.
func (a *AdaptiveController) OnTradeSettled(ctx context.Context, trade *domain.Trade) {
	if trade == nil || trade.ID <= a.lastSettledTradeID {
		return
	}
	a.lastSettledTradeID = trade.ID

	if trade.IsWin() {
		a.consecutiveWins++
		a.consecutiveLosses = 0
	} else {
		a.consecutiveLosses++
		a.consecutiveWins = 0
	}

	if !a.active && a.cfg.TriggerLosses > 0 && a.consecutiveLosses >= a.cfg.TriggerLosses {
		a.baselineVolume = a.volumeRequired
		a.baselineDivergence = a.divergenceRequired
		a.volumeRequired = true
		a.divergenceRequired = true
		a.active = true
		a.logger.Info(ctx, "adaptive: strict mode engaged", map[string]interface{}{
			"symbol":            trade.Symbol,
			"consecutiveLosses": a.consecutiveLosses,
			"trigger":           a.cfg.TriggerLosses,
		})
		return
	}

	if a.active && a.cfg.RecoveryWins > 0 && a.consecutiveWins >= a.cfg.RecoveryWins {
		a.volumeRequired = a.baselineVolume
		a.divergenceRequired = a.baselineDivergence
		a.active = false
		a.logger.Info(ctx, "adaptive: baseline restored", map[string]interface{}{
			"symbol":          trade.Symbol,
			"consecutiveWins": a.consecutiveWins,
			"recovery":        a.cfg.RecoveryWins,
		})
	}
}

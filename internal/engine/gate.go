package engine

import (
	"context"
	"fmt"
	"time"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

// GateConfig holds the per-instrument disable thresholds.
type GateConfig struct {
	MinTrades            int           // Disable conditions evaluated only past this count
	MinWinRate           float64       // Win-rate floor (0..1)
	MaxNetLoss           float64       // Net-profit floor; negative (e.g. -150.0)
	MaxConsecutiveLosses int           // Consecutive-loss cap
	CoolingPeriod        time.Duration // How long the instrument stays disabled
}

// PerformanceStats accumulates settled-trade statistics for one instrument.
type PerformanceStats struct {
	TotalTrades       int
	Wins              int
	Losses            int
	TotalProfit       float64 // Sum of winning PNL (positive)
	TotalLoss         float64 // Sum of losing PNL (negative)
	ConsecutiveWins   int
	ConsecutiveLosses int
	Enabled           bool
	DisabledAt        time.Time
	DisableReason     string
}

// WinRate returns the fraction of winning trades, 0 when no trades settled.
func (s *PerformanceStats) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TotalTrades)
}

// NetProfit returns cumulative profit plus cumulative (negative) loss.
func (s *PerformanceStats) NetProfit() float64 {
	return s.TotalProfit + s.TotalLoss
}

// PerformanceGate tracks win/loss statistics for one instrument and disables
// trading on it after sustained poor performance. A cooling check run at the
// top of each live cycle re-enables the instrument with a clean slate once
// the cooling period has elapsed.
type PerformanceGate struct {
	cfg    GateConfig
	symbol string
	logger ports.Logger
	stats  PerformanceStats
}

// NewPerformanceGate creates an enabled gate with zeroed statistics.
func NewPerformanceGate(cfg GateConfig, symbol string, logger ports.Logger) *PerformanceGate {
	return &PerformanceGate{
		cfg:    cfg,
		symbol: symbol,
		logger: logger,
		stats:  PerformanceStats{Enabled: true},
	}
}

// Warm seeds cumulative counters from persisted trade history so a restart
// does not forget an instrument's track record. Streaks are not recoverable
// from aggregates and start at zero.
func (g *PerformanceGate) Warm(stats *ports.SymbolTradeStats) {
	if stats == nil {
		return
	}
	g.stats.TotalTrades = stats.TotalTrades
	g.stats.Wins = stats.Wins
	g.stats.Losses = stats.Losses
	g.stats.TotalProfit = stats.TotalProfit
	g.stats.TotalLoss = stats.TotalLoss
}

// Enabled reports whether new entries are allowed on this instrument.
func (g *PerformanceGate) Enabled() bool {
	return g.stats.Enabled
}

// Stats returns a copy of the current statistics.
func (g *PerformanceGate) Stats() PerformanceStats {
	return g.stats
}

// OnTradeSettled folds one settled trade into the statistics and evaluates
// the disable conditions.
func (g *PerformanceGate) OnTradeSettled(ctx context.Context, trade *domain.Trade) {
	if trade == nil {
		return
	}
	g.stats.TotalTrades++
	if trade.IsWin() {
		g.stats.Wins++
		g.stats.TotalProfit += trade.PNL
		g.stats.ConsecutiveWins++
		g.stats.ConsecutiveLosses = 0
	} else {
		g.stats.Losses++
		g.stats.TotalLoss += trade.PNL
		g.stats.ConsecutiveLosses++
		g.stats.ConsecutiveWins = 0
	}

	if !g.stats.Enabled {
		return
	}
	if reason, tripped := g.disableReason(); tripped {
		g.stats.Enabled = false
		g.stats.DisabledAt = trade.ExitTime
		g.stats.DisableReason = reason
		g.logger.Warn(ctx, "performanceGate: instrument disabled", map[string]interface{}{
			"symbol":      g.symbol,
			"reason":      reason,
			"totalTrades": g.stats.TotalTrades,
			"winRate":     g.stats.WinRate(),
			"netProfit":   g.stats.NetProfit(),
		})
	}
}

// disableReason evaluates the three independent disable conditions. Any one
// trips disablement once the minimum trade count is reached.
func (g *PerformanceGate) disableReason() (string, bool) {
	if g.stats.TotalTrades < g.cfg.MinTrades {
		return "", false
	}
	if g.cfg.MaxConsecutiveLosses > 0 && g.stats.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		return fmt.Sprintf("consecutive losses %d reached cap %d", g.stats.ConsecutiveLosses, g.cfg.MaxConsecutiveLosses), true
	}
	if g.cfg.MinWinRate > 0 && g.stats.WinRate() < g.cfg.MinWinRate {
		return fmt.Sprintf("win rate %.2f below floor %.2f", g.stats.WinRate(), g.cfg.MinWinRate), true
	}
	if g.cfg.MaxNetLoss < 0 && g.stats.NetProfit() < g.cfg.MaxNetLoss {
		return fmt.Sprintf("net profit %.2f below ceiling %.2f", g.stats.NetProfit(), g.cfg.MaxNetLoss), true
	}
	return "", false
}

// CheckCooling re-enables the instrument once the cooling period has elapsed
// past the disablement timestamp, resetting every statistic to zero (a clean
// slate, not a rolling window).
func (g *PerformanceGate) CheckCooling(ctx context.Context, now time.Time) {
	if g.stats.Enabled || g.cfg.CoolingPeriod <= 0 {
		return
	}
	if now.Sub(g.stats.DisabledAt) < g.cfg.CoolingPeriod {
		return
	}
	g.stats = PerformanceStats{Enabled: true}
	g.logger.Info(ctx, "performanceGate: cooling period elapsed, instrument re-enabled", map[string]interface{}{
		"symbol": g.symbol,
	})
}

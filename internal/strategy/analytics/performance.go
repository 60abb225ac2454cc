package analytics

import (
	"sort"
	"time"

	"fakeoutBot/internal/domain"
)

// PerformanceMetrics summarizes the settled trades of one or more instruments.
type PerformanceMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	NetProfit     float64
	GrossProfit   float64 // Sum of winning PNL
	GrossLoss     float64 // Sum of losing PNL (negative)
	ProfitFactor  float64 // GrossProfit / -GrossLoss
	AverageWin    float64
	AverageLoss   float64
	Expectancy    float64

	MaxDrawdown          float64 // Deepest peak-to-trough equity decline, as a fraction
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration

	// Breakdowns specific to the false-breakout engine.
	BySide         map[domain.Side]*SideMetrics
	ByCloseReason  map[domain.CloseReason]int
	MonthlyReturns map[string]float64
	EquityCurve    []EquityPoint
}

// SideMetrics splits performance by trade direction.
type SideMetrics struct {
	Trades    int
	Wins      int
	NetProfit float64
}

// EquityPoint represents a point on the equity curve.
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// AnalyzePerformance calculates performance metrics from settled trades.
func AnalyzePerformance(trades []*domain.Trade, initialBalance float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		BySide:         make(map[domain.Side]*SideMetrics),
		ByCloseReason:  make(map[domain.CloseReason]int),
		MonthlyReturns: make(map[string]float64),
		EquityCurve:    make([]EquityPoint, 0, len(trades)),
	}
	if len(trades) == 0 {
		return metrics
	}

	sorted := make([]*domain.Trade, len(trades))
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].EntryTime.Before(sorted[j].EntryTime)
	})

	balance := initialBalance
	peak := initialBalance
	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration

	for _, trade := range sorted {
		metrics.TotalTrades++
		if trade.IsWin() {
			metrics.WinningTrades++
			metrics.GrossProfit += trade.PNL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			metrics.LosingTrades++
			metrics.GrossLoss += trade.PNL
			consecutiveLosses++
			consecutiveWins = 0
		}
		if consecutiveWins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = consecutiveLosses
		}

		side := metrics.BySide[trade.Side]
		if side == nil {
			side = &SideMetrics{}
			metrics.BySide[trade.Side] = side
		}
		side.Trades++
		if trade.IsWin() {
			side.Wins++
		}
		side.NetProfit += trade.PNL

		metrics.ByCloseReason[trade.CloseReason]++
		metrics.MonthlyReturns[trade.ExitTime.Format("2006-01")] += trade.PNL
		totalDuration += trade.ExitTime.Sub(trade.EntryTime)

		balance += trade.PNL
		metrics.NetProfit += trade.PNL
		if balance > peak {
			peak = balance
		}
		var drawdown float64
		if peak > 0 {
			drawdown = (peak - balance) / peak
		}
		if drawdown > metrics.MaxDrawdown {
			metrics.MaxDrawdown = drawdown
		}
		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     trade.ExitTime,
			Value:    balance,
			Drawdown: drawdown,
		})
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = metrics.GrossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = metrics.GrossLoss / float64(metrics.LosingTrades)
	}
	if metrics.GrossLoss != 0 {
		metrics.ProfitFactor = metrics.GrossProfit / -metrics.GrossLoss
	}
	metrics.Expectancy = metrics.WinRate*metrics.AverageWin + (1-metrics.WinRate)*metrics.AverageLoss
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	return metrics
}

// MonthlyReturn represents a monthly return value.
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// GetMonthlyReturns returns the monthly returns as a sorted slice.
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: profit})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

package domain

import "time"

// Position represents a trading position held by the bot.
type Position struct {
	ID         int64          // Unique identifier for the position (usually from DB)
	Symbol     string         // Trading symbol (e.g., "ETHUSDT")
	Side       Side           // Trade direction (long or short)
	EntryPrice float64        // Price at which the position was entered
	ExitPrice  float64        // Price at which the position was exited (0 if open)
	Quantity   float64        // Size of the position
	StopLoss   float64        // Current price level for the stop-loss order
	TakeProfit float64        // Price level for the take-profit order (0 once trailing engages)
	EntryTime  time.Time      // Timestamp when the position was entered
	ExitTime   time.Time      // Timestamp when the position was exited (zero value if open)
	Status     PositionStatus // Current status (open, closed)
	PNL        float64        // Profit and Loss for the position (calculated on close)

	// InitialRisk is the entry-to-initial-stop distance in price units,
	// fixed at entry. R-multiples are always measured against it, even after
	// the stop has been moved.
	InitialRisk float64

	// Associated order IDs for SL/TP management (nullable in DB)
	StopLossOrderID   *string     `db:"stop_loss_order_id"`
	TakeProfitOrderID *string     `db:"take_profit_order_id"`
	CloseReason       CloseReason `db:"close_reason"` // Reason for closing (SL, TP, Manual, etc.)
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// UnrealizedPNL returns the floating profit of the position at the supplied
// price, signed per side.
func (p *Position) UnrealizedPNL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Quantity * p.Side.Sign()
}

// RMultiple expresses the floating profit as a multiple of the initial risk.
// It returns 0 when the initial risk is zero.
func (p *Position) RMultiple(currentPrice float64) float64 {
	if p.InitialRisk <= 0 {
		return 0
	}
	riskAmount := p.InitialRisk * p.Quantity
	if riskAmount == 0 {
		return 0
	}
	return p.UnrealizedPNL(currentPrice) / riskAmount
}

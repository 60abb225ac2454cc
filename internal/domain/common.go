package domain

// OrderSide represents the side of an exchange order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Side represents the direction of a trade setup. A long setup trades the
// failed breakout below the reference range; a short setup trades the failed
// breakout above it.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Sign returns +1 for long and -1 for short. It is used to parametrize the
// mirrored price comparisons instead of duplicating per-side code paths.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// EntryOrderSide returns the exchange order side that opens a position in
// this direction.
func (s Side) EntryOrderSide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// ExitOrderSide returns the exchange order side that closes a position in
// this direction.
func (s Side) ExitOrderSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// Opposite returns the mirrored trade direction.
func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss     CloseReason = "SL"
	CloseReasonTakeProfit   CloseReason = "TP"
	CloseReasonTrailingStop CloseReason = "TRAILING_SL"
	CloseReasonManual       CloseReason = "MANUAL"
	CloseReasonUnknown      CloseReason = "Unknown"
)

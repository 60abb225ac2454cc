package ports

import "context"

// LevelNotifier receives price-level changes for visualization collaborators
// (chart overlays, dashboards). Implementations must not block; failures are
// the implementation's concern and never affect trading decisions.
type LevelNotifier interface {
	// LevelsReplaced is invoked whenever the reference range for a symbol is
	// replaced with a new high/low pair.
	LevelsReplaced(ctx context.Context, symbol string, high, low float64)
	// StopAdjusted is invoked whenever a position's protective stop is moved
	// (breakeven or trailing).
	StopAdjusted(ctx context.Context, symbol string, positionID int64, newStop float64)
}

package engine

import (
	"context"

	"fakeoutBot/internal/ports"
)

// LogNotifier is a LevelNotifier that reports level changes through the
// structured logger. Charting frontends can supply their own implementation.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a logging level notifier.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) LevelsReplaced(ctx context.Context, symbol string, high, low float64) {
	n.logger.Info(ctx, "levels: reference range replaced", map[string]interface{}{
		"symbol": symbol,
		"high":   high,
		"low":    low,
	})
}

func (n *LogNotifier) StopAdjusted(ctx context.Context, symbol string, positionID int64, newStop float64) {
	n.logger.Info(ctx, "levels: protective stop adjusted", map[string]interface{}{
		"symbol":     symbol,
		"positionID": positionID,
		"newStop":    newStop,
	})
}

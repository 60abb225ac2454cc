package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fakeoutBot/internal/domain"
	"fakeoutBot/internal/ports"
)

const wsShutdownTimeout = 5 * time.Second

// Service runs one engine per configured instrument: it synchronizes
// exchange time, initializes every engine, subscribes both kline streams and
// drives the live cycle on a fixed tick.
type Service struct {
	logger       ports.Logger
	exchange     ports.ExchangeClient
	engines      []*Engine
	tickInterval time.Duration
}

// NewService creates the runtime service around a set of per-instrument engines.
func NewService(logger ports.Logger, exchange ports.ExchangeClient, engines []*Engine, tickInterval time.Duration) (*Service, error) {
	if logger == nil || exchange == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if len(engines) == 0 {
		return nil, fmt.Errorf("at least one engine is required")
	}
	if tickInterval <= 0 {
		tickInterval = 15 * time.Second
	}
	return &Service{
		logger:       logger,
		exchange:     exchange,
		engines:      engines,
		tickInterval: tickInterval,
	}, nil
}

// Start runs the service until the context is cancelled, a shutdown signal
// arrives or a kline stream dies.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	// Server time must be in sync before any signed API call.
	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	for _, eng := range s.engines {
		if err := eng.Init(ctx); err != nil {
			s.logger.Error(ctx, err, "Engine initialization failed", map[string]interface{}{"symbol": eng.Symbol()})
			return fmt.Errorf("failed to initialize engine for %s: %w", eng.Symbol(), err)
		}
	}

	// Subscribe the signal and reference streams of every engine.
	var streams []klineStream
	streamClosed := make(chan string, len(s.engines)*2)

	subscribe := func(eng *Engine, interval string, handler func(ctx context.Context, k *domain.Kline)) error {
		doneCh, stopCh, err := s.exchange.StreamKlines(ctx, eng.Symbol(), interval,
			func(kline *domain.Kline) { handler(context.Background(), kline) },
			func(err error) {
				s.logger.Error(context.Background(), err, "WebSocket stream error", map[string]interface{}{
					"symbol":   eng.Symbol(),
					"interval": interval,
				})
			})
		if err != nil {
			return err
		}
		streams = append(streams, klineStream{symbol: eng.Symbol(), interval: interval, doneCh: doneCh, stopCh: stopCh})
		go func() {
			<-doneCh
			streamClosed <- eng.Symbol() + "@" + interval
		}()
		s.logger.Info(ctx, "Kline stream started", map[string]interface{}{
			"symbol":   eng.Symbol(),
			"interval": interval,
		})
		return nil
	}

	for _, eng := range s.engines {
		eng := eng
		if err := subscribe(eng, eng.SignalInterval(), eng.OnSignalKline); err != nil {
			s.logger.Error(ctx, err, "Failed to start signal kline stream", map[string]interface{}{"symbol": eng.Symbol()})
			return fmt.Errorf("failed to start signal stream for %s: %w", eng.Symbol(), err)
		}
		if err := subscribe(eng, eng.RangeInterval(), eng.OnRangeKline); err != nil {
			s.logger.Error(ctx, err, "Failed to start reference kline stream", map[string]interface{}{"symbol": eng.Symbol()})
			return fmt.Errorf("failed to start reference stream for %s: %w", eng.Symbol(), err)
		}
	}

	// Live cycle: settlement detection and stop lifecycle on a fixed tick.
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, eng := range s.engines {
				eng.OnTick(ctx)
			}
		case name := <-streamClosed:
			if ctx.Err() != nil {
				continue
			}
			err := fmt.Errorf("kline stream %s closed unexpectedly", name)
			s.logger.Error(ctx, err, "WebSocket stream stopped")
			s.stopStreams(ctx, streams)
			return err
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			s.stopStreams(ctx, streams)
			s.logger.Info(ctx, "Trading service stopped.")
			return nil
		}
	}
}

// klineStream tracks one subscribed websocket stream for shutdown.
type klineStream struct {
	symbol   string
	interval string
	doneCh   chan struct{}
	stopCh   chan struct{}
}

func (s *Service) stopStreams(ctx context.Context, streams []klineStream) {
	for _, st := range streams {
		select {
		case st.stopCh <- struct{}{}:
		default:
		}
	}
	deadline := time.After(wsShutdownTimeout)
	for _, st := range streams {
		select {
		case <-st.doneCh:
		case <-deadline:
			s.logger.Warn(ctx, "Timeout waiting for kline stream to shut down", map[string]interface{}{
				"symbol":   st.symbol,
				"interval": st.interval,
			})
			return
		}
	}
	s.logger.Info(ctx, "All kline streams shut down gracefully")
}

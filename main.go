package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fakeoutBot/config"
	"fakeoutBot/internal/adapters/binanceclient"
	"fakeoutBot/internal/adapters/logger"
	"fakeoutBot/internal/adapters/sqlite"
	"fakeoutBot/internal/engine"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZeroLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Optional metrics endpoint
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			appLogger.Info(context.Background(), "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(context.Background(), err, "Metrics endpoint stopped")
			}
		}()
	}

	// 6. Build one engine per configured instrument
	notifier := engine.NewLogNotifier(appLogger)
	engines := make([]*engine.Engine, 0, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		eng, err := engine.New(engine.Config{
			Symbol:           symbol,
			SignalInterval:   cfg.SignalInterval,
			RangeInterval:    cfg.RangeInterval,
			BalanceAsset:     cfg.BalanceAsset,
			MaxOrdersPerDay:  cfg.MaxOrders,
			TradingHourStart: cfg.TradingHourStart,
			TradingHourEnd:   cfg.TradingHourEnd,
			Filters:          cfg.Filters,
			VolumeLookback:   cfg.VolumeLookback,
			RSIPeriod:        cfg.RSIPeriod,
			MACDFastPeriod:   cfg.MACDFastPeriod,
			MACDSlowPeriod:   cfg.MACDSlowPeriod,
			MACDSignalPeriod: cfg.MACDSignalPeriod,
			Range: engine.RangeTrackerConfig{
				QualifyingHourEnabled: cfg.QualifyingHourEnabled,
				QualifyingHour:        cfg.QualifyingHour,
			},
			Adaptive: engine.AdaptiveConfig{
				TriggerLosses:            cfg.AdaptiveTriggerLosses,
				RecoveryWins:             cfg.AdaptiveRecoveryWins,
				VolumeFilterRequired:     cfg.VolumeFilterRequired,
				DivergenceFilterRequired: cfg.DivergenceFilterRequired,
			},
			Gate: engine.GateConfig{
				MinTrades:            cfg.GateMinTrades,
				MinWinRate:           cfg.GateMinWinRate,
				MaxNetLoss:           cfg.GateMaxNetLoss,
				MaxConsecutiveLosses: cfg.GateMaxConsecutiveLosses,
				CoolingPeriod:        cfg.GateCoolingPeriod,
			},
			Sizing: engine.SizingConfig{
				StopOffsetPct:   cfg.StopOffsetPct,
				RiskRewardRatio: cfg.RiskRewardRatio,
				RiskPercent:     cfg.RiskPercent,
				UserMinQuantity: cfg.MinQuantity,
				UserMaxQuantity: cfg.MaxQuantity,
			},
			Lifecycle: engine.LifecycleConfig{
				BreakevenTriggerR:      cfg.BreakevenTriggerR,
				TrailingTriggerR:       cfg.TrailingTriggerR,
				TrailingDistancePoints: cfg.TrailingDistancePoints,
			},
		}, appLogger, binanceClient, repo, repo, notifier)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize engine", map[string]interface{}{"symbol": symbol})
			log.Fatalf("FATAL: Failed to initialize engine for %s: %v", symbol, err)
		}
		engines = append(engines, eng)
	}

	// 7. Run the service
	svc, err := engine.NewService(appLogger, binanceClient, engines, cfg.TickInterval)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}

	appLogger.Info(context.Background(), "Starting trading service", map[string]interface{}{"symbols": cfg.Symbols})
	if err := svc.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Fatalf("Trading service exited with error: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service exited normally")
}

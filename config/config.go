package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fakeoutBot/internal/adapters/logger" // Import the logger package for LogLevel
	"fakeoutBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Instruments
	Symbols        []string
	SignalInterval string // e.g., "5m"
	RangeInterval  string // e.g., "1h"
	BalanceAsset   string // e.g., "USDT"

	// Entry and sizing
	StopOffsetPct   float64 // Stop offset beyond the extreme (e.g., 0.0002 for 0.02%)
	RiskRewardRatio float64 // Take-profit distance as a multiple of risk (e.g., 2.0)
	RiskPercent     float64 // Fraction of balance risked per trade (e.g., 0.01 for 1%)
	MinQuantity     float64 // User lower bound on order quantity (0 = exchange minimum)
	MaxQuantity     float64 // User upper bound on order quantity (0 = exchange maximum)
	MaxOrders       int     // Max trades per day per symbol (0 = unlimited)

	// Position lifecycle
	BreakevenTriggerR      float64 // R-multiple that moves the stop to entry
	TrailingTriggerR       float64 // R-multiple that activates the trailing stop
	TrailingDistancePoints float64 // Trailing distance in points

	// Trading window and reference range
	TradingHourStart      int  // UTC hour, inclusive
	TradingHourEnd        int  // UTC hour, exclusive; equal to start disables the window
	QualifyingHourEnabled bool // Restrict range replacement to one reference bar per day
	QualifyingHour        int  // UTC hour of the qualifying reference bar

	// Confirmation filters
	Filters            domain.FilterSettings
	InstrumentCategory string // Optional preset name overriding the filter thresholds
	VolumeLookback     int    // Prior bars in the rolling volume average

	// Oscillators
	RSIPeriod        int
	MACDFastPeriod   int
	MACDSlowPeriod   int
	MACDSignalPeriod int

	// Adaptive filter controller
	AdaptiveTriggerLosses    int
	AdaptiveRecoveryWins     int
	VolumeFilterRequired     bool // Initial state
	DivergenceFilterRequired bool // Initial state

	// Performance gate
	GateMinTrades            int
	GateMinWinRate           float64       // e.g., 0.35
	GateMaxNetLoss           float64       // Negative threshold (e.g., -150.0)
	GateMaxConsecutiveLosses int
	GateCoolingPeriod        time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Observability
	MetricsAddr string // Optional listen address for /metrics (empty disables)

	// Runtime
	TickInterval time.Duration // Live-cycle interval (settlement + stop management)

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// categoryPresets maps an instrument category to a full FilterSettings bundle.
// A configured category always substitutes the whole bundle; individual filter
// env vars are ignored when a category is set.
var categoryPresets = map[string]domain.FilterSettings{
	"major": {
		BreakoutVolumeMaxRatio: 0.8,
		ReversalVolumeMinRatio: 1.8,
		DivergenceLookback:     14,
		RequireBothIndicators:  false,
	},
	"cross": {
		BreakoutVolumeMaxRatio: 0.7,
		ReversalVolumeMinRatio: 2.0,
		DivergenceLookback:     14,
		RequireBothIndicators:  true,
	},
	"volatile": {
		BreakoutVolumeMaxRatio: 0.6,
		ReversalVolumeMinRatio: 2.2,
		DivergenceLookback:     10,
		RequireBothIndicators:  true,
	},
}

// CategorySettings resolves a category preset by name. The boolean reports
// whether the category matched; callers must treat false explicitly rather
// than falling through to defaults.
func CategorySettings(name string) (domain.FilterSettings, bool) {
	preset, ok := categoryPresets[strings.ToLower(name)]
	return preset, ok
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Instruments
	symbolsStr := getEnv("SYMBOLS", "ETHUSDT")
	for _, s := range strings.Split(symbolsStr, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			cfg.Symbols = append(cfg.Symbols, strings.ToUpper(s))
		}
	}
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must list at least one symbol")
	}
	cfg.SignalInterval = getEnv("SIGNAL_INTERVAL", "5m")
	cfg.RangeInterval = getEnv("RANGE_INTERVAL", "1h")
	cfg.BalanceAsset = getEnv("BALANCE_ASSET", "USDT")

	// Entry and sizing
	cfg.StopOffsetPct, err = getEnvAsFloatRequired("STOP_OFFSET_PCT", 0.0002)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_OFFSET_PCT: %v", err))
	} else if cfg.StopOffsetPct < 0 || cfg.StopOffsetPct >= 1.0 {
		errs = append(errs, "STOP_OFFSET_PCT must be in [0.0, 1.0)")
	}

	cfg.RiskRewardRatio, err = getEnvAsFloatRequired("RISK_REWARD_RATIO", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_REWARD_RATIO: %v", err))
	} else if cfg.RiskRewardRatio <= 0 {
		errs = append(errs, "RISK_REWARD_RATIO must be positive")
	}

	cfg.RiskPercent, err = getEnvAsFloatRequired("RISK_PERCENT", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PERCENT: %v", err))
	} else if cfg.RiskPercent <= 0 || cfg.RiskPercent > 0.5 {
		errs = append(errs, "RISK_PERCENT must be in (0.0, 0.5]")
	}

	cfg.MinQuantity = getEnvAsFloat("MIN_QUANTITY", 0)
	cfg.MaxQuantity = getEnvAsFloat("MAX_QUANTITY", 0)
	if cfg.MinQuantity < 0 || cfg.MaxQuantity < 0 {
		errs = append(errs, "MIN_QUANTITY and MAX_QUANTITY cannot be negative")
	}
	if cfg.MaxQuantity > 0 && cfg.MinQuantity > cfg.MaxQuantity {
		errs = append(errs, "MIN_QUANTITY must not exceed MAX_QUANTITY")
	}

	cfg.MaxOrders, err = getEnvAsIntRequired("MAX_ORDERS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_ORDERS: %v", err))
	} else if cfg.MaxOrders < 0 {
		errs = append(errs, "MAX_ORDERS cannot be negative")
	}

	// Position lifecycle
	cfg.BreakevenTriggerR = getEnvAsFloat("BREAKEVEN_TRIGGER_R", 1.0)
	cfg.TrailingTriggerR = getEnvAsFloat("TRAILING_TRIGGER_R", 2.0)
	cfg.TrailingDistancePoints = getEnvAsFloat("TRAILING_DISTANCE_POINTS", 150)
	if cfg.BreakevenTriggerR <= 0 || cfg.TrailingTriggerR <= 0 || cfg.TrailingDistancePoints <= 0 {
		errs = append(errs, "BREAKEVEN_TRIGGER_R, TRAILING_TRIGGER_R and TRAILING_DISTANCE_POINTS must be positive")
	}
	if cfg.TrailingTriggerR <= cfg.BreakevenTriggerR {
		errs = append(errs, "TRAILING_TRIGGER_R must exceed BREAKEVEN_TRIGGER_R")
	}

	// Trading window and reference range
	cfg.TradingHourStart = getEnvAsInt("TRADING_HOUR_START", 0)
	cfg.TradingHourEnd = getEnvAsInt("TRADING_HOUR_END", 0)
	if cfg.TradingHourStart < 0 || cfg.TradingHourStart > 23 || cfg.TradingHourEnd < 0 || cfg.TradingHourEnd > 23 {
		errs = append(errs, "TRADING_HOUR_START and TRADING_HOUR_END must be in [0, 23]")
	}
	cfg.QualifyingHourEnabled = getEnvAsBool("QUALIFYING_HOUR_ENABLED", false)
	cfg.QualifyingHour = getEnvAsInt("QUALIFYING_HOUR", 0)
	if cfg.QualifyingHour < 0 || cfg.QualifyingHour > 23 {
		errs = append(errs, "QUALIFYING_HOUR must be in [0, 23]")
	}

	// Confirmation filters: a category preset substitutes the whole bundle.
	cfg.InstrumentCategory = getEnv("INSTRUMENT_CATEGORY", "")
	if cfg.InstrumentCategory != "" {
		preset, ok := CategorySettings(cfg.InstrumentCategory)
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown INSTRUMENT_CATEGORY %q (known: major, cross, volatile)", cfg.InstrumentCategory))
		} else {
			cfg.Filters = preset
		}
	} else {
		cfg.Filters = domain.FilterSettings{
			BreakoutVolumeMaxRatio: getEnvAsFloat("BREAKOUT_VOLUME_MAX_RATIO", 0.8),
			ReversalVolumeMinRatio: getEnvAsFloat("REVERSAL_VOLUME_MIN_RATIO", 1.8),
			DivergenceLookback:     getEnvAsInt("DIVERGENCE_LOOKBACK", 14),
			RequireBothIndicators:  getEnvAsBool("REQUIRE_BOTH_INDICATORS", false),
		}
	}
	if cfg.Filters.BreakoutVolumeMaxRatio <= 0 || cfg.Filters.ReversalVolumeMinRatio <= 0 {
		errs = append(errs, "volume filter ratios must be positive")
	}
	if cfg.Filters.DivergenceLookback < 3 {
		errs = append(errs, "DIVERGENCE_LOOKBACK must be at least 3")
	}

	cfg.VolumeLookback = getEnvAsInt("VOLUME_LOOKBACK", 20)
	if cfg.VolumeLookback <= 0 {
		errs = append(errs, "VOLUME_LOOKBACK must be positive")
	}

	// Oscillators
	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 14)
	cfg.MACDFastPeriod = getEnvAsInt("MACD_FAST_PERIOD", 12)
	cfg.MACDSlowPeriod = getEnvAsInt("MACD_SLOW_PERIOD", 26)
	cfg.MACDSignalPeriod = getEnvAsInt("MACD_SIGNAL_PERIOD", 9)
	if cfg.RSIPeriod <= 0 || cfg.MACDFastPeriod <= 0 || cfg.MACDSlowPeriod <= 0 || cfg.MACDSignalPeriod <= 0 {
		errs = append(errs, "oscillator periods (RSI, MACD) must be positive")
	}
	if cfg.MACDFastPeriod >= cfg.MACDSlowPeriod {
		errs = append(errs, "MACD_FAST_PERIOD must be less than MACD_SLOW_PERIOD")
	}

	// Adaptive filter controller
	cfg.AdaptiveTriggerLosses = getEnvAsInt("ADAPTIVE_TRIGGER_LOSSES", 3)
	cfg.AdaptiveRecoveryWins = getEnvAsInt("ADAPTIVE_RECOVERY_WINS", 2)
	if cfg.AdaptiveTriggerLosses <= 0 || cfg.AdaptiveRecoveryWins <= 0 {
		errs = append(errs, "ADAPTIVE_TRIGGER_LOSSES and ADAPTIVE_RECOVERY_WINS must be positive")
	}
	cfg.VolumeFilterRequired = getEnvAsBool("VOLUME_FILTER_REQUIRED", true)
	cfg.DivergenceFilterRequired = getEnvAsBool("DIVERGENCE_FILTER_REQUIRED", false)

	// Performance gate
	cfg.GateMinTrades = getEnvAsInt("GATE_MIN_TRADES", 10)
	cfg.GateMinWinRate = getEnvAsFloat("GATE_MIN_WIN_RATE", 0.35)
	cfg.GateMaxNetLoss = getEnvAsFloat("GATE_MAX_NET_LOSS", -150.0)
	cfg.GateMaxConsecutiveLosses = getEnvAsInt("GATE_MAX_CONSECUTIVE_LOSSES", 5)
	if cfg.GateMinTrades < 0 {
		errs = append(errs, "GATE_MIN_TRADES cannot be negative")
	}
	if cfg.GateMinWinRate < 0 || cfg.GateMinWinRate > 1 {
		errs = append(errs, "GATE_MIN_WIN_RATE must be in [0.0, 1.0]")
	}
	if cfg.GateMaxNetLoss > 0 {
		errs = append(errs, "GATE_MAX_NET_LOSS must be zero or negative")
	}
	if cfg.GateMaxConsecutiveLosses < 0 {
		errs = append(errs, "GATE_MAX_CONSECUTIVE_LOSSES cannot be negative")
	}
	coolingHours := getEnvAsInt("GATE_COOLING_HOURS", 24)
	if coolingHours <= 0 {
		errs = append(errs, "GATE_COOLING_HOURS must be positive")
	}
	cfg.GateCoolingPeriod = time.Duration(coolingHours) * time.Hour

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/fakeout_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Observability
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Runtime
	tickSeconds := getEnvAsInt("TICK_INTERVAL_SECONDS", 15)
	if tickSeconds <= 0 {
		errs = append(errs, "TICK_INTERVAL_SECONDS must be positive")
	}
	cfg.TickInterval = time.Duration(tickSeconds) * time.Second

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

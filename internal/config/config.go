package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/trade-guard/internal/alerts"
	"github.com/ducminhle1904/trade-guard/internal/risk"
	"github.com/ducminhle1904/trade-guard/internal/riskmath"
	"github.com/ducminhle1904/trade-guard/internal/safety"
)

// Config is the process configuration, read from the environment
type Config struct {
	Environment string
	LogLevel    string
	LogDir      string

	// Limits are the gate limits; LIMITS_PROFILE replaces the env values
	Limits        risk.Limits
	LimitsProfile string
	RiskMath      riskmath.Params
	Breaker       safety.CircuitBreakerConfig

	Portfolio     PortfolioConfig
	KillSwitch    KillSwitchConfig
	Alerts        AlertsConfig
	Monitoring    MonitoringConfig
	Notifications NotificationsConfig
	Redis         RedisConfig
	Bybit         BybitConfig
}

// PortfolioConfig selects where snapshots come from
type PortfolioConfig struct {
	HoldingsFile string
	Source       string // file, or bybit to mark the holdings to exchange prices
}

// KillSwitchConfig selects the kill switch store and the monitor thresholds
type KillSwitchConfig struct {
	Store             string // memory, file or redis
	FilePath          string
	RedisKey          string
	VolatilityCeiling float64
	MonitorInterval   time.Duration
}

type AlertsConfig struct {
	QuietStart  string
	QuietEnd    string
	Timezone    string
	HistorySize int
	RulesFile   string
}

type MonitoringConfig struct {
	Addr string // metrics, health and websocket listener
}

type NotificationsConfig struct {
	TelegramToken  string
	TelegramChatID string
	Websocket      bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type BybitConfig struct {
	APIKey   string
	Secret   string
	Testnet  bool
	Category string
	Symbols  []string // the first symbol is the volatility benchmark

	WalletCash     bool
	VolatilityDays int
}

// Load reads the configuration from the environment. Unset or unparsable
// variables fall back to their defaults; call Validate before use.
func Load() (*Config, error) {
	limits := risk.DefaultLimits()
	params := riskmath.DefaultParams()
	breaker := safety.DefaultCircuitBreakerConfig()

	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogDir:      getEnv("LOG_DIR", "logs"),

		Limits: risk.Limits{
			MaxPositionSizePct:    getEnvFloat("MAX_POSITION_SIZE_PCT", limits.MaxPositionSizePct),
			MaxTotalExposurePct:   getEnvFloat("MAX_TOTAL_EXPOSURE_PCT", limits.MaxTotalExposurePct),
			MaxLeverage:           getEnvFloat("MAX_LEVERAGE", limits.MaxLeverage),
			MaxDailyLossPct:       getEnvFloat("MAX_DAILY_LOSS_PCT", limits.MaxDailyLossPct),
			MaxDrawdownPct:        getEnvFloat("MAX_DRAWDOWN_PCT", limits.MaxDrawdownPct),
			RiskPerTradePct:       getEnvFloat("RISK_PER_TRADE_PCT", limits.RiskPerTradePct),
			ConcentrationLimitPct: getEnvFloat("CONCENTRATION_LIMIT_PCT", limits.ConcentrationLimitPct),
		},
		LimitsProfile: getEnv("LIMITS_PROFILE", ""),

		RiskMath: riskmath.Params{
			KellyFraction:  getEnvFloat("KELLY_FRACTION", params.KellyFraction),
			CVaRMultiplier: getEnvFloat("CVAR_MULTIPLIER", params.CVaRMultiplier),
			ATRMultiplier:  getEnvFloat("ATR_MULTIPLIER", params.ATRMultiplier),
		},

		Breaker: safety.CircuitBreakerConfig{
			FailureThreshold: uint32(getEnvInt("BREAKER_FAILURE_THRESHOLD", int(breaker.FailureThreshold))),
			SuccessThreshold: uint32(getEnvInt("BREAKER_SUCCESS_THRESHOLD", int(breaker.SuccessThreshold))),
			Timeout:          getEnvDuration("BREAKER_TIMEOUT", breaker.Timeout),
		},

		Portfolio: PortfolioConfig{
			HoldingsFile: getEnv("PORTFOLIO_FILE", "data/holdings.json"),
			Source:       strings.ToLower(getEnv("PORTFOLIO_SOURCE", "file")),
		},

		KillSwitch: KillSwitchConfig{
			Store:             strings.ToLower(getEnv("KILL_SWITCH_STORE", "file")),
			FilePath:          getEnv("KILL_SWITCH_FILE", "data/kill_switch.json"),
			RedisKey:          getEnv("KILL_SWITCH_REDIS_KEY", "trade-guard:kill-switch"),
			VolatilityCeiling: getEnvFloat("VOLATILITY_CEILING", 0),
			MonitorInterval:   getEnvDuration("MONITOR_INTERVAL", 30*time.Second),
		},

		Alerts: AlertsConfig{
			QuietStart:  getEnv("ALERT_QUIET_START", ""),
			QuietEnd:    getEnv("ALERT_QUIET_END", ""),
			Timezone:    getEnv("ALERT_TIMEZONE", "UTC"),
			HistorySize: getEnvInt("ALERT_HISTORY_SIZE", 1000),
			RulesFile:   getEnv("ALERT_RULES_FILE", ""),
		},

		Monitoring: MonitoringConfig{
			Addr: getEnv("MONITORING_ADDR", ":8080"),
		},

		Notifications: NotificationsConfig{
			TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
			Websocket:      getEnvBool("ALERT_WEBSOCKET", true),
		},

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		Bybit: BybitConfig{
			APIKey:   getEnv("BYBIT_API_KEY", ""),
			Secret:   getEnv("BYBIT_API_SECRET", ""),
			Testnet:  getEnvBool("BYBIT_TESTNET", true),
			Category: getEnv("BYBIT_CATEGORY", "linear"),
			Symbols:  getEnvList("BYBIT_SYMBOLS", nil),

			WalletCash:     getEnvBool("BYBIT_WALLET_CASH", false),
			VolatilityDays: getEnvInt("BYBIT_VOLATILITY_DAYS", 30),
		},
	}

	if cfg.LimitsProfile != "" {
		profile, err := LoadLimitsProfile(cfg.LimitsProfile)
		if err != nil {
			return nil, err
		}
		cfg.Limits = profile
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements
func (c *Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if err := c.RiskMath.Validate(); err != nil {
		return fmt.Errorf("risk math: %w", err)
	}
	if c.Breaker.FailureThreshold == 0 || c.Breaker.SuccessThreshold == 0 {
		return fmt.Errorf("breaker thresholds must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("breaker timeout must be positive")
	}

	switch c.Portfolio.Source {
	case "file":
	case "bybit":
		if c.Bybit.VolatilityDays < 3 || c.Bybit.VolatilityDays > 1000 {
			return fmt.Errorf("BYBIT_VOLATILITY_DAYS must be in [3, 1000]")
		}
		if c.Bybit.WalletCash && (c.Bybit.APIKey == "" || c.Bybit.Secret == "") {
			return fmt.Errorf("BYBIT_WALLET_CASH needs BYBIT_API_KEY and BYBIT_API_SECRET")
		}
	default:
		return fmt.Errorf("unknown portfolio source %q (file, bybit)", c.Portfolio.Source)
	}
	if c.Portfolio.HoldingsFile == "" {
		return fmt.Errorf("PORTFOLIO_FILE is required")
	}

	switch c.KillSwitch.Store {
	case "memory":
	case "file":
		if c.KillSwitch.FilePath == "" {
			return fmt.Errorf("KILL_SWITCH_FILE is required for the file store")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown kill switch store %q (memory, file, redis)", c.KillSwitch.Store)
	}
	if c.KillSwitch.VolatilityCeiling < 0 {
		return fmt.Errorf("volatility ceiling must be >= 0")
	}
	if c.KillSwitch.MonitorInterval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}

	if (c.Alerts.QuietStart == "") != (c.Alerts.QuietEnd == "") {
		return fmt.Errorf("ALERT_QUIET_START and ALERT_QUIET_END must be set together")
	}
	if _, err := time.LoadLocation(c.Alerts.Timezone); err != nil {
		return fmt.Errorf("alert timezone: %w", err)
	}
	if c.Alerts.HistorySize <= 0 {
		return fmt.Errorf("alert history size must be positive")
	}

	if (c.Notifications.TelegramToken == "") != (c.Notifications.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// DispatcherConfig builds the alert dispatcher configuration, merging the
// rules file over the defaults when one is configured.
func (c *Config) DispatcherConfig() (alerts.DispatcherConfig, error) {
	dc := alerts.DefaultDispatcherConfig()
	dc.HistorySize = c.Alerts.HistorySize

	if c.Alerts.QuietStart != "" {
		loc, err := time.LoadLocation(c.Alerts.Timezone)
		if err != nil {
			return dc, fmt.Errorf("alert timezone: %w", err)
		}
		quiet, err := alerts.ParseQuietHours(c.Alerts.QuietStart, c.Alerts.QuietEnd, loc)
		if err != nil {
			return dc, err
		}
		dc.QuietHours = quiet
	}

	if c.Alerts.RulesFile != "" {
		data, err := os.ReadFile(c.Alerts.RulesFile)
		if err != nil {
			return dc, fmt.Errorf("failed to read alert rules %s: %w", c.Alerts.RulesFile, err)
		}
		rules, err := alerts.ParseRules(data, dc.Rules)
		if err != nil {
			return dc, err
		}
		dc.Rules = rules
	}
	return dc, nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

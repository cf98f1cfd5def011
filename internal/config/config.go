// Package config handles configuration management with validation
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"arb_monitor/internal/core"

	"gopkg.in/yaml.v3"
)

// Calculator rate sources
const (
	SourceSnapshot = "snapshot"
	SourceLive     = "live"
)

// SupportedExchanges lists the adapters the factory can build
var SupportedExchanges = []string{"binance", "bybit", "okx", "gate", "hyperliquid", "upbit", "mock"}

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig                 `yaml:"app"`
	Exchanges   map[string]ExchangeConfig `yaml:"exchanges"`
	Scanner     ScannerConfig             `yaml:"scanner"`
	FX          FXConfig                  `yaml:"fx"`
	Server      ServerConfig              `yaml:"server"`
	Storage     StorageConfig             `yaml:"storage"`
	System      SystemConfig              `yaml:"system"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Concurrency ConcurrencyConfig         `yaml:"concurrency"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name            string   `yaml:"name"`
	ActiveExchanges []string `yaml:"active_exchanges"`
	Symbols         []string `yaml:"symbols"`
}

// ExchangeConfig contains exchange-specific configuration.
// Keys are optional: every endpoint used is public market data.
type ExchangeConfig struct {
	APIKey               Secret   `yaml:"api_key"`
	SecretKey            Secret   `yaml:"secret_key"`
	BaseURL              string   `yaml:"base_url"`
	FuturesBaseURL       string   `yaml:"futures_base_url"`
	MakerFee             *float64 `yaml:"maker_fee"`
	TakerFee             *float64 `yaml:"taker_fee"`
	WithdrawalFee        *float64 `yaml:"withdrawal_fee"`
	FundingIntervalHours float64  `yaml:"funding_interval_hours"`
	TimeoutSeconds       int      `yaml:"timeout_seconds"`
}

// Timeout returns the HTTP timeout for the exchange
func (e ExchangeConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// ScannerConfig contains refresher and calculator settings
type ScannerConfig struct {
	FundingEnabled         bool    `yaml:"funding_enabled"`
	PriceEnabled           bool    `yaml:"price_enabled"`
	FundingIntervalSeconds int     `yaml:"funding_interval_seconds"`
	PriceIntervalSeconds   int     `yaml:"price_interval_seconds"`
	CycleTimeoutSeconds    int     `yaml:"cycle_timeout_seconds"`
	TransferFee            float64 `yaml:"transfer_fee"`
	MinAPR                 float64 `yaml:"min_apr"`
	ResultLimit            int     `yaml:"result_limit"`
	DefaultPositionSize    float64 `yaml:"default_position_size"`
	DefaultLeverage        float64 `yaml:"default_leverage"`
	DefaultHoldingHours    float64 `yaml:"default_holding_hours"`
	CalculatorSource       string  `yaml:"calculator_source"`
	PremiumReference       string  `yaml:"premium_reference"`
}

// FundingInterval returns the funding refresh period
func (s ScannerConfig) FundingInterval() time.Duration {
	return time.Duration(s.FundingIntervalSeconds) * time.Second
}

// PriceInterval returns the price refresh period
func (s ScannerConfig) PriceInterval() time.Duration {
	return time.Duration(s.PriceIntervalSeconds) * time.Second
}

// CycleTimeout returns the deadline applied to a single refresh cycle
func (s ScannerConfig) CycleTimeout() time.Duration {
	return time.Duration(s.CycleTimeoutSeconds) * time.Second
}

// FXConfig contains USD/KRW conversion settings
type FXConfig struct {
	Enabled                bool    `yaml:"enabled"`
	BaseURL                string  `yaml:"base_url"`
	DefaultRate            float64 `yaml:"default_rate"`
	RefreshIntervalSeconds int     `yaml:"refresh_interval_seconds"`
}

// RefreshInterval returns the FX refresh period
func (f FXConfig) RefreshInterval() time.Duration {
	return time.Duration(f.RefreshIntervalSeconds) * time.Second
}

// ServerConfig contains HTTP/WebSocket server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Production     bool     `yaml:"production"`
	MaxConnections int      `yaml:"max_connections"`
	RateLimit      float64  `yaml:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst"`
}

// StorageConfig contains snapshot persistence settings
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled      bool `yaml:"enabled"`
	StdoutTraces bool `yaml:"stdout_traces"`
	StdoutLogs   bool `yaml:"stdout_logs"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	FetchPoolSize   int `yaml:"fetch_pool_size"`
	FetchPoolBuffer int `yaml:"fetch_pool_buffer"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
// Values missing from the file keep their DefaultConfig value.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) normalize() {
	for i, sym := range c.App.Symbols {
		c.App.Symbols[i] = core.NormalizeSymbol(sym)
	}
	for i, ex := range c.App.ActiveExchanges {
		c.App.ActiveExchanges[i] = strings.ToLower(strings.TrimSpace(ex))
	}
	c.Scanner.CalculatorSource = strings.ToLower(c.Scanner.CalculatorSource)
	c.System.LogLevel = strings.ToUpper(c.System.LogLevel)
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	for _, validate := range []func() error{
		c.validateAppConfig,
		c.validateExchanges,
		c.validateScannerConfig,
		c.validateFXConfig,
		c.validateServerConfig,
		c.validateStorageConfig,
		c.validateSystemConfig,
	} {
		if err := validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	if len(c.App.ActiveExchanges) == 0 {
		return ValidationError{
			Field:   "app.active_exchanges",
			Message: "at least one exchange must be active",
		}
	}

	seen := make(map[string]bool, len(c.App.ActiveExchanges))
	for _, ex := range c.App.ActiveExchanges {
		if !contains(SupportedExchanges, ex) {
			return ValidationError{
				Field:   "app.active_exchanges",
				Value:   ex,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(SupportedExchanges, ", ")),
			}
		}
		if seen[ex] {
			return ValidationError{
				Field:   "app.active_exchanges",
				Value:   ex,
				Message: "exchange listed twice",
			}
		}
		seen[ex] = true
	}

	if len(c.App.Symbols) == 0 {
		return ValidationError{
			Field:   "app.symbols",
			Message: "at least one symbol is required",
		}
	}
	for _, sym := range c.App.Symbols {
		if !strings.Contains(sym, "/") {
			return ValidationError{
				Field:   "app.symbols",
				Value:   sym,
				Message: "symbol must be BASE/QUOTE",
			}
		}
	}

	return nil
}

func (c *Config) validateExchanges() error {
	for name, exchange := range c.Exchanges {
		for field, fee := range map[string]*float64{
			"maker_fee":      exchange.MakerFee,
			"taker_fee":      exchange.TakerFee,
			"withdrawal_fee": exchange.WithdrawalFee,
		} {
			if fee != nil && (!isFinite(*fee) || *fee < 0 || *fee >= 1) {
				return ValidationError{
					Field:   fmt.Sprintf("exchanges.%s.%s", name, field),
					Value:   *fee,
					Message: "fee must be in [0, 1)",
				}
			}
		}

		if !isFinite(exchange.FundingIntervalHours) || exchange.FundingIntervalHours < 0 {
			return ValidationError{
				Field:   fmt.Sprintf("exchanges.%s.funding_interval_hours", name),
				Value:   exchange.FundingIntervalHours,
				Message: "funding interval must be positive (0 uses the default)",
			}
		}
	}
	return nil
}

func (c *Config) validateScannerConfig() error {
	s := c.Scanner

	if !s.FundingEnabled && !s.PriceEnabled {
		return ValidationError{
			Field:   "scanner",
			Message: "at least one of funding_enabled or price_enabled must be set",
		}
	}
	if s.FundingIntervalSeconds <= 0 {
		return ValidationError{Field: "scanner.funding_interval_seconds", Value: s.FundingIntervalSeconds, Message: "must be positive"}
	}
	if s.PriceIntervalSeconds <= 0 {
		return ValidationError{Field: "scanner.price_interval_seconds", Value: s.PriceIntervalSeconds, Message: "must be positive"}
	}
	if s.CycleTimeoutSeconds <= 0 {
		return ValidationError{Field: "scanner.cycle_timeout_seconds", Value: s.CycleTimeoutSeconds, Message: "must be positive"}
	}
	if !isFinite(s.TransferFee) || s.TransferFee < 0 || s.TransferFee >= 1 {
		return ValidationError{Field: "scanner.transfer_fee", Value: s.TransferFee, Message: "must be in [0, 1)"}
	}
	if !isFinite(s.MinAPR) {
		return ValidationError{Field: "scanner.min_apr", Value: s.MinAPR, Message: "must be finite"}
	}
	if s.ResultLimit <= 0 {
		return ValidationError{Field: "scanner.result_limit", Value: s.ResultLimit, Message: "must be positive"}
	}
	if !(s.DefaultPositionSize > 0) {
		return ValidationError{Field: "scanner.default_position_size", Value: s.DefaultPositionSize, Message: "must be positive"}
	}
	if !(s.DefaultLeverage > 0) {
		return ValidationError{Field: "scanner.default_leverage", Value: s.DefaultLeverage, Message: "must be positive"}
	}
	if !(s.DefaultHoldingHours > 0) {
		return ValidationError{Field: "scanner.default_holding_hours", Value: s.DefaultHoldingHours, Message: "must be positive"}
	}
	if s.CalculatorSource != SourceSnapshot && s.CalculatorSource != SourceLive {
		return ValidationError{
			Field:   "scanner.calculator_source",
			Value:   s.CalculatorSource,
			Message: fmt.Sprintf("must be one of: %s, %s", SourceSnapshot, SourceLive),
		}
	}
	if s.PremiumReference != "" && !contains(SupportedExchanges, s.PremiumReference) {
		return ValidationError{Field: "scanner.premium_reference", Value: s.PremiumReference, Message: "unknown exchange"}
	}
	return nil
}

func (c *Config) validateFXConfig() error {
	if !isFinite(c.FX.DefaultRate) || c.FX.DefaultRate <= 0 {
		return ValidationError{Field: "fx.default_rate", Value: c.FX.DefaultRate, Message: "must be positive"}
	}
	if c.FX.Enabled {
		if c.FX.BaseURL == "" {
			return ValidationError{Field: "fx.base_url", Message: "required when fx is enabled"}
		}
		if c.FX.RefreshIntervalSeconds <= 0 {
			return ValidationError{Field: "fx.refresh_interval_seconds", Value: c.FX.RefreshIntervalSeconds, Message: "must be positive"}
		}
	}
	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ValidationError{Field: "server.port", Value: c.Server.Port, Message: "must be a valid TCP port"}
	}
	if c.Server.Production && contains(c.Server.AllowedOrigins, "*") {
		return ValidationError{Field: "server.allowed_origins", Value: "*", Message: "wildcard origin is not allowed in production"}
	}
	return nil
}

func (c *Config) validateStorageConfig() error {
	if c.Storage.Enabled && c.Storage.Path == "" {
		return ValidationError{Field: "storage.path", Message: "required when storage is enabled"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// ExchangeConfigFor returns the configuration for an exchange, or the zero value when absent
func (c *Config) ExchangeConfigFor(name string) ExchangeConfig {
	return c.Exchanges[name]
}

// String returns a YAML representation with secrets redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:            "arb_monitor",
			ActiveExchanges: []string{"binance", "bybit", "okx", "gate", "hyperliquid"},
			Symbols:         append([]string(nil), core.DefaultSymbols...),
		},
		Exchanges: map[string]ExchangeConfig{},
		Scanner: ScannerConfig{
			FundingEnabled:         true,
			PriceEnabled:           true,
			FundingIntervalSeconds: 60,
			PriceIntervalSeconds:   5,
			CycleTimeoutSeconds:    30,
			TransferFee:            0.001,
			MinAPR:                 0,
			ResultLimit:            20,
			DefaultPositionSize:    10000,
			DefaultLeverage:        2,
			DefaultHoldingHours:    24,
			CalculatorSource:       SourceSnapshot,
			PremiumReference:       "binance",
		},
		FX: FXConfig{
			Enabled:                true,
			BaseURL:                "https://open.er-api.com",
			DefaultRate:            1300,
			RefreshIntervalSeconds: 3600,
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			MaxConnections: 1000,
			RateLimit:      10,
			RateBurst:      20,
		},
		Storage: StorageConfig{
			Enabled: false,
			Path:    "arb_monitor.db",
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Concurrency: ConcurrencyConfig{
			FetchPoolSize:   16,
			FetchPoolBuffer: 256,
		},
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	Bank    BankConfig
	Ledger  LedgerConfig
	Recon   ReconConfig
	Settle  SettleConfig
	Notify  NotifyConfig
	Ops     OpsConfig
	Logging LoggingConfig
}

// BankConfig covers credentials and connectivity for the banking protocol.
type BankConfig struct {
	BaseURL        string
	Username       string
	Password       string
	AccountNo      string
	CaptchaMode    string // model|engine|custom
	CaptchaCmd     string
	CipherCmd      string
	CipherKeyB64   string
	RequestTimeout time.Duration
}

// LedgerConfig describes connectivity to the shared payment store.
type LedgerConfig struct {
	Addr     string
	Password string
	DB       int
}

// ReconConfig tunes the reconciliation and expiry loops.
type ReconConfig struct {
	PollInterval           time.Duration
	Lookback               time.Duration
	ToleranceVND           int64
	MaxConsecutiveFailures int
	PaymentExpiry          time.Duration
	ReapInterval           time.Duration
	OpenHour               int
	CloseHour              int
}

// SettleConfig points at the wallet-transfer provider.
type SettleConfig struct {
	BaseURL    string
	AuthSecret string
}

// NotifyConfig configures the outbound chat notifier.
type NotifyConfig struct {
	TelegramToken string
	OperatorID    string
}

// OpsConfig governs the operational HTTP endpoint.
type OpsConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultPollInterval    = 30 * time.Second
	defaultLookback        = time.Hour
	defaultMaxFailures     = 5
	defaultPaymentExpiry   = 30 * time.Minute
	defaultReapInterval    = time.Hour
	defaultRequestTimeout  = 15 * time.Second
	defaultOpsHost         = "0.0.0.0"
	defaultOpsPort         = 8090
	defaultShutdownTimeout = 10 * time.Second
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "text"
	defaultCaptchaMode     = "model"
	defaultLedgerAddr      = "localhost:6379"
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Bank: BankConfig{
			BaseURL:      os.Getenv("BANK_BASE_URL"),
			Username:     os.Getenv("BANK_USERNAME"),
			Password:     os.Getenv("BANK_PASSWORD"),
			AccountNo:    os.Getenv("BANK_ACCOUNT_NO"),
			CaptchaMode:  valueOrDefault("BANK_CAPTCHA_MODE", defaultCaptchaMode),
			CaptchaCmd:   os.Getenv("BANK_CAPTCHA_CMD"),
			CipherCmd:    os.Getenv("BANK_CIPHER_CMD"),
			CipherKeyB64: os.Getenv("BANK_CIPHER_KEY"),
		},
		Ledger: LedgerConfig{
			Addr:     valueOrDefault("LEDGER_ADDR", defaultLedgerAddr),
			Password: os.Getenv("LEDGER_PASSWORD"),
			DB:       parseIntWithDefault("LEDGER_DB", 0),
		},
		Recon: ReconConfig{
			Lookback:               defaultLookback,
			ToleranceVND:           parseInt64WithDefault("RECON_TOLERANCE_VND", 0),
			MaxConsecutiveFailures: parseIntWithDefault("RECON_MAX_FAILURES", defaultMaxFailures),
			OpenHour:               parseIntWithDefault("RECON_OPEN_HOUR", 0),
			CloseHour:              parseIntWithDefault("RECON_CLOSE_HOUR", 0),
		},
		Settle: SettleConfig{
			BaseURL:    os.Getenv("SETTLE_BASE_URL"),
			AuthSecret: os.Getenv("SETTLE_AUTH_SECRET"),
		},
		Notify: NotifyConfig{
			TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			OperatorID:    os.Getenv("OPERATOR_CHAT_ID"),
		},
		Ops: OpsConfig{
			Host:            valueOrDefault("OPS_HOST", defaultOpsHost),
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	var err error
	if cfg.Recon.PollInterval, err = parseDurationWithDefault("RECON_POLL_INTERVAL", defaultPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.Recon.PaymentExpiry, err = parseDurationWithDefault("RECON_PAYMENT_EXPIRY", defaultPaymentExpiry); err != nil {
		return Config{}, err
	}
	if cfg.Recon.ReapInterval, err = parseDurationWithDefault("RECON_REAP_INTERVAL", defaultReapInterval); err != nil {
		return Config{}, err
	}
	if cfg.Bank.RequestTimeout, err = parseDurationWithDefault("BANK_REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return Config{}, err
	}

	// the loops feed these into time.NewTicker, which rejects non-positive
	// intervals at run time
	if cfg.Recon.PollInterval <= 0 {
		return Config{}, fmt.Errorf("RECON_POLL_INTERVAL must be positive")
	}
	if cfg.Recon.ReapInterval <= 0 {
		return Config{}, fmt.Errorf("RECON_REAP_INTERVAL must be positive")
	}
	if cfg.Recon.PaymentExpiry <= 0 {
		return Config{}, fmt.Errorf("RECON_PAYMENT_EXPIRY must be positive")
	}

	port, err := parsePort("OPS_PORT", defaultOpsPort)
	if err != nil {
		return Config{}, err
	}
	cfg.Ops.Port = port

	if cfg.Bank.BaseURL == "" {
		return Config{}, fmt.Errorf("BANK_BASE_URL is required")
	}
	if cfg.Bank.Username == "" || cfg.Bank.Password == "" {
		return Config{}, fmt.Errorf("BANK_USERNAME and BANK_PASSWORD are required")
	}
	if cfg.Bank.AccountNo == "" {
		return Config{}, fmt.Errorf("BANK_ACCOUNT_NO is required")
	}
	if cfg.Settle.BaseURL == "" {
		return Config{}, fmt.Errorf("SETTLE_BASE_URL is required")
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseInt64WithDefault(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseInt(v, 10, 64); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}

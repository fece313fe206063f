package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// Transport names accepted in TRANSPORT.
const (
	TransportWebex    = "webex"
	TransportTelegram = "telegram"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL      string
	DBConnectTimeout time.Duration // Fatal if the store is not reachable within it

	Transport          string
	WebexBearer        string
	WebexAPIURL        string
	WebexRatePerSecond float64
	TelegramToken      string
	TelegramAdminID    int64 // Only this user may trigger runs from chat; 0 disables commands

	PSIRTClientID     string
	PSIRTClientSecret string
	PSIRTTokenURL     string
	PSIRTAPIURL       string

	ReportBaseURL     string
	ReportLinks       map[int]string // Lookback window (days) -> published sheet link id
	DefaultWindowDays int
	CounterName       string
	ClaimStaleAfter   time.Duration

	LogLevel     string
	Environment  string
	CronSpecPoll string
	HTTPAddr     string
	WebhookToken string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	if cfg.DatabaseURL, err = DatabaseURL(); err != nil {
		return nil, err
	}
	if cfg.DBConnectTimeout, err = durationOr("DB_CONNECT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	cfg.Transport = strings.ToLower(os.Getenv("TRANSPORT"))
	if cfg.Transport == "" {
		cfg.Transport = TransportWebex
	}
	switch cfg.Transport {
	case TransportWebex:
		cfg.WebexBearer = os.Getenv("WEBEX_BEARER")
		if cfg.WebexBearer == "" {
			return nil, fmt.Errorf("WEBEX_BEARER is not set")
		}
	case TransportTelegram:
		cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
		if cfg.TelegramToken == "" {
			return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
		}
		if v := os.Getenv("TELEGRAM_ADMIN_ID"); v != "" {
			if cfg.TelegramAdminID, err = strconv.ParseInt(v, 10, 64); err != nil {
				return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_ID: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("invalid TRANSPORT %q (use %s or %s)", cfg.Transport, TransportWebex, TransportTelegram)
	}
	cfg.WebexAPIURL = stringOr("WEBEX_API_URL", "https://webexapis.com/v1/messages")
	if cfg.WebexRatePerSecond, err = floatOr("WEBEX_RATE_PER_SECOND", 5); err != nil {
		return nil, err
	}

	cfg.PSIRTClientID = os.Getenv("PSIRT_CLIENT_ID")
	if cfg.PSIRTClientID == "" {
		return nil, fmt.Errorf("PSIRT_CLIENT_ID is not set")
	}
	cfg.PSIRTClientSecret = os.Getenv("PSIRT_CLIENT_SECRET")
	if cfg.PSIRTClientSecret == "" {
		return nil, fmt.Errorf("PSIRT_CLIENT_SECRET is not set")
	}
	cfg.PSIRTTokenURL = stringOr("PSIRT_TOKEN_URL", "https://cloudsso.cisco.com/as/token.oauth2")
	cfg.PSIRTAPIURL = stringOr("PSIRT_API_URL", "https://api.cisco.com/security/advisories/all/firstpublished")

	cfg.ReportBaseURL = stringOr("REPORT_BASE_URL", "https://docs.google.com/spreadsheets/d/e")
	cfg.ReportLinks = map[int]string{}
	for _, days := range []int{7, 14, 30} {
		key := fmt.Sprintf("GSHEET_DOC_LINK_%d", days)
		link := os.Getenv(key)
		if link == "" {
			return nil, fmt.Errorf("%s is not set", key)
		}
		cfg.ReportLinks[days] = link
	}

	if cfg.DefaultWindowDays, err = intOr("DEFAULT_REPORT_WINDOW_DAYS", 7); err != nil {
		return nil, err
	}
	if _, ok := cfg.ReportLinks[cfg.DefaultWindowDays]; !ok {
		return nil, fmt.Errorf("DEFAULT_REPORT_WINDOW_DAYS must be one of 7, 14, 30, got %d", cfg.DefaultWindowDays)
	}
	cfg.CounterName = stringOr("COUNTER_NAME", "card_counter")
	if cfg.ClaimStaleAfter, err = durationOr("CLAIM_STALE_AFTER", 10*time.Minute); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecPoll = stringOr("CRON_SPEC_POLL", "*/5 * * * *") // Default: every 5 minutes
	cfg.HTTPAddr = stringOr("HTTP_ADDR", ":8080")
	cfg.WebhookToken = os.Getenv("WEBHOOK_TOKEN")

	return cfg, nil
}

// DatabaseURL loads only the store connection string, for commands that need nothing else.
func DatabaseURL() (string, error) {
	_ = godotenv.Load()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return "", fmt.Errorf("DATABASE_URL is not set")
	}
	return url, nil
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatOr(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

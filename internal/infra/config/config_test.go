package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/psirt?sslmode=disable")
	t.Setenv("WEBEX_BEARER", "webex-token")
	t.Setenv("PSIRT_CLIENT_ID", "id")
	t.Setenv("PSIRT_CLIENT_SECRET", "secret")
	t.Setenv("GSHEET_DOC_LINK_7", "L7")
	t.Setenv("GSHEET_DOC_LINK_14", "L14")
	t.Setenv("GSHEET_DOC_LINK_30", "L30")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, TransportWebex, cfg.Transport)
	assert.Equal(t, 5*time.Second, cfg.DBConnectTimeout)
	assert.Equal(t, 7, cfg.DefaultWindowDays)
	assert.Equal(t, "card_counter", cfg.CounterName)
	assert.Equal(t, 10*time.Minute, cfg.ClaimStaleAfter)
	assert.Equal(t, map[int]string{7: "L7", 14: "L14", 30: "L30"}, cfg.ReportLinks)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "*/5 * * * *", cfg.CronSpecPoll)
	assert.Equal(t, "https://webexapis.com/v1/messages", cfg.WebexAPIURL)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()

	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoad_TelegramTransportNeedsToken(t *testing.T) {
	setRequired(t)
	t.Setenv("TRANSPORT", "Telegram")

	_, err := Load()
	assert.ErrorContains(t, err, "TELEGRAM_TOKEN")

	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportTelegram, cfg.Transport)
}

func TestLoad_RejectsUnknownTransport(t *testing.T) {
	setRequired(t)
	t.Setenv("TRANSPORT", "carrier-pigeon")

	_, err := Load()

	assert.ErrorContains(t, err, "invalid TRANSPORT")
}

func TestLoad_DefaultWindowMustHaveALink(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_REPORT_WINDOW_DAYS", "21")

	_, err := Load()

	assert.ErrorContains(t, err, "DEFAULT_REPORT_WINDOW_DAYS")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("CLAIM_STALE_AFTER", "soon")

	_, err := Load()

	assert.ErrorContains(t, err, "CLAIM_STALE_AFTER")
}

func TestLoad_TelegramAdminID(t *testing.T) {
	setRequired(t)
	t.Setenv("TRANSPORT", "telegram")
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_ADMIN_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 42, cfg.TelegramAdminID)

	t.Setenv("TELEGRAM_ADMIN_ID", "admin")
	_, err = Load()
	assert.ErrorContains(t, err, "TELEGRAM_ADMIN_ID")
}

func TestDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/psirt")
	url, err := DatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/psirt", url)

	t.Setenv("DATABASE_URL", "")
	_, err = DatabaseURL()
	assert.Error(t, err)
}

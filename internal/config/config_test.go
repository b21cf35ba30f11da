package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, k := range []string{"TELEGRAM_BOT_TOKEN", "WHATSAPP_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "NOTIFY_TIMEOUT", "WHATSAPP_STRICT_ACK"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, 10*time.Second, cfg.NotifyTimeout)
	assert.False(t, cfg.WhatsAppStrictAck)
	assert.False(t, cfg.TelegramEnabled())
	assert.False(t, cfg.WhatsAppEnabled())
	assert.Equal(t, "Asia/Jakarta", cfg.Timezone)
}

func TestLoad_FromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg")
	t.Setenv("WHATSAPP_TOKEN", "wa")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", "123")
	t.Setenv("WHATSAPP_STRICT_ACK", "true")
	t.Setenv("NOTIFY_TIMEOUT", "3s")
	t.Setenv("ADMIN_DEVICE_IDS", "desk-1, desk-2,,")
	t.Setenv("RATE_LIMIT_PER_MIN", "abc")

	cfg := Load()
	assert.True(t, cfg.TelegramEnabled())
	assert.True(t, cfg.WhatsAppEnabled())
	assert.True(t, cfg.WhatsAppStrictAck)
	assert.Equal(t, 3*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, []string{"desk-1", "desk-2"}, cfg.AdminDeviceIDs)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ABSENT_SWEEP_CRON=30 9 * * *\n"), 0o600))
	chdir(t, dir)
	t.Cleanup(func() { os.Unsetenv("ABSENT_SWEEP_CRON") })

	cfg := Load()
	assert.Equal(t, "30 9 * * *", cfg.AbsentSweepCron)
}

func TestLocation_Fallback(t *testing.T) {
	loc := App{Timezone: "Mars/Olympus"}.Location()
	_, offset := time.Date(2024, 1, 10, 8, 0, 0, 0, loc).Zone()
	assert.Equal(t, 7*60*60, offset)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

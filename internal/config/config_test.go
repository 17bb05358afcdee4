package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BANK_BASE_URL", "https://bank.example.com")
	t.Setenv("BANK_USERNAME", "acct")
	t.Setenv("BANK_PASSWORD", "secret")
	t.Setenv("BANK_ACCOUNT_NO", "0000123456789")
	t.Setenv("SETTLE_BASE_URL", "https://wallet.example.com")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Recon.PollInterval)
	assert.Equal(t, time.Hour, cfg.Recon.ReapInterval)
	assert.Equal(t, 30*time.Minute, cfg.Recon.PaymentExpiry)
	assert.Equal(t, 8090, cfg.Ops.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"poll interval", "RECON_POLL_INTERVAL"},
		{"reap interval", "RECON_REAP_INTERVAL"},
		{"payment expiry", "RECON_PAYMENT_EXPIRY"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.key, "0s")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestLoadRequiresSettleBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SETTLE_BASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SETTLE_BASE_URL")
}

func TestLoadRequiresBankCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BANK_PASSWORD", "")

	_, err := Load()
	require.Error(t, err)
}

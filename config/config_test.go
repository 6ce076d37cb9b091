package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/hyperlane-eutxo/builder"
)

const sampleConfig = `
ledger:
  path: /var/lib/relayer/ledger.db
  params:
    min_fee_a: 10
    min_fee_b: 2000
    collateral_percent: 200
retry:
  max_attempts: 8
  initial_interval: 50ms
  max_interval: 2s
  multiplier: 1.5
variant:
  mailbox: reference
  verifier: spend
wallet:
  seed: 0101010101010101010101010101010101010101010101010101010101010101
log:
  level: debug
concurrency: 2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/relayer/ledger.db", cfg.Ledger.Path)
	assert.Equal(t, uint64(2000), cfg.Ledger.Params.MinFeeB)
	assert.Equal(t, uint64(8), cfg.Retry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Retry.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxInterval)
	assert.Equal(t, 2, cfg.Concurrency)
	// Unset keys keep their defaults.
	assert.Equal(t, DefaultConfig().Deployment, cfg.Deployment)
	assert.Equal(t, DefaultConfig().Deposit, cfg.Deposit)

	opts, err := cfg.BuilderOptions()
	require.NoError(t, err)
	assert.Equal(t, builder.VariantReference, opts.Mailbox.String())
	assert.Equal(t, builder.VariantSpend, opts.Verifier.String())
	assert.Equal(t, cfg.Retry, opts.Retry)

	key, err := cfg.Wallet.Key()
	require.NoError(t, err)
	assert.Len(t, key, 64)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	for name, mutate := range map[string]func(*Config){
		"empty ledger path":   func(c *Config) { c.Ledger.Path = "" },
		"zero attempts":       func(c *Config) { c.Retry.MaxAttempts = 0 },
		"inverted intervals":  func(c *Config) { c.Retry.MaxInterval = c.Retry.InitialInterval / 2 },
		"shrinking backoff":   func(c *Config) { c.Retry.Multiplier = 0.5 },
		"unknown variant":     func(c *Config) { c.Variant.Mailbox = "borrow" },
		"short seed":          func(c *Config) { c.Wallet.Seed = "0102" },
		"bad log level":       func(c *Config) { c.Log.Level = "loud" },
		"no concurrency":      func(c *Config) { c.Concurrency = 0 },
		"non-hex wallet seed": func(c *Config) { c.Wallet.Seed = strings.Repeat("zz", 32) },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLogConfig_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn"}.Logger(&buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	_, err = LogConfig{Level: "loud"}.Logger(&buf)
	assert.Error(t, err)
}

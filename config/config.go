// Package config holds the relayer configuration.
package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/hyperlane-eutxo/builder"
	"github.com/compose-network/hyperlane-eutxo/ledger"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config aggregates configuration for the relayer.
type Config struct {
	Ledger  LedgerConfig        `yaml:"ledger"`
	Retry   builder.RetryPolicy `yaml:"retry"`
	Variant VariantConfig       `yaml:"variant"`
	Wallet  WalletConfig        `yaml:"wallet"`
	Log     LogConfig           `yaml:"log"`

	// Deployment is the path of the manifest written by devnet-init.
	Deployment  string `yaml:"deployment"`
	Deposit     uint64 `yaml:"deposit"`
	Concurrency int    `yaml:"concurrency"`
}

type LedgerConfig struct {
	Path   string        `yaml:"path"`
	Params ledger.Params `yaml:"params"`
}

// VariantConfig selects how deliveries hold the mailbox and the verifier:
// "spend" or "reference".
type VariantConfig struct {
	Mailbox  string `yaml:"mailbox"`
	Verifier string `yaml:"verifier"`
}

type WalletConfig struct {
	// Seed is the hex ed25519 seed of the operator key.
	Seed string `yaml:"seed"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func DefaultConfig() Config {
	return Config{
		Ledger: LedgerConfig{
			Path:   "ledger.db",
			Params: ledger.DefaultParams(),
		},
		Retry: builder.DefaultRetryPolicy(),
		Variant: VariantConfig{
			Mailbox:  builder.VariantSpend,
			Verifier: builder.VariantSpend,
		},
		Log:         LogConfig{Level: "info"},
		Deployment:  "deployment.yaml",
		Deposit:     builder.DefaultOptions().Deposit,
		Concurrency: 4,
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is empty: %w", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts == 0 {
		return fmt.Errorf("retry.max_attempts must be positive: %w", ErrInvalidConfig)
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		return fmt.Errorf("retry intervals %s..%s: %w", c.Retry.InitialInterval, c.Retry.MaxInterval, ErrInvalidConfig)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier %v below 1: %w", c.Retry.Multiplier, ErrInvalidConfig)
	}
	if _, err := builder.MailboxAccessFor(c.Variant.Mailbox); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}
	if _, err := builder.VerifierAccessFor(c.Variant.Verifier); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}
	if c.Wallet.Seed != "" {
		if _, err := c.Wallet.Key(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %v: %w", err, ErrInvalidConfig)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency %d: %w", c.Concurrency, ErrInvalidConfig)
	}
	return nil
}

func (w WalletConfig) Key() (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(w.Seed)
	if err != nil {
		return nil, fmt.Errorf("wallet seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("wallet seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// BuilderOptions resolves the builder settings.
func (c Config) BuilderOptions() (builder.Options, error) {
	mbx, err := builder.MailboxAccessFor(c.Variant.Mailbox)
	if err != nil {
		return builder.Options{}, err
	}
	ver, err := builder.VerifierAccessFor(c.Variant.Verifier)
	if err != nil {
		return builder.Options{}, err
	}
	return builder.Options{Mailbox: mbx, Verifier: ver, Retry: c.Retry, Deposit: c.Deposit}, nil
}

// Logger builds the root logger writing to w.
func (l LogConfig) Logger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if l.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

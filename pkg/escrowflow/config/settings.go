package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mitchellh/mapstructure"

	eferrors "github.com/randalmurphal/escrowflow/pkg/escrowflow/errors"
)

// Settings is the typed configuration of an escrowflow deployment.
type Settings struct {
	Network NetworkSettings `mapstructure:"network"`
	Escrow  EscrowSettings  `mapstructure:"escrow"`
	Store   StoreSettings   `mapstructure:"store"`
	Redis   RedisSettings   `mapstructure:"redis"`
	Server  ServerSettings  `mapstructure:"server"`
	Log     LogSettings     `mapstructure:"log"`
	Retry   RetrySettings   `mapstructure:"retry"`
}

// NetworkSettings identifies the ledger.
type NetworkSettings struct {
	// ID is 0 for test networks and 1 for mainnet.
	ID            int    `mapstructure:"id"`
	ScriptAddress string `mapstructure:"script_address"`
}

// EscrowSettings are the commercial defaults.
type EscrowSettings struct {
	ProceedAmount int64 `mapstructure:"proceed_amount"`
	// PricePolicy is "offered", "none" or "fixed".
	PricePolicy string `mapstructure:"price_policy"`
	// Price is the fixed price when PricePolicy is "fixed".
	Price int64 `mapstructure:"price"`
	// Workflows are BPMN files registered at startup.
	Workflows []string `mapstructure:"workflows"`
}

// StoreSettings select the checkpoint journal.
type StoreSettings struct {
	// Driver is "memory" or "sqlite".
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// RedisSettings configure the distributed proposer lock. An empty Addr
// selects the in-process lock.
type RedisSettings struct {
	Addr    string        `mapstructure:"addr"`
	Prefix  string        `mapstructure:"prefix"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// ServerSettings configure the HTTP API.
type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

// LogSettings configure the slog handler.
type LogSettings struct {
	Level string `mapstructure:"level"`
	// Format is "text" or "json".
	Format string `mapstructure:"format"`
}

// RetrySettings configure stale output retries. Zero fields keep the
// values of the named policy.
type RetrySettings struct {
	// Policy is "default", "aggressive" or "none".
	Policy         string        `mapstructure:"policy"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// DefaultSettings returns the settings used for keys a configuration omits.
func DefaultSettings() Settings {
	return Settings{
		Escrow: EscrowSettings{
			ProceedAmount: 2_000_000,
			PricePolicy:   "offered",
		},
		Store: StoreSettings{Driver: "memory"},
		Redis: RedisSettings{
			Prefix:  "escrowflow:",
			LockTTL: 2 * time.Minute,
		},
		Server: ServerSettings{Addr: ":8080"},
		Log:    LogSettings{Level: "info", Format: "text"},
		Retry:  RetrySettings{Policy: "default"},
	}
}

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// LoadSettings decodes c over DefaultSettings and validates the result.
// Unknown keys are rejected. String values are converted, so environment
// overrides work for numeric and duration fields.
func LoadSettings(c Config) (Settings, error) {
	s := DefaultSettings()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &s,
	})
	if err != nil {
		return Settings{}, fmt.Errorf("settings decoder: %w", err)
	}
	if err := dec.Decode(c.Raw()); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks values that decode cleanly but make no sense.
func (s Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidSettings}, args...)...))
		}
	}

	check(s.Network.ID == 0 || s.Network.ID == 1, "network.id %d is not 0 or 1", s.Network.ID)
	check(s.Escrow.ProceedAmount > 0, "escrow.proceed_amount must be positive")
	check(slices.Contains([]string{"offered", "none", "fixed"}, s.Escrow.PricePolicy),
		"escrow.price_policy %q is not offered, none or fixed", s.Escrow.PricePolicy)
	check(s.Escrow.Price >= 0, "escrow.price must not be negative")
	check(s.Store.Driver == "memory" || s.Store.Driver == "sqlite", "store.driver %q is not memory or sqlite", s.Store.Driver)
	check(s.Store.Driver != "sqlite" || s.Store.Path != "", "store.path is required for sqlite")
	check(s.Redis.LockTTL > 0, "redis.lock_ttl must be positive")
	check(s.Log.Format == "text" || s.Log.Format == "json", "log.format %q is not text or json", s.Log.Format)
	if _, err := s.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if _, err := s.Retry.RetryConfig(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LogSettings) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level: %v", ErrInvalidSettings, err)
	}
	return level, nil
}

// RetryConfig resolves the named policy and applies the overrides.
func (r RetrySettings) RetryConfig() (eferrors.RetryConfig, error) {
	var cfg eferrors.RetryConfig
	switch r.Policy {
	case "", "default":
		cfg = eferrors.DefaultRetry
	case "aggressive":
		cfg = eferrors.AggressiveRetry
	case "none":
		cfg = eferrors.NoRetry
	default:
		return eferrors.RetryConfig{}, fmt.Errorf("%w: retry.policy %q is not default, aggressive or none", ErrInvalidSettings, r.Policy)
	}
	if r.MaxAttempts < 0 {
		return eferrors.RetryConfig{}, fmt.Errorf("%w: retry.max_attempts must not be negative", ErrInvalidSettings)
	}
	if r.MaxAttempts > 0 {
		cfg.MaxAttempts = r.MaxAttempts
	}
	if r.InitialBackoff > 0 {
		cfg.InitialBackoff = r.InitialBackoff
	}
	if r.MaxBackoff > 0 {
		cfg.MaxBackoff = r.MaxBackoff
	}
	return cfg, nil
}

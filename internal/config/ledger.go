package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LedgerConfig holds runtime tunables that can change without a restart.
type LedgerConfig struct {
	AccountCacheTTL time.Duration     `mapstructure:"accountCacheTTL"`
	Relay           RelayConfig       `mapstructure:"relay"`
	AccountLabels   map[string]string `mapstructure:"accountLabels"`
}

type RelayConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batchSize"`
	LockTTL   time.Duration `mapstructure:"lockTTL"`
}

var knownAccountKinds = map[string]struct{}{
	"OPERATING":          {},
	"PROCESSOR_CLEARING": {},
	"PLATFORM_FEES":      {},
	"REFUNDS":            {},
	"PAYOUTS":            {},
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		AccountCacheTTL: 10 * time.Minute,
		Relay: RelayConfig{
			Interval:  2 * time.Second,
			BatchSize: 100,
			LockTTL:   30 * time.Second,
		},
	}
}

type LedgerConfigHolder struct {
	current atomic.Value // holds LedgerConfig
}

func NewLedgerConfigHolder() (*LedgerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ledger")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fundledger/config")
	v.AddConfigPath("/etc/fundledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FUNDLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newLedgerConfigHolder(v, true)
}

// StaticLedgerConfigHolder wraps a fixed config, for tests and embedded use.
func StaticLedgerConfigHolder(cfg LedgerConfig) *LedgerConfigHolder {
	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func newLedgerConfigHolder(v *viper.Viper, watch bool) (*LedgerConfigHolder, error) {
	defaults := DefaultLedgerConfig()
	v.SetDefault("ledger.accountCacheTTL", defaults.AccountCacheTTL)
	v.SetDefault("ledger.relay.interval", defaults.Relay.Interval)
	v.SetDefault("ledger.relay.batchSize", defaults.Relay.BatchSize)
	v.SetDefault("ledger.relay.lockTTL", defaults.Relay.LockTTL)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg, err := decodeLedgerConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &LedgerConfigHolder{}
	holder.current.Store(cfg)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			log := zap.L().Named("ledger-config")
			updated, err := decodeLedgerConfig(v)
			if err != nil {
				log.Warn("invalid ledger config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("ledger config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *LedgerConfigHolder) Get() LedgerConfig {
	return h.current.Load().(LedgerConfig)
}

// decodeLedgerConfig overlays the file on the defaults. viper hands back the file's own map for
// the "ledger" key, so keys the file omits must come from the starting value.
func decodeLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	cfg := DefaultLedgerConfig()
	if err := v.UnmarshalKey("ledger", &cfg); err != nil {
		return LedgerConfig{}, err
	}
	if err := validateLedgerConfig(cfg); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

func validateLedgerConfig(cfg LedgerConfig) error {
	if cfg.AccountCacheTTL < 0 {
		return errors.New("ledger.accountCacheTTL cannot be negative")
	}
	if cfg.Relay.Interval <= 0 {
		return errors.New("ledger.relay.interval must be positive")
	}
	if cfg.Relay.BatchSize <= 0 {
		return errors.New("ledger.relay.batchSize must be positive")
	}
	if cfg.Relay.LockTTL <= 0 {
		return errors.New("ledger.relay.lockTTL must be positive")
	}
	for kind, label := range cfg.AccountLabels {
		if _, ok := knownAccountKinds[strings.ToUpper(kind)]; !ok {
			return fmt.Errorf("ledger.accountLabels: unknown account kind %q", kind)
		}
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("ledger.accountLabels: empty label for %q", kind)
		}
	}
	return nil
}

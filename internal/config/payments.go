package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PaymentsConfig tunes the payment intent flow. Amounts are minor units.
type PaymentsConfig struct {
	MaxAmount        int64         `mapstructure:"maxAmount"`
	MinPhoneDigits   int           `mapstructure:"minPhoneDigits"`
	IntentTTL        time.Duration `mapstructure:"intentTTL"`
	PollInterval     time.Duration `mapstructure:"pollInterval"`
	CountdownTick    time.Duration `mapstructure:"countdownTick"`
	SuccessHold      time.Duration `mapstructure:"successHold"`
	SweepInterval    time.Duration `mapstructure:"sweepInterval"`
	SweepBatchSize   int           `mapstructure:"sweepBatchSize"`
	CustomerMessage  string        `mapstructure:"customerMessage"`
	ProviderTimeout  time.Duration `mapstructure:"providerTimeout"`
	DefaultProvider  string        `mapstructure:"defaultProvider"`
}

func DefaultPaymentsConfig() PaymentsConfig {
	return PaymentsConfig{
		MaxAmount:       150000,
		MinPhoneDigits:  10,
		IntentTTL:       120 * time.Second,
		PollInterval:    5 * time.Second,
		CountdownTick:   time.Second,
		SuccessHold:     2 * time.Second,
		SweepInterval:   15 * time.Second,
		SweepBatchSize:  100,
		CustomerMessage: "Check your phone and enter your PIN to complete the payment.",
		ProviderTimeout: 30 * time.Second,
		DefaultProvider: "mpesa",
	}
}

// PaymentsConfigHolder hot-reloads payment tuning from payments.yml.
type PaymentsConfigHolder struct {
	current atomic.Value // holds PaymentsConfig
}

func NewPaymentsConfigHolder() (*PaymentsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payments")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/rentledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RENTLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg := DefaultPaymentsConfig()
	if fileFound {
		if err := v.UnmarshalKey("payments", &cfg); err != nil {
			return nil, err
		}
		cfg = cfg.withDefaults()
		if err := validatePaymentsConfig(cfg); err != nil {
			return nil, err
		}
	}

	holder := &PaymentsConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := DefaultPaymentsConfig()
			if err := v.UnmarshalKey("payments", &updated); err != nil {
				log.Printf("[payments-config] reload failed: %v", err)
				return
			}
			updated = updated.withDefaults()
			if err := validatePaymentsConfig(updated); err != nil {
				log.Printf("[payments-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[payments-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *PaymentsConfigHolder) Get() PaymentsConfig {
	return h.current.Load().(PaymentsConfig)
}

func (c PaymentsConfig) withDefaults() PaymentsConfig {
	defaults := DefaultPaymentsConfig()
	if c.MaxAmount <= 0 {
		c.MaxAmount = defaults.MaxAmount
	}
	if c.MinPhoneDigits <= 0 {
		c.MinPhoneDigits = defaults.MinPhoneDigits
	}
	if c.IntentTTL <= 0 {
		c.IntentTTL = defaults.IntentTTL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = defaults.CountdownTick
	}
	if c.SuccessHold <= 0 {
		c.SuccessHold = defaults.SuccessHold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = defaults.SweepBatchSize
	}
	if strings.TrimSpace(c.CustomerMessage) == "" {
		c.CustomerMessage = defaults.CustomerMessage
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = defaults.ProviderTimeout
	}
	if strings.TrimSpace(c.DefaultProvider) == "" {
		c.DefaultProvider = defaults.DefaultProvider
	}
	return c
}

func validatePaymentsConfig(cfg PaymentsConfig) error {
	if cfg.PollInterval < cfg.CountdownTick {
		return errors.New("payments.pollInterval cannot be shorter than the countdown tick")
	}
	if cfg.IntentTTL < cfg.PollInterval {
		return errors.New("payments.intentTTL cannot be shorter than the poll interval")
	}
	return nil
}

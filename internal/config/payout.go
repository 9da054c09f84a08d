package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PayoutPolicy is the operator-tunable side of the settlement engine. Amounts
// are in minor currency units (kobo).
type PayoutPolicy struct {
	MinPayoutAmount int64 `mapstructure:"minPayoutAmount"`
	ReserveAmount   int64 `mapstructure:"reserveAmount"`
	DailyRequests   int   `mapstructure:"dailyRequests"`

	ProviderTimeoutSeconds int `mapstructure:"providerTimeoutSeconds"`

	// A processing payout older than this is eligible for reconciliation by
	// status poll instead of waiting on a webhook.
	StaleAfterMinutes        int `mapstructure:"staleAfterMinutes"`
	ReconcileIntervalMinutes int `mapstructure:"reconcileIntervalMinutes"`
}

func DefaultPayoutPolicy() PayoutPolicy {
	return PayoutPolicy{
		MinPayoutAmount:          100_00,
		ReserveAmount:            150_00,
		DailyRequests:            1,
		ProviderTimeoutSeconds:   15,
		StaleAfterMinutes:        30,
		ReconcileIntervalMinutes: 5,
	}
}

type PayoutPolicyHolder struct {
	current atomic.Value // holds PayoutPolicy
}

func NewPayoutPolicyHolder() (*PayoutPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("payout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/meridian/config")
	v.AddConfigPath("/etc/meridian")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MERIDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPayoutPolicy()
		v.SetDefault("payout.minPayoutAmount", defaults.MinPayoutAmount)
		v.SetDefault("payout.reserveAmount", defaults.ReserveAmount)
		v.SetDefault("payout.dailyRequests", defaults.DailyRequests)
		v.SetDefault("payout.providerTimeoutSeconds", defaults.ProviderTimeoutSeconds)
		v.SetDefault("payout.staleAfterMinutes", defaults.StaleAfterMinutes)
		v.SetDefault("payout.reconcileIntervalMinutes", defaults.ReconcileIntervalMinutes)
	}

	var policy PayoutPolicy
	if err := v.UnmarshalKey("payout", &policy); err != nil {
		return nil, err
	}
	if err := validatePayoutPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PayoutPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutPolicy
		if err := v.UnmarshalKey("payout", &updated); err != nil {
			log.Printf("[payout-policy] reload failed: %v", err)
			return
		}
		if err := validatePayoutPolicy(updated); err != nil {
			log.Printf("[payout-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPayoutPolicyHolder wraps a fixed policy, for tests.
func NewStaticPayoutPolicyHolder(policy PayoutPolicy) *PayoutPolicyHolder {
	holder := &PayoutPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PayoutPolicyHolder) Get() PayoutPolicy {
	return h.current.Load().(PayoutPolicy)
}

func validatePayoutPolicy(policy PayoutPolicy) error {
	if policy.MinPayoutAmount <= 0 {
		return errors.New("payout.minPayoutAmount must be positive")
	}
	if policy.ReserveAmount < 0 {
		return errors.New("payout.reserveAmount cannot be negative")
	}
	if policy.DailyRequests <= 0 {
		return errors.New("payout.dailyRequests must be positive")
	}
	if policy.ProviderTimeoutSeconds <= 0 {
		return errors.New("payout.providerTimeoutSeconds must be positive")
	}
	if policy.StaleAfterMinutes <= 0 {
		return errors.New("payout.staleAfterMinutes must be positive")
	}
	return nil
}

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

// EngineConfig holds operational knobs for the rule engine that operators
// tune without redeploying: cache windows, audit retry behavior and request
// rate limits. Loaded from engine.yml and hot-reloaded on change.
type EngineConfig struct {
	SnapshotCacheTTL      time.Duration `mapstructure:"snapshotCacheTTL"`
	AuditRetryInterval    time.Duration `mapstructure:"auditRetryInterval"`
	AuditRetryMaxInterval time.Duration `mapstructure:"auditRetryMaxInterval"`
	AuditRetryQueueSize   int           `mapstructure:"auditRetryQueueSize"`
	ReconcileInterval     time.Duration `mapstructure:"reconcileInterval"`
	EvaluateRatePerSecond int           `mapstructure:"evaluateRatePerSecond"`
	EvaluateBurst         int           `mapstructure:"evaluateBurst"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SnapshotCacheTTL:      30 * time.Second,
		AuditRetryInterval:    2 * time.Second,
		AuditRetryMaxInterval: 2 * time.Minute,
		AuditRetryQueueSize:   1024,
		ReconcileInterval:     5 * time.Minute,
		EvaluateRatePerSecond: 50,
		EvaluateBurst:         100,
	}
}

// EngineConfigHolder exposes the current engine config with lock-free reads.
type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tariff/config") // Volume-mounted config
	v.AddConfigPath("/etc/tariff")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("TARIFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("engine.snapshotCacheTTL", defaults.SnapshotCacheTTL)
		v.SetDefault("engine.auditRetryInterval", defaults.AuditRetryInterval)
		v.SetDefault("engine.auditRetryMaxInterval", defaults.AuditRetryMaxInterval)
		v.SetDefault("engine.auditRetryQueueSize", defaults.AuditRetryQueueSize)
		v.SetDefault("engine.reconcileInterval", defaults.ReconcileInterval)
		v.SetDefault("engine.evaluateRatePerSecond", defaults.EvaluateRatePerSecond)
		v.SetDefault("engine.evaluateBurst", defaults.EvaluateBurst)
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	applyEngineDefaults(&cfg)
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EngineConfig
		if err := v.UnmarshalKey("engine", &updated); err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		applyEngineDefaults(&updated)
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticEngineConfigHolder wraps a fixed config, bypassing the file
// watcher. Used by tests and one-shot tooling.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	applyEngineDefaults(&cfg)
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *EngineConfigHolder) Get() EngineConfig {
	return h.current.Load().(EngineConfig)
}

func applyEngineDefaults(cfg *EngineConfig) {
	defaults := DefaultEngineConfig()
	if cfg.SnapshotCacheTTL <= 0 {
		cfg.SnapshotCacheTTL = defaults.SnapshotCacheTTL
	}
	if cfg.AuditRetryInterval <= 0 {
		cfg.AuditRetryInterval = defaults.AuditRetryInterval
	}
	if cfg.AuditRetryMaxInterval <= 0 {
		cfg.AuditRetryMaxInterval = defaults.AuditRetryMaxInterval
	}
	if cfg.AuditRetryQueueSize <= 0 {
		cfg.AuditRetryQueueSize = defaults.AuditRetryQueueSize
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaults.ReconcileInterval
	}
	if cfg.EvaluateRatePerSecond <= 0 {
		cfg.EvaluateRatePerSecond = defaults.EvaluateRatePerSecond
	}
	if cfg.EvaluateBurst <= 0 {
		cfg.EvaluateBurst = defaults.EvaluateBurst
	}
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.AuditRetryMaxInterval < cfg.AuditRetryInterval {
		return errors.New("engine.auditRetryMaxInterval cannot be below auditRetryInterval")
	}
	return nil
}

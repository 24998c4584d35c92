package service

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"backtestsim/internal/model"
)

// OrderConstraintsConfig is the YAML-facing shape of model.OrderConstraints
// — both precisions are expressed as decimal digits, the common case;
// significant-digit or step-multiple quantization is set up in code for
// markets that need it.
type OrderConstraintsConfig struct {
	PricePrecisionDigits    int `mapstructure:"pricePrecisionDigits"`
	QuantityPrecisionDigits int `mapstructure:"quantityPrecisionDigits"`
}

// ToModel converts the YAML shape to model.OrderConstraints.
func (c OrderConstraintsConfig) ToModel() model.OrderConstraints {
	return model.OrderConstraints{
		PricePrecision:    model.Precision{Mode: model.DigitsAfterSeparator, Digits: c.PricePrecisionDigits},
		QuantityPrecision: model.Precision{Mode: model.DigitsAfterSeparator, Digits: c.QuantityPrecisionDigits},
	}
}

// MarketConfig carries spec.md §6's per-market fields: the market
// identity, starting capital, and the marketplace's fee/volume/precision
// parameters, keyed by name in Config.Markets the way a multi-instance
// config keys per-instance settings.
type MarketConfig struct {
	ExchangeID       string                 `mapstructure:"exchangeId"`
	Base             string                 `mapstructure:"base"`
	Quote            string                 `mapstructure:"quote"`
	TotalValue       float64                `mapstructure:"totalValue"`
	FeeLevel         float64                `mapstructure:"feeLevel"`
	VolumeReduction  float64                `mapstructure:"volumeReduction"`
	OrderConstraints OrderConstraintsConfig `mapstructure:"orderConstraints"`
}

// Market builds the model.Market identity this config describes.
func (mc MarketConfig) Market() model.Market {
	return model.Market{ExchangeID: mc.ExchangeID, Base: mc.Base, Quote: mc.Quote}
}

// Config is the top-level backtest configuration (spec.md §6).
type Config struct {
	SimulationStart string                  `mapstructure:"simulationStart"`
	SimulationEnd   string                  `mapstructure:"simulationEnd"`
	LoaderTimeout   time.Duration           `mapstructure:"loaderTimeout"`
	CacheDirectory  string                  `mapstructure:"cacheDirectory"`
	Markets         map[string]MarketConfig `mapstructure:"markets"`
}

// Start parses SimulationStart as RFC3339.
func (c Config) Start() (time.Time, error) {
	return time.Parse(time.RFC3339, c.SimulationStart)
}

// End parses SimulationEnd as RFC3339.
func (c Config) End() (time.Time, error) {
	return time.Parse(time.RFC3339, c.SimulationEnd)
}

// GlobalConfig stores the most recently loaded configuration, updated in
// place by the fsnotify-driven reload registered in LoadConfig.
var GlobalConfig Config

// LoadConfig reads config.yaml from configPath, decodes it into
// GlobalConfig, and arms viper.WatchConfig so a long-running batch of
// backtests can pick up parameter sweeps without a restart. Failures are
// returned rather than fatal — only cmd/backtest/main.go may terminate
// the process.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("service: reading config from %s: %w", configPath, err)
	}
	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return nil, fmt.Errorf("service: decoding config: %w", err)
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		sugar := Logger.Sugar()
		if err := viper.Unmarshal(&GlobalConfig); err != nil {
			sugar.Errorw("config reload failed", "file", e.Name, "error", err)
			return
		}
		sugar.Infow("config reloaded", "file", e.Name)
	})
	viper.WatchConfig()

	return &GlobalConfig, nil
}

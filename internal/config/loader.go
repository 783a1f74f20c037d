package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from multiple sources in priority order:
// 1. Default values
// 2. Configuration file (paymentsd.toml)
// 3. Environment variables (PAYMENTSD_ prefix)
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if err := loadMainConfig(v, configPath); err != nil {
			return nil, fmt.Errorf("failed to load main config: %w", err)
		}
	}

	v.SetEnvPrefix("PAYMENTSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.configPath = configPath

	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// LoadDefaultConfig loads configuration from the default location when
// it exists, otherwise from defaults and environment alone.
func LoadDefaultConfig() (*Config, error) {
	path := "paymentsd.toml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = ""
	}
	return LoadConfig(path)
}

// loadMainConfig loads the main configuration file.
func loadMainConfig(v *viper.Viper, configPath string) error {
	v.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", configPath)
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return nil
}

// SaveExampleConfig writes a commented starting-point configuration.
func SaveExampleConfig(configPath string) error {
	v := viper.New()
	for key, value := range generateExampleConfig() {
		v.Set(key, value)
	}
	v.SetConfigFile(configPath)
	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}
	return nil
}

func generateExampleConfig() map[string]interface{} {
	return map[string]interface{}{
		"server.rpc_listen":       "127.0.0.1:8264",
		"server.ws_listen":        "127.0.0.1:8265",
		"server.send_queue_limit": 500,

		"database.backend": "pebble",
		"database.path":    "/var/lib/paymentsd/db",

		"event_db.path": "/var/lib/paymentsd/events.db",

		"engine.network_fee_numerator":   1,
		"engine.network_fee_denominator": 100,
		"engine.commission_max_bps":      10000,
		"engine.auction_initial_price":   "1000000000000000000",

		"debug_logfile": "/var/log/paymentsd/debug.log",
	}
}

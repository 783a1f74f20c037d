package config

import (
	"fmt"
	"math/big"
	"time"

	"github.com/railpay/paymentsd/internal/core/decay"
	"github.com/railpay/paymentsd/internal/core/engine"
)

// Config represents the complete paymentsd configuration.
type Config struct {
	// Server section: listen addresses for the JSON-RPC and WebSocket
	// surfaces.
	Server ServerConfig `toml:"server" mapstructure:"server"`

	// Database section: the key-value store holding engine snapshots.
	Database DatabaseConfig `toml:"database" mapstructure:"database"`

	// EventDB section: the SQLite event log.
	EventDB EventDBConfig `toml:"event_db" mapstructure:"event_db"`

	// Engine section: protocol parameters.
	Engine EngineConfig `toml:"engine" mapstructure:"engine"`

	// DebugLogfile redirects log output when set.
	DebugLogfile string `toml:"debug_logfile" mapstructure:"debug_logfile"`

	configPath string `toml:"-" mapstructure:"-"`
}

type ServerConfig struct {
	RPCListen string `toml:"rpc_listen" mapstructure:"rpc_listen"`
	WSListen  string `toml:"ws_listen" mapstructure:"ws_listen"`

	// SendQueueLimit bounds the per-subscriber outbound event queue;
	// subscribers that fall further behind are dropped.
	SendQueueLimit int `toml:"send_queue_limit" mapstructure:"send_queue_limit"`

	// PageCacheSize is the number of enumeration pages kept in the RPC
	// layer's LRU cache.
	PageCacheSize int `toml:"page_cache_size" mapstructure:"page_cache_size"`
}

type DatabaseConfig struct {
	// Backend selects the kv store implementation: "pebble" or "leveldb".
	Backend string `toml:"backend" mapstructure:"backend"`
	Path    string `toml:"path" mapstructure:"path"`

	// CompressionThreshold is the snapshot size in bytes above which
	// records are lz4-compressed before the write. Zero disables.
	CompressionThreshold int `toml:"compression_threshold" mapstructure:"compression_threshold"`
}

type EventDBConfig struct {
	// Path to the SQLite file; ":memory:" keeps the log ephemeral.
	Path string `toml:"path" mapstructure:"path"`
}

// EngineConfig mirrors engine.Config with file-friendly field types;
// prices are decimal strings because they exceed int64.
type EngineConfig struct {
	NetworkFeeNumerator   uint64 `toml:"network_fee_numerator" mapstructure:"network_fee_numerator"`
	NetworkFeeDenominator uint64 `toml:"network_fee_denominator" mapstructure:"network_fee_denominator"`
	CommissionMaxBps      uint64 `toml:"commission_max_bps" mapstructure:"commission_max_bps"`
	MaxQueuedRateChanges  int    `toml:"max_queued_rate_changes" mapstructure:"max_queued_rate_changes"`

	AuctionResetFactor    uint64 `toml:"auction_reset_factor" mapstructure:"auction_reset_factor"`
	AuctionInitialPrice   string `toml:"auction_initial_price" mapstructure:"auction_initial_price"`
	AuctionFloorPrice     string `toml:"auction_floor_price" mapstructure:"auction_floor_price"`
	AuctionCeilingPrice   string `toml:"auction_ceiling_price" mapstructure:"auction_ceiling_price"`
	AuctionHalvingHours   uint64 `toml:"auction_halving_hours" mapstructure:"auction_halving_hours"`
	AuctionDecayIntervals uint64 `toml:"auction_decay_intervals" mapstructure:"auction_decay_intervals"`
}

// GetConfigPath returns the path the configuration was loaded from, or
// empty when running on defaults.
func (c *Config) GetConfigPath() string {
	return c.configPath
}

// ToEngineConfig converts the file representation into the engine's
// runtime parameters.
func (c *EngineConfig) ToEngineConfig() (engine.Config, error) {
	initial, err := parsePrice("auction_initial_price", c.AuctionInitialPrice)
	if err != nil {
		return engine.Config{}, err
	}
	floor, err := parsePrice("auction_floor_price", c.AuctionFloorPrice)
	if err != nil {
		return engine.Config{}, err
	}
	ceiling, err := parsePrice("auction_ceiling_price", c.AuctionCeilingPrice)
	if err != nil {
		return engine.Config{}, err
	}

	return engine.Config{
		NetworkFeeNumerator:   c.NetworkFeeNumerator,
		NetworkFeeDenominator: c.NetworkFeeDenominator,
		CommissionMaxBps:      c.CommissionMaxBps,
		MaxQueuedRateChanges:  c.MaxQueuedRateChanges,
		AuctionCurve: decay.Curve{
			HalvingInterval: time.Duration(c.AuctionHalvingHours) * time.Hour,
			MaxIntervals:    c.AuctionDecayIntervals,
		},
		AuctionResetFactor:  c.AuctionResetFactor,
		AuctionInitialPrice: initial,
		AuctionFloorPrice:   floor,
		AuctionCeilingPrice: ceiling,
	}, nil
}

func parsePrice(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid non-negative integer %q", field, s)
	}
	return v, nil
}

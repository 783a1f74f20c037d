package config

import (
	"fmt"
	"net"
)

// ValidateConfig performs validation on the complete configuration.
func ValidateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := validateDatabaseConfig(&config.Database); err != nil {
		return fmt.Errorf("database config validation failed: %w", err)
	}
	if err := validateEngineConfig(&config.Engine); err != nil {
		return fmt.Errorf("engine config validation failed: %w", err)
	}
	if config.EventDB.Path == "" {
		return fmt.Errorf("event_db validation failed: path cannot be empty")
	}
	return nil
}

func validateServerConfig(server *ServerConfig) error {
	for _, addr := range []string{server.RPCListen, server.WSListen} {
		if addr == "" {
			return fmt.Errorf("listen address cannot be empty")
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", addr, err)
		}
	}
	if server.RPCListen == server.WSListen {
		return fmt.Errorf("rpc_listen and ws_listen must differ")
	}
	if server.SendQueueLimit <= 0 {
		return fmt.Errorf("send_queue_limit must be positive")
	}
	if server.PageCacheSize <= 0 {
		return fmt.Errorf("page_cache_size must be positive")
	}
	return nil
}

func validateDatabaseConfig(db *DatabaseConfig) error {
	switch db.Backend {
	case "pebble", "leveldb":
	default:
		return fmt.Errorf("unknown backend %q (supported: pebble, leveldb)", db.Backend)
	}
	if db.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if db.CompressionThreshold < 0 {
		return fmt.Errorf("compression_threshold cannot be negative")
	}
	return nil
}

func validateEngineConfig(eng *EngineConfig) error {
	if eng.NetworkFeeDenominator == 0 {
		return fmt.Errorf("network_fee_denominator cannot be zero")
	}
	if eng.NetworkFeeNumerator > eng.NetworkFeeDenominator {
		return fmt.Errorf("network fee cannot exceed 100%%")
	}
	if eng.CommissionMaxBps > 10_000 {
		return fmt.Errorf("commission_max_bps cannot exceed 10000")
	}
	if eng.MaxQueuedRateChanges <= 0 {
		return fmt.Errorf("max_queued_rate_changes must be positive")
	}
	if eng.AuctionResetFactor < 2 {
		return fmt.Errorf("auction_reset_factor must be at least 2")
	}
	if eng.AuctionHalvingHours == 0 {
		return fmt.Errorf("auction_halving_hours cannot be zero")
	}
	if eng.AuctionDecayIntervals == 0 {
		return fmt.Errorf("auction_decay_intervals cannot be zero")
	}

	// Price strings must parse; ToEngineConfig reports the field.
	if _, err := eng.ToEngineConfig(); err != nil {
		return err
	}
	return nil
}

package config

import "github.com/spf13/viper"

// setDefaults sets all default values, matching the contract's
// production parameters.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.rpc_listen", "127.0.0.1:8264")
	v.SetDefault("server.ws_listen", "127.0.0.1:8265")
	v.SetDefault("server.send_queue_limit", 500)
	v.SetDefault("server.page_cache_size", 128)

	// Database defaults
	v.SetDefault("database.backend", "pebble")
	v.SetDefault("database.path", "/var/lib/paymentsd/db")
	v.SetDefault("database.compression_threshold", 4096)

	// Event log defaults
	v.SetDefault("event_db.path", "/var/lib/paymentsd/events.db")

	// Engine defaults: 1% network fee, unconstrained commission cap,
	// 3.5-day halving auction resetting at 4x.
	v.SetDefault("engine.network_fee_numerator", 1)
	v.SetDefault("engine.network_fee_denominator", 100)
	v.SetDefault("engine.commission_max_bps", 10000)
	v.SetDefault("engine.max_queued_rate_changes", 1024)
	v.SetDefault("engine.auction_reset_factor", 4)
	v.SetDefault("engine.auction_initial_price", "1000000000000000000")   // 1e18
	v.SetDefault("engine.auction_floor_price", "0")
	v.SetDefault("engine.auction_ceiling_price", "100000000000000000000000000") // 1e26
	v.SetDefault("engine.auction_halving_hours", 84)
	v.SetDefault("engine.auction_decay_intervals", 64)

	v.SetDefault("debug_logfile", "")
}

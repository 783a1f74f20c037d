package cli

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railpay/paymentsd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			RPCListen:      "127.0.0.1:0",
			WSListen:       "127.0.0.1:0",
			SendQueueLimit: 16,
			PageCacheSize:  16,
		},
		Database: config.DatabaseConfig{
			Backend:              "pebble",
			Path:                 t.TempDir(),
			CompressionThreshold: 4096,
		},
		EventDB: config.EventDBConfig{Path: ":memory:"},
		Engine: config.EngineConfig{
			NetworkFeeNumerator:   1,
			NetworkFeeDenominator: 100,
			CommissionMaxBps:      10000,
			MaxQueuedRateChanges:  16,
			AuctionResetFactor:    4,
			AuctionInitialPrice:   "1000000",
			AuctionCeilingPrice:   "100000000",
			AuctionHalvingHours:   84,
			AuctionDecayIntervals: 64,
		},
	}
}

func TestBuildDaemonServesRPC(t *testing.T) {
	cfg := testConfig(t)

	d, err := buildDaemon(context.Background(), cfg)
	require.NoError(t, err)
	defer d.closeStores()

	result, rpcErr := d.handler.Handle("server_info", nil)
	require.Nil(t, rpcErr)
	require.NotNil(t, result)
}

func TestBuildDaemonRestoresSnapshot(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	d, err := buildDaemon(ctx, cfg)
	require.NoError(t, err)

	d.engine.Custody().Mint("tok-usd", "addr:alice", big.NewInt(10_000))
	_, err = d.engine.Deposit("addr:alice", "tok-usd", "addr:alice", big.NewInt(500))
	require.NoError(t, err)
	d.engine.AdvanceEpochs(3)

	require.NoError(t, d.state.Save(ctx, d.engine.Snapshot()))
	d.closeStores()

	// A rebuild over the same database resumes from the saved state.
	d2, err := buildDaemon(ctx, cfg)
	require.NoError(t, err)
	defer d2.closeStores()

	assert.Equal(t, uint64(3), d2.engine.CurrentEpoch())
	info := d2.engine.GetAccountInfo("tok-usd", "addr:alice")
	assert.Equal(t, "500", info.Funds.String())
}

func TestBuildDaemonRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Backend = "bolt"

	_, err := buildDaemon(context.Background(), cfg)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	prev := configFile
	configFile = "/nonexistent/paymentsd.toml"
	defer func() { configFile = prev }()

	_, err := loadConfig()
	require.Error(t, err)
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/railpay/paymentsd/internal/config"
)

var (
	// Global flags
	configFile string
	debug      bool
	verbose    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paymentsd",
	Short: "paymentsd - payment rail settlement daemon",
	Long: `paymentsd runs a payment rail accounting and settlement engine:
continuous per-epoch payment rails with lockup accounting, operator
approvals, validator arbitration, network fee skimming and a burn
auction that converts accumulated fees into the native token.

It exposes a JSON-RPC API over HTTP and a WebSocket event stream.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output to console after startup")
}

// loadConfig resolves the configuration honoring the --conf flag.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadConfig(configFile)
	}
	return config.LoadDefaultConfig()
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/railpay/paymentsd/internal/config"
)

var exampleConfigCmd = &cobra.Command{
	Use:   "example-config <path>",
	Short: "Write a starting-point configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveExampleConfig(args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote example configuration to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exampleConfigCmd)
}

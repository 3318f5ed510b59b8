package main

import (
	"fmt"
	"os"

	"github.com/KyberNetwork/logger"
	"github.com/spf13/cobra"

	"github.com/crosschain-ops/keymaster/config"
)

var (
	flagConfigPath string
	flagDebug      bool

	topology *config.Topology
)

var rootCmd = &cobra.Command{
	Use:   "keymaster",
	Short: "Wallet top-up and balance monitoring across chains",
	Long: `keymaster keeps a fleet of agent wallets funded across every chain of a
cross-chain deployment. It evaluates each wallet against per-chain balance
watermarks, tops up from the chain's bank account, and exports wallet and
chain health as Prometheus gauges.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if flagDebug {
			level = "debug"
		}
		if _, err := logger.InitLogger(logger.Configuration{
			EnableConsole:    true,
			EnableJSONFormat: false,
			ConsoleLevel:     level,
		}, logger.LoggerBackendZap); err != nil {
			return fmt.Errorf("couldn't init logger: %w", err)
		}

		topo, err := config.Load(flagConfigPath)
		if err != nil {
			return fmt.Errorf("couldn't load config from %s: %w", flagConfigPath, err)
		}
		topology = topo

		if flagDebug {
			logger.Debugf("Loaded topology:\n%s", topo.Redacted())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config-path", "config.json", "path to the topology config file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging and dump the redacted config")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(topUpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

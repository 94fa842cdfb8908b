// Command torrentrpc runs the command engine behind XML-RPC, JSON-RPC and
// gRPC, or evaluates command strings locally.
package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/funvibe/torrentrpc/internal/config"
)

var log = logging.Logger("torrentrpc")

var rootCmd = &cobra.Command{
	Use:           "torrentrpc",
	Short:         "Command engine and RPC bridge of a BitTorrent client",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

var (
	configPath string
	logLevel   string
	debug      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(callCmd)
}

// setupLogging applies --debug, then --log-level, then the config file.
func setupLogging() error {
	if debug {
		logging.SetAllLoggers(logging.LevelDebug)
		return nil
	}
	level := logLevel
	if level == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		level = cfg.Log.Level
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	logging.SetAllLoggers(lvl)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

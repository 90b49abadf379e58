package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidnet/config"
	"liquidnet/logging"
	"liquidnet/registry"
)

var (
	configPath string
	rootCmd    *cobra.Command
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd = &cobra.Command{
		Use:   "liquidnet",
		Short: "liquidnet packet server and tools",
		Long: `Run the liquidnet online-features server, call it from the command line
and inspect its packet journal.

Examples:
  liquidnet config init server server.toml
  liquidnet serve --config server.toml
  liquidnet call invite Steve --addr 127.0.0.1:7450
  liquidnet journal dump --path ./journal --since 1h`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(configCmd)
}

// openRegistry connects to the registry a config names.
func openRegistry(cfg config.Registry, logger *zap.Logger) (registry.Registry, error) {
	switch cfg.Kind {
	case config.RegistryEtcd:
		return registry.NewEtcdRegistry(registry.EtcdConfig{
			Endpoints:   cfg.Endpoints,
			Namespace:   cfg.Namespace,
			DialTimeout: cfg.DialTimeout,
			Logger:      logger,
		})
	default:
		return registry.NewMemoryRegistry(), nil
	}
}

func newLogger(cfg logging.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// flagBindings maps command flags onto configuration keys so a flag given on
// the command line overrides the config file and the environment.
var flagBindings = map[string]string{
	"target":     "agent.target_url",
	"mode":       "agent.mode",
	"duration":   "agent.duration",
	"instances":  "agent.instances",
	"headless":   "browser.headless",
	"memory":     "memory.path",
	"report-dir": "report.dir",
	"oracle":     "oracle.provider",
	"model":      "oracle.model",
	"store":      "store.enabled",
}

// NewRootCommand builds a fresh command tree. Every invocation gets its own
// viper instance so nothing leaks between runs.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultFactoryProvider, defaultIssueStoreProvider)
}

func newRootCommand(factories factoryProvider, issueStores issueStoreProvider) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "explorer",
		Short:         "Explorer is an autonomous exploration and QA agent for web applications.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "explorer"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting explorer", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./explorer.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd(factories))
	rootCmd.AddCommand(newMemoryCmd())
	rootCmd.AddCommand(newReportCmd(issueStores))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
	}
	return err
}

// initializeConfig layers the config file, EXPLORER_* environment variables
// and command-line flags onto v.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("explorer")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("EXPLORER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}

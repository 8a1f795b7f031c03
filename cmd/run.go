// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/explorer-cli/internal/agent"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/observability"
	"github.com/xkilldash9x/explorer-cli/internal/service"
)

// factoryProvider creates the orchestrator factory for a run. Tests swap it
// for one that needs no browser.
type factoryProvider func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.OrchestratorFactory, error)

func defaultFactoryProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.OrchestratorFactory, error) {
	return service.NewFactory(ctx, cfg, logger, service.WithToolVersion(Version))
}

func newRunCmd(provider factoryProvider) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Explore the target application and report anything broken",
		Long: `Starts one or more agents against the configured target. Each agent drives its
own browser, explores the application guided by the decision oracle and writes
an issue report when the session ends. Ctrl+C stops every agent gracefully; the
reports are always written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			results, err := runAgents(ctx, cfg, logger, provider)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}

	runCmd.Flags().StringP("target", "t", "", "URL of the application to explore")
	runCmd.Flags().StringP("mode", "m", string(config.ModeExploration), "Running mode: exploration or anomaly-hunt")
	runCmd.Flags().DurationP("duration", "d", 30*time.Minute, "How long each agent runs")
	runCmd.Flags().IntP("instances", "n", 1, "Number of agents to run side by side")
	runCmd.Flags().Bool("headless", true, "Run the browser without a window")
	runCmd.Flags().String("memory", "", "Path of the shared navigation memory file")
	runCmd.Flags().String("report-dir", "", "Directory that receives the session reports")
	runCmd.Flags().String("oracle", "", "Oracle provider: ollama, gemini or none")
	runCmd.Flags().String("model", "", "Model used by the oracle provider")
	runCmd.Flags().Bool("store", false, "Also persist issues to PostgreSQL (needs EXPLORER_STORE_DSN)")
	return runCmd
}

// runAgents starts cfg.Agent.Instances orchestrators and waits for all of
// them. Results are returned in instance order; a nil entry means that
// instance could not be built.
func runAgents(ctx context.Context, cfg *config.Config, logger *zap.Logger, provider factoryProvider) ([]*agent.Result, error) {
	factory, err := provider(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	defer factory.Shutdown()

	n := cfg.Agent.Instances
	if n <= 0 {
		n = 1
	}
	logger.Info("Starting exploration.",
		zap.String("target", cfg.Agent.TargetURL),
		zap.String("mode", string(cfg.Agent.Mode)),
		zap.Int("instances", n),
		zap.Duration("duration", cfg.Agent.Duration))

	results := make([]*agent.Result, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		orch, err := factory.NewOrchestrator(ctx, i)
		if err != nil {
			logger.Error("Failed to start agent instance.", zap.Int("instance", i), zap.Error(err))
			g.Go(func() error { return fmt.Errorf("instance %d: %w", i, err) })
			continue
		}
		g.Go(func() error {
			res, err := orch.Run(ctx)
			results[i] = res
			if err != nil {
				return fmt.Errorf("instance %d: %w", i, err)
			}
			return nil
		})
	}
	err = g.Wait()
	return results, err
}

func printResults(w io.Writer, results []*agent.Result) {
	for i, res := range results {
		if res == nil {
			fmt.Fprintf(w, "instance %d: not started\n", i)
			continue
		}
		fmt.Fprintf(w, "instance %d: %s after %s, %d actions, %d issues, %d pages\n",
			i, res.Reason, res.Duration.Round(time.Second), res.Actions, res.Issues, res.PagesSeen)
		if res.ReportPath != "" {
			fmt.Fprintf(w, "  report: %s\n", res.ReportPath)
		}
	}
}

// File: cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/config"
	"github.com/xkilldash9x/explorer-cli/internal/observability"
	"github.com/xkilldash9x/explorer-cli/internal/reporting"
	"github.com/xkilldash9x/explorer-cli/internal/service"
)

// issueLister reads stored issues back. *store.Store satisfies it.
type issueLister interface {
	IssuesBySession(ctx context.Context, sessionID string) ([]schemas.Issue, error)
}

// issueStoreProvider opens the issue store for the report command. Tests
// inject a fake instead of a live database.
type issueStoreProvider func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (issueLister, func(), error)

func defaultIssueStoreProvider(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (issueLister, func(), error) {
	cfg.Enabled = true
	s, cleanup, err := service.InitializeStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, cleanup, nil
}

func newReportCmd(provider issueStoreProvider) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Read session reports and stored issues",
	}

	var follow bool
	tailCmd := &cobra.Command{
		Use:   "tail [session-dir]",
		Short: "Print a session's live issue log, optionally following it",
		Long: `Prints issues-live.md of the given session directory, or of the most recent
session under the report directory when none is given. With --follow the
command keeps printing issues as a running agent appends them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			} else if dir, err = latestSessionDir(cfg.Report.Dir); err != nil {
				return err
			}
			return tailLiveReport(cmd.Context(), cmd.OutOrStdout(), filepath.Join(dir, reporting.LiveFileName), follow)
		},
	}
	tailCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new issues until interrupted")

	var sessionID, format string
	issuesCmd := &cobra.Command{
		Use:   "issues",
		Short: "List the issues a session stored in PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			lister, cleanup, err := provider(ctx, cfg.Store, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if cleanup != nil {
				defer cleanup()
			}
			return listIssues(ctx, cmd.OutOrStdout(), lister, sessionID, format)
		},
	}
	issuesCmd.Flags().StringVar(&sessionID, "session", "", "Session id printed by the run command (required)")
	_ = issuesCmd.MarkFlagRequired("session")
	issuesCmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table or json")

	reportCmd.AddCommand(tailCmd, issuesCmd)
	return reportCmd
}

// latestSessionDir returns the most recent session directory under root.
// Session directories start with a sortable timestamp.
func latestSessionDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("failed to read report directory %s: %w", root, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) == 0 {
		return "", fmt.Errorf("no sessions found in %s", root)
	}
	sort.Strings(dirs)
	return filepath.Join(root, dirs[len(dirs)-1]), nil
}

// tailLiveReport copies the live report to w. When follow is set it waits for
// new lines until ctx is cancelled.
func tailLiveReport(ctx context.Context, w io.Writer, path string, follow bool) error {
	if !follow {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("live report not available: %w", err)
		}
	}
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: !follow,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				// Lines closes at EOF when not following.
				return nil
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}

func listIssues(ctx context.Context, w io.Writer, lister issueLister, sessionID, format string) error {
	if sessionID == "" {
		return errors.New("--session is required")
	}
	issues, err := lister.IssuesBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load issues for session %s: %w", sessionID, err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	case "table", "":
		if len(issues) == 0 {
			fmt.Fprintf(w, "no issues stored for session %s\n", sessionID)
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ISSUE\tSEVERITY\tTYPE\tTITLE\tURL")
		for _, is := range issues {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", is.Key(), is.Severity, is.Type, is.Title, is.URL)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q (supported: table, json)", format)
	}
}

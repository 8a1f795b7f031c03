// File: cmd/memory.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/observability"
)

func newMemoryCmd() *cobra.Command {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or reset the shared navigation memory",
	}

	var top int
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the agents have learned so far",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			mem := memory.New(cfg.Memory.Path, observability.GetLogger())
			printMemoryStats(cmd.OutOrStdout(), cfg.Memory.Path, mem, top)
			return nil
		},
	}
	statsCmd.Flags().IntVar(&top, "top", 10, "Number of most clicked elements to list")

	var yes bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every recorded interaction and page visit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to clear %s without --yes", cfg.Memory.Path)
			}
			mem := memory.New(cfg.Memory.Path, observability.GetLogger())
			if err := mem.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "navigation memory cleared: %s\n", cfg.Memory.Path)
			return nil
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")

	memoryCmd.AddCommand(statsCmd, clearCmd)
	return memoryCmd
}

func printMemoryStats(w io.Writer, path string, mem *memory.Store, top int) {
	st := mem.Stats()
	fmt.Fprintf(w, "memory file:  %s\n", path)
	if !st.SavedAt.IsZero() {
		fmt.Fprintf(w, "last saved:   %s\n", st.SavedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "elements:     %d\n", st.Elements)
	fmt.Fprintf(w, "pages:        %d\n", st.Pages)
	fmt.Fprintf(w, "clicks:       %d\n", st.TotalClicks)
	fmt.Fprintf(w, "page visits:  %d\n", st.PageVisits)

	most := mem.MostClicked(top)
	if len(most) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLICKS\tNOVELTY\tPAGE\tSELECTOR\tTEXT")
	for _, el := range most {
		fmt.Fprintf(tw, "%d\t%.1f\t%s\t%s\t%s\n", el.ClickCount, memory.NoveltyForCount(el.ClickCount), el.PagePath, el.Selector, el.Text)
	}
	tw.Flush()
}

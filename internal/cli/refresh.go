package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the index from disk and rebuild the lexical index",
	Long: `Reload vectors and metadata from the index directory, truncating any
partially written tail, and rebuild the BM25 index over the result.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, e *engine) error {
		if err := e.coordinator.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Index refreshed: %d records\n", e.coordinator.Stats().Records)
		return nil
	})
}

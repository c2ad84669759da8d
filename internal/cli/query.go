package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hybridrag/internal/domain"
)

var (
	queryRoles string
	queryTopK  int
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Search the index",
	Long: `Search with BM25 and vector similarity fused by reciprocal rank fusion.
Only chunks visible to --roles are returned; no roles means "all".

Examples:
  hybridrag query "refund policy" --roles sales
  hybridrag query "vpn setup" -k 10 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVar(&queryRoles, "roles", "", "comma separated caller roles (default all)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	roles := domain.ParseRoles(queryRoles)
	out := cmd.OutOrStdout()

	return withEngine(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, e *engine) error {
		results, err := e.coordinator.Retrieve(ctx, query, roles, queryTopK)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if queryJSON {
			output, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(output))
			return nil
		}

		if len(results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), query)
		for i, r := range results {
			fmt.Fprintf(out, "--- [%d] %s (score: %.4f, roles: %s) ---\n",
				i+1, displayPath(r.Record), r.Score, strings.Join(r.Record.Roles, ","))
			fmt.Fprintln(out, preview(r.Record.Text, 500))
			fmt.Fprintln(out)
		}
		return nil
	})
}

func displayPath(r domain.ChunkRecord) string {
	switch {
	case r.Path != "":
		return r.Path
	case r.Title != "":
		return r.Title
	default:
		return "doc"
	}
}

// preview truncates text to n runes for display.
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

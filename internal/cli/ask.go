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
	askRoles      string
	askTopK       int
	askJSON       bool
	askNoGenerate bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed chunks",
	Long: `Retrieve candidates, rerank them, pack the best into a context block and ask
the configured model to answer with [title] citations.

With --no-generate (or generation.provider: none) the packed context and its
sources are printed instead, ready to paste into any model.

Examples:
  hybridrag ask "how long do refunds take?" --roles sales
  hybridrag ask "vpn setup" --no-generate`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&askRoles, "roles", "", "comma separated caller roles (default all)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of context chunks (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.Flags().BoolVar(&askNoGenerate, "no-generate", false, "print the packed context without calling the model")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")
	roles := domain.ParseRoles(askRoles)
	out := cmd.OutOrStdout()

	return withEngine(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, e *engine) error {
		answerUC, err := e.answerer(!askNoGenerate)
		if err != nil {
			return err
		}

		answer, err := answerUC.Answer(ctx, question, roles, askTopK)
		if err != nil {
			return fmt.Errorf("answer failed: %w", err)
		}

		if askJSON {
			output, err := json.MarshalIndent(answer, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(output))
			return nil
		}

		if answer.Answer != "" {
			fmt.Fprintln(out, answer.Answer)
		} else {
			fmt.Fprintln(out, answer.Context)
		}

		if len(answer.Sources) > 0 {
			fmt.Fprintln(out, "\nSources:")
			for i, s := range answer.Sources {
				fmt.Fprintf(out, "  [%d] %s", i+1, s.Title)
				if s.Path != "" && s.Path != s.Title {
					fmt.Fprintf(out, " (%s)", s.Path)
				}
				fmt.Fprintln(out)
			}
		}
		return nil
	})
}

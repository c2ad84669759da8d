package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"hybridrag/internal/adapter/chunker"
	"hybridrag/internal/adapter/fs"
	"hybridrag/internal/domain"
	"hybridrag/internal/usecase"
)

var (
	ingestRoles      string
	ingestForce      bool
	ingestNoProgress bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Chunk, embed and index text files",
	Long: `Walk the given directory (or file), split every text file into overlapping
character windows and append the chunks to the index. Files whose modification
time is unchanged since the last run are skipped unless --force is set.

The index only grows: re-ingesting a changed file appends its new chunks and
keeps the old ones.

Examples:
  hybridrag ingest ./docs
  hybridrag ingest ./handbook --roles hr,managers`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestRoles, "roles", "", "comma separated roles for the new chunks (default from config)")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-ingest files even when unchanged")
	ingestCmd.Flags().BoolVar(&ingestNoProgress, "no-progress", false, "disable the progress bar")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	cfg := GetConfig()
	roles := cfg.Ingest.Roles
	if ingestRoles != "" {
		roles = domain.ParseRoles(ingestRoles)
	}

	out := cmd.OutOrStdout()
	return withEngine(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, e *engine) error {
		ingestUC := usecase.NewIngestUseCase(
			e.coordinator,
			e.store.Manifest(),
			fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes),
			chunker.NewWindowChunker(cfg.Ingest.ChunkSize, cfg.Ingest.Overlap),
			cfg.Ingest.BatchSize,
		)

		fmt.Fprintf(out, "Scanning %s...\n", path)

		opts := usecase.IngestOptions{Roles: roles, Force: ingestForce}
		if !ingestNoProgress {
			opts.Progress = newProgress(cmd)
		}

		result, err := ingestUC.Ingest(ctx, path, opts)
		if result != nil {
			printIngestResult(cmd, result)
		}
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}

		fmt.Fprintf(out, "\nIndex stored at: %s (%d records)\n", cfg.StoreDir(GetRootDir()), e.coordinator.Stats().Records)
		return nil
	})
}

func printIngestResult(cmd *cobra.Command, result *usecase.IngestResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Files ingested:  %d\n", result.FilesIngested)
	fmt.Fprintf(out, "  Files unchanged: %d\n", result.FilesUnchanged)
	fmt.Fprintf(out, "  Files skipped:   %d (binary or empty)\n", result.FilesSkipped)
	fmt.Fprintf(out, "  Chunks added:    %d\n", result.ChunksAdded)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}
}

// newProgress returns a progress callback that lazily creates the bar once
// the total is known and shows an ETA.
func newProgress(cmd *cobra.Command) func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime time.Time
	)

	return func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}

		bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}

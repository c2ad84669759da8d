package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hybridrag/internal/adapter/store"
	"hybridrag/internal/usecase"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

type statsOutput struct {
	usecase.Stats
	Dir           string `json:"dir"`
	SchemaVersion int    `json:"schema_version"`
	Sources       int    `json:"sources"`
	VectorBytes   int64  `json:"vector_bytes"`
	MetadataBytes int64  `json:"metadata_bytes"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	dir := GetConfig().StoreDir(GetRootDir())

	return withEngine(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, e *engine) error {
		info, err := e.store.Manifest().Info()
		if err != nil {
			return fmt.Errorf("failed to read manifest: %w", err)
		}
		sources, err := e.store.Manifest().ListSources()
		if err != nil {
			return fmt.Errorf("failed to read manifest: %w", err)
		}

		s := statsOutput{
			Stats:         e.coordinator.Stats(),
			Dir:           dir,
			SchemaVersion: info.SchemaVersion,
			Sources:       len(sources),
			VectorBytes:   fileSize(filepath.Join(dir, store.VectorsFile)),
			MetadataBytes: fileSize(filepath.Join(dir, store.MetadataFile)),
		}
		if !info.UpdatedAt.IsZero() {
			s.UpdatedAt = info.UpdatedAt.Format(time.RFC3339)
		}

		if statsJSON {
			output, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(output))
			return nil
		}

		fmt.Fprintf(out, "Index:       %s\n", s.Dir)
		fmt.Fprintf(out, "Records:     %s\n", humanize.Comma(int64(s.Records)))
		fmt.Fprintf(out, "Sources:     %s files\n", humanize.Comma(int64(s.Sources)))
		fmt.Fprintf(out, "Model:       %s (dimension %d)\n", s.Model, s.Dimension)
		fmt.Fprintf(out, "Schema:      v%d\n", s.SchemaVersion)
		fmt.Fprintf(out, "Vectors:     %s\n", humanize.Bytes(uint64(s.VectorBytes)))
		fmt.Fprintf(out, "Metadata:    %s\n", humanize.Bytes(uint64(s.MetadataBytes)))
		if !info.UpdatedAt.IsZero() {
			fmt.Fprintf(out, "Updated:     %s\n", humanize.Time(info.UpdatedAt))
		}
		return nil
	})
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

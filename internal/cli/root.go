package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"hybridrag/config"
	"hybridrag/internal/logger"
)

var (
	cfgFile     string
	cfg         *config.Config
	rootDir     string
	logLevel    string
	dumpMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "hybridrag",
	Short: "Hybrid retrieval engine - BM25 and vector search fused by rank",
	Long: `hybridrag indexes text chunks into a vector index and a BM25 lexical index,
answers queries by fusing both rankings with reciprocal rank fusion, and filters
every result by the caller's access roles.

Example usage:
  hybridrag ingest ./docs --roles sales        # Chunk, embed and index files
  hybridrag query "refund policy" --roles sales # Ranked chunks visible to sales
  hybridrag ask "how long do refunds take?"     # Retrieve, rerank and answer`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := config.LoadEnv(rootDir); err != nil {
			return err
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		logger.Init(level, cfg.Logging.Format, cmd.ErrOrStderr())
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hybridrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "print collected metrics to stderr on exit")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

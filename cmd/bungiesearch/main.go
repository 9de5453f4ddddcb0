// Command bungiesearch manages search indices declared in the
// configuration file: it creates them from introspected tables, streams
// records into them and maintains their mappings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slated/bungiesearch"
	"github.com/slated/bungiesearch/internal/config"
	logpkg "github.com/slated/bungiesearch/internal/logger"
	"github.com/slated/bungiesearch/internal/version"
)

var (
	flagEnv     string
	flagConfig  string
	flagIndices []string
	flagModels  []string
	flagTimeout int

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bungiesearch",
	Short: "Keep search indices in sync with relational tables",
	Long: `bungiesearch reads index declarations from the indexes section of the
configuration file, introspects the backing tables and manages the
matching Elasticsearch indices.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		if flagConfig != "" {
			cfg, err = config.LoadFile(flagConfig)
		} else {
			env := flagEnv
			if env == "" {
				env = config.GetEnv()
			}
			cfg, err = config.Load(env)
		}
		if err != nil {
			return err
		}

		logger, err = logpkg.NewLogger(cfg.Env, cfg.Logging.Level)
		if err != nil {
			return err
		}
		logger.Info("starting bungiesearch",
			zap.String("version", version.Version),
			zap.String("env", cfg.Env),
			zap.String("command", cmd.Name()),
			zap.Strings("addresses", cfg.Elasticsearch.Addresses),
			zap.String("db_driver", cfg.Database.Driver),
		)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagEnv, "env", "", "configuration environment (default: BUNGIESEARCH_ENV or local)")
	pf.StringVar(&flagConfig, "config", "", "explicit configuration file path")
	pf.StringSliceVar(&flagIndices, "index", nil, "limit the command to these engine indices (repeatable)")
	pf.StringSliceVar(&flagModels, "models", nil, "limit the command to these models (repeatable)")
	pf.IntVar(&flagTimeout, "timeout", 30, "seconds to wait for the engine to answer")

	rootCmd.AddCommand(createCmd, updateCmd, updateMappingCmd, deleteCmd, clearCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, "bungiesearch:", err)
		}
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

// openClient connects to the engine and the record source, waits for the
// engine to answer and registers the configured indices.
func openClient(ctx context.Context) (*bungiesearch.Client, error) {
	c, err := buildClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if flagTimeout > 0 {
		if err := c.WaitForReady(ctx, time.Duration(flagTimeout)*time.Second); err != nil {
			c.Close()
			return nil, err
		}
	}
	if err := registerIndexes(ctx, c, cfg, logger); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// targets resolves the engine indices a command acts on.
func targets(c *bungiesearch.Client) []string {
	if len(flagIndices) > 0 {
		return flagIndices
	}
	return c.Registry().IndexNames()
}

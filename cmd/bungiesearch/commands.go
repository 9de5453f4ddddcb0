package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slated/bungiesearch"
	"github.com/slated/bungiesearch/internal/ops"
	"github.com/slated/bungiesearch/internal/version"
)

var (
	flagBulkSize int
	flagNumDocs  int64
	flagStart    string
	flagEnd      string
	flagOpsAddr  string
	flagGuilty   bool
	flagNoInput  bool
)

func init() {
	uf := updateCmd.Flags()
	uf.IntVar(&flagBulkSize, "bulk-size", 0, "records per bulk session (default from config)")
	uf.Int64Var(&flagNumDocs, "num-docs", -1, "cap fetched records per model index, -1 for all")
	uf.StringVar(&flagStart, "start", "", "only records updated at or after this time (RFC 3339 or 2006-01-02)")
	uf.StringVar(&flagEnd, "end", "", "only records updated at or before this time (RFC 3339 or 2006-01-02)")
	uf.StringVar(&flagOpsAddr, "ops-addr", "", "serve /metrics and /healthz on this address during the run (default from config)")

	deleteCmd.Flags().BoolVar(&flagGuilty, "guilty-as-charged", false, "confirm the deletion")
	clearCmd.Flags().BoolVar(&flagNoInput, "noinput", false, "skip the interactive confirmation")
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create engine indices from the configured mappings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.CreateIndices(ctx, flagIndices...); err != nil {
			return err
		}
		logger.Info("indices created", zap.Strings("indices", targets(c)))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Stream records from the source into the engine indices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		opts := bungiesearch.UpdateOptions{
			Indices: flagIndices,
			Models:  flagModels,
			NumDocs: flagNumDocs,
		}
		if flagStart != "" {
			ts, err := parseTime(flagStart)
			if err != nil {
				return err
			}
			opts.Start = &ts
		}
		if flagEnd != "" {
			ts, err := parseTime(flagEnd)
			if err != nil {
				return err
			}
			opts.End = &ts
		}
		if flagBulkSize > 0 {
			cfg.Indexing.BulkSize = flagBulkSize
		}

		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		opsAddr := flagOpsAddr
		if opsAddr == "" {
			opsAddr = cfg.Ops.Addr
		}
		if opsAddr != "" {
			opsCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			router := ops.NewRouter(c, logger, ops.WithAuthTokens(cfg.Ops.AuthTokens...))
			go func() {
				if err := ops.Serve(opsCtx, opsAddr, router, logger); err != nil {
					logger.Warn("ops listener", zap.Error(err))
				}
			}()
		}

		start := time.Now()
		st, err := c.Update(ctx, opts)
		logger.Info("update finished",
			zap.Uint64("fetched", st.Fetched),
			zap.Uint64("indexed", st.Indexed),
			zap.Uint64("deleted", st.Deleted),
			zap.Uint64("failed", st.Failed),
			zap.Uint64("serialize_failures", st.SerializeFailures),
			zap.Duration("took", time.Since(start)),
		)
		return err
	},
}

var updateMappingCmd = &cobra.Command{
	Use:   "update-mapping",
	Short: "Push the configured mappings to existing engine indices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.UpdateMappings(ctx, flagIndices...); err != nil {
			return err
		}
		logger.Info("mappings updated", zap.Strings("indices", targets(c)))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete engine indices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !flagGuilty {
			return fmt.Errorf("refusing to delete indices without --guilty-as-charged")
		}

		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.DeleteIndices(ctx, flagIndices...); err != nil {
			return err
		}
		logger.Info("indices deleted", zap.Strings("indices", targets(c)))
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete and recreate engine indices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		names := targets(c)
		if !flagNoInput {
			ok, err := confirm(fmt.Sprintf(
				"This wipes and recreates %s. Continue? [y/N] ",
				strings.Join(names, ", "),
			))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := c.ClearIndices(ctx, flagIndices...); err != nil {
			return err
		}
		logger.Info("indices cleared", zap.Strings("indices", names))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(*cobra.Command, []string) {
		fmt.Println(version.String())
	},
}

// parseTime accepts RFC 3339 timestamps and bare dates.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or 2006-01-02", s)
	}
	return ts, nil
}

func confirm(prompt string) (bool, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poolmirror/poolmirror-go/cmd/mirror/config"
	"github.com/poolmirror/poolmirror-go/provider"
	"github.com/poolmirror/poolmirror-go/registry"
	"github.com/poolmirror/poolmirror-go/statespace"
)

func main() {
	root := &cobra.Command{
		Use:          "mirror",
		Short:        "Local AMM pool state mirror",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Seed the registry and follow new heads",
		RunE:  runMirror,
	}
	runCmd.Flags().String("rpc", "", "chain RPC URL (websocket for head subscription)")
	runCmd.Flags().String("pools", "", "tracked pools (comma-separated address=variant)")
	runCmd.Flags().Int("reorg-depth", 64, "retained rollback depth in blocks")
	runCmd.Flags().Uint64("seed-block", 0, "block to seed at, 0 means latest")
	runCmd.Flags().Int("seed-batch-size", 100, "calls per seeding RPC batch")
	runCmd.Flags().Uint64("log-range-batch-size", 2000, "blocks per getLogs query during catch-up")
	runCmd.Flags().String("snapshot-out", "", "write a snapshot document here on shutdown")
	runCmd.Flags().String("snapshot-in", "", "warm-start the registry from this snapshot document")
	runCmd.Flags().String("metrics-addr", ":9100", "prometheus listen address, empty disables")
	runCmd.Flags().Int("max-retries", 5, "provider retry attempts")
	runCmd.Flags().Duration("retry-backoff", 200*time.Millisecond, "initial provider retry backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMirror(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	tracked, err := cfg.TrackedPools()
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		return fmt.Errorf("pool list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := provider.Dial(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chain.Close()

	promReg := prometheus.NewRegistry()
	reg := registry.New()

	if cfg.SnapshotIn != "" {
		if err := importSnapshot(reg, cfg.SnapshotIn); err != nil {
			return fmt.Errorf("warm start: %w", err)
		}
		logger.Info("registry warm-started",
			zap.String("file", cfg.SnapshotIn), zap.Int("pools", reg.Len()))
	}

	manager, err := statespace.New(statespace.Config{
		SystemName:        "poolmirror",
		Provider:          chain,
		Tracked:           tracked,
		Registry:          reg,
		Logger:            zapAdapter{logger.Sugar()},
		PrometheusReg:     promReg,
		ReorgDepth:        cfg.ReorgDepth,
		SeedBatchSize:     cfg.SeedBatchSize,
		LogRangeBatchSize: cfg.LogRangeBatchSize,
		Retry: statespace.Policy{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   cfg.RetryBackoff,
		},
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, promReg, logger)
	}

	logger.Info("seeding registry",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("pools", len(tracked)),
		zap.Uint64("seed_block", cfg.SeedBlock),
		zap.Int("reorg_depth", cfg.ReorgDepth),
	)
	if err := manager.Seed(ctx, cfg.SeedBlock); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	runErr := manager.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("mirror stopped", zap.Error(runErr))
	}

	if cfg.SnapshotOut != "" {
		if err := exportSnapshot(manager, cfg.SnapshotOut); err != nil {
			logger.Error("snapshot export failed", zap.Error(err))
		} else {
			logger.Info("snapshot written", zap.String("file", cfg.SnapshotOut))
		}
	}
	return runErr
}

func importSnapshot(reg *registry.Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc registry.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := reg.Import(doc.Pools); err != nil {
		return err
	}
	return reg.Commit()
}

func exportSnapshot(manager *statespace.Manager, path string) error {
	number, hash := manager.LastBlock()
	doc := registry.Document{
		BlockNumber: number,
		BlockHash:   hash.Hex(),
		Pools:       manager.Registry().Export(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}

// zapAdapter bridges the sugared zap logger to the manager's logging
// interface.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (l zapAdapter) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l zapAdapter) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l zapAdapter) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l zapAdapter) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Command sensemble pretrains and evaluates a Sensemble model on the
// synthetic source described by a YAML configuration file.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sensemble-ml/sensemble/internal/config"
	"github.com/sensemble-ml/sensemble/internal/data"
	"github.com/sensemble-ml/sensemble/internal/dist"
	"github.com/sensemble-ml/sensemble/internal/encoder"
	"github.com/sensemble-ml/sensemble/internal/ood"
	"github.com/sensemble-ml/sensemble/internal/pretrain"
	"github.com/sensemble-ml/sensemble/internal/tracking"
	"github.com/sensemble-ml/sensemble/internal/train"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var seed int64

	root := &cobra.Command{
		Use:           "sensemble",
		Short:         "Prototype-based self-supervised pretraining with OOD scoring",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "sensemble.yaml", "path to the YAML configuration file")
	root.PersistentFlags().Int64Var(&seed, "seed", 0, "override the configured random seed")

	root.AddCommand(
		newTrainCommand(&configPath, &seed),
		newEvalCommand(&configPath, &seed),
		newVersionCommand(),
	)
	return root
}

func newTrainCommand(configPath *string, seed *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run the full pretraining loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath, *seed, func(ctx context.Context, t *train.Trainer) error {
				return t.Fit(ctx)
			})
		},
	}
}

func newEvalCommand(configPath *string, seed *int64) *cobra.Command {
	return &cobra.Command{
		Use:   "eval",
		Short: "Run a single validation sweep with an untrained model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), *configPath, *seed, func(ctx context.Context, t *train.Trainer) error {
				return t.Validate(ctx)
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sensemble %s (%s)\n", version, commit)
		},
	}
}

func run(parent context.Context, configPath string, seed int64, fn func(context.Context, *train.Trainer) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if seed != 0 {
		cfg.Seed = seed
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := data.NewSynthetic(data.SyntheticConfig{
		Dim:         cfg.Data.Dim,
		NumClasses:  cfg.Data.NumClasses,
		BatchSize:   cfg.Data.BatchSize,
		NumValViews: cfg.Data.NumValViews,
		AugNoise:    cfg.Data.AugNoise,
		OODFraction: cfg.Data.OODFraction,
		Seed:        cfg.Seed,
	})
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	var sink tracking.Sink = tracking.NopSink{}
	sinks := tracking.Multi{}
	if cfg.Tracking.Console {
		sinks = append(sinks, tracking.NewZapSink(logger))
	}
	if cfg.Tracking.Prometheus {
		registry := prometheus.NewRegistry()
		sinks = append(sinks, tracking.NewPrometheusSink(registry, runID))
		go serveMetrics(cfg.Tracking.ListenAddr, registry, logger)
	}
	if len(sinks) > 0 {
		sink = sinks
	}

	model, err := pretrain.New(modelConfig(cfg), dist.SingleProcess{}, sink)
	if err != nil {
		return err
	}

	trainer, err := train.New(train.Config{
		MaxEpochs:            cfg.Trainer.MaxEpochs,
		TrainBatchesPerEpoch: cfg.Trainer.TrainBatchesPerEpoch,
		ValBatchesPerEpoch:   cfg.Trainer.ValBatchesPerEpoch,
		RunID:                runID,
	}, model, source, logger)
	if err != nil {
		return err
	}

	return fn(ctx, trainer)
}

func modelConfig(cfg *config.Config) pretrain.Config {
	variant := ood.TruncatedEntropy
	if cfg.Model.ScoreVariant == "generalized_entropy" {
		variant = ood.GeneralizedEntropy
	}
	return pretrain.Config{
		Architecture:      encoder.Architecture(cfg.Model.Architecture),
		InputDim:          cfg.Model.InputDim,
		DropoutRate:       cfg.Model.DropoutRate,
		DropChannelRate:   cfg.Model.DropChannelRate,
		DropBlockRate:     cfg.Model.DropBlockRate,
		DropPathRate:      cfg.Model.DropPathRate,
		PrototypeDim:      cfg.Model.PrototypeDim,
		NumPrototypes:     cfg.Model.NumPrototypes,
		Temp:              cfg.Model.Temp,
		SharpenTemp:       cfg.Model.SharpenTemp,
		NumSinkhornIters:  cfg.Model.NumSinkhornIters,
		SinkhornQueueSize: cfg.Model.SinkhornQueueSize,
		MemaxWeight:       cfg.Model.MemaxWeight,
		LR:                cfg.Optim.LR,
		WeightDecay:       cfg.Optim.WeightDecay,
		WarmupEpochs:      cfg.Optim.WarmupEpochs,
		MaxEpochs:         cfg.Trainer.MaxEpochs,
		ScoreVariant:      variant,
		ConditionalMeans:  cfg.Model.ConditionalMeans,
		Seed:              cfg.Seed,
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}

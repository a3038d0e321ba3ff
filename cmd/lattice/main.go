// Package main is the entry point for the lattice binary.
// It provides a CLI for training, applying and rendering the bundled
// example pipeline against a persisted state directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/latticeml/lattice/pkg/asset"
	"github.com/latticeml/lattice/pkg/compiler"
	"github.com/latticeml/lattice/pkg/config"
	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/logging"
	"github.com/latticeml/lattice/pkg/operator"
	"github.com/latticeml/lattice/pkg/operator/folding"
	"github.com/latticeml/lattice/pkg/runtime"
	"github.com/latticeml/lattice/pkg/task"
	"github.com/latticeml/lattice/pkg/task/std"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for lattice
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lattice",
		Short: "Pipeline lifecycle launcher",
		Long: `Lattice compiles a composed pipeline into its train or apply task graph
and executes it against a persisted state directory.

The bundled example is a housing-price pipeline: static extraction, label
split, feature centering and a mean regressor, optionally stacked across
cross-validation folds.

Example:
  lattice train --state-dir /var/lib/lattice
  lattice apply --state-dir /var/lib/lattice
  lattice render --mode train --folds 3`,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("state-dir", "", "State directory (empty keeps state in memory)")
	rootCmd.PersistentFlags().String("runner", "", "Runner backend (sequential, pool)")
	rootCmd.PersistentFlags().Int("folds", 0, "Stack the model across this many cross-validation folds")

	rootCmd.AddCommand(newTrainCmd(), newApplyCmd(), newEvalCmd(), newRenderCmd())
	return rootCmd
}

func newTrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Fit the pipeline and commit a new state generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLauncher(cmd, func(ctx context.Context, launcher *runtime.Launcher) error {
				return launcher.Train(ctx)
			})
		},
	}
}

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Run the pipeline in apply mode and print the predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLauncher(cmd, func(ctx context.Context, launcher *runtime.Launcher) error {
				result, err := launcher.Apply(ctx)
				if err != nil {
					return err
				}
				table, err := task.AsTable(result)
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), result)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval",
		Short: "Crossvalidate the pipeline and print the score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLauncher(cmd, func(ctx context.Context, launcher *runtime.Launcher) error {
				result, err := launcher.Eval(ctx)
				if err != nil {
					return err
				}
				table, err := task.AsTable(result)
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), result)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newRenderCmd() *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Print the compiled task graph in Graphviz format",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := cmd.Flags().GetString("mode")
			if err != nil {
				return err
			}
			return withLauncher(cmd, func(_ context.Context, launcher *runtime.Launcher) error {
				dot, err := launcher.Render(compiler.Mode(mode))
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), dot)
				return nil
			})
		},
	}
	renderCmd.Flags().String("mode", string(compiler.ModeTrain), "Graph mode to render (train, apply)")
	return renderCmd
}

// withLauncher assembles the launcher from configuration and flags, runs the
// action under signal-aware cancellation and tears the telemetry down.
func withLauncher(cmd *cobra.Command, action func(context.Context, *runtime.Launcher) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: true, // CLI sessions get the text handler
	})
	slog.SetDefault(logger)

	folds, err := cmd.Flags().GetInt("folds")
	if err != nil {
		return err
	}
	recipe := examplePipeline(folds)
	if cmd.Name() == "eval" {
		recipe = evaluationPipeline(folds)
	}
	launcher, shutdown, err := buildLauncher(cfg, logger, recipe)
	if err != nil {
		logger.Error("Failed to assemble launcher", "error", err)
		return err
	}
	defer shutdown()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", "signal", sig.String())
		cancel()
	}()

	return action(ctx, launcher)
}

// loadConfig reads the config file and applies CLI flag overrides on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if dir, _ := cmd.Flags().GetString("state-dir"); dir != "" {
		cfg.State.Dir = dir
	}
	if runner, _ := cmd.Flags().GetString("runner"); runner != "" {
		cfg.Runner.Name = runner
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildLauncher wires the given pipeline recipe to the configured state
// directory, runner and telemetry.
func buildLauncher(cfg *config.Config, logger *slog.Logger, recipe operator.Composable) (*runtime.Launcher, func(), error) {
	registry := task.NewRegistry()
	if err := std.Register(registry); err != nil {
		return nil, nil, err
	}

	segment, err := recipe.Expand()
	if err != nil {
		return nil, nil, fmt.Errorf("expanding pipeline: %w", err)
	}
	composition, err := flow.NewComposition(segment)
	if err != nil {
		return nil, nil, fmt.Errorf("composing pipeline: %w", err)
	}

	var directory asset.Directory
	if cfg.State.Dir != "" {
		fs, err := asset.NewFS(cfg.State.Dir)
		if err != nil {
			return nil, nil, err
		}
		directory = fs
	} else {
		directory = asset.NewMemory()
	}

	tracing, err := runtime.NewTracing(&runtime.TracingConfig{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return nil, nil, err
	}
	metrics := runtime.NewMetrics()
	if cfg.Metrics.Address != "" {
		go serveMetrics(cfg.Metrics.Address, metrics, logger)
	}

	opts := runtime.Options{Logger: logger, Metrics: metrics, Tracing: tracing}
	var runner runtime.Runner
	switch cfg.Runner.Name {
	case "pool":
		runner = runtime.NewPool(cfg.Runner.Workers, opts)
	default:
		runner = runtime.NewSequential(opts)
	}

	launcher := runtime.NewLauncher(composition, registry, directory, runner, opts)
	shutdown := func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}
	return launcher, shutdown, nil
}

func serveMetrics(address string, metrics *runtime.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logger.Info("Serving metrics", "address", address)
	if err := http.ListenAndServe(address, mux); err != nil {
		logger.Error("Metrics server failed", "error", err)
	}
}

// housingData returns the demo dataset and the matching serving stream. The
// stream carries the feature columns only, the way a live feed never sees
// the label.
func housingData() (dataset, livestream task.Table) {
	dataset = task.Table{
		Columns: []string{"area", "rooms", "price"},
		Rows: [][]float64{
			{64, 2, 310},
			{87, 3, 415},
			{52, 1, 265},
			{120, 4, 620},
			{95, 3, 470},
			{71, 2, 350},
			{140, 5, 700},
			{58, 2, 290},
		},
	}
	livestream = task.Table{Columns: dataset.Columns[:2]}
	for _, row := range dataset.Rows {
		livestream.Rows = append(livestream.Rows, row[:2])
	}
	return dataset, livestream
}

// examplePipeline composes the housing demo: extraction, label split,
// centering and a mean regressor, stacked when folds is at least 2.
func examplePipeline(folds int) operator.Composable {
	dataset, livestream := housingData()
	model := operator.Operator(operator.NewMapper(std.MeanModel()))
	if folds > 1 {
		model = folding.NewFullStacker(folds,
			operator.Pipeline(operator.NewMapper(std.MeanModel())),
		)
	}
	return operator.Chain(
		operator.SplitSource(std.Static(dataset), std.Static(livestream)),
		operator.NewLabeler(std.Label("price")),
		operator.NewMapper(std.Center()),
		model,
	)
}

// evaluationPipeline wraps the demo model in k-fold crossvalidation scored
// by mean squared error.
func evaluationPipeline(folds int) operator.Composable {
	if folds < 2 {
		folds = 2
	}
	dataset, livestream := housingData()
	return operator.Chain(
		operator.SplitSource(std.Static(dataset), std.Static(livestream)),
		operator.NewLabeler(std.Label("price")),
		folding.NewCrossValidation(folds,
			operator.Pipeline(operator.NewMapper(std.Center()), operator.NewMapper(std.MeanModel())),
			std.MSE(),
		),
	)
}

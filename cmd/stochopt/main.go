package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/terminal-bench/stochopt/internal/agriculture"
	"github.com/terminal-bench/stochopt/internal/config"
	"github.com/terminal-bench/stochopt/internal/events"
	"github.com/terminal-bench/stochopt/internal/server"
)

var (
	// Global flags
	verbose bool

	// Solve flags
	planFile     string
	solveTimeout time.Duration
	tolerance    float64

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stochopt",
	Short: "Two-stage stochastic production planning",
	Long: `stochopt builds and solves two-stage stochastic linear programs for
production planning under uncertainty. Stage one commits resources before
the uncertain outcome is known; stage two routes the realized production
through sales channels, scenario by scenario, maximizing expected profit.

Run "stochopt serve" to expose the optimizer over HTTP, or
"stochopt solve -f plan.json" to solve a plan file directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the optimizer over HTTP",
	Long: `Starts the planning API, configured from the environment:
PORT, ALLOWED_ORIGINS, NATS_URL, MAX_CONCURRENT_SOLVES, SOLVE_TIMEOUT,
SIMPLEX_TOLERANCE, DEBUG. Leaving NATS_URL empty disables event publishing.`,
	RunE: runServe,
}

// solveCmd solves a plan file and prints the result
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a plan file and print the result as JSON",
	RunE:  runSolve,
}

// validateCmd checks a plan file without solving it
var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a plan file without solving it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	solveCmd.Flags().StringVarP(&planFile, "file", "f", "", "Plan file, JSON or YAML (required)")
	solveCmd.Flags().DurationVar(&solveTimeout, "timeout", 30*time.Second, "Solve deadline")
	solveCmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Simplex tolerance (0 uses the default)")
	solveCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var pub events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		client, err := events.Connect(events.Config{
			URL:           cfg.NATSURL,
			Name:          "stochopt-api",
			ReconnectWait: time.Second,
			MaxReconnects: 5,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		pub = client
	}
	defer pub.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(cfg, logger, pub).Handler(),
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	input, err := loadPlan(planFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), solveTimeout)
	defer cancel()

	started := time.Now()
	result, err := agriculture.Optimize(ctx, input, agriculture.Options{Tolerance: tolerance})
	if err != nil {
		return err
	}
	logger.Debug("plan solved",
		zap.String("file", planFile),
		zap.Float64("objective", result.ObjectiveValue),
		zap.Duration("elapsed", time.Since(started)),
	)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	input, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	if err := input.Validate(); err != nil {
		return err
	}

	fmt.Printf("%s: %d crops, %d scenarios, ok\n", args[0], len(input.Crops), len(input.Scenarios))
	return nil
}

// loadPlan reads a plan from a JSON or YAML file, chosen by extension.
func loadPlan(path string) (*agriculture.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var input agriculture.Input
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return &input, nil
}

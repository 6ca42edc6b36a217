package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"powengine/internal/config"
	"powengine/internal/logging"
	"powengine/internal/metrics"
	"powengine/pkg/pow"
	"powengine/pkg/pow/core"
	"powengine/pkg/pow/factory"
	"powengine/pkg/pow/methods/opencl"
)

// GlobalFlags are shared by every subcommand
type GlobalFlags struct {
	ConfigFile  string
	Driver      string
	Platform    uint16
	Device      uint16
	Threads     uint32
	Emulator    bool
	Verbose     bool
	LogFile     string
	MetricsAddr string
}

// app is the state built before a subcommand runs
type app struct {
	cfg      *factory.Config
	logger   *zap.Logger
	recorder *metrics.Recorder
	runtime  opencl.Runtime
	factory  *factory.DriverFactory
	engine   *pow.Engine
	server   *http.Server
}

var (
	globalFlags GlobalFlags
	state       *app
)

var rootCmd = &cobra.Command{
	Use:   "powctl",
	Short: "Memory-hard proof-of-work solver and validator",
	Long: `powctl drives the work-search engine from the command line.

A work is a 128-bit seed, a 64-bit difficulty and a lookup table size.
Solving builds the table from the seed and searches for a solution whose
result reaches the difficulty. Validating rebuilds the table and checks it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		state, err = newApp(cmd)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		state.close()
	},
}

// Execute runs the root command until it completes or a signal arrives
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, failStyle.Render("error: ")+err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.ConfigFile, "config", "", "configuration file (default: first of the standard locations)")
	flags.StringVar(&globalFlags.Driver, "driver", "auto", "driver to use: auto|cpu|opencl")
	flags.Uint16Var(&globalFlags.Platform, "platform", 0, "OpenCL platform id")
	flags.Uint16Var(&globalFlags.Device, "device", 0, "OpenCL device id")
	flags.Uint32VarP(&globalFlags.Threads, "threads", "t", 0, "worker threads (0: driver recommendation)")
	flags.BoolVar(&globalFlags.Emulator, "emulator", false, "use the in-process OpenCL emulator instead of the system runtime")
	flags.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&globalFlags.LogFile, "log-file", "", "also write JSON logs to this file")
	flags.StringVar(&globalFlags.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(tuneCmd)
}

func loadConfig(cmd *cobra.Command) (*factory.Config, error) {
	var (
		cfg *factory.Config
		err error
	)
	if globalFlags.ConfigFile != "" {
		if err := config.LoadEnv(); err != nil {
			return nil, err
		}
		cfg, err = factory.LoadConfigFromFile(globalFlags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := config.Apply(cfg); err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("driver") && globalFlags.Driver != "auto" {
		cfg.PreferredOrder = []string{globalFlags.Driver}
		cfg.EnableFallback = false
	}
	if flags.Changed("platform") {
		cfg.OpenCLPlatform = globalFlags.Platform
	}
	if flags.Changed("device") {
		cfg.OpenCLDevice = globalFlags.Device
	}
	if flags.Changed("threads") {
		cfg.Threads = globalFlags.Threads
	}
	if flags.Changed("verbose") {
		cfg.Verbose = globalFlags.Verbose
	}
	if flags.Changed("log-file") {
		cfg.LogFile = globalFlags.LogFile
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics = globalFlags.MetricsAddr != ""
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Verbose: cfg.Verbose,
		File:    cfg.LogFile,
		Console: cfg.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if cfg.Metrics {
		a.recorder = metrics.NewRecorder()
		if globalFlags.MetricsAddr != "" {
			a.serveMetrics(globalFlags.MetricsAddr)
		}
	}

	a.runtime = opencl.DefaultRuntime()
	if globalFlags.Emulator {
		a.runtime = opencl.NewEmulator()
	}

	a.factory = factory.NewDriverFactory(cfg,
		factory.WithRuntime(a.runtime),
		factory.WithLogger(logger),
		factory.WithMetrics(a.recorder))
	a.engine = pow.NewEngine(
		pow.WithRuntime(a.runtime),
		pow.WithLogger(logger),
		pow.WithMetrics(a.recorder))
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.recorder.Registry(), promhttp.HandlerOpts{}))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	a.logger.Info("Serving metrics", zap.String("addr", addr))
}

func (a *app) close() {
	if a == nil {
		return
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	_ = a.logger.Sync()
}

// driver creates the configured driver, the best available one for "auto"
func (a *app) driver() (core.Driver, error) {
	if len(a.cfg.PreferredOrder) == 1 && !a.cfg.EnableFallback {
		return a.factory.Create(a.cfg.PreferredOrder[0])
	}
	return a.factory.CreateBest()
}

// contextError converts a failed ErrorContext into an error for cobra
func contextError(ec *pow.ErrorContext) error {
	if !ec.Failed() {
		return nil
	}
	return fmt.Errorf("%s error %d: %s", ec.CategoryString(), ec.ErrorCode(), ec.ErrorString())
}

// parseUint accepts decimal, 0x hexadecimal and 0b binary values
func parseUint(name, value string) (uint64, error) {
	v, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return v, nil
}

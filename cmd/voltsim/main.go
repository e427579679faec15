package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/san-kum/voltsim/internal/config"
	"github.com/san-kum/voltsim/internal/logging"
	"github.com/san-kum/voltsim/internal/tui"
)

var (
	dataDir    string
	logLevel   string
	logFormat  string
	configFile string

	dt        float64
	scanRate  float64
	scheme    string
	splitting string
	noSave    bool
	pngPath   string
	profile   string

	params      []string
	limit       int
	bestMetric  string
	metricsAddr string

	outPath string
)

var logger *slog.Logger

func main() {
	rootCmd := &cobra.Command{
		Use:           "voltsim",
		Short:         "planar diffusion-reaction electrochemistry simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewLogger(logLevel, logFormat, os.Stderr)
			slog.SetDefault(logger)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".voltsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a simulation from a preset or config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().StringVar(&pngPath, "png", "", "write the voltammogram to this image file")
	runCmd.Flags().StringVar(&profile, "profile", "", "write the final concentration profile to this image file")

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "run a simulation with a live progress view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "run a parameter sweep, e.g. --param k0=1e-3,1e-2,1",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&params, "param", nil, "name=v1,v2,... (repeatable)")
	sweepCmd.Flags().IntVar(&limit, "limit", 0, "parallel runs (0 = GOMAXPROCS)")
	sweepCmd.Flags().StringVar(&bestMetric, "best", "", "report the point minimizing this metric")
	sweepCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while sweeping")

	checkCmd := &cobra.Command{
		Use:   "check [preset]",
		Short: "compile a mechanism and print its species, steps and observables",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkMechanism,
	}
	checkCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&pngPath, "png", "", "also write the voltammogram to this image file")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export the current trace of a run to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export the current trace of a run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list presets, or print one as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showPresets,
	}

	rootCmd.AddCommand(runCmd, liveCmd, sweepCmd, checkCmd, listCmd, plotCmd, exportCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, tui.Error(err))
		stop()
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "sample spacing (s)")
	cmd.Flags().Float64Var(&scanRate, "scan-rate", config.DefaultScanRate, "scan rate (V/s)")
	cmd.Flags().StringVar(&scheme, "scheme", "cn", "diffusion scheme (cn, be)")
	cmd.Flags().StringVar(&splitting, "splitting", "lie", "reaction splitting (lie, strang)")
}

// loadConfig resolves the run description: a config file wins over a preset
// name, and explicitly set flags override either.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = c
	case len(args) > 0:
		cfg = config.GetPreset(args[0])
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Waveform.Dt = dt
	}
	if flags.Changed("scan-rate") {
		cfg.Waveform.ScanRate = scanRate
	}
	if flags.Changed("scheme") {
		cfg.Engine.Scheme = scheme
	}
	if flags.Changed("splitting") {
		cfg.Engine.Splitting = splitting
	}
	return cfg, cfg.Validate()
}

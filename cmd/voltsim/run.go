package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/voltsim/internal/analysis"
	"github.com/san-kum/voltsim/internal/boundary"
	"github.com/san-kum/voltsim/internal/config"
	"github.com/san-kum/voltsim/internal/experiment"
	"github.com/san-kum/voltsim/internal/kinetics"
	"github.com/san-kum/voltsim/internal/logging"
	"github.com/san-kum/voltsim/internal/plotting"
	"github.com/san-kum/voltsim/internal/sim"
	"github.com/san-kum/voltsim/internal/storage"
	"github.com/san-kum/voltsim/internal/telemetry"
	"github.com/san-kum/voltsim/internal/tui"
)

func setup(cfg *config.Config, reg *experiment.Registry) (*experiment.Experiment, error) {
	ms, err := reg.Metrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	exp := experiment.New(cfg)
	if err := exp.Setup(logger, ms); err != nil {
		return nil, err
	}
	return exp, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if profile != "" {
		w, err := cfg.BuildWaveform()
		if err != nil {
			return err
		}
		cfg.Engine.Snapshots = append(cfg.Engine.Snapshots, len(w)-1)
	}

	exp, err := setup(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}
	fmt.Printf("running %s (%d samples, %d nodes)...\n", cfg.Name, len(exp.Waveform()), exp.Grid().N())

	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(tui.Summary(cfg.Name, result))
	printPeaks(result)

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(cfg, result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}
	if pngPath != "" {
		if err := writeVoltammogram(result, cfg.Name, pngPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", pngPath)
	}
	if profile != "" {
		snap, ok := result.Snapshot(len(exp.Waveform()) - 1)
		if !ok {
			return fmt.Errorf("no final profile recorded")
		}
		p, err := plotting.Profile(snap, exp.Grid().Nodes(), result.Species)
		if err != nil {
			return err
		}
		if err := plotting.Save(p, profile); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", profile)
	}
	return nil
}

func printPeaks(res *sim.Result) {
	p := analysis.FindPeaks(res.Potentials(), res.TotalCurrent())
	if p.Cathodic.Index >= 0 {
		fmt.Printf("cathodic peak: %.4e A at %+.4f V\n", p.Cathodic.I, p.Cathodic.E)
	}
	if p.Anodic.Index >= 0 {
		fmt.Printf("anodic peak:   %.4e A at %+.4f V\n", p.Anodic.I, p.Anodic.E)
	}
	if sep := analysis.PeakSeparation(p); !math.IsNaN(sep) {
		fmt.Printf("peak separation: %.1f mV\n", 1000*sep)
	}
}

func writeVoltammogram(res *sim.Result, title, path string) error {
	p, err := plotting.Voltammogram(res, title)
	if err != nil {
		return err
	}
	return plotting.Save(p, path)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	// the view owns the terminal
	logger = logging.Discard()
	exp, err := setup(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	result, err := tui.Run(cmd.Context(), cfg.Name, func(ctx context.Context, obs sim.RunObserver) (*sim.Result, error) {
		exp.Engine().AddObserver(obs)
		return exp.Run(ctx)
	})
	if errors.Is(err, context.Canceled) && result != nil {
		fmt.Printf("stopped after %d of %d samples\n", result.Len(), len(exp.Waveform()))
		err = nil
	}
	if err != nil {
		return err
	}
	fmt.Println(tui.Summary(cfg.Name, result))
	return nil
}

// parseParam splits "name=v1,v2,..." into a name and its values.
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", nil, fmt.Errorf("bad --param %q, want name=v1,v2", s)
	}
	var vals []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("bad value in --param %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	return strings.TrimSpace(name), vals, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	if len(params) == 0 {
		return fmt.Errorf("sweep needs at least one --param (have %s)", strings.Join(experiment.Parameters(), ", "))
	}
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	names := make([]string, len(params))
	ranges := make([][]float64, len(params))
	for i, p := range params {
		if names[i], ranges[i], err = parseParam(p); err != nil {
			return err
		}
	}
	sw, err := experiment.NewSweep(names, ranges)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if metricsAddr != "" {
		rec := telemetry.NewRecorder()
		sw.Observe(rec)
		served := make(chan error, 1)
		go func() { served <- rec.Serve(ctx, metricsAddr, logger) }()
		defer func() {
			cancel()
			if err := <-served; err != nil {
				logger.Warn("metrics server", "err", err)
			}
		}()
	}

	fmt.Printf("sweeping %d points...\n", len(sw.Points()))
	points, err := sw.Run(ctx, cfg, experiment.NewRegistry(), logger, limit)
	if err != nil {
		return err
	}

	var metricNames []string
	for _, p := range points {
		if p.Result == nil {
			continue
		}
		for k := range p.Result.Metrics {
			metricNames = append(metricNames, k)
		}
		break
	}
	sort.Strings(metricNames)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "POINT\tCLEAN\t%s\n", strings.ToUpper(strings.Join(metricNames, "\t")))
	for _, p := range points {
		vals := make([]string, len(metricNames))
		for i, k := range metricNames {
			vals[i] = fmt.Sprintf("%.4g", p.Result.Metrics[k])
		}
		fmt.Fprintf(w, "%s\t%t\t%s\n", p.Label(names), p.Result.Diagnostics.Clean(), strings.Join(vals, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if bestMetric != "" {
		best, val, ok := experiment.Best(points, bestMetric)
		if !ok {
			return fmt.Errorf("no point reports metric %q", bestMetric)
		}
		fmt.Printf("\nbest %s: %.6g at %s\n", bestMetric, val, best.Label(names))
	}
	return nil
}

func checkMechanism(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = c
	case len(args) > 0:
		if cfg = config.GetPreset(args[0]); cfg == nil {
			return fmt.Errorf("unknown preset: %s", args[0])
		}
	default:
		cfg = config.DefaultConfig()
	}

	m, err := cfg.BuildMechanism()
	if err != nil {
		return err
	}
	names := m.SpeciesNames()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPECIES\tD (cm²/s)\tBULK (mol/cm³)")
	for i := range names {
		s := m.Species(i)
		fmt.Fprintf(w, "%s\t%.3g\t%.3g\n", s.Name, s.D, s.Bulk)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "E-STEP\tMODE\tN\tE0 (V)\tK0 (cm/s)\tALPHA")
	for k := 0; k < m.NumESteps(); k++ {
		e := m.EStep(k)
		fmt.Fprintf(w, "%s/%s\t%s\t%d\t%+.4f\t%.3g\t%.2f\n", names[e.O], names[e.R], e.Mode, e.N, e.E0, e.K0, e.Alpha)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "C-STEP\tKF\tKR")
	for j := 0; j < m.NumCSteps(); j++ {
		c := m.CStep(j)
		fmt.Fprintf(w, "%s -> %s\t%.3g\t%.3g\n", side(c.Reactants, names), side(c.Products, names), c.Kf, c.Kr)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	obs := make([]string, 0, len(m.Observables()))
	for _, o := range m.Observables() {
		obs = append(obs, o.Name)
	}
	fmt.Printf("\nobservables: %s\n", strings.Join(obs, " "))
	fmt.Printf("boundary: %s\n", boundary.NewModel(m, 1, boundary.Options{}).Kind())
	fmt.Printf("closed: %t\n", m.Closed())
	return nil
}

func side(terms []kinetics.Term, names []string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		if t.Order > 1 {
			parts[i] = fmt.Sprintf("%d%s", t.Order, names[t.Species])
		} else {
			parts[i] = names[t.Species]
		}
	}
	return strings.Join(parts, " + ")
}

func showPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("presets:")
		for _, name := range config.ListPresets() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}
	cfg := config.GetPreset(args[0])
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

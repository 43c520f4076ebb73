package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang/geo/r3"
	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/qptasks/internal/automation"
	"github.com/san-kum/qptasks/internal/config"
	"github.com/san-kum/qptasks/internal/experiment"
	"github.com/san-kum/qptasks/internal/export"
	"github.com/san-kum/qptasks/internal/logging"
	"github.com/san-kum/qptasks/internal/optim"
	"github.com/san-kum/qptasks/internal/sim"
	"github.com/san-kum/qptasks/internal/storage"
	"github.com/san-kum/qptasks/internal/tui"
	"github.com/san-kum/qptasks/internal/viz"
)

var (
	dataDir    string
	logLevel   string
	configFile string

	dt         float64
	duration   float64
	integrator string
	parallel   bool
	workers    int
	overrides  []string

	noSave    bool
	live      bool
	frameRate int
	plane     string
	jsonOut   string

	plotTasks []string
	logScale  bool
	outFile   string
	widthIn   float64
	heightIn  float64

	tuneParams []string
	metric     string

	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
)

var logger *zap.SugaredLogger

func main() {
	rootCmd := &cobra.Command{
		Use:   "qptasks",
		Short: "whole-body task QP formulation lab",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.NewLevelLogger("qptasks", logLevel)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunInteractive(logging.NewNopLogger())
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".qptasks", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a scenario and store the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScenario,
	}
	scenarioFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().BoolVar(&live, "live", false, "draw the scene while running")
	runCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate of the live view")
	runCmd.Flags().StringVar(&plane, "plane", "xz", "projection plane of the live view")
	runCmd.Flags().StringVar(&jsonOut, "json", "", "also write the run as JSON to this file (- for stdout)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot task errors of a run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringSliceVar(&plotTasks, "task", nil, "tasks to plot (default all)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "render task errors of a run to an image",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringSliceVar(&plotTasks, "task", nil, "tasks to plot (default all)")
	exportCmd.Flags().BoolVar(&logScale, "log", false, "logarithmic error axis")
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file, format from extension (default <run_id>.png)")
	exportCmd.Flags().Float64Var(&widthIn, "width", 8, "width in inches")
	exportCmd.Flags().Float64Var(&heightIn, "height", 5, "height in inches")

	tuneCmd := &cobra.Command{
		Use:   "tune [preset]",
		Short: "grid search live parameters minimizing a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tuneScenario,
	}
	scenarioFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVarP(&tuneParams, "param", "p", nil, "task.param=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&metric, "metric", "final_error", "metric to minimize")

	compareCmd := &cobra.Command{
		Use:   "compare [preset] [integrator...]",
		Short: "compare integrators on the same scenario",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareIntegrators,
	}
	compareCmd.Flags().StringVar(&metric, "metric", "final_error", "metric to report")

	benchCmd := &cobra.Command{
		Use:   "bench [preset]",
		Short: "measure control cycles per second",
		Args:  cobra.ExactArgs(1),
		RunE:  benchScenario,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect [preset]",
		Short: "show the variable layout, tasks and live parameters of a scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE:  inspectScenario,
	}
	inspectCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tROBOTS\tTASKS\tDURATION")
			for _, name := range config.ListPresets() {
				cfg := config.GetPreset(name)
				tasks := lo.Map(cfg.Tasks, func(t config.TaskConfig, _ int) string { return t.Name })
				fmt.Fprintf(w, "%s\t%d\t%s\t%.1fs\n", name, len(cfg.Robots), strings.Join(tasks, ","), cfg.Duration)
			}
			return w.Flush()
		},
	}

	saveCmd := &cobra.Command{
		Use:   "save-config [preset] [file]",
		Short: "write a preset as a yaml scenario file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetPreset(args[0])
			if cfg == nil {
				return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
			}
			return config.Save(args[1], cfg)
		},
	}

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "interactive scenario browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []*config.Config
			if configFile != "" {
				cfg, err := config.Load(configFile)
				if err != nil {
					return err
				}
				extra = append(extra, cfg)
			}
			return tui.RunInteractive(logging.NewNopLogger(), extra...)
		},
	}
	tuiCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml) to list first")

	batchCmd := &cobra.Command{
		Use:   "batch [script]",
		Short: "run a yaml script of scenarios",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "sweep one live parameter over a linear range",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	scenarioFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "", "task.param to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 1, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 100, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 10, "number of values")
	sweepCmd.Flags().StringVar(&metric, "metric", "final_error", "metric to report")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, exportCmd, tuneCmd, sweepCmd, batchCmd, compareCmd, benchCmd, inspectCmd, presetsCmd, saveCmd, tuiCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func scenarioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	cmd.Flags().Float64Var(&dt, "dt", 0, "override the control period")
	cmd.Flags().Float64Var(&duration, "time", 0, "override the duration")
	cmd.Flags().StringVar(&integrator, "integrator", "", "override the integrator")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "update tasks concurrently")
	cmd.Flags().IntVar(&workers, "workers", 0, "task update workers (default GOMAXPROCS)")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "task.param=value applied before running (repeatable)")
}

// loadScenario resolves the scenario from --config or a preset name and
// applies the command line overrides.
func loadScenario(args []string) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case configFile != "":
		c, err := config.Load(configFile)
		if err != nil {
			return nil, err
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

	if dt > 0 {
		cfg.Dt = dt
	}
	if duration > 0 {
		cfg.Duration = duration
	}
	if integrator != "" {
		cfg.Integrator = integrator
	}
	if parallel {
		cfg.Parallel = true
		cfg.Workers = workers
	}
	return cfg, cfg.Validate()
}

func buildExperiment(cfg *config.Config) (*experiment.Experiment, error) {
	exp, err := experiment.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		name, value, err := parseAssignment(o)
		if err != nil {
			return nil, err
		}
		if err := exp.SetParam(name, value); err != nil {
			return nil, err
		}
	}
	return exp, nil
}

func parseAssignment(s string) (string, float64, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", 0, fmt.Errorf("expected task.param=value, got %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, errors.Wrapf(err, "value of %s", name)
	}
	return strings.TrimSpace(name), v, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(args)
	if err != nil {
		return err
	}
	exp, err := buildExperiment(cfg)
	if err != nil {
		return err
	}

	if live {
		p, err := viz.ParsePlane(plane)
		if err != nil {
			return err
		}
		scene := &viz.Scene{Plane: p, Tip: r3.Vector{Z: config.DefaultLinkLength}, Markers: tui.Targets(cfg)}
		scene.Lock(exp.Robots(), exp.InitialConfigs())
		r := tui.NewLiveRenderer(os.Stdout, cfg.Name, exp.Robots(), scene, frameRate)
		r.SetWeights(lo.MapKeys(lo.PickBy(exp.Params(), func(k string, _ float64) bool {
			return strings.HasSuffix(k, ".weight")
		}), func(_ float64, k string) string { return strings.TrimSuffix(k, ".weight") }))
		exp.Runner().AddObserver(r)
		r.Start()
		defer r.Stop()
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Infow("running", "scenario", cfg.Name, "dt", cfg.Dt, "duration", cfg.Duration, "tasks", len(exp.Tasks()))
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil {
		return err
	}
	logger.Infow("done", "steps", result.StepsTaken, "elapsed", time.Since(start))

	printMetrics(result.Metrics)

	if jsonOut != "" {
		if err := writeJSON(cfg, result); err != nil {
			return err
		}
	}
	if noSave {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, result)
	if err != nil {
		return err
	}
	fmt.Printf("\nsaved: %s\n", runID)
	return nil
}

func writeJSON(cfg *config.Config, result *sim.Result) error {
	if jsonOut == "-" {
		return storage.ExportJSON(os.Stdout, cfg, result)
	}
	f, err := os.Create(jsonOut)
	if err != nil {
		return err
	}
	defer f.Close()
	return storage.ExportJSON(f, cfg, result)
}

func printMetrics(m map[string]float64) {
	names := lo.Keys(m)
	sort.Strings(names)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	for _, n := range names {
		fmt.Fprintf(w, "%s\t%.6g\n", n, m[n])
	}
	w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSCENARIO\tTIME\tDURATION\tDT\tINTEG\tTASKS\tFINAL_ERROR")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%.4fs\t%s\t%d\t%.3e\n",
			run.ID,
			run.Scenario,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Integrator,
			len(run.Tasks),
			run.Metrics["final_error"],
		)
	}
	return w.Flush()
}

func loadCurves(runID string) (export.Curves, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return export.Curves{}, err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return export.Curves{}, err
	}
	return export.FromSeries(meta.Scenario, series).Select(plotTasks...)
}

func plotRun(cmd *cobra.Command, args []string) error {
	c, err := loadCurves(args[0])
	if err != nil {
		return err
	}
	if len(c.Times) == 0 {
		return fmt.Errorf("run %s has no samples", args[0])
	}

	for i, name := range c.Names {
		data := make([]float64, len(c.Times))
		for k := range data {
			data[k] = c.Values[k][i]
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s error over %.2fs", name, c.Times[len(c.Times)-1])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	c, err := loadCurves(args[0])
	if err != nil {
		return err
	}
	path := outFile
	if path == "" {
		path = args[0] + ".png"
	}
	if err := export.Save(c, logScale, vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch, path); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

func parseRange(s string) (string, []float64, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("expected task.param=v1,v2,..., got %q", s)
	}
	var vals []float64
	for _, f := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, errors.Wrapf(err, "range of %s", name)
		}
		vals = append(vals, v)
	}
	return strings.TrimSpace(name), vals, nil
}

func tuneScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(args)
	if err != nil {
		return err
	}
	var names []string
	var ranges [][]float64
	for _, p := range tuneParams {
		name, vals, err := parseRange(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}
	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	gs.SetWorkers(workers)

	ctx, cancel := signalContext()
	defer cancel()

	logger.Infow("tuning", "scenario", cfg.Name, "points", gs.Size(), "metric", metric)
	quiet := logging.NewNopLogger()
	best, all, err := gs.Search(ctx, func() (*experiment.Experiment, error) {
		exp, err := experiment.Build(cfg, quiet)
		if err != nil {
			return nil, err
		}
		for _, o := range overrides {
			name, value, err := parseAssignment(o)
			if err != nil {
				return nil, err
			}
			if err := exp.SetParam(name, value); err != nil {
				return nil, err
			}
		}
		return exp, nil
	}, metric)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(metric))
	for _, p := range all {
		row := lo.Map(names, func(n string, _ int) string { return strconv.FormatFloat(p.Params[n], 'g', 6, 64) })
		val := fmt.Sprintf("%.4e", p.Value)
		if p.Err != nil {
			val = "error: " + p.Err.Error()
		}
		fmt.Fprintln(w, strings.Join(row, "\t")+"\t"+val)
	}
	w.Flush()

	fmt.Printf("\nbest %s = %.4e at", metric, best.Value)
	for _, n := range names {
		fmt.Printf(" %s=%g", n, best.Params[n])
	}
	fmt.Println()
	return nil
}

func compareIntegrators(cmd *cobra.Command, args []string) error {
	cfg := config.GetPreset(args[0])
	if cfg == nil {
		return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
	}

	ctx, cancel := signalContext()
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "INTEGRATOR\t%s\tTIME\n", strings.ToUpper(metric))
	for _, name := range args[1:] {
		c := config.GetPreset(args[0])
		c.Integrator = name
		exp, err := experiment.Build(c, logger)
		if err != nil {
			return err
		}
		start := time.Now()
		result, err := exp.Run(ctx)
		if err != nil {
			fmt.Fprintf(w, "%s\terror: %v\t\n", name, err)
			continue
		}
		v, ok := result.Metrics[metric]
		if !ok {
			v = math.NaN()
		}
		fmt.Fprintf(w, "%s\t%.6e\t%v\n", name, v, time.Since(start).Round(time.Millisecond))
	}
	return w.Flush()
}

func benchScenario(cmd *cobra.Command, args []string) error {
	durations := []float64{0.5, 2}
	dts := []float64{0.001, 0.005, 0.02}

	fmt.Printf("benchmarking %s\n\n", args[0])
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DURATION\tDT\tSTEPS\tTIME\tCYCLES/SEC")

	for _, dur := range durations {
		for _, step := range dts {
			cfg := config.GetPreset(args[0])
			if cfg == nil {
				return fmt.Errorf("unknown preset: %s", args[0])
			}
			cfg.Duration, cfg.Dt = dur, step
			exp, err := experiment.Build(cfg, logging.NewNopLogger())
			if err != nil {
				return err
			}
			start := time.Now()
			result, err := exp.Run(context.Background())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			fmt.Fprintf(w, "%.1fs\t%.4fs\t%d\t%v\t%.0f\n",
				dur, step, result.StepsTaken, elapsed, float64(result.StepsTaken)/elapsed.Seconds())
		}
	}
	return w.Flush()
}

func inspectScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(args)
	if err != nil {
		return err
	}
	exp, err := experiment.Build(cfg, logger)
	if err != nil {
		return err
	}
	l, err := exp.Runner().Layout()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d variables (%d joint accelerations, %d contact forces)\n\n",
		cfg.Name, l.NrVars(), l.TotalAlphaD(), l.NrVars()-l.TotalAlphaD())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BLOCK\tBEGIN\tLEN")
	for i, mb := range exp.Robots() {
		b, err := l.Robot(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "robot %s\t%d\t%d\n", mb.Name(), b.Begin, b.Len)
	}
	for _, c := range l.Contacts() {
		fmt.Fprintf(w, "contact %s\t%d\t%d\n", c.ID, c.Begin, c.Len)
	}
	w.Flush()

	fmt.Println()
	params := exp.Params()
	keys := lo.Keys(params)
	sort.Strings(keys)
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PARAM\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%g\n", k, params[k])
	}
	return w.Flush()
}

func runBatch(cmd *cobra.Command, args []string) error {
	script, err := automation.LoadScript(args[0])
	if err != nil {
		return err
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunScript(ctx, script, st, logger)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSCENARIO\tSTEPS\tFINAL_ERROR\tRUN")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%d\t%.4e\t%s\n", i+1, r.Scenario, r.Result.StepsTaken, r.Result.Metrics["final_error"], r.RunID)
	}
	w.Flush()
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadScenario(args)
	if err != nil {
		return err
	}
	if sweepParam == "" {
		return fmt.Errorf("--param is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	results, err := automation.RunSweep(ctx, &automation.ParameterSweep{
		Scenario: cfg,
		Param:    sweepParam,
		Min:      sweepMin,
		Max:      sweepMax,
		NumSteps: sweepSteps,
	}, logger)
	if err != nil {
		return err
	}

	values := make([]float64, len(results))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(sweepParam), strings.ToUpper(metric))
	for i, r := range results {
		values[i] = r.Metrics[metric]
		fmt.Fprintf(w, "%g\t%.4e\n", r.ParamValue, values[i])
	}
	w.Flush()

	fmt.Println()
	fmt.Println(asciigraph.Plot(values,
		asciigraph.Height(8),
		asciigraph.Width(60),
		asciigraph.Caption(fmt.Sprintf("%s vs %s", metric, sweepParam)),
	))
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/control"
	"github.com/san-kum/cosim/internal/cosim"
	"github.com/san-kum/cosim/internal/experiment"
	"github.com/san-kum/cosim/internal/logging"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/tui"
	"github.com/san-kum/cosim/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	logLevel   string
	// Overrides applied on top of the loaded config.
	controlOption string
	runDays       int
	timestep      float64
	brokerAddr    string
	// broker
	coreInit string
	// run
	live   bool
	noSave bool
	// plot / export
	column  string
	outFile string
	svgOut  string
	// analyze
	analyzeColumn string
	// sweep
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cosim",
		Short:         "building energy and controller co-simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cosim", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (logrus or helics_log_level_* name)")
	rootCmd.PersistentFlags().StringVar(&controlOption, "option", "", "control option")
	rootCmd.PersistentFlags().IntVar(&runDays, "days", 0, "run period in days")
	rootCmd.PersistentFlags().Float64Var(&timestep, "timestep", 0, "federate period in seconds")
	rootCmd.PersistentFlags().StringVar(&brokerAddr, "broker", "", "broker address host:port")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run broker, building and controller in one process",
		Args:  cobra.NoArgs,
		RunE:  runScenario,
	}
	runCmd.Flags().BoolVar(&live, "live", false, "show live progress")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	brokerCmd := &cobra.Command{
		Use:   "broker",
		Short: "serve the federation broker over TCP",
		Args:  cobra.NoArgs,
		RunE:  runBroker,
	}
	brokerCmd.Flags().StringVar(&coreInit, "core-init", "", `core init string, e.g. "--federates=2" (overrides broker.federates)`)

	controllerCmd := &cobra.Command{
		Use:   "controller",
		Short: "run the controller federate against a broker",
		Args:  cobra.NoArgs,
		RunE:  runController,
	}
	controllerCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	buildingCmd := &cobra.Command{
		Use:   "building",
		Short: "run the building federate against a broker",
		Args:  cobra.NoArgs,
		RunE:  runBuilding,
	}

	compareCmd := &cobra.Command{
		Use:   "compare [option] [option] ...",
		Short: "run several control options side by side",
		Args:  cobra.MinimumNArgs(2),
		RunE:  compareOptions,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&column, "column", "", "plot a single column")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&svgOut, "svg", "", "also write an SVG chart of the demand and setpoints")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "spectrum and daily profile of a stored series",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().StringVar(&analyzeColumn, "column", config.FacilityDemandKey, "column to analyze")

	batchCmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "run a scripted batch of co-simulations",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the runs")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep a building model parameter",
		Args:  cobra.NoArgs,
		RunE:  runParameterSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "chiller_cop", "parameter to sweep")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 3, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 7, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range config.ListPresets() {
				cfg := config.GetPreset(p)
				fmt.Printf("  %-16s %s\n", p, viz.Subtle.Render(fmt.Sprintf("%s, %d days", cfg.ControlOption, cfg.RunPeriodDays)))
			}
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the effective configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE:  writeConfig,
	}

	optionsCmd := &cobra.Command{
		Use:   "options",
		Short: "list control options",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range control.NewRegistry().List() {
				fmt.Printf("  %s\n", name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, brokerCmd, controllerCmd, buildingCmd, compareCmd, sweepCmd, batchCmd,
		listCmd, plotCmd, analyzeCmd, exportCmd, presetsCmd, configCmd, optionsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, viz.StatusFailed.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

// loadConfig resolves preset, config file and flag overrides, then
// configures logging from the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	switch {
	case preset != "":
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	case configFile != "":
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	default:
		cfg = config.DefaultConfig()
	}

	flags := cmd.Flags()
	if flags.Changed("option") {
		cfg.ControlOption = controlOption
	}
	if flags.Changed("days") {
		cfg.RunPeriodDays = runDays
	}
	if flags.Changed("timestep") {
		cfg.TimestepSeconds = timestep
	}
	if flags.Changed("broker") {
		cfg.Broker.Addr = brokerAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logging.Configure(level)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	exp := experiment.New(cfg)
	start := time.Now()

	var out *experiment.Outcome
	if live {
		out, err = runLive(ctx, cfg, exp)
	} else {
		fmt.Printf("running %s (%s, %d days, period %.0fs)\n", cfg.Name, cfg.ControlOption, cfg.RunPeriodDays, cfg.TimestepSeconds)
		out, err = exp.Run(ctx, experiment.Options{})
	}
	if err != nil {
		return err
	}

	res := out.Controller
	fmt.Printf("\n%s %d steps in %s\n\n", viz.StatusDone.Render("done:"), res.StepsTaken, time.Since(start).Truncate(time.Millisecond))
	fmt.Print(viz.MetricsTable(res.Metrics))

	if noSave {
		return nil
	}
	return saveRun(cfg, out.BrokerID, res)
}

func runLive(ctx context.Context, cfg *config.Config, exp *experiment.Experiment) (*experiment.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewLiveModel(cfg.Name, cfg.ControlOption, cfg.TotalSeconds(), cancel)
	p := tea.NewProgram(model)

	// Log lines would tear the live view.
	logrus.SetOutput(io.Discard)
	defer logging.Configure(cfg.LogLevel)

	var (
		out    *experiment.Outcome
		runErr error
	)
	go func() {
		out, runErr = exp.Run(ctx, experiment.Options{Observers: []cosim.Observer{tui.Observer(p)}})
		var res *cosim.Result
		if out != nil {
			res = out.Controller
		}
		p.Send(tui.DoneMsg{Result: res, Err: runErr})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	if m, ok := final.(tui.LiveModel); ok && !m.Done() {
		return nil, fmt.Errorf("run stopped")
	}
	return out, runErr
}

func saveRun(cfg *config.Config, brokerID string, res *cosim.Result) error {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, brokerID, res)
	if err != nil {
		return err
	}
	fmt.Printf("\nsaved: %s\n", runID)
	return nil
}

func compareOptions(cmd *cobra.Command, args []string) error {
	base, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	sweep := cosim.NewSweep()
	for _, option := range args {
		cfg := *base
		cfg.ControlOption = option
		cfg.Name = option
		sweep.Add(option, experiment.New(&cfg).Scenario(experiment.Options{}))
	}

	fmt.Printf("comparing %d control options over %d days\n\n", sweep.Len(), base.RunPeriodDays)
	results, err := sweep.Run(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0)
	for k := range results[0].Metrics {
		names = append(names, k)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "OPTION\t%s\n", strings.ToUpper(strings.Join(names, "\t")))
	for _, res := range results {
		row := []string{res.ControlOption}
		for _, n := range names {
			row = append(row, fmt.Sprintf("%.4g", res.Metrics[n]))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()

	series := make([][]float64, len(results))
	for i, res := range results {
		series[i] = res.Sensors[config.FacilityDemandKey]
	}
	if graph := viz.PlotSeries(series, args, "facility demand (W)", viz.DefaultPlotHeight, viz.DefaultPlotWidth); graph != "" {
		fmt.Println()
		fmt.Println(graph)
	}
	return nil
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
	fmt.Fprintln(w, "ID\tOPTION\tDAYS\tSTEPS\tENERGY (kWh)\tTIMESTAMP")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f\t%s\n",
			run.ID, run.ControlOption, run.RunPeriodDays, run.Steps,
			run.Metrics["energy_kwh"], run.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	steps, err := st.LoadSteps(runID)
	if err != nil {
		return err
	}
	if len(steps.Times) == 0 {
		return fmt.Errorf("run %s has no steps", runID)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("option: %s\n", meta.ControlOption)
	fmt.Printf("steps: %d\n\n", len(steps.Times))

	cols := steps.Header[2:]
	if column != "" {
		if _, ok := steps.Column(column); !ok {
			return fmt.Errorf("unknown column %q (available: %v)", column, cols)
		}
		cols = []string{column}
	}

	for _, name := range cols {
		data, _ := steps.Column(name)
		caption := name
		if i := columnIndex(name); i >= 0 && i < len(meta.Actuators) {
			caption = meta.Actuators[i]
		}
		if graph := viz.Plot(data, caption, 10, viz.DefaultPlotWidth); graph != "" {
			fmt.Println(graph)
			fmt.Println()
		}
	}
	return nil
}

// columnIndex maps setpoint columns "u0".."uN" to actuator indices.
func columnIndex(name string) int {
	var i int
	if _, err := fmt.Sscanf(name, "u%d", &i); err != nil {
		return -1
	}
	return i
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if svgOut != "" {
		if err := exportSVG(st, args[0], svgOut); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", svgOut)
	}
	if outFile == "" {
		return st.ExportJSON(os.Stdout, args[0])
	}
	if err := st.ExportJSONFile(outFile, args[0]); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", args[0], outFile)
	return nil
}

func writeConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[0])
	return nil
}

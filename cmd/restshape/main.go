package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/restshape/internal/config"
	"github.com/san-kum/restshape/internal/export"
	"github.com/san-kum/restshape/internal/metrics"
	"github.com/san-kum/restshape/internal/sim"
	"github.com/san-kum/restshape/internal/storage"
	"github.com/san-kum/restshape/internal/viz"
	"github.com/spf13/cobra"
)

var (
	dataDir string
	verbose bool
	logger  *log.Logger

	preset    string
	noSave    bool
	jsonOut   bool
	threshold float64

	probeState string
	probeDOF   int
	probeAxis  string
	rotate     bool
	from       float64
	to         float64
	samples    int
	svgPath    string

	plotState string
	plotDOF   int

	outPath string
	theme   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "restshape",
		Short:        "rest-shape spring force field workbench",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.WarnLevel
			if verbose {
				level = log.DebugLevel
			}
			logger = log.NewWithOptions(os.Stderr, log.Options{Level: level, Prefix: "restshape"})
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".restshape", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [scene.yaml]",
		Short: "evaluate the frames of a scene",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScene,
	}
	runCmd.Flags().StringVar(&preset, "preset", "", "use a built-in scene")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "print the result as JSON")
	runCmd.Flags().Float64Var(&threshold, "threshold", 100, "force magnitude counted as unstable")

	sweepCmd := &cobra.Command{
		Use:   "sweep [scene.yaml]",
		Short: "plot force against the displacement of one DOF",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sweepScene,
	}
	sweepCmd.Flags().StringVar(&preset, "preset", "", "use a built-in scene")
	sweepCmd.Flags().StringVar(&probeState, "state", "", "state to displace (default: first state)")
	sweepCmd.Flags().IntVar(&probeDOF, "dof", 0, "DOF to displace")
	sweepCmd.Flags().StringVar(&probeAxis, "axis", "x", "axis: x, y or z")
	sweepCmd.Flags().BoolVar(&rotate, "rotate", false, "rotate about the axis instead of translating")
	sweepCmd.Flags().Float64Var(&from, "from", -1, "first displacement")
	sweepCmd.Flags().Float64Var(&to, "to", 1, "last displacement")
	sweepCmd.Flags().IntVar(&samples, "samples", 41, "number of samples")
	sweepCmd.Flags().StringVar(&svgPath, "svg", "", "also write the curve as SVG")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot forces of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plotState, "state", "", "state of the plotted DOF")
	plotCmd.Flags().IntVar(&plotDOF, "dof", -1, "plot one DOF instead of the peak force")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run forces to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in scenes",
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [preset] [scene.yaml]",
		Short: "write a built-in scene to a file",
		Args:  cobra.ExactArgs(2),
		RunE:  writePreset,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect [scene.yaml]",
		Short: "nudge DOFs interactively and watch the forces",
		Args:  cobra.MaximumNArgs(1),
		RunE:  inspectScene,
	}
	inspectCmd.Flags().StringVar(&preset, "preset", "", "use a built-in scene")
	inspectCmd.Flags().StringVar(&theme, "theme", "cyberpunk", "color theme: "+strings.Join(viz.ThemeNames(), ", "))

	rootCmd.AddCommand(runCmd, sweepCmd, listCmd, plotCmd, exportCmd, exportCSVCmd, presetsCmd, initCmd, inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadScene reads the scene named by --preset or by the file argument.
func loadScene(args []string) (*config.Config, error) {
	if preset != "" {
		cfg := config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (have %s)", preset, strings.Join(config.ListPresets(), ", "))
		}
		return cfg, nil
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("give a scene file or --preset")
	}
	cfg, err := config.Load(args[0])
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", args[0], err)
	}
	return cfg, nil
}

func runScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadScene(args)
	if err != nil {
		return err
	}

	scene, err := sim.BuildScene(cfg, logger)
	if err != nil {
		return err
	}

	simulator := sim.New(scene, logger)
	for _, m := range metrics.Standard() {
		simulator.AddMetric(m)
	}
	simulator.AddMetric(metrics.NewStability(threshold))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	simCfg := sim.ConfigFromScene(cfg)
	start := time.Now()
	result, err := simulator.Run(ctx, sim.FramesFromScene(cfg), simCfg)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if jsonOut {
		return storage.ExportJSONStdout(storage.NewExportData(scene.Name, simCfg, result))
	}

	if err := printForces(result); err != nil {
		return err
	}
	for _, e := range result.Errors {
		fmt.Println(viz.ErrorStyle.Render(e.Error()))
	}

	fmt.Printf("\nscene: %s\n", scene.Name)
	fmt.Printf("frames: %d in %v\n", result.FramesRun, elapsed)
	if n := len(result.Frames); n > 0 {
		fmt.Printf("stiffness diagonal (last frame): %s\n", formatDiagonal(result.Frames[n-1].Diagonal))
	}

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(storage.NewRunMetadata(scene, simCfg), result)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", runID)
	}

	fmt.Println("\nmetrics:")
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s\n", viz.Metric(name+":", fmt.Sprintf("%.6f", result.Metrics[name])))
	}

	return nil
}

func printForces(result *sim.Result) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FRAME\tTIME\tSTATE\tDOF\tFORCE\tTORQUE")

	for i, fr := range result.Frames {
		names := make([]string, 0, len(fr.Forces))
		for name := range fr.Forces {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			for dof, d := range fr.Forces[name] {
				if d.IsZero() {
					continue
				}
				fmt.Fprintf(w, "%d\t%.4f\t%s\t%d\t%s\t%s\n",
					i, fr.Time, name, dof, formatVec(d.VCenter), formatVec(d.VOrientation))
			}
		}
	}

	return w.Flush()
}

func formatVec(v mgl64.Vec3) string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v[0], v[1], v[2])
}

// formatDiagonal lists the non-zero diagonal entries as row:value.
func formatDiagonal(diag []float64) string {
	var parts []string
	for row, v := range diag {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%d:%g", row, v))
		}
	}
	if len(parts) == 0 {
		return "empty"
	}
	return strings.Join(parts, " ")
}

func parseAxis(name string) (mgl64.Vec3, int, error) {
	switch strings.ToLower(name) {
	case "x":
		return mgl64.Vec3{1, 0, 0}, 0, nil
	case "y":
		return mgl64.Vec3{0, 1, 0}, 1, nil
	case "z":
		return mgl64.Vec3{0, 0, 1}, 2, nil
	}
	return mgl64.Vec3{}, 0, fmt.Errorf("unknown axis %q", name)
}

func sweepScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadScene(args)
	if err != nil {
		return err
	}
	axis, component, err := parseAxis(probeAxis)
	if err != nil {
		return err
	}
	state := probeState
	if state == "" {
		state = cfg.States[0].Name
	}

	probe := sim.Probe{State: state, DOF: probeDOF, Axis: axis, Rotate: rotate}
	points, err := sim.NewSweep(cfg, logger).Run(context.Background(), probe, sim.Linspace(from, to, samples), sim.ConfigFromScene(cfg))
	if err != nil {
		return err
	}

	data := make([]float64, len(points))
	label := "force"
	for i, p := range points {
		if rotate {
			data[i] = p.Torque[component]
		} else {
			data[i] = p.Force[component]
		}
	}
	if rotate {
		label = "torque"
	}

	graph := asciigraph.Plot(data,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("%s %s on %s[%d] for %s in [%g, %g]", label, probeAxis, state, probeDOF, probeAxis, from, to)),
	)
	fmt.Println(graph)

	if n := len(points); n > 1 && points[n-1].Value != points[0].Value {
		slope := (data[n-1] - data[0]) / (points[n-1].Value - points[0].Value)
		fmt.Printf("\neffective stiffness: %g\n", -slope)
	}

	if svgPath != "" {
		if rotate {
			component += 3
		}
		svg := export.CurveToSVG(export.SweepPoints(points, component), 640, 360, "#00ff88")
		if err := export.WriteSVG(svgPath, svg); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgPath)
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
	fmt.Fprintln(w, "ID\tSCENE\tTIME\tFRAMES\tSTATES\tFORCEFIELDS\tERRORS")

	for _, run := range runs {
		states := make([]string, len(run.States))
		for i, s := range run.States {
			states[i] = fmt.Sprintf("%s(%s×%d)", s.Name, s.Template, s.Size)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%d\n",
			run.ID,
			run.Scene,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Frames,
			strings.Join(states, " "),
			strings.Join(run.ForceFields, " "),
			len(run.Errors),
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, result, err := st.LoadResult(runID)
	if err != nil {
		return err
	}

	if len(result.Frames) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("scene: %s\n", meta.Scene)
	fmt.Printf("frames: %d\n\n", len(result.Frames))

	data := make([]float64, len(result.Frames))
	caption := "peak |f| per frame"
	if plotDOF >= 0 {
		state := plotState
		if state == "" && len(meta.States) > 0 {
			state = meta.States[0].Name
		}
		caption = fmt.Sprintf("|f| on %s[%d]", state, plotDOF)
		for i, fr := range result.Frames {
			f, ok := fr.Forces[state]
			if !ok || plotDOF >= len(f) {
				return fmt.Errorf("%s[%d] is not in run %s", state, plotDOF, runID)
			}
			data[i] = f[plotDOF].Norm()
		}
	} else {
		for i, fr := range result.Frames {
			for _, f := range fr.Forces {
				for _, d := range f {
					data[i] = max(data[i], d.Norm())
				}
			}
		}
	}

	graph := asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)

	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}

	data := storage.NewExportData(meta.Scene, sim.Config{Dt: meta.Dt, KFactor: meta.KFactor, BFactor: meta.BFactor}, result)
	if outPath == "" {
		return storage.ExportJSONStdout(data)
	}
	return storage.ExportJSON(outPath, data)
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outPath != "" {
		return st.ExportCSV(args[0], outPath)
	}

	_, result, err := st.LoadResult(args[0])
	if err != nil {
		return err
	}
	return storage.WriteForcesCSV(os.Stdout, result)
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tSTATES\tFORCEFIELDS\tFRAMES")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		states := make([]string, len(cfg.States))
		for i, s := range cfg.States {
			states[i] = fmt.Sprintf("%s(%s×%d)", s.Name, s.Template, s.StateSize())
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", name, strings.Join(states, " "), len(cfg.ForceFields), len(cfg.Frames))
	}
	return w.Flush()
}

func writePreset(cmd *cobra.Command, args []string) error {
	cfg := config.GetPreset(args[0])
	if cfg == nil {
		return fmt.Errorf("unknown preset %q", args[0])
	}
	if err := config.Save(args[1], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", args[1])
	return nil
}

func inspectScene(cmd *cobra.Command, args []string) error {
	cfg, err := loadScene(args)
	if err != nil {
		return err
	}

	scene, err := sim.BuildScene(cfg, logger)
	if err != nil {
		return err
	}

	p := tea.NewProgram(viz.NewInspector(scene, sim.ConfigFromScene(cfg), theme), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

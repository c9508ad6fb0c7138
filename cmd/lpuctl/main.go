package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/dustin/go-humanize"

	"lpukit/internal/storage"
	"lpukit/pkg/lpukit"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:], out)
	case "inspect":
		return runInspect(ctx, args[1:], out)
	case "models":
		return runModels(ctx, args[1:], out)
	case "runs":
		return runRuns(ctx, args[1:], out)
	case "export":
		return runExport(ctx, args[1:], out)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	graphPath := fs.String("graph", "", "graph JSON path")
	id := fs.String("id", "", "unit id (random when empty)")
	dt := fs.Float64("dt", lpukit.DefaultDT, "time step in seconds")
	steps := fs.Int("steps", 1, "number of ticks to run")
	inputPath := fs.String("input", "", "external input path")
	inputKind := fs.String("input-kind", "csv", "external input backend: csv|sqlite")
	inputSeries := fs.String("input-series", "", "series name inside a sqlite input")
	inputWindow := fs.Int("input-window", 0, "frames loaded per input refill")
	outputKind := fs.String("output", "csv", "state output backend: memory|csv|sqlite")
	outputDir := fs.String("output-dir", "outputs", "directory for output files")
	noOutput := fs.Bool("no-output", false, "disable state persistence")
	debug := fs.Bool("debug", false, "also dump delay buffer and synapse state")
	strict := fs.Bool("strict", false, "fail on unknown models instead of omitting them")
	workers := fs.Int("workers", 0, "kernel workers (0 = GOMAXPROCS)")
	logFormat := fs.String("log-format", "text", "log format: text|json")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logger, err := newLogger(*logFormat, *logLevel)
	if err != nil {
		return err
	}

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	cfg, err := loadOrDefaultRunConfig(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		cfg = runConfig{
			Request: lpukit.RunRequest{
				DT:          *dt,
				Steps:       *steps,
				InputKind:   *inputKind,
				InputWindow: *inputWindow,
			},
			OutputKind: *outputKind,
			OutputDir:  *outputDir,
		}
	}
	if err := overrideFromFlags(&cfg, setFlags, map[string]any{
		"graph":        *graphPath,
		"id":           *id,
		"dt":           *dt,
		"steps":        *steps,
		"input":        *inputPath,
		"input-kind":   *inputKind,
		"input-series": *inputSeries,
		"input-window": *inputWindow,
		"output":       *outputKind,
		"output-dir":   *outputDir,
		"no-output":    *noOutput,
		"debug":        *debug,
		"strict":       *strict,
		"workers":      *workers,
	}); err != nil {
		return err
	}
	if cfg.Request.GraphPath == "" {
		return usageError("run requires -graph")
	}

	client, err := lpukit.New(lpukit.Options{
		OutputKind: cfg.OutputKind,
		OutputDir:  cfg.OutputDir,
		Logger:     logger,
		Workers:    cfg.Workers,
	})
	if err != nil {
		return err
	}
	summary, err := client.Run(ctx, cfg.Request)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "run completed unit_id=%s ticks=%s elapsed=%s device_memory=%s\n",
		summary.UnitID, humanize.Comma(summary.Ticks), summary.Elapsed.Round(time.Microsecond), summary.DeviceMemory)
	fmt.Fprintf(out, "gpot=%d spike=%d synapses=%d inputs=%d refills=%d\n",
		summary.Layout.NumGpot, summary.Layout.NumSpike, summary.Layout.NumSynapses, summary.Layout.NumInputs, summary.InputRefills)
	if len(summary.Omitted) > 0 {
		fmt.Fprintf(out, "omitted_models=%s\n", strings.Join(summary.Omitted, ","))
	}
	for _, name := range summary.OutputFiles {
		fmt.Fprintf(out, "output=%s\n", filepath.Clean(name))
	}
	return nil
}

func runInspect(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	graphPath := fs.String("graph", "", "graph JSON path")
	dt := fs.Float64("dt", lpukit.DefaultDT, "time step in seconds")
	asJSON := fs.Bool("json", false, "print the layout as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *graphPath == "" {
		return usageError("inspect requires -graph")
	}
	client, err := lpukit.New(lpukit.Options{OutputKind: "memory"})
	if err != nil {
		return err
	}
	summary, err := client.Inspect(ctx, lpukit.InspectRequest{GraphPath: *graphPath, DT: *dt})
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary.Layout)
	}

	l := summary.Layout
	fmt.Fprintf(out, "dt=%g gpot=%d spike=%d synapses=%d inputs=%d synapse_base=%d\n",
		l.DT, l.NumGpot, l.NumSpike, l.NumSynapses, l.NumInputs, l.SynapseBase)
	fmt.Fprintf(out, "gpot_depth=%d spike_depth=%d buffer_size=%s state_size=%s\n",
		l.GpotDepth, l.SpikeDepth, bufferSize(l.GpotDepth, l.NumGpot, l.SpikeDepth, l.NumSpike), stateSize(l.NumGpot, l.NumSpike, l.NumSynapses+l.NumInputs))
	fmt.Fprintf(out, "ports_in=%d ports_out=%d\n", l.PortsIn, l.PortsOut)
	for _, g := range append(l.Neurons, l.Synapses...) {
		fmt.Fprintf(out, "group model=%s kind=%s start=%d count=%s fan_in=%d\n",
			g.Model, g.Kind, g.Start, humanize.Comma(int64(g.Count)), g.FanIn)
	}
	if sel := summary.Selectors.In(); sel != "" {
		fmt.Fprintf(out, "selectors_in=%s\n", sel)
	}
	if sel := summary.Selectors.Out(); sel != "" {
		fmt.Fprintf(out, "selectors_out=%s\n", sel)
	}
	if len(summary.Missing) > 0 {
		fmt.Fprintf(out, "missing_models=%s\n", strings.Join(summary.Missing, ","))
	}
	return nil
}

func runModels(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := lpukit.New(lpukit.Options{OutputKind: "memory"})
	if err != nil {
		return err
	}
	m := client.Models()
	for _, name := range m.Neurons {
		fmt.Fprintf(out, "neuron=%s\n", name)
	}
	for _, name := range m.Synapses {
		fmt.Fprintf(out, "synapse=%s\n", name)
	}
	fmt.Fprintf(out, "series_backends=%s\n", strings.Join(storage.Kinds(), ","))
	return nil
}

func runRuns(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	outputDir := fs.String("output-dir", "outputs", "directory holding recorded runs")
	limit := fs.Int("limit", 0, "maximum runs to list (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := lpukit.New(lpukit.Options{OutputDir: *outputDir})
	if err != nil {
		return err
	}
	entries, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "unit_id=%s created_at=%s graph=%s ticks=%s gpot=%d spike=%d synapses=%d refills=%d elapsed_ms=%d\n",
			e.UnitID, e.CreatedAtUTC, e.GraphPath, humanize.Comma(e.Ticks), e.Gpot, e.Spike, e.Synapses, e.InputRefills, e.ElapsedMS)
	}
	return nil
}

func runExport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	outputDir := fs.String("output-dir", "outputs", "directory holding recorded runs")
	unitID := fs.String("id", "", "unit id to export")
	to := fs.String("to", "exports", "export destination directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *unitID == "" {
		return usageError("export requires -id")
	}
	client, err := lpukit.New(lpukit.Options{OutputDir: *outputDir})
	if err != nil {
		return err
	}
	dir, err := client.Export(ctx, *unitID, *to)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "exported unit_id=%s to=%s\n", *unitID, filepath.Clean(dir))
	return nil
}

func bufferSize(gpotDepth, numGpot, spikeDepth, numSpike int) string {
	bytes := gpotDepth*numGpot*8 + spikeDepth*numSpike*4
	return datasize.ByteSize(bytes).HumanReadable()
}

func stateSize(numGpot, numSpike, synapseSlots int) string {
	bytes := numGpot*8 + numSpike*4 + synapseSlots*8
	return datasize.ByteSize(bytes).HumanReadable()
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, errors.New("log-format must be text or json")
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: lpuctl <run|inspect|models|runs|export> [flags]", msg)
}

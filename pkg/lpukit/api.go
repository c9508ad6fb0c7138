// Package lpukit is the public entry point for building and running a
// processing unit from a graph file.
package lpukit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"lpukit/internal/engine"
	"lpukit/internal/graph"
	"lpukit/internal/index"
	"lpukit/internal/input"
	"lpukit/internal/model"
	"lpukit/internal/models"
	"lpukit/internal/stats"
	"lpukit/internal/storage"
)

const (
	defaultOutputKind = "csv"
	defaultOutputDir  = "outputs"

	// DefaultDT is the simulation step in seconds.
	DefaultDT = 1e-4
)

type Options struct {
	OutputKind string
	OutputDir  string
	Logger     *slog.Logger
	Registry   *models.Registry
	Workers    int
}

type Client struct {
	outputKind string
	outputDir  string
	logger     *slog.Logger
	registry   *models.Registry
	workers    int
}

type RunRequest struct {
	GraphPath string
	Graph     *model.Graph // used instead of GraphPath when set
	ID        string
	DT        float64
	Steps     int

	InputPath   string
	InputKind   string
	InputSeries string
	InputWindow int

	NoOutput bool
	Debug    bool
	Strict   bool
}

type RunSummary struct {
	UnitID       string
	Ticks        int64
	Layout       index.Layout
	Omitted      []string
	InputRefills int
	OutputFiles  []string
	Final        engine.Snapshot
	DeviceMemory string
	Elapsed      time.Duration
}

type InspectRequest struct {
	GraphPath string
	DT        float64
}

type InspectSummary struct {
	Layout    index.Layout
	Selectors graph.Selectors
	Models    []string
	Missing   []string // graph models the registry cannot resolve
}

type ModelsSummary struct {
	Neurons  []string
	Synapses []string
}

func New(opts Options) (*Client, error) {
	outputKind := opts.OutputKind
	if outputKind == "" {
		outputKind = defaultOutputKind
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = models.Default()
	}
	if _, err := storage.NewSeries(outputKind, "", "probe", 0); err != nil {
		return nil, err
	}
	return &Client{
		outputKind: outputKind,
		outputDir:  outputDir,
		logger:     logger,
		registry:   registry,
		workers:    opts.Workers,
	}, nil
}

func (c *Client) loadGraph(path string, g *model.Graph) (model.Graph, error) {
	if g != nil {
		return *g, nil
	}
	if path == "" {
		return model.Graph{}, errors.New("graph path is required")
	}
	return graph.LoadFile(path)
}

// Run builds a unit, steps it req.Steps times and closes it.
func (c *Client) Run(ctx context.Context, req RunRequest) (summary RunSummary, err error) {
	if req.DT <= 0 {
		req.DT = DefaultDT
	}
	if req.Steps <= 0 {
		req.Steps = 1
	}
	g, err := c.loadGraph(req.GraphPath, req.Graph)
	if err != nil {
		return RunSummary{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	opts := engine.Options{
		DT:          req.DT,
		ID:          id,
		Debug:       req.Debug,
		Strict:      req.Strict,
		InputWindow: req.InputWindow,
		Logger:      c.logger,
		Registry:    c.registry,
		Workers:     c.workers,
	}
	if !req.NoOutput || req.Debug {
		if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
			return RunSummary{}, fmt.Errorf("create output dir: %w", err)
		}
		opts.DebugDir = c.outputDir
	}
	if !req.NoOutput {
		opts.OutputKind = c.outputKind
		opts.OutputPath = filepath.Join(c.outputDir, id)
	}
	if req.InputPath != "" {
		src, err := input.Open(ctx, req.InputKind, req.InputPath, req.InputSeries, externCount(g))
		if err != nil {
			return RunSummary{}, fmt.Errorf("open input: %w", err)
		}
		opts.Input = src
	}

	u, err := engine.New(g, opts)
	if err != nil {
		if opts.Input != nil {
			_ = opts.Input.Close()
		}
		return RunSummary{}, err
	}
	defer func() {
		err = errors.Join(err, u.Close())
	}()

	started := time.Now()
	if err := u.Start(ctx); err != nil {
		return RunSummary{}, err
	}
	if err := u.Run(ctx, req.Steps); err != nil {
		return RunSummary{}, err
	}
	final, err := u.Snapshot(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	summary = RunSummary{
		UnitID:       u.ID(),
		Ticks:        u.Tick(),
		Layout:       u.Space().Layout(),
		Omitted:      u.Omitted(),
		InputRefills: u.InputRefills(),
		Final:        final,
		DeviceMemory: u.Device().Allocated().HumanReadable(),
		Elapsed:      time.Since(started),
	}
	if opts.OutputKind != "" && opts.OutputKind != "memory" {
		for _, suffix := range []string{"gpot", "spike"} {
			name := storage.FileName(opts.OutputPath, suffix, opts.OutputKind)
			if _, statErr := os.Stat(name); statErr == nil {
				summary.OutputFiles = append(summary.OutputFiles, name)
			}
		}
	}
	if !req.NoOutput {
		if err := c.record(req, summary); err != nil {
			return RunSummary{}, err
		}
	}
	return summary, nil
}

func (c *Client) record(req RunRequest, summary RunSummary) error {
	runDir, err := stats.WriteRunArtifacts(c.outputDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			UnitID:      summary.UnitID,
			GraphPath:   req.GraphPath,
			DT:          req.DT,
			Steps:       req.Steps,
			InputPath:   req.InputPath,
			InputKind:   req.InputKind,
			InputSeries: req.InputSeries,
			InputWindow: req.InputWindow,
			OutputKind:  c.outputKind,
			Debug:       req.Debug,
			Strict:      req.Strict,
			Workers:     c.workers,
		},
		Layout: summary.Layout,
		Final:  summary.Final,
	})
	if err != nil {
		return fmt.Errorf("write run artifacts: %w", err)
	}
	c.logger.Debug("run artifacts written", slog.String("dir", runDir))
	return stats.AppendRunIndex(c.outputDir, stats.RunIndexEntry{
		UnitID:       summary.UnitID,
		GraphPath:    req.GraphPath,
		Ticks:        summary.Ticks,
		Gpot:         summary.Layout.NumGpot,
		Spike:        summary.Layout.NumSpike,
		Synapses:     summary.Layout.NumSynapses,
		InputRefills: summary.InputRefills,
		Omitted:      summary.Omitted,
		OutputFiles:  summary.OutputFiles,
		ElapsedMS:    summary.Elapsed.Milliseconds(),
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Runs lists recorded runs under the output directory, newest first.
func (c *Client) Runs(_ context.Context, limit int) ([]stats.RunIndexEntry, error) {
	entries, err := stats.ListRunIndex(c.outputDir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Export copies the recorded artifacts of one run to outDir.
func (c *Client) Export(_ context.Context, unitID, outDir string) (string, error) {
	return stats.ExportRunArtifacts(c.outputDir, unitID, outDir)
}

func externCount(g model.Graph) int {
	n := 0
	for _, grp := range g.Neurons {
		for _, ext := range grp.Extern {
			if ext {
				n++
			}
		}
	}
	return n
}

// Inspect compiles a graph and reports its packed layout without running it.
func (c *Client) Inspect(_ context.Context, req InspectRequest) (InspectSummary, error) {
	if req.DT <= 0 {
		req.DT = DefaultDT
	}
	g, err := graph.LoadFile(req.GraphPath)
	if err != nil {
		return InspectSummary{}, err
	}
	space, err := index.Build(g, req.DT)
	if err != nil {
		return InspectSummary{}, err
	}
	out := InspectSummary{
		Layout:    space.Layout(),
		Selectors: graph.ExtractSelectors(g),
		Models:    g.NeuronModels(),
	}
	for _, grp := range g.Neurons {
		if grp.IsPortInput() {
			continue
		}
		if _, err := c.registry.ResolveNeuron(grp.Model); err != nil {
			out.Missing = append(out.Missing, grp.Model)
		}
	}
	for _, grp := range g.Synapses {
		if grp.Model == models.PassSynapse {
			continue
		}
		if _, err := c.registry.ResolveSynapse(grp.Model); err != nil {
			out.Missing = append(out.Missing, grp.Model)
		}
	}
	return out, nil
}

// Models lists the registered model names.
func (c *Client) Models() ModelsSummary {
	return ModelsSummary{Neurons: c.registry.ListNeurons(), Synapses: c.registry.ListSynapses()}
}

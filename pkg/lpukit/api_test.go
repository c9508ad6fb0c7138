package lpukit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const chainGraph = `{
	"nodes": [
		{"id": "0", "attrs": {"model": "LeakyIntegrator", "spiking": false, "extern": true, "V0": -0.06, "tau": 0.02, "R": 1}},
		{"id": "1", "attrs": {"model": "LeakyIntegrator", "spiking": false, "extern": false, "public": true,
			"selector": "/a/out/gpot[0]", "V0": -0.06, "tau": 0.02, "R": 1}}
	],
	"edges": [
		{"pre": "0", "post": "1", "attrs": {"model": "PowerGPotGPot", "class": 3, "conductance": false, "delay": 0,
			"threshold": -0.06, "slope": 1, "power": 1, "saturation": 1}}
	]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRunWritesCSVOutputs(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.json", chainGraph)
	inputPath := writeFile(t, dir, "input.csv", "0.5\n0.5\n0.5\n")

	client, err := New(Options{OutputDir: filepath.Join(dir, "out")})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	summary, err := client.Run(context.Background(), RunRequest{
		GraphPath:   graphPath,
		ID:          "unit-a",
		Steps:       5,
		InputPath:   inputPath,
		InputWindow: 2,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.UnitID != "unit-a" || summary.Ticks != 5 {
		t.Fatalf("unexpected summary: id=%s ticks=%d", summary.UnitID, summary.Ticks)
	}
	if summary.Layout.NumGpot != 2 || summary.Layout.NumSynapses != 1 || summary.Layout.NumInputs != 1 {
		t.Fatalf("unexpected layout: %+v", summary.Layout)
	}
	if !reflect.DeepEqual(summary.Final.GpotIDs, []int{0, 1}) {
		t.Fatalf("unexpected final ids: got=%v want=[0 1]", summary.Final.GpotIDs)
	}
	if summary.InputRefills != 1 {
		t.Fatalf("unexpected refills: got=%d want=1", summary.InputRefills)
	}
	want := filepath.Join(dir, "out", "unit-a_gpot.csv")
	if !reflect.DeepEqual(summary.OutputFiles, []string{want}) {
		t.Fatalf("unexpected output files: got=%v want=[%s]", summary.OutputFiles, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 5 {
		t.Fatalf("unexpected row count: got=%d want=5", lines)
	}

	runs, err := client.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].UnitID != "unit-a" || runs[0].Ticks != 5 {
		t.Fatalf("unexpected run index: %+v", runs)
	}
	exported, err := client.Export(context.Background(), "unit-a", filepath.Join(dir, "export"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exported, "final_state.json")); err != nil {
		t.Fatalf("missing exported final state: %v", err)
	}
}

func TestRunWithoutOutputs(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.json", strings.Replace(chainGraph, `"extern": true`, `"extern": false`, 1))
	client, err := New(Options{OutputDir: filepath.Join(dir, "out")})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	summary, err := client.Run(context.Background(), RunRequest{GraphPath: graphPath, NoOutput: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Ticks != 1 || len(summary.OutputFiles) != 0 {
		t.Fatalf("unexpected summary: ticks=%d files=%v", summary.Ticks, summary.OutputFiles)
	}
	if summary.UnitID == "" {
		t.Fatal("expected generated unit id")
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output dir should not be created: %v", err)
	}
}

func TestInspectReportsLayoutAndMissingModels(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeFile(t, dir, "graph.json", strings.Replace(chainGraph, "PowerGPotGPot", "Unregistered", 1))
	client, err := New(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	summary, err := client.Inspect(context.Background(), InspectRequest{GraphPath: graphPath})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if summary.Layout.NumGpot != 2 || summary.Layout.GpotDepth != 1 {
		t.Fatalf("unexpected layout: %+v", summary.Layout)
	}
	if summary.Selectors.Out() != "/a/out/gpot[0]" {
		t.Fatalf("unexpected selectors: %q", summary.Selectors.Out())
	}
	if !reflect.DeepEqual(summary.Missing, []string{"Unregistered"}) {
		t.Fatalf("unexpected missing models: %v", summary.Missing)
	}
}

func TestNewRejectsUnknownOutputKind(t *testing.T) {
	if _, err := New(Options{OutputKind: "parquet"}); err == nil {
		t.Fatal("expected unsupported backend error")
	}
}

func TestModelsListsBuiltins(t *testing.T) {
	client, err := New(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got := client.Models()
	if !reflect.DeepEqual(got.Neurons, []string{"LeakyIAF", "LeakyIntegrator"}) {
		t.Fatalf("unexpected neurons: %v", got.Neurons)
	}
	if !reflect.DeepEqual(got.Synapses, []string{"AlphaSynapse", "PowerGPotGPot"}) {
		t.Fatalf("unexpected synapses: %v", got.Synapses)
	}
}

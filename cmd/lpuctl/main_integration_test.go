//go:build sqlite

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunCommandReplaysSQLiteSeries(t *testing.T) {
	dir := t.TempDir()
	graphPath := writeGraph(t, dir)
	outDir := filepath.Join(dir, "out")

	record := []string{
		"run",
		"--graph", graphPath,
		"--id", "rec",
		"--steps", "4",
		"--output", "sqlite",
		"--output-dir", outDir,
		"--log-level", "error",
	}
	if err := run(context.Background(), record, &bytes.Buffer{}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	dbPath := filepath.Join(outDir, "rec_gpot.db")
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected sqlite db at %s: %v", dbPath, err)
	}

	var out bytes.Buffer
	replay := []string{
		"run",
		"--graph", graphPath,
		"--id", "replay",
		"--steps", "4",
		"--input", dbPath,
		"--input-kind", "sqlite",
		"--input-series", "rec_gpot",
		"--input-window", "2",
		"--output", "memory",
		"--output-dir", outDir,
		"--log-level", "error",
	}
	if err := run(context.Background(), replay, &out); err != nil {
		t.Fatalf("replay run: %v", err)
	}
	if !strings.Contains(out.String(), "inputs=1 refills=1") {
		t.Fatalf("unexpected replay output: %s", out.String())
	}
}

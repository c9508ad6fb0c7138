// Package stats records finished runs: per-run JSON artifacts plus an index
// of every run written under a base directory.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"lpukit/internal/engine"
	"lpukit/internal/index"
)

const runIndexFile = "run_index.json"

var ErrMissingUnitID = errors.New("unit id is required")

var artifactFiles = []string{"config.json", "layout.json", "final_state.json"}

type RunConfig struct {
	UnitID      string  `json:"unit_id"`
	GraphPath   string  `json:"graph_path,omitempty"`
	DT          float64 `json:"dt"`
	Steps       int     `json:"steps"`
	InputPath   string  `json:"input_path,omitempty"`
	InputKind   string  `json:"input_kind,omitempty"`
	InputSeries string  `json:"input_series,omitempty"`
	InputWindow int     `json:"input_window,omitempty"`
	OutputKind  string  `json:"output_kind,omitempty"`
	Debug       bool    `json:"debug"`
	Strict      bool    `json:"strict"`
	Workers     int     `json:"workers"`
}

type RunArtifacts struct {
	Config RunConfig
	Layout index.Layout
	Final  engine.Snapshot
}

type RunIndexEntry struct {
	UnitID       string   `json:"unit_id"`
	GraphPath    string   `json:"graph_path,omitempty"`
	Ticks        int64    `json:"ticks"`
	Gpot         int      `json:"gpot"`
	Spike        int      `json:"spike"`
	Synapses     int      `json:"synapses"`
	InputRefills int      `json:"input_refills"`
	Omitted      []string `json:"omitted,omitempty"`
	OutputFiles  []string `json:"output_files,omitempty"`
	ElapsedMS    int64    `json:"elapsed_ms"`
	CreatedAtUTC string   `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.UnitID == "" {
		return "", ErrMissingUnitID
	}

	runDir := filepath.Join(baseDir, artifacts.Config.UnitID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "layout.json"), artifacts.Layout); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "final_state.json"), artifacts.Final); err != nil {
		return "", err
	}
	return runDir, nil
}

// AppendRunIndex adds entry to the index, replacing any entry with the same
// unit id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.UnitID == "" {
		return ErrMissingUnitID
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	entries, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range entries {
		if entries[i].UnitID == entry.UnitID {
			entries[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), entries)
		}
	}

	entries = append(entries, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), entries)
}

// ListRunIndex returns the indexed runs, newest first. Runs recorded at the
// same instant are listed latest append first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// readRunIndex returns the index in append order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode run index: %w", err)
	}
	return entries, nil
}

// ExportRunArtifacts copies a run's artifacts to outDir/<unitID>.
func ExportRunArtifacts(baseDir, unitID, outDir string) (string, error) {
	if unitID == "" {
		return "", ErrMissingUnitID
	}

	src := filepath.Join(baseDir, unitID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, unitID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, file := range artifactFiles {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, unitID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, unitID, "config.json"), &cfg)
	return cfg, ok, err
}

func ReadFinalState(baseDir, unitID string) (engine.Snapshot, bool, error) {
	var snap engine.Snapshot
	ok, err := readJSON(filepath.Join(baseDir, unitID, "final_state.json"), &snap)
	return snap, ok, err
}

func readJSON(path string, dst any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

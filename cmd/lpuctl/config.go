package main

import (
	"encoding/json"
	"fmt"
	"os"

	"lpukit/pkg/lpukit"
)

// runConfig carries everything a run needs: the request plus the client
// options that only the CLI knows about.
type runConfig struct {
	Request    lpukit.RunRequest
	OutputKind string
	OutputDir  string
	Workers    int
}

func loadRunConfig(path string) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return runConfig{}, err
	}

	cfg := runConfig{Request: lpukit.RunRequest{DT: lpukit.DefaultDT, Steps: 1}}
	req := &cfg.Request
	if v, ok := asString(raw["graph"]); ok {
		req.GraphPath = v
	}
	if v, ok := asString(raw["id"]); ok {
		req.ID = v
	}
	if v, ok := asFloat64(raw["dt"]); ok {
		req.DT = v
	}
	if v, ok := asInt(raw["steps"]); ok {
		req.Steps = v
	}
	if v, ok := asBool(raw["debug"]); ok {
		req.Debug = v
	}
	if v, ok := asBool(raw["strict"]); ok {
		req.Strict = v
	}
	if v, ok := asBool(raw["no_output"]); ok {
		req.NoOutput = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		cfg.Workers = v
	}

	if in, ok := raw["input"].(map[string]any); ok {
		if v, ok := asString(in["path"]); ok {
			req.InputPath = v
		}
		if v, ok := asString(in["kind"]); ok {
			req.InputKind = v
		}
		if v, ok := asString(in["series"]); ok {
			req.InputSeries = v
		}
		if v, ok := asInt(in["window"]); ok {
			req.InputWindow = v
		}
	}
	if out, ok := raw["output"].(map[string]any); ok {
		if v, ok := asString(out["kind"]); ok {
			cfg.OutputKind = v
		}
		if v, ok := asString(out["dir"]); ok {
			cfg.OutputDir = v
		}
	}

	return cfg, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(cfg *runConfig, set map[string]bool, flagValue map[string]any) error {
	req := &cfg.Request
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "graph":
			req.GraphPath = v.(string)
		case "id":
			req.ID = v.(string)
		case "dt":
			req.DT = v.(float64)
		case "steps":
			req.Steps = v.(int)
		case "input":
			req.InputPath = v.(string)
		case "input-kind":
			req.InputKind = v.(string)
		case "input-series":
			req.InputSeries = v.(string)
		case "input-window":
			req.InputWindow = v.(int)
		case "no-output":
			req.NoOutput = v.(bool)
		case "debug":
			req.Debug = v.(bool)
		case "strict":
			req.Strict = v.(bool)
		case "output":
			cfg.OutputKind = v.(string)
		case "output-dir":
			cfg.OutputDir = v.(string)
		case "workers":
			cfg.Workers = v.(int)
		}
	}
	if req.DT <= 0 {
		return fmt.Errorf("dt must be > 0, got %g", req.DT)
	}
	if req.Steps <= 0 {
		return fmt.Errorf("steps must be > 0, got %d", req.Steps)
	}
	return nil
}

func loadOrDefaultRunConfig(configPath string) (runConfig, error) {
	if configPath == "" {
		return runConfig{}, nil
	}
	cfg, err := loadRunConfig(configPath)
	if err != nil {
		return runConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

package graph

import (
	"math"
	"strconv"
	"strings"

	"lpukit/internal/model"
)

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	default:
		return "", false
	}
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case float32:
		if float64(x) != math.Trunc(float64(x)) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
		return false, false
	case int:
		return x != 0, true
	case float64:
		return x != 0, true
	default:
		return false, false
	}
}

// asTarget resolves a post-synaptic site: an integer neuron ID or a
// "synapse-<id>" tagged synapse ID.
func asTarget(v any) (model.Target, bool) {
	if s, ok := asString(v); ok && strings.HasPrefix(s, model.SynapseTargetPrefix) {
		id, err := strconv.Atoi(strings.TrimPrefix(s, model.SynapseTargetPrefix))
		if err != nil {
			return model.Target{}, false
		}
		return model.Target{ID: id, Synapse: true}, true
	}
	id, ok := asInt(v)
	if !ok {
		return model.Target{}, false
	}
	return model.Target{ID: id}, true
}

func isSynapseTag(v any) bool {
	s, ok := asString(v)
	return ok && strings.Contains(s, "synapse")
}

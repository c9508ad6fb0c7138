package models

import (
	"errors"
	"fmt"
)

var ErrMissingParam = errors.New("missing model parameter")

// columns fetches required parameter columns in the order named.
func columns(params map[string][]float64, n int, names ...string) ([][]float64, error) {
	out := make([][]float64, len(names))
	for i, name := range names {
		col, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
		if len(col) != n {
			return nil, fmt.Errorf("%w: %s has %d values for %d instances", ErrMissingParam, name, len(col), n)
		}
		out[i] = col
	}
	return out, nil
}

// optional returns a parameter column, or def repeated when it is absent.
func optional(params map[string][]float64, n int, name string, def []float64) []float64 {
	if col, ok := params[name]; ok && len(col) == n {
		return col
	}
	return def
}

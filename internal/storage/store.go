package storage

import (
	"context"
	"errors"

	"lpukit/internal/model"
)

var (
	ErrWidth          = errors.New("row width mismatch")
	ErrNotInitialized = errors.New("series not initialized")
	ErrClosed         = errors.New("series closed")
)

// Series is an append-only numeric time series holding one row per tick.
type Series interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, tick int64, row []float64) error
	Close() error
}

// RangeReader reads rows back in append order.
type RangeReader interface {
	Count(ctx context.Context) (int, error)
	Range(ctx context.Context, start, n int) ([][]float64, error)
}

// Row is the persisted form of one appended row.
type Row struct {
	model.VersionedRecord
	Tick   int64     `json:"tick"`
	Values []float64 `json:"values"`
}

func checkWidth(width int, row []float64) error {
	if len(row) != width {
		return errorsf(ErrWidth, len(row), width)
	}
	return nil
}

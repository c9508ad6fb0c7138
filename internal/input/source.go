// Package input streams file-backed external current into a running unit.
package input

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"lpukit/internal/storage"
)

var ErrChannels = errors.New("frame width does not match channel count")

// Source yields consecutive frames of a frame x channel time series.
type Source interface {
	Channels() int
	// Read fills dst with the next frames and returns how many were read.
	// It returns io.EOF once no frame remains, along with the last frames
	// when the source can tell they end the stream.
	Read(dst [][]float64) (int, error)
	Close() error
}

// MemorySource serves frames held in memory.
type MemorySource struct {
	channels int
	frames   [][]float64
	pos      int
}

func NewMemorySource(channels int, frames [][]float64) (*MemorySource, error) {
	for i, f := range frames {
		if len(f) != channels {
			return nil, fmt.Errorf("%w: frame %d has %d values, want %d", ErrChannels, i, len(f), channels)
		}
	}
	return &MemorySource{channels: channels, frames: frames}, nil
}

func (s *MemorySource) Channels() int {
	return s.channels
}

func (s *MemorySource) Read(dst [][]float64) (int, error) {
	if s.pos >= len(s.frames) {
		return 0, io.EOF
	}
	n := 0
	for n < len(dst) && s.pos < len(s.frames) {
		copy(dst[n], s.frames[s.pos])
		n++
		s.pos++
	}
	if s.pos == len(s.frames) {
		return n, io.EOF
	}
	return n, nil
}

func (s *MemorySource) Close() error {
	return nil
}

// CSVSource streams frames from a CSV file, one frame per line. A first line
// that does not parse as numbers is treated as a header.
type CSVSource struct {
	file     *os.File
	r        *csv.Reader
	channels int
	pending  []float64
	err      error
}

func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := &CSVSource{file: f, r: csv.NewReader(f)}
	s.r.ReuseRecord = true
	first, err := s.r.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err == nil {
		s.channels = len(first)
		if vals, perr := parseFrame(first); perr == nil {
			s.pending = vals
		}
	}
	return s, nil
}

func (s *CSVSource) Channels() int {
	return s.channels
}

// Read looks one record ahead so that a read ending the file reports io.EOF.
func (s *CSVSource) Read(dst [][]float64) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(dst) {
		vals, err := s.next()
		if err != nil {
			return n, err
		}
		copy(dst[n], vals)
		n++
	}
	vals, err := s.next()
	switch {
	case errors.Is(err, io.EOF):
		return n, io.EOF
	case err != nil:
		s.err = err
	default:
		s.pending = vals
	}
	return n, nil
}

// next returns the pending frame, a deferred read error, or the next record.
func (s *CSVSource) next() ([]float64, error) {
	if s.pending != nil {
		vals := s.pending
		s.pending = nil
		return vals, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return nil, err
	}
	rec, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	if len(rec) != s.channels {
		return nil, fmt.Errorf("%w: %d values, want %d", ErrChannels, len(rec), s.channels)
	}
	return parseFrame(rec)
}

func (s *CSVSource) Close() error {
	return s.file.Close()
}

func parseFrame(rec []string) ([]float64, error) {
	out := make([]float64, len(rec))
	for i, field := range rec {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SeriesSource replays a stored series, such as one written by the sqlite
// backend of another run.
type SeriesSource struct {
	ctx      context.Context
	r        storage.RangeReader
	channels int
	pos      int
	total    int
}

func NewSeriesSource(ctx context.Context, r storage.RangeReader, channels int) (*SeriesSource, error) {
	total, err := r.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &SeriesSource{ctx: ctx, r: r, channels: channels, total: total}, nil
}

func (s *SeriesSource) Channels() int {
	return s.channels
}

func (s *SeriesSource) Read(dst [][]float64) (int, error) {
	if s.pos >= s.total {
		return 0, io.EOF
	}
	rows, err := s.r.Range(s.ctx, s.pos, len(dst))
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if len(row) != s.channels {
			return i, fmt.Errorf("%w: %d values, want %d", ErrChannels, len(row), s.channels)
		}
		copy(dst[i], row)
	}
	s.pos += len(rows)
	if s.pos >= s.total {
		return len(rows), io.EOF
	}
	return len(rows), nil
}

func (s *SeriesSource) Close() error {
	return storage.CloseIfSupported(s.r)
}

// Open opens a source by backend kind: "csv" reads path directly, "sqlite"
// replays the named series stored at path.
func Open(ctx context.Context, kind, path, name string, channels int) (Source, error) {
	switch kind {
	case "csv", "":
		return OpenCSV(path)
	case "sqlite":
		r, err := storage.OpenReader(kind, path, name)
		if err != nil {
			return nil, err
		}
		return NewSeriesSource(ctx, r, channels)
	default:
		return nil, fmt.Errorf("unsupported input backend: %s", kind)
	}
}

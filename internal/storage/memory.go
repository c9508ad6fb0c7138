package storage

import (
	"context"
	"sync"
)

// MemorySeries keeps rows in memory. It is the default backend for tests
// and for runs that only inspect the final state.
type MemorySeries struct {
	name  string
	width int

	mu          sync.RWMutex
	initialized bool
	rows        []Row
}

func NewMemorySeries(name string, width int) *MemorySeries {
	return &MemorySeries{name: name, width: width}
}

func (s *MemorySeries) Name() string {
	return s.name
}

func (s *MemorySeries) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	s.rows = nil
	return nil
}

func (s *MemorySeries) Append(_ context.Context, tick int64, row []float64) error {
	if err := checkWidth(s.width, row); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	values := make([]float64, len(row))
	copy(values, row)
	s.rows = append(s.rows, NewRow(tick, values))
	return nil
}

// Rows returns a copy of every appended row.
func (s *MemorySeries) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

func (s *MemorySeries) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

func (s *MemorySeries) Range(_ context.Context, start, n int) ([][]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start = min(max(start, 0), len(s.rows))
	end := min(start+max(n, 0), len(s.rows))
	out := make([][]float64, 0, end-start)
	for _, r := range s.rows[start:end] {
		out = append(out, append([]float64(nil), r.Values...))
	}
	return out, nil
}

func (s *MemorySeries) Close() error {
	return nil
}

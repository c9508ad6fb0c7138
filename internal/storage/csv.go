package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"sync"
)

// CSVSeries appends rows to a CSV file, one line per tick with no header and
// no tick column, so the file can be fed back as an external-input source.
type CSVSeries struct {
	path  string
	width int

	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	w    *csv.Writer
	rec  []string
}

func NewCSVSeries(path string, width int) *CSVSeries {
	return &CSVSeries{path: path, width: width}
}

func (s *CSVSeries) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return errors.New("csv path is required")
	}
	if s.file != nil {
		return nil
	}
	f, err := os.Create(s.path)
	if err != nil {
		return err
	}
	s.file = f
	s.buf = bufio.NewWriter(f)
	s.w = csv.NewWriter(s.buf)
	s.rec = make([]string, s.width)
	return nil
}

func (s *CSVSeries) Append(_ context.Context, _ int64, row []float64) error {
	if err := checkWidth(s.width, row); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ErrNotInitialized
	}
	for i, v := range row {
		s.rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return s.w.Write(s.rec)
}

func (s *CSVSeries) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	s.w.Flush()
	err := errors.Join(s.w.Error(), s.buf.Flush(), s.file.Close())
	s.file, s.buf, s.w = nil, nil, nil
	return err
}

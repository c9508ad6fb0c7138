package input

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
)

// DefaultWindow is the number of frames loaded per refill.
const DefaultWindow = 10

var ErrExhausted = errors.New("external input exhausted")

type window struct {
	frames [][]float64
	valid  int
}

// Feeder hands out one frame per tick from a lookahead window, refilling
// the window from its source once every frame in it has been consumed.
type Feeder struct {
	src    Source
	size   int
	logger *slog.Logger

	cur     atomic.Pointer[window]
	cursor  int
	refills int
	eof     bool
	warned  bool
}

// NewFeeder loads the first window from src. The initial load is not
// counted as a refill.
func NewFeeder(src Source, size int, logger *slog.Logger) (*Feeder, error) {
	if size <= 0 {
		size = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feeder{src: src, size: size, logger: logger.With(slog.String("component", "input"))}
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// load replaces the window with the next frames from the source and returns
// how many it read. A short read or io.EOF marks the end of the stream.
func (f *Feeder) load() (int, error) {
	frames := make([][]float64, f.size)
	for i := range frames {
		frames[i] = make([]float64, f.src.Channels())
	}
	n, err := f.src.Read(frames)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("refill external input: %w", err)
	}
	if n < f.size || err != nil {
		f.eof = true
	}
	f.cur.Store(&window{frames: frames, valid: n})
	f.cursor = 0
	return n, nil
}

// Next returns the frame for the current tick. Once the stream is exhausted
// it returns a zero frame with ErrExhausted and logs a warning the first
// time.
func (f *Feeder) Next() ([]float64, error) {
	w := f.cur.Load()
	if f.cursor >= w.valid {
		if !f.warned {
			f.warned = true
			f.logger.Warn("external input exhausted; injecting zero current", slog.Int("refills", f.refills))
		}
		return make([]float64, f.src.Channels()), ErrExhausted
	}
	frame := w.frames[f.cursor]
	f.cursor++
	if f.cursor >= f.size && !f.eof {
		n, err := f.load()
		if err != nil {
			// the failed read may have consumed frames, so the stream ends here
			f.eof = true
			f.logger.Warn("external input refill failed", slog.Int("refills", f.refills), slog.Any("error", err))
			return frame, err
		}
		// a reload that finds the source already drained is not a refill
		if n > 0 {
			f.refills++
			f.logger.Debug("refilled external input window", slog.Int("refills", f.refills), slog.Int("frames", n))
		}
	}
	return frame, nil
}

func (f *Feeder) Channels() int {
	return f.src.Channels()
}

// Refills counts window reloads after the initial load that yielded frames.
func (f *Feeder) Refills() int {
	return f.refills
}

// EOF reports whether the source ran out while filling the current window.
func (f *Feeder) EOF() bool {
	return f.eof
}

// Window returns a copy of the current window, padded with zero frames.
func (f *Feeder) Window() [][]float64 {
	w := f.cur.Load()
	out := make([][]float64, len(w.frames))
	for i, fr := range w.frames {
		out[i] = append([]float64(nil), fr...)
	}
	return out
}

func (f *Feeder) Close() error {
	return f.src.Close()
}

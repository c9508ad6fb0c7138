package device

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrStreamClosed = errors.New("stream closed")

// DefaultQueueDepth bounds how many kernels may be issued ahead of execution.
const DefaultQueueDepth = 256

// Kernel is one unit of device work.
type Kernel func() error

type launch struct {
	name   string
	kernel Kernel
	fence  chan struct{}
}

// Stream executes kernels one after another in issue order on a dedicated
// goroutine. Launch returns as soon as the kernel is queued.
type Stream struct {
	queue chan launch
	done  chan struct{}

	// issueMu serializes sends so the worker never contends for it.
	issueMu  sync.Mutex
	closed   bool
	launched int

	errMu sync.Mutex
	err   error
}

func NewStream(depth int) *Stream {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	s := &Stream{
		queue: make(chan launch, depth),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Stream) loop() {
	defer close(s.done)
	for l := range s.queue {
		if l.fence != nil {
			close(l.fence)
			continue
		}
		if s.Err() != nil {
			continue
		}
		if err := l.kernel(); err != nil {
			s.errMu.Lock()
			s.err = fmt.Errorf("kernel %s: %w", l.name, err)
			s.errMu.Unlock()
		}
	}
}

// Launch queues a kernel. After a kernel fails, later kernels are skipped and
// the first error is reported by Synchronize.
func (s *Stream) Launch(name string, k Kernel) error {
	s.issueMu.Lock()
	defer s.issueMu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.launched++
	s.queue <- launch{name: name, kernel: k}
	return nil
}

// Launched returns the number of kernels issued so far.
func (s *Stream) Launched() int {
	s.issueMu.Lock()
	defer s.issueMu.Unlock()
	return s.launched
}

// Synchronize blocks until every kernel issued before the call has run.
func (s *Stream) Synchronize(ctx context.Context) error {
	fence := make(chan struct{})
	s.issueMu.Lock()
	if s.closed {
		s.issueMu.Unlock()
		return s.Err()
	}
	s.queue <- launch{name: "fence", fence: fence}
	s.issueMu.Unlock()

	select {
	case <-fence:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Err()
}

// Err returns the first kernel failure, if any.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close drains the queue and stops the worker.
func (s *Stream) Close() error {
	s.issueMu.Lock()
	if s.closed {
		s.issueMu.Unlock()
		return s.Err()
	}
	s.closed = true
	close(s.queue)
	s.issueMu.Unlock()
	<-s.done
	return s.Err()
}

// MinChunk is the smallest slice of work handed to one worker.
const MinChunk = 256

// ParallelFor runs fn over [0, n) split into contiguous chunks. Chunks run
// concurrently and must not write to overlapping elements.
func ParallelFor(n, workers int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunks := (n + MinChunk - 1) / MinChunk
	if chunks > workers {
		chunks = workers
	}
	if chunks <= 1 {
		return fn(0, n)
	}
	size := (n + chunks - 1) / chunks
	var g errgroup.Group
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, min(lo+size, n)
		g.Go(func() error {
			return fn(lo, hi)
		})
	}
	return g.Wait()
}

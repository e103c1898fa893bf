package logging

import (
	"sync"

	"github.com/Kocoro-lab/Shannon/go/research/internal/metrics"
	"go.uber.org/zap"
)

// Sink records progress messages; implementations must never block or fail
type Sink interface {
	Record(message string, debugOnly bool)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) Record(string, bool) {}

type record struct {
	message   string
	debugOnly bool
}

// AsyncSink forwards records to a logger from a single goroutine.
// Records arriving while the buffer is full are dropped.
type AsyncSink struct {
	logger *zap.Logger
	debug  func() bool
	ch     chan record

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncSink starts the drain goroutine. debug reports whether debug-only
// records should be kept; it is consulted per record so config reloads apply.
func NewAsyncSink(logger *zap.Logger, buffer int, debug func() bool) *AsyncSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	if debug == nil {
		debug = func() bool { return false }
	}
	s := &AsyncSink{
		logger: logger,
		debug:  debug,
		ch:     make(chan record, buffer),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// Record enqueues a message without blocking
func (s *AsyncSink) Record(message string, debugOnly bool) {
	if debugOnly && !s.debug() {
		return
	}
	defer func() {
		// Record after Close must not panic the caller
		_ = recover()
	}()
	select {
	case s.ch <- record{message: message, debugOnly: debugOnly}:
	default:
		metrics.LogRecordsDropped.Inc()
	}
}

// Close stops accepting records and waits for the buffer to drain
func (s *AsyncSink) Close() {
	s.closeOnce.Do(func() {
		close(s.ch)
		<-s.done
	})
}

func (s *AsyncSink) drain() {
	defer close(s.done)
	for r := range s.ch {
		if r.debugOnly {
			s.logger.Debug(r.message)
			continue
		}
		s.logger.Info(r.message)
	}
}

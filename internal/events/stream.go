// internal/events/stream.go
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrStreamClosed is returned when emitting into a closed stream.
var ErrStreamClosed = errors.New("status stream closed")

// Stream is a bounded, ordered channel of events for one consumer.
// Emit blocks while the buffer is full.
type Stream struct {
	mu     sync.RWMutex
	ch     chan StatusEvent
	closed bool
}

func NewStream(bufferSize int) *Stream {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Stream{ch: make(chan StatusEvent, bufferSize)}
}

// C returns the receive side. It is closed by Close.
func (s *Stream) C() <-chan StatusEvent {
	return s.ch
}

func (s *Stream) Emit(ctx context.Context, event StatusEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStreamClosed
	}
	select {
	case s.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the stream. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (r *Recorder) Emit(_ context.Context, event StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StatusEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Emitter stamps, sanitizes and forwards events for a single dispatch.
// Sink failures are logged and never abort the dispatch.
type Emitter struct {
	dispatchID string
	sink       Sink
	seq        atomic.Uint64
	logger     *zap.Logger
	now        func() time.Time
}

func NewEmitter(dispatchID string, sink Sink, logger *zap.Logger) *Emitter {
	if sink == nil {
		sink = Discard
	}
	return &Emitter{
		dispatchID: dispatchID,
		sink:       sink,
		logger:     logger,
		now:        time.Now,
	}
}

// Stage emits the default text of a stage.
func (e *Emitter) Stage(ctx context.Context, stage Stage) {
	e.Emit(ctx, stage, StageText(stage))
}

func (e *Emitter) Emit(ctx context.Context, stage Stage, text string) {
	event := StatusEvent{
		DispatchID: e.dispatchID,
		Seq:        e.seq.Add(1),
		Stage:      stage,
		Text:       Sanitize(stage, text),
		Time:       e.now(),
	}
	if err := e.sink.Emit(ctx, event); err != nil {
		e.logger.Debug("Status sink rejected event",
			zap.Uint64("seq", event.Seq),
			zap.String("stage", stage.String()),
			zap.Error(err))
	}
}

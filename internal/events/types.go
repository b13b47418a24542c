// internal/events/types.go
package events

import (
	"context"
	"fmt"
	"time"
)

// Stage is the pipeline step a status event reports on.
type Stage int

const (
	StageAuthorizing Stage = iota + 1
	StageBuilding
	StageSigning
	StageSubmitting
	StageConfirming
	// StageSubmitted ends a dispatch that does not wait for confirmation.
	StageSubmitted
	StageConfirmed
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageAuthorizing:
		return "authorizing"
	case StageBuilding:
		return "building"
	case StageSigning:
		return "signing"
	case StageSubmitting:
		return "submitting"
	case StageConfirming:
		return "confirming"
	case StageSubmitted:
		return "submitted"
	case StageConfirmed:
		return "confirmed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Terminal reports whether no further events follow this stage.
func (s Stage) Terminal() bool {
	return s == StageSubmitted || s == StageConfirmed || s == StageFailed
}

// StatusEvent is one user-facing progress line of a dispatch.
// Seq starts at 1 and grows by one per event within a dispatch.
type StatusEvent struct {
	DispatchID string
	Seq        uint64
	Stage      Stage
	Text       string
	Time       time.Time
}

// Sink receives status events in emission order. Emit may block.
type Sink interface {
	Emit(ctx context.Context, event StatusEvent) error
}

// SinkFunc is an adapter to allow the use of ordinary functions as sinks.
type SinkFunc func(ctx context.Context, event StatusEvent) error

// Emit calls f(ctx, event).
func (f SinkFunc) Emit(ctx context.Context, event StatusEvent) error {
	return f(ctx, event)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, StatusEvent) error { return nil })

// Package pipelineerr defines the error kinds the orchestration core
// distinguishes and the propagation policy for each.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the nine error categories the core distinguishes.
type Kind string

const (
	// KindNotFound means a referenced pipeline/agent/session does not exist.
	KindNotFound Kind = "not_found"
	// KindBadTransition means the state machine rejected an attempted transition.
	KindBadTransition Kind = "bad_transition"
	// KindBadToolUsage means a tool was called in a state where its
	// precondition fails.
	KindBadToolUsage Kind = "bad_tool_usage"
	// KindSpawnError means the child coding CLI could not be started.
	KindSpawnError Kind = "spawn_error"
	// KindStreamError means the child emitted unparseable bytes persistently
	// or closed stdout unexpectedly.
	KindStreamError Kind = "stream_error"
	// KindLLMError means a transport, auth, or decode failure occurred
	// against the LLM vendor.
	KindLLMError Kind = "llm_error"
	// KindLoopExhausted means the per-stage LLM turn cap was exceeded.
	KindLoopExhausted Kind = "loop_exhausted"
	// KindIterationLimitExceeded means the pipeline iteration ceiling was
	// reached.
	KindIterationLimitExceeded Kind = "iteration_limit_exceeded"
	// KindCancelled means a user-requested cancellation propagated to the loop.
	KindCancelled Kind = "cancelled"
)

// Error wraps a Kind with the pipeline/stage context it occurred in and the
// underlying cause, if any. It is the single error type the core returns;
// callers use errors.Is/errors.As against the sentinels below or against
// Kind via Is.
type Error struct {
	Kind     Kind
	Pipeline string
	Stage    string
	Reason   string
	Cause    error
}

func (e *Error) Error() string {
	base := fmt.Sprintf("%s: pipeline=%s", e.Kind, e.Pipeline)
	if e.Stage != "" {
		base += fmt.Sprintf(" stage=%s", e.Stage)
	}
	if e.Reason != "" {
		base += ": " + e.Reason
	}
	if e.Cause != nil {
		base += fmt.Sprintf(" (%v)", e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for e.Kind, allowing
// errors.Is(err, pipelineerr.ErrNotFound) to work against a wrapped *Error.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && errors.Is(sentinel, target)
}

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrNotFound              = errors.New("not_found")
	ErrBadTransition         = errors.New("bad_transition")
	ErrBadToolUsage          = errors.New("bad_tool_usage")
	ErrSpawnError            = errors.New("spawn_error")
	ErrStreamError           = errors.New("stream_error")
	ErrLLMError              = errors.New("llm_error")
	ErrLoopExhausted         = errors.New("loop_exhausted")
	ErrIterationLimitExceeded = errors.New("iteration_limit_exceeded")
	ErrCancelled             = errors.New("cancelled")
)

var kindSentinels = map[Kind]error{
	KindNotFound:              ErrNotFound,
	KindBadTransition:         ErrBadTransition,
	KindBadToolUsage:          ErrBadToolUsage,
	KindSpawnError:            ErrSpawnError,
	KindStreamError:           ErrStreamError,
	KindLLMError:              ErrLLMError,
	KindLoopExhausted:         ErrLoopExhausted,
	KindIterationLimitExceeded: ErrIterationLimitExceeded,
	KindCancelled:             ErrCancelled,
}

// New builds an *Error for the given kind and pipeline, with an optional
// stage, human-readable reason, and wrapped cause.
func New(kind Kind, pipelineID string, opts ...Option) *Error {
	e := &Error{Kind: kind, Pipeline: pipelineID}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Option configures an *Error built via New.
type Option func(*Error)

// WithStage attaches the stage name the error occurred in.
func WithStage(stage string) Option {
	return func(e *Error) { e.Stage = stage }
}

// WithReason attaches a human-readable reason string.
func WithReason(reason string) Option {
	return func(e *Error) { e.Reason = reason }
}

// WithCause wraps an underlying error.
func WithCause(cause error) Option {
	return func(e *Error) { e.Cause = cause }
}

// Fatal reports whether an error of this kind is fatal to the owning
// pipeline, per the propagation policy in the error handling design:
// BadToolUsage is always recovered locally (never reaches here as fatal);
// BadTransition is a programmer bug; LoopExhausted, IterationLimitExceeded,
// Cancelled, and SpawnError are fatal for the pipeline but not for the process.
func (k Kind) Fatal() bool {
	switch k {
	case KindBadTransition, KindLoopExhausted, KindIterationLimitExceeded, KindCancelled, KindSpawnError:
		return true
	default:
		return false
	}
}

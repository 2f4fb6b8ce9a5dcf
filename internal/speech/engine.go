package speech

import (
	"context"
	"fmt"
)

// Engine is a stateful speech synthesizer driving an audio device.
//
// Implementations are not safe for concurrent use, with one exception: Stop
// must be callable from another goroutine while RunAndWait is blocked, and it
// must interrupt it. Stop also discards utterances queued with Say, so a
// RunAndWait that starts after Stop returns ErrInterrupted without speaking
// them. The next Say clears that state.
type Engine interface {
	// ListVoices returns the engine's voice table in a stable order.
	ListVoices() []Voice

	// SetVoice selects the voice used for subsequent utterances.
	SetVoice(id string) error

	// Say queues text to be spoken by the next RunAndWait.
	Say(text string)

	// RunAndWait speaks every queued utterance and blocks until done.
	// It returns ErrInterrupted when Stop cut playback short.
	RunAndWait() error

	// Stop interrupts RunAndWait and drops queued text. It is a no-op when
	// nothing is queued or being spoken.
	Stop()

	// Close releases the engine and its audio device.
	Close() error
}

// EngineHandle is the process-wide owner of an Engine. Every use of the
// engine goes through Use, which grants exclusive access for the duration of
// the callback.
type EngineHandle struct {
	engine Engine
	sem    chan struct{}
}

// NewEngineHandle wraps engine. There should be exactly one handle per engine.
func NewEngineHandle(engine Engine) *EngineHandle {
	return &EngineHandle{
		engine: engine,
		sem:    make(chan struct{}, 1),
	}
}

// Use runs fn with exclusive access to the engine. Access is released on
// every exit path of fn, including panics. Waiting for access is abandoned
// when ctx is done.
func (h *EngineHandle) Use(ctx context.Context, fn func(Engine) error) error {
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-h.sem }()

	return fn(h.engine)
}

// Close closes the engine once no job holds it.
func (h *EngineHandle) Close(ctx context.Context) error {
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("close engine: %w", ErrEngineBusy)
	}
	defer func() { <-h.sem }()

	return h.engine.Close()
}

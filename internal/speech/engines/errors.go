package engines

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownVoice is returned by SetVoice for ids missing from the voice
	// table.
	ErrUnknownVoice = errors.New("unknown voice")

	// ErrNoAudio is returned when a synthesizer produced no samples.
	ErrNoAudio = errors.New("synthesizer produced no audio")

	// ErrNoVoices is returned when an engine is configured without voices
	// and cannot fall back to a default.
	ErrNoVoices = errors.New("no voices configured")
)

// EngineError records which engine failed and during which step.
type EngineError struct {
	Engine string
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Engine, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func wrap(engine, op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return err
	}
	return &EngineError{Engine: engine, Op: op, Err: err}
}

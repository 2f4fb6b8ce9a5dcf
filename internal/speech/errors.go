package speech

import "errors"

var (
	// ErrEmptyText is returned when Speak is called without any text to say.
	ErrEmptyText = errors.New("speech: empty text")

	// ErrInvalidVoice is returned for a voice option outside the supported set.
	ErrInvalidVoice = errors.New("speech: invalid voice option")

	// ErrControllerClosed is returned by Speak after Close.
	ErrControllerClosed = errors.New("speech: controller closed")

	// ErrJoinTimeout is recorded when a superseded job does not release the
	// engine within the join timeout and is detached.
	ErrJoinTimeout = errors.New("speech: previous job did not stop in time")

	// ErrInterrupted is returned by Engine.RunAndWait when Stop interrupted
	// the utterance being played.
	ErrInterrupted = errors.New("speech: utterance interrupted")

	// ErrEngineBusy is returned when exclusive access to the engine could not
	// be obtained before the deadline.
	ErrEngineBusy = errors.New("speech: engine busy")
)

package speech

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of a Job.
type JobState int

const (
	// StatePending means the job was created but its worker has not started.
	StatePending JobState = iota
	// StateRunning means the worker owns the job and is (or is about to be)
	// driving the engine.
	StateRunning
	// StateStopped is terminal: the job was cancelled or failed.
	StateStopped
	// StateDone is terminal: the utterance was spoken in full.
	StateDone
)

// String returns the string representation of the state.
func (s JobState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s JobState) Terminal() bool {
	return s == StateStopped || s == StateDone
}

var jobTransitions = map[JobState][]JobState{
	StatePending: {StateRunning},
	StateRunning: {StateDone, StateStopped},
}

func canTransition(from, to JobState) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one request to speak a block of text.
type Job struct {
	ID      string
	Text    string
	Option  VoiceOption
	Created time.Time

	mu    sync.RWMutex
	state JobState
	voice Voice
	err   error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(text string, option VoiceOption) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	return &Job{
		ID:      uuid.NewString(),
		Text:    text,
		Option:  option,
		Created: time.Now(),
		state:   StatePending,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// State returns the current state of the job.
func (j *Job) State() JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// Voice returns the voice the job selected. It is zero until the job has
// acquired the engine, and stays zero when the engine default was kept.
func (j *Job) Voice() Voice {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.voice
}

// Err returns the synthesis error that stopped the job, if any. Cancellation
// is not an error.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Done is closed once the job reached a terminal state and released the
// engine.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) transition(to JobState) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, to) {
		return false
	}
	j.state = to
	return true
}

func (j *Job) setVoice(v Voice) {
	j.mu.Lock()
	j.voice = v
	j.mu.Unlock()
}

func (j *Job) finish(to JobState, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, to) {
		return false
	}
	j.state = to
	j.err = err
	return true
}

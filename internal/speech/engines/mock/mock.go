// Package mock provides an instrumented speech engine for testing.
package mock

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/pillcast/internal/speech"
)

// ErrUnknownVoice is returned by SetVoice for ids missing from the table.
var ErrUnknownVoice = errors.New("mock: unknown voice")

// Engine implements speech.Engine without producing sound. Each utterance
// "plays" for a configurable duration.
type Engine struct {
	mu          sync.Mutex
	voices      []speech.Voice
	voice       string
	queue       []string
	duration    time.Duration
	failure     error
	ignoreStop  bool
	stopped     bool
	stopCh      chan struct{}
	release     chan struct{}
	spoken      []string
	interrupted []string
	voiceCalls  []string
	closed      bool

	active    atomic.Int32
	maxActive atomic.Int32
	started   chan string
}

// New creates a mock engine with the given voice table and a 10ms
// utterance duration.
func New(voices ...speech.Voice) *Engine {
	return &Engine{
		voices:   voices,
		duration: 10 * time.Millisecond,
		release:  make(chan struct{}),
		started:  make(chan string, 64),
	}
}

// Voices builds a voice table with n entries named v0..v(n-1).
func Voices(n int) []speech.Voice {
	out := make([]speech.Voice, n)
	for i := range out {
		out[i] = speech.Voice{
			ID:       fmt.Sprintf("v%d", i),
			Name:     fmt.Sprintf("Voice %d", i),
			Language: "en-US",
		}
	}
	return out
}

// SetUtteranceDuration sets how long each utterance plays.
func (e *Engine) SetUtteranceDuration(d time.Duration) {
	e.mu.Lock()
	e.duration = d
	e.mu.Unlock()
}

// FailWith makes RunAndWait fail with err once an utterance starts.
func (e *Engine) FailWith(err error) {
	e.mu.Lock()
	e.failure = err
	e.mu.Unlock()
}

// IgnoreStop makes Stop a no-op, simulating an engine that never honors it.
// Use Release to let a hung utterance return.
func (e *Engine) IgnoreStop(ignore bool) {
	e.mu.Lock()
	e.ignoreStop = ignore
	e.mu.Unlock()
}

// Release unblocks every utterance that is waiting, regardless of Stop.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.release)
	e.release = make(chan struct{})
}

// Started receives the text of each utterance as it begins playing.
func (e *Engine) Started() <-chan string {
	return e.started
}

// ListVoices implements speech.Engine.
func (e *Engine) ListVoices() []speech.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]speech.Voice, len(e.voices))
	copy(out, e.voices)
	return out
}

// SetVoice implements speech.Engine.
func (e *Engine) SetVoice(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voiceCalls = append(e.voiceCalls, id)
	for _, v := range e.voices {
		if v.ID == id {
			e.voice = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownVoice, id)
}

// Say implements speech.Engine.
func (e *Engine) Say(text string) {
	e.mu.Lock()
	e.queue = append(e.queue, text)
	e.stopped = false
	e.mu.Unlock()
}

// RunAndWait implements speech.Engine.
func (e *Engine) RunAndWait() error {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	for {
		e.mu.Lock()
		if e.stopped {
			e.stopped = false
			e.mu.Unlock()
			return speech.ErrInterrupted
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return nil
		}
		text := e.queue[0]
		e.queue = e.queue[1:]
		stopCh := make(chan struct{})
		e.stopCh = stopCh
		release := e.release
		duration := e.duration
		failure := e.failure
		e.mu.Unlock()

		select {
		case e.started <- text:
		default:
		}

		if failure != nil {
			e.finish(nil)
			return failure
		}

		timer := time.NewTimer(duration)
		select {
		case <-timer.C:
			e.finish(&e.spoken, text)
		case <-release:
			timer.Stop()
			e.finish(&e.spoken, text)
		case <-stopCh:
			timer.Stop()
			e.finish(&e.interrupted, text)
			return speech.ErrInterrupted
		}
	}
}

func (e *Engine) finish(list *[]string, text ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopCh = nil
	e.stopped = false
	if list != nil {
		*list = append(*list, text...)
	}
}

// Stop implements speech.Engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ignoreStop {
		return
	}
	if len(e.queue) > 0 {
		e.stopped = true
	}
	e.queue = nil
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
}

// Close implements speech.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// CurrentVoice returns the id last accepted by SetVoice.
func (e *Engine) CurrentVoice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voice
}

// SetVoiceCalls returns every id passed to SetVoice.
func (e *Engine) SetVoiceCalls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.voiceCalls...)
}

// Spoken returns the utterances that played to the end.
func (e *Engine) Spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.spoken...)
}

// Interrupted returns the utterances cut short by Stop.
func (e *Engine) Interrupted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.interrupted...)
}

// MaxActive returns the highest number of concurrent RunAndWait calls seen.
func (e *Engine) MaxActive() int {
	return int(e.maxActive.Load())
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

package engines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/pillcast/internal/audio"
	"github.com/dgnsrekt/pillcast/internal/speech"
	"github.com/dgnsrekt/pillcast/internal/speech/sentence"
)

// Synthesizer turns text into PCM.
type Synthesizer interface {
	// Name identifies the synthesizer in logs, errors and cache keys.
	Name() string
	// Voices returns the voice table in a stable order.
	Voices() []speech.Voice
	// Synthesize renders text with voice. A zero voice selects the
	// synthesizer default.
	Synthesize(ctx context.Context, voice speech.Voice, text string) ([]byte, audio.Format, error)
}

// Engine implements speech.Engine by synthesizing each queued utterance and
// playing it. Stop cancels both steps.
type Engine struct {
	synth  Synthesizer
	player audio.Player
	logger *log.Logger

	mu     sync.Mutex
	voice  speech.Voice
	queue  []string
	cancel context.CancelFunc
	// stopped is set when Stop discards work and cleared by Say.
	stopped bool
}

var _ speech.Engine = (*Engine)(nil)

// New creates an engine. logger may be nil.
func New(synth Synthesizer, player audio.Player, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		synth:  synth,
		player: player,
		logger: logger.WithPrefix(synth.Name()),
	}
}

// Name returns the synthesizer name.
func (e *Engine) Name() string {
	return e.synth.Name()
}

// ListVoices implements speech.Engine.
func (e *Engine) ListVoices() []speech.Voice {
	return e.synth.Voices()
}

// SetVoice implements speech.Engine.
func (e *Engine) SetVoice(id string) error {
	for _, v := range e.synth.Voices() {
		if v.ID == id {
			e.mu.Lock()
			e.voice = v
			e.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownVoice, id)
}

// Say implements speech.Engine.
func (e *Engine) Say(text string) {
	e.mu.Lock()
	e.queue = append(e.queue, sentence.Split(text)...)
	e.stopped = false
	e.mu.Unlock()
}

// RunAndWait implements speech.Engine.
func (e *Engine) RunAndWait() error {
	for {
		ctx, text, voice, ok, stopped := e.next()
		if stopped {
			return speech.ErrInterrupted
		}
		if !ok {
			return nil
		}

		err := e.speak(ctx, voice, text)
		interrupted := ctx.Err() != nil
		e.release()

		if interrupted {
			return speech.ErrInterrupted
		}
		if err != nil {
			return err
		}
	}
}

// next pops an utterance and arms the cancel func Stop uses, in one step so
// that Stop never misses it. It reports a Stop that landed between
// utterances, and consumes it.
func (e *Engine) next() (context.Context, string, speech.Voice, bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		e.stopped = false
		return nil, "", speech.Voice{}, false, true
	}
	if len(e.queue) == 0 {
		return nil, "", speech.Voice{}, false, false
	}
	text := e.queue[0]
	e.queue = e.queue[1:]
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	return ctx, text, e.voice, true, false
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) speak(ctx context.Context, voice speech.Voice, text string) error {
	name := e.synth.Name()

	pcm, format, err := e.synth.Synthesize(ctx, voice, text)
	if err != nil {
		return wrap(name, "synthesize", err)
	}
	if len(pcm) == 0 {
		return wrap(name, "synthesize", ErrNoAudio)
	}

	pcm, err = audio.Convert(pcm, format, e.player.Format())
	if err != nil {
		return wrap(name, "convert", err)
	}

	e.logger.Debug("Playing utterance", "voice", voice.ID, "chars", len(text), "duration", e.player.Format().Duration(len(pcm)))

	if err := e.player.Play(ctx, pcm); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return wrap(name, "play", err)
	}
	return nil
}

// Stop implements speech.Engine.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) > 0 {
		e.stopped = true
	}
	e.queue = nil
	if e.cancel != nil {
		e.cancel()
	}
}

// Close implements speech.Engine.
func (e *Engine) Close() error {
	e.Stop()
	var errs []error
	if c, ok := e.synth.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, e.player.Close())
	return errors.Join(errs...)
}

package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// ControllerConfig holds configuration for the speech controller.
type ControllerConfig struct {
	// JoinTimeout bounds how long Speak and Stop wait for a superseded job
	// to release the engine before detaching it.
	JoinTimeout time.Duration
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// DefaultControllerConfig returns a sensible default configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		JoinTimeout: 5 * time.Second,
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	JobID      string `json:"job_id,omitempty"`
	State      string `json:"state"`
	Option     string `json:"voice_option,omitempty"`
	Voice      string `json:"voice,omitempty"`
	TextLength int    `json:"text_length,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// StateFunc observes job state changes. It runs on the goroutine making the
// change and must not block.
type StateFunc func(job *Job, state JobState)

// Controller plays at most one Job at a time. A new Speak always supersedes
// the job in flight: the old job is stopped and joined before the new one
// is started.
type Controller struct {
	handle      *EngineHandle
	logger      *log.Logger
	joinTimeout time.Duration

	// mu serializes Speak, Stop and Close.
	mu      sync.Mutex
	closed  bool
	current atomic.Pointer[Job]

	errMu   sync.RWMutex
	lastErr error

	hookMu sync.RWMutex
	hooks  []StateFunc
}

// NewController creates a controller owning handle.
func NewController(handle *EngineHandle, config ControllerConfig) *Controller {
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = DefaultControllerConfig().JoinTimeout
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	return &Controller{
		handle:      handle,
		logger:      config.Logger.WithPrefix("speech"),
		joinTimeout: config.JoinTimeout,
	}
}

// OnStateChange registers fn to be called on every job state change.
func (c *Controller) OnStateChange(fn StateFunc) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Speak stops the job in flight, waits for it to release the engine, and
// starts a new job speaking text. It returns as soon as the new job is
// launched. Empty text is rejected before anything is started.
func (c *Controller) Speak(text string, option VoiceOption) (*Job, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if !option.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidVoice, option)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrControllerClosed
	}

	c.stopLocked()

	job := newJob(text, option)
	c.current.Store(job)
	c.notify(job, StatePending)
	c.logger.Debug("Speech job created", "job", job.ID, "voice", option, "chars", len(text))

	go c.run(job)

	return job, nil
}

// Stop stops the job in flight and waits for it to release the engine. It is
// a no-op when nothing is playing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Current returns the most recent job, or nil.
func (c *Controller) Current() *Job {
	return c.current.Load()
}

// LastError returns the most recent synthesis failure. Jobs run detached
// from their caller, so this is where their errors surface.
func (c *Controller) LastError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.lastErr
}

// ClearError forgets the last error.
func (c *Controller) ClearError() {
	c.errMu.Lock()
	c.lastErr = nil
	c.errMu.Unlock()
}

// Status returns a snapshot of the current job and the last error. It never
// blocks on a pending Speak.
func (c *Controller) Status() Status {
	st := Status{State: "idle"}
	if job := c.current.Load(); job != nil {
		st.JobID = job.ID
		st.State = job.State().String()
		st.Option = job.Option.String()
		st.Voice = job.Voice().Name
		st.TextLength = len(job.Text)
	}
	if err := c.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// Close stops playback and closes the engine. Speak fails afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.stopLocked()

	ctx, cancel := context.WithTimeout(context.Background(), c.joinTimeout)
	defer cancel()
	if err := c.handle.Close(ctx); err != nil {
		return err
	}
	c.logger.Debug("Speech controller closed")
	return nil
}

// stopLocked cancels the current job and joins it, bounded by joinTimeout.
func (c *Controller) stopLocked() {
	job := c.current.Load()
	if job == nil {
		return
	}

	select {
	case <-job.done:
		return
	default:
	}

	job.cancel()

	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()

	select {
	case <-job.done:
		c.logger.Debug("Speech job joined", "job", job.ID, "state", job.State())
	case <-timer.C:
		// The engine ignored Stop. The job keeps the handle until it
		// returns, so the next job still waits for exclusive access.
		err := fmt.Errorf("%w: job %s after %s", ErrJoinTimeout, job.ID, c.joinTimeout)
		c.setLastError(err)
		c.logger.Warn("Speech job did not stop, detaching", "job", job.ID, "timeout", c.joinTimeout)
	}
}

func (c *Controller) run(job *Job) {
	defer close(job.done)

	job.transition(StateRunning)
	c.notify(job, StateRunning)

	err := c.handle.Use(job.ctx, func(e Engine) error {
		return c.drive(job, e)
	})

	canceled := job.ctx.Err() != nil
	job.cancel()

	switch {
	case canceled:
		job.finish(StateStopped, nil)
		c.notify(job, StateStopped)
		c.logger.Debug("Speech job stopped", "job", job.ID)
	case err != nil:
		job.finish(StateStopped, err)
		c.setLastError(err)
		c.notify(job, StateStopped)
		c.logger.Error("Speech job failed", "job", job.ID, "error", err)
	default:
		job.finish(StateDone, nil)
		c.notify(job, StateDone)
		c.logger.Debug("Speech job done", "job", job.ID)
	}
}

// drive runs with exclusive access to the engine.
func (c *Controller) drive(job *Job, e Engine) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("speech engine panic: %v", r)
		}
	}()

	if err := job.ctx.Err(); err != nil {
		return err
	}

	res := ResolveVoice(e.ListVoices(), job.Option)
	switch {
	case res.Default:
		c.logger.Warn("Engine has no voices, keeping its default", "job", job.ID)
	case res.Fallback:
		c.logger.Warn("Voice not available, falling back", "job", job.ID, "option", job.Option, "voice", res.Voice.ID)
		fallthrough
	default:
		if err := e.SetVoice(res.Voice.ID); err != nil {
			return fmt.Errorf("set voice %q: %w", res.Voice.ID, err)
		}
		job.setVoice(res.Voice)
	}

	e.Say(job.Text)

	// Cancelling the job is the only way to interrupt the blocking run. A
	// Stop already in flight must land before the handle is released, or it
	// would hit the next job.
	stopped := make(chan struct{})
	stop := context.AfterFunc(job.ctx, func() {
		defer close(stopped)
		e.Stop()
	})
	defer func() {
		if !stop() {
			<-stopped
		}
	}()

	if err := e.RunAndWait(); err != nil {
		if errors.Is(err, ErrInterrupted) && job.ctx.Err() != nil {
			return job.ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Controller) setLastError(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

func (c *Controller) notify(job *Job, state JobState) {
	c.hookMu.RLock()
	hooks := c.hooks
	c.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(job, state)
	}
}

package speech_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/pillcast/internal/speech"
	"github.com/dgnsrekt/pillcast/internal/speech/engines/mock"
)

const testTimeout = 2 * time.Second

func newTestController(t *testing.T, eng *mock.Engine, joinTimeout time.Duration) *speech.Controller {
	t.Helper()
	cfg := speech.DefaultControllerConfig()
	if joinTimeout > 0 {
		cfg.JoinTimeout = joinTimeout
	}
	c := speech.NewController(speech.NewEngineHandle(eng), cfg)
	t.Cleanup(func() {
		eng.IgnoreStop(false)
		eng.Release()
		_ = c.Close()
	})
	return c
}

func waitStarted(t *testing.T, eng *mock.Engine, want string) {
	t.Helper()
	select {
	case got := <-eng.Started():
		if got != want {
			t.Fatalf("expected utterance %q to start, got %q", want, got)
		}
	case <-time.After(testTimeout):
		t.Fatalf("utterance %q never started", want)
	}
}

func waitJob(t *testing.T, job *speech.Job) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(testTimeout):
		t.Fatalf("job %s did not finish, state %s", job.ID, job.State())
	}
}

func TestSpeakRunsToDone(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	c := newTestController(t, eng, 0)

	job, err := c.Speak("hello", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitJob(t, job)

	if job.State() != speech.StateDone {
		t.Errorf("expected done, got %s", job.State())
	}
	if job.Voice().ID != "v0" {
		t.Errorf("expected voice v0, got %q", job.Voice().ID)
	}
	if got := eng.Spoken(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("expected [hello] spoken, got %v", got)
	}
	if err := c.LastError(); err != nil {
		t.Errorf("unexpected last error: %v", err)
	}
}

func TestSpeakRejectsEmptyText(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	c := newTestController(t, eng, 0)

	for _, text := range []string{"", "   ", "\n\t"} {
		job, err := c.Speak(text, speech.VoiceMale)
		if !errors.Is(err, speech.ErrEmptyText) {
			t.Errorf("Speak(%q): expected ErrEmptyText, got %v", text, err)
		}
		if job != nil {
			t.Errorf("Speak(%q): expected no job", text)
		}
	}

	if c.Current() != nil {
		t.Error("no job should have been created")
	}
	select {
	case got := <-eng.Started():
		t.Fatalf("engine should not have been driven, started %q", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSpeakRejectsInvalidVoice(t *testing.T) {
	c := newTestController(t, mock.New(mock.Voices(2)...), 0)

	if _, err := c.Speak("hello", speech.VoiceOption(7)); !errors.Is(err, speech.ErrInvalidVoice) {
		t.Fatalf("expected ErrInvalidVoice, got %v", err)
	}
}

func TestSupersession(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	eng.SetUtteranceDuration(time.Minute)
	c := newTestController(t, eng, 0)

	a, err := c.Speak("A", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak A failed: %v", err)
	}
	waitStarted(t, eng, "A")

	eng.SetUtteranceDuration(10 * time.Millisecond)
	b, err := c.Speak("B", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak B failed: %v", err)
	}

	// Speak joins the previous job before returning.
	if a.State() != speech.StateStopped {
		t.Errorf("expected A stopped, got %s", a.State())
	}

	waitJob(t, b)
	if b.State() != speech.StateDone {
		t.Errorf("expected B done, got %s", b.State())
	}
	if got := eng.Spoken(); len(got) != 1 || got[0] != "B" {
		t.Errorf("expected only B spoken in full, got %v", got)
	}
	if got := eng.Interrupted(); len(got) != 1 || got[0] != "A" {
		t.Errorf("expected A interrupted, got %v", got)
	}
	if a.Err() != nil {
		t.Errorf("cancelled job should carry no error, got %v", a.Err())
	}
	if c.LastError() != nil {
		t.Errorf("supersession is not an error, got %v", c.LastError())
	}
}

// slowStopEngine finishes "A" only when told to and delays its first Stop
// until gate is closed, so a Stop can still be in flight after "A" has
// completed on its own.
type slowStopEngine struct {
	mu        sync.Mutex
	queue     []string
	interrupt chan struct{}
	spoken    []string

	started   chan string
	finishA   chan struct{}
	stopEnter chan struct{}
	gate      chan struct{}
	once      sync.Once
}

func newSlowStopEngine() *slowStopEngine {
	return &slowStopEngine{
		started:   make(chan string, 4),
		finishA:   make(chan struct{}),
		stopEnter: make(chan struct{}),
		gate:      make(chan struct{}),
	}
}

func (e *slowStopEngine) ListVoices() []speech.Voice { return mock.Voices(2) }
func (e *slowStopEngine) SetVoice(string) error      { return nil }
func (e *slowStopEngine) Close() error               { return nil }

func (e *slowStopEngine) Say(text string) {
	e.mu.Lock()
	e.queue = append(e.queue, text)
	e.mu.Unlock()
}

func (e *slowStopEngine) RunAndWait() error {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return nil
		}
		text := e.queue[0]
		e.queue = e.queue[1:]
		interrupt := make(chan struct{})
		e.interrupt = interrupt
		e.mu.Unlock()

		e.started <- text
		done := e.finishA
		if text != "A" {
			done = make(chan struct{})
			time.AfterFunc(20*time.Millisecond, func() { close(done) })
		}

		select {
		case <-done:
		case <-interrupt:
			return speech.ErrInterrupted
		}

		e.mu.Lock()
		e.interrupt = nil
		e.spoken = append(e.spoken, text)
		e.mu.Unlock()
	}
}

func (e *slowStopEngine) Stop() {
	e.once.Do(func() {
		close(e.stopEnter)
		<-e.gate
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = nil
	if e.interrupt != nil {
		close(e.interrupt)
		e.interrupt = nil
	}
}

func (e *slowStopEngine) Spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.spoken...)
}

func TestLateStopDoesNotReachNextJob(t *testing.T) {
	eng := newSlowStopEngine()
	c := speech.NewController(speech.NewEngineHandle(eng), speech.DefaultControllerConfig())
	t.Cleanup(func() { _ = c.Close() })

	if _, err := c.Speak("A", speech.VoiceMale); err != nil {
		t.Fatalf("Speak A failed: %v", err)
	}
	if got := <-eng.started; got != "A" {
		t.Fatalf("expected A to start, got %q", got)
	}

	jobs := make(chan *speech.Job, 1)
	go func() {
		b, err := c.Speak("B", speech.VoiceFemale)
		if err != nil {
			t.Errorf("Speak B failed: %v", err)
		}
		jobs <- b
	}()

	// A's Stop has fired but not landed; A then completes on its own.
	select {
	case <-eng.stopEnter:
	case <-time.After(testTimeout):
		t.Fatal("A was never stopped")
	}
	close(eng.finishA)

	// Give B the chance to start early before the stale Stop lands.
	time.Sleep(30 * time.Millisecond)
	close(eng.gate)

	var b *speech.Job
	select {
	case b = <-jobs:
	case <-time.After(testTimeout):
		t.Fatal("Speak B did not return")
	}
	if b == nil {
		t.FailNow()
	}
	waitJob(t, b)

	if b.State() != speech.StateDone {
		t.Errorf("expected B done, got %s (err %v)", b.State(), b.Err())
	}
	if got := eng.Spoken(); len(got) != 2 || got[1] != "B" {
		t.Errorf("expected B spoken after A, got %v", got)
	}
	if err := c.LastError(); err != nil {
		t.Errorf("unexpected last error: %v", err)
	}
}

func TestSupersedeAtCompletion(t *testing.T) {
	if testing.Short() {
		t.Skip("timing loop")
	}
	eng := mock.New(mock.Voices(2)...)
	eng.SetUtteranceDuration(200 * time.Microsecond)
	c := newTestController(t, eng, 0)

	for i := 0; i < 300; i++ {
		if _, err := c.Speak("A", speech.VoiceMale); err != nil {
			t.Fatalf("iteration %d: Speak A failed: %v", i, err)
		}
		time.Sleep(time.Duration(150+i%100) * time.Microsecond)
		b, err := c.Speak("B", speech.VoiceMale)
		if err != nil {
			t.Fatalf("iteration %d: Speak B failed: %v", i, err)
		}
		waitJob(t, b)
		if b.State() != speech.StateDone {
			t.Fatalf("iteration %d: expected B done, got %s (err %v)", i, b.State(), b.Err())
		}
		if got := eng.Spoken(); len(got) == 0 || got[len(got)-1] != "B" {
			t.Fatalf("iteration %d: B was not spoken, spoken %v", i, got)
		}
	}
}

func TestMutualExclusion(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	eng.SetUtteranceDuration(2 * time.Millisecond)
	c := newTestController(t, eng, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = c.Speak(strings.Repeat("x", i+j+1), speech.VoiceOption(j%2))
			}
		}(i)
	}
	wg.Wait()

	if job := c.Current(); job != nil {
		waitJob(t, job)
	}
	if got := eng.MaxActive(); got > 1 {
		t.Fatalf("engine was driven by %d jobs at once", got)
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	c := newTestController(t, mock.New(mock.Voices(2)...), time.Minute)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Stop blocked with no job running")
	}
	if st := c.Status(); st.State != "idle" {
		t.Errorf("expected idle status, got %q", st.State)
	}
}

func TestStopAfterFinishIsNoop(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	c := newTestController(t, eng, 0)

	job, err := c.Speak("hello", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitJob(t, job)

	c.Stop()
	c.Stop()

	if job.State() != speech.StateDone {
		t.Errorf("stopping a finished job must not change it, got %s", job.State())
	}
	if c.LastError() != nil {
		t.Errorf("unexpected last error: %v", c.LastError())
	}
}

func TestStopInterruptsRunningJob(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	eng.SetUtteranceDuration(time.Minute)
	c := newTestController(t, eng, 0)

	job, err := c.Speak("long text", speech.VoiceFemale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitStarted(t, eng, "long text")

	c.Stop()

	if job.State() != speech.StateStopped {
		t.Fatalf("expected stopped after Stop, got %s", job.State())
	}
}

func TestVoiceFallback(t *testing.T) {
	eng := mock.New(mock.Voices(1)...)
	c := newTestController(t, eng, 0)

	job, err := c.Speak("hello", speech.VoiceFemale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitJob(t, job)

	if job.State() != speech.StateDone {
		t.Fatalf("expected done, got %s (err %v)", job.State(), job.Err())
	}
	if job.Voice().ID != "v0" {
		t.Errorf("expected fallback to v0, got %q", job.Voice().ID)
	}
	if eng.CurrentVoice() != "v0" {
		t.Errorf("engine voice should be v0, got %q", eng.CurrentVoice())
	}
}

func TestEmptyVoiceTableKeepsEngineDefault(t *testing.T) {
	eng := mock.New()
	c := newTestController(t, eng, 0)

	job, err := c.Speak("hello", speech.VoiceFemale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitJob(t, job)

	if job.State() != speech.StateDone {
		t.Fatalf("expected done, got %s", job.State())
	}
	if calls := eng.SetVoiceCalls(); len(calls) != 0 {
		t.Errorf("SetVoice should not be called without voices, got %v", calls)
	}
}

func TestEngineFailureIsReportedOutOfBand(t *testing.T) {
	boom := errors.New("device unavailable")
	eng := mock.New(mock.Voices(2)...)
	eng.FailWith(boom)
	c := newTestController(t, eng, 0)

	job, err := c.Speak("hello", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak must not surface engine errors synchronously: %v", err)
	}
	waitJob(t, job)

	if job.State() != speech.StateStopped {
		t.Errorf("expected stopped, got %s", job.State())
	}
	if !errors.Is(job.Err(), boom) {
		t.Errorf("expected job error %v, got %v", boom, job.Err())
	}
	if !errors.Is(c.LastError(), boom) {
		t.Errorf("expected last error %v, got %v", boom, c.LastError())
	}
	if st := c.Status(); !strings.Contains(st.LastError, "device unavailable") {
		t.Errorf("status should carry the error, got %+v", st)
	}

	// The handle was released: the next job can run.
	eng.FailWith(nil)
	next, err := c.Speak("again", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitJob(t, next)
	if next.State() != speech.StateDone {
		t.Errorf("expected next job done, got %s", next.State())
	}
}

func TestJoinTimeoutDetachesHungJob(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	eng.SetUtteranceDuration(time.Minute)
	eng.IgnoreStop(true)
	c := newTestController(t, eng, 50*time.Millisecond)

	a, err := c.Speak("A", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak A failed: %v", err)
	}
	waitStarted(t, eng, "A")

	start := time.Now()
	b, err := c.Speak("B", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak B failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Speak blocked for %s despite the join timeout", elapsed)
	}
	if !errors.Is(c.LastError(), speech.ErrJoinTimeout) {
		t.Errorf("expected ErrJoinTimeout, got %v", c.LastError())
	}
	if a.State() != speech.StateRunning {
		t.Errorf("hung job should still be running, got %s", a.State())
	}

	// B must not touch the engine while A holds it.
	select {
	case got := <-eng.Started():
		t.Fatalf("%q started while the engine was held", got)
	case <-time.After(50 * time.Millisecond):
	}

	eng.SetUtteranceDuration(10 * time.Millisecond)
	eng.Release()

	waitJob(t, a)
	waitJob(t, b)
	if a.State() != speech.StateStopped {
		t.Errorf("expected A stopped, got %s", a.State())
	}
	if b.State() != speech.StateDone {
		t.Errorf("expected B done, got %s", b.State())
	}
	if got := eng.MaxActive(); got != 1 {
		t.Errorf("expected one driver at a time, got %d", got)
	}
}

func TestStateChangeHook(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	c := newTestController(t, eng, 0)

	var (
		mu     sync.Mutex
		states []speech.JobState
	)
	c.OnStateChange(func(_ *speech.Job, s speech.JobState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	job, err := c.Speak("hello", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitJob(t, job)

	mu.Lock()
	defer mu.Unlock()
	want := []speech.JobState{speech.StatePending, speech.StateRunning, speech.StateDone}
	if len(states) != len(want) {
		t.Fatalf("expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], states[i])
		}
	}
}

func TestCloseClosesEngine(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	eng.SetUtteranceDuration(time.Minute)
	c := speech.NewController(speech.NewEngineHandle(eng), speech.DefaultControllerConfig())

	job, err := c.Speak("hello", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitStarted(t, eng, "hello")

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if job.State() != speech.StateStopped {
		t.Errorf("expected stopped, got %s", job.State())
	}
	if !eng.Closed() {
		t.Error("engine should be closed")
	}
	if _, err := c.Speak("again", speech.VoiceMale); !errors.Is(err, speech.ErrControllerClosed) {
		t.Errorf("expected ErrControllerClosed, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

// Engine exposes [V0, V1]; "hello" plays on V0, then "goodbye" supersedes it
// on V1.
func TestEndToEndScenario(t *testing.T) {
	eng := mock.New(mock.Voices(2)...)
	eng.SetUtteranceDuration(time.Minute)
	c := newTestController(t, eng, 0)

	var (
		mu          sync.Mutex
		transitions = map[string][]speech.JobState{}
	)
	c.OnStateChange(func(j *speech.Job, s speech.JobState) {
		mu.Lock()
		transitions[j.Text] = append(transitions[j.Text], s)
		mu.Unlock()
	})

	first, err := c.Speak("hello", speech.VoiceMale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitStarted(t, eng, "hello")
	if first.State() != speech.StateRunning {
		t.Fatalf("expected first running, got %s", first.State())
	}
	if first.Voice().ID != "v0" {
		t.Errorf("expected first on v0, got %q", first.Voice().ID)
	}

	eng.SetUtteranceDuration(10 * time.Millisecond)
	second, err := c.Speak("goodbye", speech.VoiceFemale)
	if err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	waitJob(t, second)

	if first.State() != speech.StateStopped {
		t.Errorf("expected first stopped, got %s", first.State())
	}
	if second.State() != speech.StateDone {
		t.Errorf("expected second done, got %s", second.State())
	}
	if second.Voice().ID != "v1" {
		t.Errorf("expected second on v1, got %q", second.Voice().ID)
	}

	mu.Lock()
	defer mu.Unlock()
	check := func(text string, want ...speech.JobState) {
		got := transitions[text]
		if len(got) != len(want) {
			t.Errorf("%s: expected %v, got %v", text, want, got)
			return
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s: expected %v, got %v", text, want, got)
				return
			}
		}
	}
	check("hello", speech.StatePending, speech.StateRunning, speech.StateStopped)
	check("goodbye", speech.StatePending, speech.StateRunning, speech.StateDone)
}

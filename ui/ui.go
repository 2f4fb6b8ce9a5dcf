// Package ui provides the terminal front-end for analyzing a tablet image
// and listening to the summary.
package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/pillcast/internal/speech"
	"github.com/dgnsrekt/pillcast/internal/speech/sentence"
	"github.com/dgnsrekt/pillcast/internal/vision"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	speechPollInterval   = 250 * time.Millisecond
	ellipsis             = "…"
	headerHeight         = 3
	statusBarHeight      = 1
)

// Analyzer summarizes tablet images.
type Analyzer interface {
	Summarize(ctx context.Context, details string, image []byte, mediaType string) (vision.Result, error)
}

// Speaker speaks text. *speech.Controller implements it.
type Speaker interface {
	Speak(text string, option speech.VoiceOption) (*speech.Job, error)
	Stop()
	Status() speech.Status
}

// NewProgram returns a new Tea program that analyzes image. speaker may be
// nil, in which case the speech keys report that speech is unavailable.
func NewProgram(cfg Config, image []byte, analyzer Analyzer, speaker Speaker) *tea.Program {
	log.Debug("Starting pillcast", "image", cfg.ImagePath, "bytes", len(image), "speech", speaker != nil)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, image, analyzer, speaker), opts...)
}

type state int

const (
	stateAnalyzing state = iota
	stateShowSummary
	stateError
)

func (s state) String() string {
	return map[state]string{
		stateAnalyzing:   "analyzing",
		stateShowSummary: "showing summary",
		stateError:       "error",
	}[s]
}

type (
	errMsg                  struct{ err error }
	summaryMsg              vision.Result
	contentRenderedMsg      string
	speechStatusMsg         speech.Status
	speechStoppedMsg        speech.Status
	statusMessageTimeoutMsg struct{}
)

func (e errMsg) Error() string { return e.err.Error() }

type speakDoneMsg struct {
	option speech.VoiceOption
	err    error
}

type model struct {
	cfg      Config
	analyzer Analyzer
	speaker  Speaker
	image    []byte

	ctx    context.Context
	cancel context.CancelFunc

	state    state
	width    int
	height   int
	spinner  spinner.Model
	viewport viewport.Model
	showHelp bool

	result vision.Result
	err    error
	speech speech.Status

	statusMessage      string
	statusIsError      bool
	statusMessageTimer *time.Timer
}

func newModel(cfg Config, image []byte, analyzer Analyzer, speaker Speaker) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ctx, cancel := context.WithCancel(context.Background())
	m := model{
		cfg:      cfg,
		analyzer: analyzer,
		speaker:  speaker,
		image:    image,
		ctx:      ctx,
		cancel:   cancel,
		state:    stateAnalyzing,
		spinner:  sp,
		viewport: viewport.New(0, 0),
		speech:   speech.Status{State: "idle"},
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		analyzeCmd(m.ctx, m.analyzer, m.cfg.Details, m.image, m.cfg.MediaType),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateError {
			m.cancel()
			return m, tea.Quit
		}

		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.cancel()
			return m, tea.Quit

		case "?":
			m.showHelp = !m.showHelp
			m.setSize(m.width, m.height)
			return m, nil
		}

		if m.state != stateShowSummary {
			break
		}

		switch msg.String() {
		case "v":
			return m, speakCmd(m.speaker, m.result.Summary, speech.VoiceMale)
		case "f":
			return m, speakCmd(m.speaker, m.result.Summary, speech.VoiceFemale)
		case "s":
			if m.speaker == nil {
				return m, m.showStatusMessage("Stopped", false)
			}
			return m, stopCmd(m.speaker)
		case "c":
			copyToClipboard(m.result.Summary)
			return m, m.showStatusMessage("Copied summary", false)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.setSize(msg.Width, msg.Height)
		if m.state == stateShowSummary {
			cmds = append(cmds, renderCmd(m.result.Summary, m.cfg.GlamourStyle, m.wrapWidth()))
		}

	case spinner.TickMsg:
		if m.state != stateAnalyzing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case summaryMsg:
		m.state = stateShowSummary
		m.result = vision.Result(msg)
		log.Info("Summary ready", "cached", m.result.Cached, "took", m.result.Took)
		cmds = append(cmds, renderCmd(m.result.Summary, m.cfg.GlamourStyle, m.wrapWidth()))
		if m.cfg.AutoSpeak {
			cmds = append(cmds, speakCmd(m.speaker, m.result.Summary, m.cfg.Voice))
		}

	case errMsg:
		if m.state == stateAnalyzing {
			m.state = stateError
			m.err = msg.err
			log.Error("Analysis failed", "error", msg.err)
			return m, nil
		}
		cmds = append(cmds, m.showStatusMessage(msg.Error(), true))

	case contentRenderedMsg:
		m.viewport.SetContent(string(msg))

	case speakDoneMsg:
		if msg.err != nil {
			return m, m.showStatusMessage("Speech failed: "+msg.err.Error(), true)
		}
		m.speech = m.speaker.Status()
		cmds = append(cmds,
			m.showStatusMessage(fmt.Sprintf("Speaking with the %s voice", msg.option), false),
			pollSpeechCmd(m.speaker),
		)

	case speechStoppedMsg:
		m.speech = speech.Status(msg)
		cmds = append(cmds, m.showStatusMessage("Stopped", false))

	case speechStatusMsg:
		m.speech = speech.Status(msg)
		if m.speech.State == "pending" || m.speech.State == "running" {
			cmds = append(cmds, pollSpeechCmd(m.speaker))
		}

	case statusMessageTimeoutMsg:
		m.statusMessage = ""
		m.statusIsError = false
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n%s\n\n",
		logoView(),
		titleStyle.Render("Pill Identifier: Tablet Summarizer"),
		subtitleStyle.Render("Upload a tablet image and get the summary"),
	)

	switch m.state {
	case stateAnalyzing:
		fmt.Fprintf(&b, "  %s Analyzing %s%s\n", m.spinner.View(), filepath.Base(m.cfg.ImagePath), ellipsis)
		return b.String()
	case stateError:
		b.WriteString(errorView(m.err))
		return b.String()
	}

	b.WriteString(m.viewport.View() + "\n")
	m.statusBarView(&b)
	if m.showHelp {
		b.WriteString("\n" + m.helpView())
	}
	return b.String()
}

func (m *model) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = max(0, h-headerHeight-statusBarHeight)
	if m.showHelp {
		m.viewport.Height = max(0, m.viewport.Height-strings.Count(m.helpView(), "\n")-1)
	}
}

func (m model) wrapWidth() int {
	w := m.viewport.Width
	if m.cfg.GlamourMaxWidth > 0 && (w == 0 || int(m.cfg.GlamourMaxWidth) < w) { //nolint:gosec
		w = int(m.cfg.GlamourMaxWidth) //nolint:gosec
	}
	return w
}

func (m *model) showStatusMessage(msg string, isError bool) tea.Cmd {
	m.statusMessage = msg
	m.statusIsError = isError
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func errorView(err error) string {
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render("press any key to exit"),
	)
	return indent(s, 3)
}

// COMMANDS

func analyzeCmd(ctx context.Context, a Analyzer, details string, image []byte, mediaType string) tea.Cmd {
	return func() tea.Msg {
		if a == nil {
			return errMsg{vision.ErrMissingAPIKey}
		}
		res, err := a.Summarize(ctx, details, image, mediaType)
		if err != nil {
			return errMsg{err}
		}
		return summaryMsg(res)
	}
}

func speakCmd(s Speaker, summary string, option speech.VoiceOption) tea.Cmd {
	return func() tea.Msg {
		if s == nil {
			return speakDoneMsg{option, fmt.Errorf("speech is not configured")}
		}
		_, err := s.Speak(Speakable(summary), option)
		return speakDoneMsg{option, err}
	}
}

// stopCmd stops speech off the event loop; Stop may wait for the engine.
func stopCmd(s Speaker) tea.Cmd {
	return func() tea.Msg {
		s.Stop()
		return speechStoppedMsg(s.Status())
	}
}

func pollSpeechCmd(s Speaker) tea.Cmd {
	return tea.Tick(speechPollInterval, func(time.Time) tea.Msg {
		return speechStatusMsg(s.Status())
	})
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

// ETC

// Speakable reduces a markdown summary to the text the speech engines read.
func Speakable(summary string) string {
	return sentence.Plain(summary)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}

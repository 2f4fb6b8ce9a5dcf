package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/mitchellh/go-homedir"

	"github.com/dgnsrekt/pillcast/internal/audio"
	"github.com/dgnsrekt/pillcast/internal/speech"
)

const (
	piperSampleRate   = 22050
	maxPiperAudioSize = 20 * 1024 * 1024
)

// PiperVoice is one ONNX voice model.
type PiperVoice struct {
	Name    string `mapstructure:"name"`
	Model   string `mapstructure:"model"`
	Gender  string `mapstructure:"gender"`
	Speaker string `mapstructure:"speaker"` // Speaker id for multi-speaker models
}

// PiperConfig holds configuration for the Piper synthesizer.
type PiperConfig struct {
	// Command runs piper, with optional extra arguments (e.g. "piper -q").
	Command string
	// Voices is the voice table. The first entry is the default voice.
	Voices []PiperVoice
	// LengthScale slows speech down above 1 and speeds it up below.
	LengthScale float64
	// Timeout bounds a single synthesis. Defaults to 30s.
	Timeout time.Duration
}

// Piper synthesizes speech by running the piper binary. Every utterance
// gets a fresh process with the text preloaded on stdin.
type Piper struct {
	argv        []string
	voices      []PiperVoice
	lengthScale float64
	timeout     time.Duration
}

// NewPiper creates a Piper synthesizer.
func NewPiper(config PiperConfig) (*Piper, error) {
	if config.Command == "" {
		config.Command = "piper"
	}
	argv, err := shellwords.Parse(config.Command)
	if err != nil {
		return nil, wrap("piper", "parse command", err)
	}
	if len(argv) == 0 {
		return nil, wrap("piper", "parse command", errors.New("empty command"))
	}
	if len(config.Voices) == 0 {
		return nil, wrap("piper", "configure", ErrNoVoices)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	voices := make([]PiperVoice, len(config.Voices))
	for i, v := range config.Voices {
		if v.Model == "" {
			return nil, wrap("piper", "configure", fmt.Errorf("voice %d has no model", i))
		}
		model, err := homedir.Expand(v.Model)
		if err != nil {
			return nil, wrap("piper", "configure", err)
		}
		v.Model = model
		if v.Name == "" {
			v.Name = strings.TrimSuffix(filepath.Base(model), ".onnx")
		}
		voices[i] = v
	}

	return &Piper{
		argv:        argv,
		voices:      voices,
		lengthScale: config.LengthScale,
		timeout:     config.Timeout,
	}, nil
}

// Name implements Synthesizer.
func (p *Piper) Name() string { return "piper" }

// Voices implements Synthesizer.
func (p *Piper) Voices() []speech.Voice {
	out := make([]speech.Voice, len(p.voices))
	for i, v := range p.voices {
		out[i] = speech.Voice{
			ID:       v.Name,
			Name:     v.Name,
			Language: piperLanguage(v.Name),
			Gender:   v.Gender,
		}
	}
	return out
}

// Validate checks that the binary and every model are available.
func (p *Piper) Validate() error {
	if _, err := exec.LookPath(p.argv[0]); err != nil {
		return wrap("piper", "validate", fmt.Errorf("%s not found in PATH: %w", p.argv[0], err))
	}
	for _, v := range p.voices {
		if _, err := os.Stat(v.Model); err != nil {
			return wrap("piper", "validate", fmt.Errorf("model for voice %q not accessible: %w", v.Name, err))
		}
	}
	return nil
}

// Synthesize implements Synthesizer.
func (p *Piper) Synthesize(ctx context.Context, voice speech.Voice, text string) ([]byte, audio.Format, error) {
	format := audio.Format{SampleRate: piperSampleRate, Channels: 1}

	v, err := p.lookup(voice.ID)
	if err != nil {
		return nil, format, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append([]string{}, p.argv[1:]...)
	args = append(args, "--model", v.Model, "--output-raw")
	if p.lengthScale > 0 && p.lengthScale != 1 {
		args = append(args, "--length-scale", strconv.FormatFloat(p.lengthScale, 'f', 2, 64))
	}
	if v.Speaker != "" {
		args = append(args, "--speaker", v.Speaker)
	}

	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	// Text goes on stdin before Start so piper never sees an empty read.
	cmd.Stdin = strings.NewReader(text)
	// Interrupt first, then kill if piper does not exit.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, format, ctxErr
		}
		return nil, format, fmt.Errorf("piper failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, format, fmt.Errorf("%w, stderr: %s", ErrNoAudio, strings.TrimSpace(stderr.String()))
	}
	if len(pcm) > maxPiperAudioSize {
		return nil, format, fmt.Errorf("piper output too large: %d bytes (max %d)", len(pcm), maxPiperAudioSize)
	}
	// Drop a trailing odd byte so the buffer holds whole samples.
	return pcm[:len(pcm)&^1], format, nil
}

// CacheKey implements Fingerprinter.
func (p *Piper) CacheKey(voice speech.Voice) string {
	v, err := p.lookup(voice.ID)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("model=%s speaker=%s length_scale=%.2f", v.Model, v.Speaker, p.lengthScale)
}

// lookup resolves a voice id, with "" selecting the first voice.
func (p *Piper) lookup(id string) (PiperVoice, error) {
	if id == "" {
		return p.voices[0], nil
	}
	for _, v := range p.voices {
		if v.Name == id {
			return v, nil
		}
	}
	return PiperVoice{}, fmt.Errorf("%w: %s", ErrUnknownVoice, id)
}

// piperLanguage extracts "en-US" from voice names like "en_US-ryan-high".
func piperLanguage(name string) string {
	lang, _, _ := strings.Cut(name, "-")
	if len(lang) == 5 && lang[2] == '_' {
		return lang[:2] + "-" + lang[3:]
	}
	return ""
}

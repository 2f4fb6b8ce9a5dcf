package engines

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/pillcast/internal/speech"
)

// fakePiper writes a script that echoes stdin as "PCM" and records its
// arguments.
func fakePiper(t *testing.T, body string) (command, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	script := filepath.Join(dir, "piper")
	content := "#!/bin/sh\necho \"$@\" > '" + argsFile + "'\n" + body + "\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
	return script, argsFile
}

func piperVoices(t *testing.T) []PiperVoice {
	t.Helper()
	dir := t.TempDir()
	var voices []PiperVoice
	for _, name := range []string{"en_US-ryan-high", "en_US-amy-medium"} {
		model := filepath.Join(dir, name+".onnx")
		if err := os.WriteFile(model, []byte("onnx"), 0o644); err != nil {
			t.Fatal(err)
		}
		voices = append(voices, PiperVoice{Model: model})
	}
	voices[0].Gender = "male"
	voices[1].Gender = "female"
	return voices
}

func TestNewPiperValidation(t *testing.T) {
	if _, err := NewPiper(PiperConfig{}); !errors.Is(err, ErrNoVoices) {
		t.Errorf("expected ErrNoVoices, got %v", err)
	}
	if _, err := NewPiper(PiperConfig{Voices: []PiperVoice{{Name: "x"}}}); err == nil {
		t.Error("expected error for a voice without model")
	}
	if _, err := NewPiper(PiperConfig{Command: `piper "unterminated`, Voices: piperVoices(t)}); err == nil {
		t.Error("expected error for an unparsable command")
	}
}

func TestPiperVoices(t *testing.T) {
	p, err := NewPiper(PiperConfig{Voices: piperVoices(t)})
	if err != nil {
		t.Fatal(err)
	}
	voices := p.Voices()
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}
	want := speech.Voice{ID: "en_US-ryan-high", Name: "en_US-ryan-high", Language: "en-US", Gender: "male"}
	if voices[0] != want {
		t.Errorf("expected %+v, got %+v", want, voices[0])
	}
}

func TestPiperSynthesize(t *testing.T) {
	command, argsFile := fakePiper(t, "cat")
	p, err := NewPiper(PiperConfig{
		Command:     command + " --quiet",
		Voices:      piperVoices(t),
		LengthScale: 1.5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	pcm, format, err := p.Synthesize(context.Background(), speech.Voice{ID: "en_US-amy-medium"}, "hello!")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(pcm) != "hello!" {
		t.Errorf("expected stdin echoed back, got %q", pcm)
	}
	if format.SampleRate != 22050 || format.Channels != 1 {
		t.Errorf("unexpected format %+v", format)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.TrimSpace(string(args))
	for _, want := range []string{"--quiet", "--model", "en_US-amy-medium.onnx", "--output-raw", "--length-scale 1.50"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in args %q", want, got)
		}
	}
}

func TestPiperSynthesizeOddLength(t *testing.T) {
	command, _ := fakePiper(t, "printf abc")
	p, err := NewPiper(PiperConfig{Command: command, Voices: piperVoices(t)})
	if err != nil {
		t.Fatal(err)
	}
	pcm, _, err := p.Synthesize(context.Background(), speech.Voice{}, "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != 2 {
		t.Errorf("expected a trailing partial sample to be dropped, got %d bytes", len(pcm))
	}
}

func TestPiperSynthesizeErrors(t *testing.T) {
	t.Run("unknown voice", func(t *testing.T) {
		p, _ := NewPiper(PiperConfig{Voices: piperVoices(t)})
		if _, _, err := p.Synthesize(context.Background(), speech.Voice{ID: "nobody"}, "x"); !errors.Is(err, ErrUnknownVoice) {
			t.Errorf("expected ErrUnknownVoice, got %v", err)
		}
	})

	t.Run("process failure", func(t *testing.T) {
		command, _ := fakePiper(t, "echo 'model corrupt' >&2; exit 3")
		p, _ := NewPiper(PiperConfig{Command: command, Voices: piperVoices(t)})
		_, _, err := p.Synthesize(context.Background(), speech.Voice{}, "x")
		if err == nil || !strings.Contains(err.Error(), "model corrupt") {
			t.Errorf("expected stderr in error, got %v", err)
		}
	})

	t.Run("no output", func(t *testing.T) {
		command, _ := fakePiper(t, "true")
		p, _ := NewPiper(PiperConfig{Command: command, Voices: piperVoices(t)})
		if _, _, err := p.Synthesize(context.Background(), speech.Voice{}, "x"); !errors.Is(err, ErrNoAudio) {
			t.Errorf("expected ErrNoAudio, got %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		command, _ := fakePiper(t, "exec sleep 10")
		p, _ := NewPiper(PiperConfig{Command: command, Voices: piperVoices(t)})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, _, err := p.Synthesize(ctx, speech.Voice{}, "x")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("cancel took %s", elapsed)
		}
	})
}

func TestPiperValidateMissingBinary(t *testing.T) {
	p, err := NewPiper(PiperConfig{Command: "definitely-not-piper-binary", Voices: piperVoices(t)})
	if err != nil {
		t.Fatal(err)
	}
	var ee *EngineError
	if err := p.Validate(); !errors.As(err, &ee) || ee.Op != "validate" {
		t.Errorf("expected validate error, got %v", err)
	}
}

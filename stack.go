package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/pillcast/internal/audio"
	"github.com/dgnsrekt/pillcast/internal/cache"
	"github.com/dgnsrekt/pillcast/internal/metrics"
	"github.com/dgnsrekt/pillcast/internal/speech"
	"github.com/dgnsrekt/pillcast/internal/speech/engines"
	"github.com/dgnsrekt/pillcast/internal/speech/engines/mock"
	"github.com/dgnsrekt/pillcast/internal/vision"
)

// store is what the synthesizers and the summarizer cache through.
type store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Close() error
}

// newCache opens the shared cache. It returns a nil store when caching is
// disabled.
func newCache(cfg cacheConfig) (store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	dir := cfg.Dir
	if dir == "" {
		d, err := gap.NewScope(gap.User, "pillcast").CacheDir()
		if err != nil {
			return nil, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(d, "cache")
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to expand cache directory: %w", err)
	}

	memory, err := parseSize(cfg.MemorySize)
	if err != nil {
		return nil, err
	}
	disk, err := parseSize(cfg.DiskSize)
	if err != nil {
		return nil, err
	}

	c := cache.DefaultConfig()
	c.MemoryCapacity = memory
	c.DiskPath = dir
	c.DiskCapacity = disk
	if cfg.TTL > 0 {
		c.TTL = cfg.TTL
	}

	m, err := cache.NewManager(c, log.Default())
	if err != nil {
		return nil, fmt.Errorf("unable to open cache: %w", err)
	}
	return m, nil
}

// newSynthesizer builds the configured synthesizer, wrapped with the cache
// when st is not nil.
func newSynthesizer(cfg appConfig, st store) (engines.Synthesizer, error) {
	var synth engines.Synthesizer
	switch cfg.Engine {
	case "piper":
		p, err := engines.NewPiper(engines.PiperConfig{
			Command:     cfg.Piper.Command,
			Voices:      cfg.Piper.Voices,
			LengthScale: cfg.Piper.LengthScale,
			Timeout:     cfg.Piper.Timeout,
		})
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		synth = p
	case "gtts":
		g, err := engines.NewGTTS(engines.GTTSConfig{
			Language:          cfg.GTTS.Language,
			Voices:            cfg.GTTS.Voices,
			Slow:              cfg.GTTS.Slow,
			Timeout:           cfg.GTTS.Timeout,
			RequestsPerMinute: cfg.GTTS.RequestsPerMinute,
		})
		if err != nil {
			return nil, err
		}
		synth = g
	default:
		return nil, fmt.Errorf("unknown speech engine %q", cfg.Engine)
	}

	if st != nil {
		synth = engines.NewCached(synth, st)
	}
	return synth, nil
}

// listVoices returns the voice table of the configured engine without
// opening the audio device.
func listVoices(cfg appConfig) ([]speech.Voice, error) {
	if cfg.Engine == "mock" {
		return mock.Voices(2), nil
	}
	synth, err := newSynthesizer(cfg, nil)
	if err != nil {
		return nil, err
	}
	return synth.Voices(), nil
}

func newSpeechEngine(cfg appConfig, st store) (speech.Engine, error) {
	if cfg.Engine == "mock" {
		e := mock.New(mock.Voices(2)...)
		e.SetUtteranceDuration(2 * time.Second)
		return e, nil
	}

	synth, err := newSynthesizer(cfg, st)
	if err != nil {
		return nil, err
	}

	pc := audio.DefaultPlayerConfig()
	if cfg.Audio.SampleRate > 0 {
		pc.SampleRate = cfg.Audio.SampleRate
	}
	if cfg.Audio.BufferSize > 0 {
		pc.BufferSize = cfg.Audio.BufferSize
	}
	player, err := audio.NewOtoPlayer(pc)
	if err != nil {
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}
	if err := player.SetVolume(cfg.Volume); err != nil {
		_ = player.Close()
		return nil, err
	}
	return engines.New(synth, player, log.Default()), nil
}

// newController wires the configured engine into a speech controller. m
// may be nil.
func newController(cfg appConfig, st store, m *metrics.Metrics) (*speech.Controller, error) {
	engine, err := newSpeechEngine(cfg, st)
	if err != nil {
		return nil, err
	}

	cc := speech.DefaultControllerConfig()
	cc.JoinTimeout = cfg.Speech.JoinTimeout
	cc.Logger = log.Default()

	ctrl := speech.NewController(speech.NewEngineHandle(engine), cc)
	ctrl.OnStateChange(func(_ *speech.Job, state speech.JobState) {
		m.ObserveJobState(state.String())
	})
	log.Info("Speech ready", "engine", cfg.Engine, "voices", len(engine.ListVoices()))
	return ctrl, nil
}

// newSummarizer returns vision.ErrMissingAPIKey when no key is configured.
func newSummarizer(cfg appConfig, st store) (*vision.Summarizer, error) {
	client, err := vision.NewClient(vision.ClientConfig{
		APIKey:   cfg.Vision.APIKey,
		Model:    cfg.Vision.Model,
		Endpoint: cfg.Vision.Endpoint,
		Timeout:  cfg.Vision.Timeout,
		Logger:   log.Default(),
	})
	if err != nil {
		return nil, err
	}

	var vs vision.Store
	if st != nil {
		vs = st
	}
	return vision.NewSummarizer(client, vs, client.Model(), log.Default()), nil
}

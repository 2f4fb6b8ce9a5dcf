package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ErrPlayerClosed is returned by Play after Close.
var ErrPlayerClosed = errors.New("audio: player is closed")

// Player plays raw PCM in the player's Format.
type Player interface {
	// Play blocks until pcm has been played or ctx is done. It returns
	// ctx.Err() when playback was cut short.
	Play(ctx context.Context, pcm []byte) error
	// Format is the PCM layout Play expects.
	Format() Format
	// SetVolume sets the playback volume (0.0 to 1.0).
	SetVolume(volume float64) error
	Close() error
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // Buffer size for streaming
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		Channels:   1,
		BitDepth:   16,
		BufferSize: 4096,
	}
}

// OtoPlayer implements Player on top of oto. oto allows one context per
// process, so there should be only one OtoPlayer.
type OtoPlayer struct {
	context *oto.Context
	format  Format

	// volume is a float64 scaled by 1e6.
	volume atomic.Uint64

	// playMu serializes Play; mu guards the active player.
	playMu sync.Mutex
	mu     sync.Mutex
	player *oto.Player
	// data keeps the PCM alive while oto reads from it.
	data   []byte
	closed bool

	pollInterval time.Duration
}

// NewOtoPlayer opens the audio device.
func NewOtoPlayer(config PlayerConfig) (*OtoPlayer, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p := &OtoPlayer{
		context:      ctx,
		format:       Format{SampleRate: config.SampleRate, Channels: config.Channels},
		pollInterval: 10 * time.Millisecond,
	}
	_ = p.SetVolume(1.0)
	return p, nil
}

func validateConfig(config PlayerConfig) error {
	// oto only supports these rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// Format implements Player.
func (p *OtoPlayer) Format() Format {
	return p.format
}

// Play implements Player.
func (p *OtoPlayer) Play(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	data := make([]byte, len(pcm))
	copy(data, pcm)
	player := p.context.NewPlayer(bytes.NewReader(data))
	player.SetVolume(p.getVolume())
	p.player = player
	p.data = data
	p.mu.Unlock()

	defer p.release()

	player.Play()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

func (p *OtoPlayer) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.player != nil {
		_ = p.player.Close()
		p.player = nil
	}
	p.data = nil
}

// SetVolume implements Player.
func (p *OtoPlayer) SetVolume(volume float64) error {
	if err := checkVolume(volume); err != nil {
		return err
	}
	p.volume.Store(uint64(volume * 1000000))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()
	return nil
}

func (p *OtoPlayer) getVolume() float64 {
	return float64(p.volume.Load()) / 1000000.0
}

// Close stops playback. oto contexts cannot be closed in v3; the device is
// released when the process exits.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.player != nil {
		p.player.Pause()
	}
	return nil
}

func checkVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	return nil
}

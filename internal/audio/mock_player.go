package audio

import (
	"context"
	"sync"
	"time"
)

// MockPlayer implements Player without producing sound. Playback takes the
// real duration of the PCM scaled by Speed.
type MockPlayer struct {
	mu      sync.Mutex
	format  Format
	volume  float64
	speed   float64
	failure error
	closed  bool

	played    [][]byte
	cancelled int
}

// NewMockPlayer creates a mock player for format. A zero format defaults
// to DefaultPlayerConfig.
func NewMockPlayer(format Format) *MockPlayer {
	if format.SampleRate == 0 {
		cfg := DefaultPlayerConfig()
		format = Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	}
	return &MockPlayer{format: format, volume: 1.0, speed: 1000}
}

// SetSpeed sets how much faster than real time playback is simulated.
func (mp *MockPlayer) SetSpeed(speed float64) {
	mp.mu.Lock()
	mp.speed = speed
	mp.mu.Unlock()
}

// FailWith makes every Play return err.
func (mp *MockPlayer) FailWith(err error) {
	mp.mu.Lock()
	mp.failure = err
	mp.mu.Unlock()
}

// Format implements Player.
func (mp *MockPlayer) Format() Format {
	return mp.format
}

// Play implements Player.
func (mp *MockPlayer) Play(ctx context.Context, pcm []byte) error {
	mp.mu.Lock()
	if mp.closed {
		mp.mu.Unlock()
		return ErrPlayerClosed
	}
	if mp.failure != nil {
		err := mp.failure
		mp.mu.Unlock()
		return err
	}
	d := time.Duration(float64(mp.format.Duration(len(pcm))) / mp.speed)
	mp.mu.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		mp.mu.Lock()
		mp.cancelled++
		mp.mu.Unlock()
		return ctx.Err()
	}

	data := make([]byte, len(pcm))
	copy(data, pcm)
	mp.mu.Lock()
	mp.played = append(mp.played, data)
	mp.mu.Unlock()
	return nil
}

// SetVolume implements Player.
func (mp *MockPlayer) SetVolume(volume float64) error {
	if err := checkVolume(volume); err != nil {
		return err
	}
	mp.mu.Lock()
	mp.volume = volume
	mp.mu.Unlock()
	return nil
}

// Close implements Player.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	mp.closed = true
	mp.mu.Unlock()
	return nil
}

// Played returns every buffer played to the end.
func (mp *MockPlayer) Played() [][]byte {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([][]byte(nil), mp.played...)
}

// Cancelled returns how many plays were cut short.
func (mp *MockPlayer) Cancelled() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.cancelled
}

// Volume returns the current volume.
func (mp *MockPlayer) Volume() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.volume
}

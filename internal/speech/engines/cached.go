package engines

import (
	"context"
	"encoding/binary"

	"github.com/dgnsrekt/pillcast/internal/audio"
	"github.com/dgnsrekt/pillcast/internal/cache"
	"github.com/dgnsrekt/pillcast/internal/speech"
)

// Store is the subset of cache.Manager used by Cached.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

var _ Store = (*cache.Manager)(nil)

// Fingerprinter is implemented by synthesizers whose output depends on
// settings beyond the voice id, such as a model path or a language. The
// fingerprint becomes part of the cache key.
type Fingerprinter interface {
	CacheKey(voice speech.Voice) string
}

// pcmHeader prefixes cached PCM with its format: sample rate (uint32) and
// channel count (uint16), little-endian.
const pcmHeader = 6

// Cached serves repeated utterances from a cache instead of synthesizing
// them again.
type Cached struct {
	Synthesizer
	store Store
}

// NewCached wraps synth with store.
func NewCached(synth Synthesizer, store Store) *Cached {
	return &Cached{Synthesizer: synth, store: store}
}

// Synthesize implements Synthesizer.
func (c *Cached) Synthesize(ctx context.Context, voice speech.Voice, text string) ([]byte, audio.Format, error) {
	id := voice.ID
	if id == "" {
		id = "default"
	}
	var settings string
	if f, ok := c.Synthesizer.(Fingerprinter); ok {
		settings = f.CacheKey(voice)
	}
	key := cache.Key(c.Name(), id, settings, text)

	if data, ok := c.store.Get(key); ok && len(data) > pcmHeader {
		format := audio.Format{
			SampleRate: int(binary.LittleEndian.Uint32(data)),
			Channels:   int(binary.LittleEndian.Uint16(data[4:])),
		}
		return data[pcmHeader:], format, nil
	}

	pcm, format, err := c.Synthesizer.Synthesize(ctx, voice, text)
	if err != nil {
		return nil, format, err
	}

	data := make([]byte, pcmHeader+len(pcm))
	binary.LittleEndian.PutUint32(data, uint32(format.SampleRate))
	binary.LittleEndian.PutUint16(data[4:], uint16(format.Channels))
	copy(data[pcmHeader:], pcm)
	// Cache errors are non-fatal.
	_ = c.store.Put(key, data)
	return pcm, format, nil
}

// Close closes the wrapped synthesizer if it has a Close method.
func (c *Cached) Close() error {
	if closer, ok := c.Synthesizer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

package speech

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Voice describes one entry of an engine's voice table.
type Voice struct {
	ID       string // Engine-specific identifier passed to SetVoice
	Name     string // Human-readable name
	Language string // Language code (e.g., "en-US")
	Gender   string // "male", "female" or empty when unknown
}

// VoiceOption is the caller-facing voice choice. It maps to an index in the
// engine's voice table.
type VoiceOption int

const (
	// VoiceMale selects the first voice of the engine.
	VoiceMale VoiceOption = iota
	// VoiceFemale selects the second voice of the engine.
	VoiceFemale
)

// String returns the lowercase name of the option.
func (o VoiceOption) String() string {
	switch o {
	case VoiceMale:
		return "male"
	case VoiceFemale:
		return "female"
	default:
		return fmt.Sprintf("VoiceOption(%d)", int(o))
	}
}

// Valid reports whether o is one of the supported options.
func (o VoiceOption) Valid() bool {
	return o == VoiceMale || o == VoiceFemale
}

// Index returns the position in the voice table this option asks for.
func (o VoiceOption) Index() int {
	return int(o)
}

// ParseVoiceOption parses "male" or "female", ignoring case and surrounding
// space. An empty string selects VoiceMale.
func ParseVoiceOption(s string) (VoiceOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "male", "m":
		return VoiceMale, nil
	case "female", "f":
		return VoiceFemale, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidVoice, s)
}

// Resolution is the outcome of mapping a VoiceOption onto a voice table.
type Resolution struct {
	Voice Voice
	// Fallback is set when the requested index was out of range and the
	// first voice was used instead.
	Fallback bool
	// Default is set when the table was empty; the engine keeps whatever
	// voice it starts with and SetVoice must not be called.
	Default bool
}

// ResolveVoice picks the voice for option. An index past the end of the
// table falls back to the first voice; an empty table resolves to the
// engine default.
func ResolveVoice(voices []Voice, option VoiceOption) Resolution {
	if len(voices) == 0 {
		return Resolution{Default: true}
	}
	i := option.Index()
	if i < 0 || i >= len(voices) {
		return Resolution{Voice: voices[0], Fallback: true}
	}
	return Resolution{Voice: voices[i]}
}

type voiceSource []Voice

func (s voiceSource) String(i int) string {
	v := s[i]
	return v.ID + " " + v.Name + " " + v.Language + " " + v.Gender
}

func (s voiceSource) Len() int { return len(s) }

// FilterVoices returns the voices fuzzily matching pattern, best match first.
// An empty pattern returns all voices.
func FilterVoices(voices []Voice, pattern string) []Voice {
	if strings.TrimSpace(pattern) == "" {
		return voices
	}
	matches := fuzzy.FindFrom(pattern, voiceSource(voices))
	out := make([]Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

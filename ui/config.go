package ui

import "github.com/dgnsrekt/pillcast/internal/speech"

// Config contains TUI-specific configuration.
type Config struct {
	HomeDir         string `env:"HOME"`
	GlamourStyle    string `env:"GLAMOUR_STYLE" envDefault:"auto"`
	GlamourMaxWidth uint
	EnableMouse     bool

	// The tablet being analyzed
	ImagePath string
	MediaType string
	Details   string

	// Voice used when the summary is spoken automatically
	Voice     speech.VoiceOption
	AutoSpeak bool
}

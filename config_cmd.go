package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# log at debug level
debug: false
# speech engine: piper, gtts or mock
engine: "piper"
# playback volume (0.0 to 1.0)
volume: 1.0
# glamour style name or JSON path (default "auto")
style: "auto"
# word-wrap at width (0 follows the terminal)
width: 0

audio:
  # 44100 or 48000
  sample_rate: 44100
  buffer_size: 4096

speech:
  # how long a superseded utterance may take to stop before it is abandoned
  join_timeout: "5s"

# local synthesis with https://github.com/rhasspy/piper
# the first voice is used for "male", the second for "female"
piper:
  command: "piper"
  length_scale: 1.0
  timeout: "60s"
  voices:
    - name: "en_US-ryan-medium"
      model: "~/.local/share/piper/en_US-ryan-medium.onnx"
      gender: "male"
    - name: "en_US-amy-medium"
      model: "~/.local/share/piper/en_US-amy-medium.onnx"
      gender: "female"

# cloud synthesis with the Google Translate voice
gtts:
  language: "en"
  slow: false
  timeout: "15s"
  requests_per_minute: 100
  voices:
    - name: "en-us"
      tld: "com"
      gender: "female"

# synthesized audio and tablet summaries
cache:
  enabled: true
  # defaults to the user cache directory
  dir: ""
  memory_size: "64MiB"
  disk_size: "512MiB"
  ttl: "168h"

vision:
  # api_key: "" (or set GOOGLE_API_KEY, a .env file works too)
  model: "gemini-1.5-flash"
  timeout: "60s"

server:
  addr: "127.0.0.1:8080"
  max_upload: "10MiB"
  # analyses per minute, 0 disables the limit
  analyze_rate: 10
  shutdown_timeout: "10s"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the pillcast config file",
	Long:    paragraph(fmt.Sprintf("\n%s the pillcast config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("pillcast config\npillcast config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return nil
	},
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Pillcast", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}

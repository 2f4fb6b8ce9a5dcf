// Package engines provides speech engines backed by real synthesizers:
// Piper running locally and the Google Translate TTS endpoint. Both produce
// PCM that an Engine plays through an audio.Player.
package engines

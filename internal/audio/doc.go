// Package audio plays 16-bit PCM through the system audio device using
// oto/v3, and converts the PCM produced by speech engines to the device
// format.
package audio

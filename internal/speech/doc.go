// Package speech serializes access to a single synthesis engine and plays
// the most recently requested utterance, interrupting any earlier one.
package speech

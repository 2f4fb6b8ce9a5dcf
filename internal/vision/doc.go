// Package vision asks a Gemini model to identify a tablet from a photo of
// its label and summarize what it is used for.
package vision

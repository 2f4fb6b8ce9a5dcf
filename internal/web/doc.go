// Package web serves the tablet summarizer page and a small JSON API for
// controlling speech.
package web

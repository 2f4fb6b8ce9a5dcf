package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/pillcast/internal/cache"
)

// Generator produces text from a multimodal prompt. *Client implements it.
type Generator interface {
	Generate(ctx context.Context, parts ...Part) (string, error)
}

// Store caches summaries. *cache.Manager implements it.
type Store interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// Result is a tablet summary.
type Result struct {
	Summary   string
	MediaType string
	Cached    bool
	Took      time.Duration
}

// Summarizer turns a tablet photo and optional details into a summary.
type Summarizer struct {
	gen    Generator
	store  Store
	model  string
	logger *log.Logger
}

// NewSummarizer creates a summarizer. store and logger may be nil; model
// only scopes cache keys.
func NewSummarizer(gen Generator, store Store, model string, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Summarizer{
		gen:    gen,
		store:  store,
		model:  model,
		logger: logger.WithPrefix("vision"),
	}
}

// Summarize asks the model about image. mediaType may be empty, in which
// case it is sniffed from the bytes.
func (s *Summarizer) Summarize(ctx context.Context, details string, image []byte, mediaType string) (Result, error) {
	if len(image) == 0 {
		return Result{}, ErrNoImage
	}
	mediaType = DetectMediaType(image, mediaType)
	if !Supported(mediaType) {
		return Result{}, fmt.Errorf("%w: %s (use JPEG or PNG)", ErrUnsupportedMedia, mediaType)
	}

	details = strings.TrimSpace(details)
	key := cache.Key("summary", s.model, details, string(image))
	if s.store != nil {
		if v, ok := s.store.Get(key); ok {
			s.logger.Debug("Summary served from cache", "bytes", len(image))
			return Result{Summary: string(v), MediaType: mediaType, Cached: true}, nil
		}
	}

	parts := []Part{TextPart(BuildPrompt(details)), ImagePart(image, mediaType)}
	if details != "" {
		parts = append(parts, TextPart(details))
	}

	start := time.Now()
	summary, err := s.gen.Generate(ctx, parts...)
	if err != nil {
		return Result{}, err
	}
	took := time.Since(start)
	s.logger.Info("Tablet analyzed", "media", mediaType, "bytes", len(image), "took", took)

	if s.store != nil {
		if err := s.store.Put(key, []byte(summary)); err != nil {
			s.logger.Warn("Could not cache summary", "error", err)
		}
	}
	return Result{Summary: summary, MediaType: mediaType, Took: took}, nil
}

package vision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/pillcast/internal/cache"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls [][]Part
	reply string
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, parts ...Part) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, parts)
	return f.reply, f.err
}

func TestSummarize(t *testing.T) {
	gen := &fakeGenerator{reply: "Ibuprofen 200mg. Uses: pain relief."}
	s := NewSummarizer(gen, nil, DefaultModel, nil)

	res, err := s.Summarize(context.Background(), " 200mg ", pngHeader, "")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if res.Summary != gen.reply || res.MediaType != "image/png" || res.Cached {
		t.Errorf("unexpected result %+v", res)
	}

	parts := gen.calls[0]
	if len(parts) != 3 {
		t.Fatalf("expected prompt, image and details, got %d parts", len(parts))
	}
	if !strings.HasPrefix(parts[0].Text, Prompt) || !strings.HasSuffix(parts[0].Text, "Tablet Details: 200mg\n\nSummary:") {
		t.Errorf("unexpected prompt %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MimeType != "image/png" {
		t.Errorf("expected png image part, got %+v", parts[1])
	}
	if parts[2].Text != "200mg" {
		t.Errorf("expected details part, got %q", parts[2].Text)
	}
}

func TestSummarizeWithoutDetails(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	s := NewSummarizer(gen, nil, DefaultModel, nil)
	if _, err := s.Summarize(context.Background(), "", jpegHeader, "image/jpg"); err != nil {
		t.Fatal(err)
	}
	if n := len(gen.calls[0]); n != 2 {
		t.Errorf("expected no details part, got %d parts", n)
	}
	if !strings.HasSuffix(gen.calls[0][0].Text, "Tablet Details: \n\nSummary:") {
		t.Errorf("unexpected prompt %q", gen.calls[0][0].Text)
	}
}

func TestSummarizeRejects(t *testing.T) {
	s := NewSummarizer(&fakeGenerator{reply: "x"}, nil, DefaultModel, nil)

	if _, err := s.Summarize(context.Background(), "", nil, "image/png"); !errors.Is(err, ErrNoImage) {
		t.Errorf("expected ErrNoImage, got %v", err)
	}
	gif := []byte("GIF89a\x01\x00\x01\x00")
	if _, err := s.Summarize(context.Background(), "", gif, "image/gif"); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("expected ErrUnsupportedMedia, got %v", err)
	}
}

func TestSummarizePropagatesModelErrors(t *testing.T) {
	boom := &APIError{StatusCode: 403, Message: "permission denied"}
	s := NewSummarizer(&fakeGenerator{err: boom}, nil, DefaultModel, nil)

	_, err := s.Summarize(context.Background(), "", pngHeader, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 403 {
		t.Errorf("expected APIError, got %v", err)
	}
}

func TestSummarizeCaches(t *testing.T) {
	store, err := cache.NewManager(cache.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close() //nolint:errcheck

	gen := &fakeGenerator{reply: "summary"}
	s := NewSummarizer(gen, store, DefaultModel, nil)

	for i := 0; i < 2; i++ {
		res, err := s.Summarize(context.Background(), "details", pngHeader, "")
		if err != nil {
			t.Fatal(err)
		}
		if res.Cached != (i == 1) {
			t.Errorf("call %d: cached = %v", i, res.Cached)
		}
	}
	if len(gen.calls) != 1 {
		t.Errorf("expected one model call, got %d", len(gen.calls))
	}

	if _, err := s.Summarize(context.Background(), "other details", pngHeader, ""); err != nil {
		t.Fatal(err)
	}
	if len(gen.calls) != 2 {
		t.Error("different details must not hit the cache")
	}
}

func TestMediaTypes(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		want     string
	}{
		{"sniffed png", pngHeader, "", "image/png"},
		{"sniffed jpeg beats declared", jpegHeader, "image/png", "image/jpeg"},
		{"declared jpg normalized", []byte("??"), "image/jpg", "image/jpeg"},
		{"declared with params", []byte("??"), "image/PNG; charset=binary", "image/png"},
		{"garbage", []byte("??"), "", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMediaType(tt.data, tt.declared); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if !Supported("image/jpg") || Supported("image/gif") {
		t.Error("unexpected Supported result")
	}
	if got := MediaTypeFromName("pill.JPG"); got != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", got)
	}
}

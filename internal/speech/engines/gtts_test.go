package engines

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/dgnsrekt/pillcast/internal/audio"
	"github.com/dgnsrekt/pillcast/internal/speech"
)

// fakeDecode treats the response body as mono PCM at 24kHz.
func fakeDecode(b []byte) ([]byte, audio.Format, error) {
	if len(b)%2 == 1 {
		b = append(b, 0)
	}
	return b, audio.Format{SampleRate: 24000, Channels: 1}, nil
}

type gttsRequest struct {
	path  string
	query map[string]string
}

func newGTTSServer(t *testing.T, status int) (*httptest.Server, *[]gttsRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []gttsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		mu.Lock()
		reqs = append(reqs, gttsRequest{path: r.URL.Path, query: q})
		mu.Unlock()
		if status != http.StatusOK {
			http.Error(w, "blocked", status)
			return
		}
		_, _ = w.Write([]byte(q["q"]))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func TestGTTSSynthesize(t *testing.T) {
	srv, reqs := newGTTSServer(t, http.StatusOK)
	g, err := NewGTTS(GTTSConfig{
		Language: "en",
		Voices:   []GTTSVoice{{Name: "us", TLD: "com"}, {Name: "uk", TLD: "co.uk"}},
		Endpoint: srv.URL + "/{tld}/translate_tts",
		Slow:     true,
		decode:   fakeDecode,
	})
	if err != nil {
		t.Fatal(err)
	}

	text := strings.Repeat("word ", 50) // 250 chars
	pcm, format, err := g.Synthesize(context.Background(), speech.Voice{ID: "uk"}, text)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if format.SampleRate != 24000 {
		t.Errorf("unexpected format %+v", format)
	}
	if len(pcm) == 0 {
		t.Error("expected audio")
	}

	if len(*reqs) != 3 {
		t.Fatalf("expected 3 chunked requests, got %d", len(*reqs))
	}
	for i, r := range *reqs {
		if r.path != "/co.uk/translate_tts" {
			t.Errorf("request %d: expected the uk accent, got path %q", i, r.path)
		}
		if r.query["tl"] != "en" || r.query["client"] != "tw-ob" || r.query["ttsspeed"] != "0.3" {
			t.Errorf("request %d: unexpected query %v", i, r.query)
		}
		if r.query["total"] != "3" || r.query["idx"] != string(rune('0'+i)) {
			t.Errorf("request %d: unexpected paging %v", i, r.query)
		}
		if n := utf8.RuneCountInString(r.query["q"]); n > 100 {
			t.Errorf("request %d: chunk of %d chars", i, n)
		}
	}
}

func TestGTTSDefaults(t *testing.T) {
	g, err := NewGTTS(GTTSConfig{})
	if err != nil {
		t.Fatal(err)
	}
	voices := g.Voices()
	if len(voices) != 1 || voices[0].ID != "google" || voices[0].Language != "en" {
		t.Errorf("unexpected default voices %+v", voices)
	}
	// A single accent means the female option falls back to it.
	if res := speech.ResolveVoice(voices, speech.VoiceFemale); !res.Fallback {
		t.Error("expected fallback with a single accent")
	}

	if _, err := NewGTTS(GTTSConfig{Language: "not a language!"}); err == nil {
		t.Error("expected invalid language error")
	}
}

func TestGTTSHTTPError(t *testing.T) {
	srv, _ := newGTTSServer(t, http.StatusTooManyRequests)
	g, err := NewGTTS(GTTSConfig{Endpoint: srv.URL, decode: fakeDecode})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = g.Synthesize(context.Background(), speech.Voice{}, "hello")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestGTTSUnknownVoice(t *testing.T) {
	g, _ := NewGTTS(GTTSConfig{decode: fakeDecode})
	if _, _, err := g.Synthesize(context.Background(), speech.Voice{ID: "x"}, "hi"); !errors.Is(err, ErrUnknownVoice) {
		t.Errorf("expected ErrUnknownVoice, got %v", err)
	}
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"short", "Hello world.", 100, []string{"Hello world."}},
		{"punctuation first", "Take one tablet. Twice daily, with food.", 20, []string{"Take one tablet.", "Twice daily,", "with food."}},
		{"words when phrase too long", "aaa bbb ccc ddd", 8, []string{"aaa bbb", "ccc ddd"}},
		{"runes when word too long", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"whitespace only", "   ", 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitText(tt.text, tt.max)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

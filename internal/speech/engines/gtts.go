package engines

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/pillcast/internal/audio"
	"github.com/dgnsrekt/pillcast/internal/speech"
)

const (
	// DefaultGTTSEndpoint is the Google Translate TTS endpoint; {tld} is
	// replaced by the voice accent.
	DefaultGTTSEndpoint = "https://translate.google.{tld}/translate_tts"

	gttsMaxChunk   = 100
	gttsMaxMP3Size = 10 * 1024 * 1024
	gttsUserAgent  = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// GTTSVoice is one accent of the Google Translate voice.
type GTTSVoice struct {
	Name   string `mapstructure:"name"`
	TLD    string `mapstructure:"tld"`
	Gender string `mapstructure:"gender"`
}

// GTTSConfig holds configuration for the Google Translate synthesizer.
type GTTSConfig struct {
	// Language is a BCP 47 tag; defaults to "en".
	Language string
	// Voices is the accent table; defaults to a single "com" voice.
	Voices []GTTSVoice
	// Slow asks for slower speech.
	Slow bool
	// Endpoint overrides DefaultGTTSEndpoint.
	Endpoint string
	// HTTPClient defaults to a client with Timeout.
	HTTPClient *http.Client
	// Timeout bounds a single request. Defaults to 15s.
	Timeout time.Duration
	// RequestsPerMinute throttles requests to avoid being blocked.
	// Defaults to 100.
	RequestsPerMinute int

	decode func([]byte) ([]byte, audio.Format, error)
}

// GTTS synthesizes speech with the Google Translate TTS endpoint. No API
// key is needed, but requests are limited to 100 characters.
type GTTS struct {
	lang     language.Tag
	voices   []GTTSVoice
	slow     bool
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	decode   func([]byte) ([]byte, audio.Format, error)
}

// NewGTTS creates a Google Translate synthesizer.
func NewGTTS(config GTTSConfig) (*GTTS, error) {
	if config.Language == "" {
		config.Language = "en"
	}
	tag, err := language.Parse(config.Language)
	if err != nil {
		return nil, wrap("gtts", "configure", fmt.Errorf("invalid language %q: %w", config.Language, err))
	}
	if len(config.Voices) == 0 {
		config.Voices = []GTTSVoice{{Name: "google", TLD: "com"}}
	}
	for i := range config.Voices {
		if config.Voices[i].TLD == "" {
			config.Voices[i].TLD = "com"
		}
		if config.Voices[i].Name == "" {
			config.Voices[i].Name = "google-" + config.Voices[i].TLD
		}
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultGTTSEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 100
	}
	if config.decode == nil {
		config.decode = audio.DecodeMP3
	}

	return &GTTS{
		lang:     tag,
		voices:   config.Voices,
		slow:     config.Slow,
		endpoint: config.Endpoint,
		client:   config.HTTPClient,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 3),
		decode:   config.decode,
	}, nil
}

// Name implements Synthesizer.
func (g *GTTS) Name() string { return "gtts" }

// Voices implements Synthesizer.
func (g *GTTS) Voices() []speech.Voice {
	out := make([]speech.Voice, len(g.voices))
	for i, v := range g.voices {
		out[i] = speech.Voice{
			ID:       v.Name,
			Name:     v.Name,
			Language: g.lang.String(),
			Gender:   v.Gender,
		}
	}
	return out
}

// Synthesize implements Synthesizer.
func (g *GTTS) Synthesize(ctx context.Context, voice speech.Voice, text string) ([]byte, audio.Format, error) {
	v, err := g.lookup(voice.ID)
	if err != nil {
		return nil, audio.Format{}, err
	}

	chunks := splitText(text, gttsMaxChunk)
	var (
		pcm    []byte
		format audio.Format
	)
	for i, chunk := range chunks {
		mp3, err := g.fetch(ctx, v, chunk, i, len(chunks))
		if err != nil {
			return nil, format, err
		}
		samples, f, err := g.decode(mp3)
		if err != nil {
			return nil, format, err
		}
		if i == 0 {
			format = f
		} else if samples, err = audio.Convert(samples, f, format); err != nil {
			return nil, format, err
		}
		pcm = append(pcm, samples...)
	}
	return pcm, format, nil
}

// CacheKey implements Fingerprinter. Language, accent and speed all change
// the audio.
func (g *GTTS) CacheKey(voice speech.Voice) string {
	v, err := g.lookup(voice.ID)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("lang=%s tld=%s slow=%t", g.lang, v.TLD, g.slow)
}

// lookup resolves a voice id, with "" selecting the first voice.
func (g *GTTS) lookup(id string) (GTTSVoice, error) {
	if id == "" {
		return g.voices[0], nil
	}
	for _, v := range g.voices {
		if v.Name == id {
			return v, nil
		}
	}
	return GTTSVoice{}, fmt.Errorf("%w: %s", ErrUnknownVoice, id)
}

func (g *GTTS) fetch(ctx context.Context, v GTTSVoice, chunk string, idx, total int) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", chunk)
	q.Set("tl", g.lang.String())
	q.Set("client", "tw-ob")
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))
	if g.slow {
		q.Set("ttsspeed", "0.3")
	} else {
		q.Set("ttsspeed", "1")
	}

	endpoint := strings.ReplaceAll(g.endpoint, "{tld}", v.TLD)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", gttsUserAgent)
	req.Header.Set("Referer", "http://translate.google.com/")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, gttsMaxMP3Size+1))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chunk %d/%d: unexpected status %d: %s", idx+1, total, resp.StatusCode, snippet(body))
	}
	if len(body) > gttsMaxMP3Size {
		return nil, fmt.Errorf("chunk %d/%d: response too large", idx+1, total)
	}
	if len(body) == 0 {
		return nil, ErrNoAudio
	}
	return body, nil
}

// splitText breaks text into chunks of at most max runes, preferring
// punctuation, then whitespace, then any rune boundary.
func splitText(text string, max int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}

	for _, phrase := range splitPhrases(text) {
		n := utf8.RuneCountInString(phrase)
		if curLen > 0 && curLen+n > max {
			flush()
		}
		if n <= max {
			cur.WriteString(phrase)
			curLen += n
			continue
		}
		for _, word := range strings.Fields(phrase) {
			for _, piece := range splitRunes(word, max) {
				wn := utf8.RuneCountInString(piece)
				if curLen > 0 && curLen+1+wn > max {
					flush()
				}
				if curLen > 0 {
					cur.WriteByte(' ')
					curLen++
				}
				cur.WriteString(piece)
				curLen += wn
			}
		}
	}
	flush()
	return chunks
}

// splitPhrases splits after punctuation, keeping it with the phrase.
func splitPhrases(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if strings.ContainsRune(".!?;:,\n。", r) {
			end := i + utf8.RuneLen(r)
			out = append(out, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func splitRunes(word string, max int) []string {
	runes := []rune(word)
	if len(runes) <= max {
		return []string{word}
	}
	var out []string
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

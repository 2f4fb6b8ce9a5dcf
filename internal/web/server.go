package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/pillcast/internal/metrics"
	"github.com/dgnsrekt/pillcast/internal/speech"
	"github.com/dgnsrekt/pillcast/internal/speech/sentence"
	"github.com/dgnsrekt/pillcast/internal/vision"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// MissingImageWarning is shown when Analyze is pressed without an image.
const MissingImageWarning = "Please upload a tablet image to proceed."

// Speaker is the part of speech.Controller the server drives.
type Speaker interface {
	Speak(text string, option speech.VoiceOption) (*speech.Job, error)
	Stop()
	Status() speech.Status
}

// Analyzer summarizes tablet images. *vision.Summarizer implements it.
type Analyzer interface {
	Summarize(ctx context.Context, details string, image []byte, mediaType string) (vision.Result, error)
}

// Config holds configuration for the web server.
type Config struct {
	Addr            string
	MaxUploadBytes  int64
	AnalyzeRate     float64 // analyses per minute, 0 disables the limit
	AnalyzeTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		MaxUploadBytes:  10 << 20,
		AnalyzeRate:     10,
		AnalyzeTimeout:  90 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server serves the page and the speech API.
type Server struct {
	config   Config
	speaker  Speaker
	analyzer Analyzer
	metrics  *metrics.Metrics
	logger   *log.Logger
	limiter  *rate.Limiter
	mux      *http.ServeMux
}

// New creates a server. analyzer may be nil, in which case analyses fail
// with vision.ErrMissingAPIKey; m and logger may be nil.
func New(config Config, speaker Speaker, analyzer Analyzer, m *metrics.Metrics, logger *log.Logger) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = def.MaxUploadBytes
	}
	if config.AnalyzeTimeout <= 0 {
		config.AnalyzeTimeout = def.AnalyzeTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		config:   config,
		speaker:  speaker,
		analyzer: analyzer,
		metrics:  m,
		logger:   logger.WithPrefix("web"),
		limiter:  rate.NewLimiter(rate.Inf, 1),
		mux:      http.NewServeMux(),
	}
	s.SetAnalyzeRate(config.AnalyzeRate)

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /speak", s.handleSpeakForm)
	s.mux.HandleFunc("POST /stop", s.handleStopForm)
	s.mux.HandleFunc("POST /api/speak", s.handleSpeakAPI)
	s.mux.HandleFunc("POST /api/speech/stop", s.handleStopAPI)
	s.mux.HandleFunc("GET /api/speech", s.handleStatusAPI)
	s.mux.Handle("GET /metrics", m.Handler())
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok\n")
	})
	return s
}

// SetAnalyzeRate changes the analysis rate limit (per minute). Zero or less
// removes the limit.
func (s *Server) SetAnalyzeRate(perMinute float64) {
	if perMinute <= 0 {
		s.limiter.SetLimit(rate.Inf)
		return
	}
	s.limiter.SetLimit(rate.Limit(perMinute / 60))
	s.limiter.SetBurst(max(1, int(perMinute/10)))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
}

// ListenAndServe serves on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", "http://"+ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type voiceChoice struct {
	Value    string
	Label    string
	Selected bool
}

type pageData struct {
	Details     string
	Summary     string
	SummaryHTML template.HTML
	ImageData   template.URL
	Error       string
	Warning     string
	MaxUpload   string
	Voices      []voiceChoice
	Status      speech.Status
}

func (s *Server) newPage(details, summary string, voice speech.VoiceOption) pageData {
	p := pageData{
		Details:   details,
		Summary:   summary,
		MaxUpload: humanize.IBytes(uint64(s.config.MaxUploadBytes)),
		Status:    s.speaker.Status(),
	}
	if summary != "" {
		p.SummaryHTML = renderMarkdown(summary)
	}
	for _, o := range []speech.VoiceOption{speech.VoiceMale, speech.VoiceFemale} {
		p.Voices = append(p.Voices, voiceChoice{
			Value:    o.String(),
			Label:    strings.ToUpper(o.String()[:1]) + o.String()[1:],
			Selected: o == voice,
		})
	}
	return p
}

func (s *Server) render(w http.ResponseWriter, status int, p pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		s.logger.Error("Template failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, s.newPage("", "", speech.VoiceMale))
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			p := s.newPage("", "", speech.VoiceMale)
			p.Error = fmt.Sprintf("image exceeds the %s upload limit", p.MaxUpload)
			s.metrics.ObserveAnalysis("rejected", 0)
			s.render(w, http.StatusRequestEntityTooLarge, p)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			s.renderError(w, http.StatusBadRequest, "", err)
			return
		}
	}

	details := strings.TrimSpace(r.FormValue("details"))
	p := s.newPage(details, "", speech.VoiceMale)

	image, mediaType, err := readUpload(r, s.config.MaxUploadBytes)
	if errors.Is(err, vision.ErrNoImage) {
		p.Warning = MissingImageWarning
		s.render(w, http.StatusOK, p)
		return
	}
	if err != nil {
		s.renderError(w, http.StatusBadRequest, details, err)
		return
	}

	if !s.limiter.Allow() {
		s.metrics.ObserveAnalysis("rejected", 0)
		s.renderError(w, http.StatusTooManyRequests, details, errors.New("too many analyses, please try again in a minute"))
		return
	}

	mediaType = vision.DetectMediaType(image, mediaType)
	p.ImageData = template.URL("data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(image)) //nolint:gosec

	if s.analyzer == nil {
		s.metrics.ObserveAnalysis("error", 0)
		p.Error = vision.ErrMissingAPIKey.Error()
		s.render(w, http.StatusServiceUnavailable, p)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.AnalyzeTimeout)
	defer cancel()
	res, err := s.analyzer.Summarize(ctx, details, image, mediaType)
	if err != nil {
		result := "error"
		if errors.Is(err, vision.ErrUnsupportedMedia) {
			result = "rejected"
			p.ImageData = ""
		}
		s.metrics.ObserveAnalysis(result, 0)
		s.logger.Error("Analysis failed", "error", err)
		p.Error = err.Error()
		s.render(w, http.StatusOK, p)
		return
	}

	if res.Cached {
		s.metrics.ObserveAnalysis("cached", 0)
	} else {
		s.metrics.ObserveAnalysis("ok", res.Took)
	}
	p.Summary = res.Summary
	p.SummaryHTML = renderMarkdown(res.Summary)
	s.render(w, http.StatusOK, p)
}

func readUpload(r *http.Request, limit int64) ([]byte, string, error) {
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, "", vision.ErrNoImage
	}
	if err != nil {
		return nil, "", err
	}
	defer file.Close() //nolint:errcheck

	if header.Size > limit {
		return nil, "", fmt.Errorf("image exceeds the %s upload limit", humanize.IBytes(uint64(limit)))
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", vision.ErrNoImage
	}
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = vision.MediaTypeFromName(header.Filename)
	}
	return data, mediaType, nil
}

func (s *Server) renderError(w http.ResponseWriter, status int, details string, err error) {
	p := s.newPage(details, "", speech.VoiceMale)
	p.Error = err.Error()
	s.render(w, status, p)
}

func (s *Server) handleSpeakForm(w http.ResponseWriter, r *http.Request) {
	text := r.FormValue("text")
	option, err := speech.ParseVoiceOption(r.FormValue("voice"))
	p := s.newPage(r.FormValue("details"), text, option)
	if err == nil {
		_, err = s.speaker.Speak(sentence.Plain(text), option)
	}
	if err != nil {
		p.Error = err.Error()
		s.render(w, http.StatusBadRequest, p)
		return
	}
	p.Status = s.speaker.Status()
	s.render(w, http.StatusOK, p)
}

func (s *Server) handleStopForm(w http.ResponseWriter, r *http.Request) {
	s.speaker.Stop()
	s.render(w, http.StatusOK, s.newPage(r.FormValue("details"), r.FormValue("text"), speech.VoiceMale))
}

type speakRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

type speakResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
	Voice string `json:"voice_option"`
}

func (s *Server) handleSpeakAPI(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
			return
		}
	} else {
		req.Text = r.FormValue("text")
		req.Voice = r.FormValue("voice")
	}

	option, err := speech.ParseVoiceOption(req.Voice)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	job, err := s.speaker.Speak(req.Text, option)
	switch {
	case errors.Is(err, speech.ErrControllerClosed):
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusAccepted, speakResponse{
		JobID: job.ID,
		State: job.State().String(),
		Voice: option.String(),
	})
}

func (s *Server) handleStopAPI(w http.ResponseWriter, _ *http.Request) {
	s.speaker.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatusAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.speaker.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

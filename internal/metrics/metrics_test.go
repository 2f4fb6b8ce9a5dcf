package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveJobState(t *testing.T) {
	m := New()
	for _, s := range []string{"pending", "running", "stopped", "pending", "running"} {
		m.ObserveJobState(s)
	}

	if got := testutil.ToFloat64(m.speechJobs.WithLabelValues("pending")); got != 2 {
		t.Errorf("expected 2 pending, got %v", got)
	}
	if got := testutil.ToFloat64(m.speechActive); got != 1 {
		t.Errorf("expected 1 active job, got %v", got)
	}
}

func TestObserveAnalysis(t *testing.T) {
	m := New()
	m.ObserveAnalysis("ok", 2*time.Second)
	m.ObserveAnalysis("error", 0)

	if got := testutil.ToFloat64(m.analyses.WithLabelValues("ok")); got != 1 {
		t.Errorf("expected 1 ok, got %v", got)
	}
	if n := testutil.CollectAndCount(m.analysisTiming); n != 1 {
		t.Errorf("expected one histogram, got %d", n)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveJobState("running")
	m.ObserveAnalysis("ok", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveJobState("done")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `pillcast_speech_jobs_total{state="done"} 1`) {
		t.Errorf("metric missing from output:\n%s", body)
	}
}

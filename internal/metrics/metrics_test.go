package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loginwatch/internal/model"
)

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return rec.Code, string(body)
}

func TestRouter(t *testing.T) {
	m := New()
	m.ObserveCycle("a", model.ContentChanged)
	m.ObserveCycle("a", model.ContentChanged)
	m.ObserveCycle("a", model.Unchanged)
	m.ObserveFetch(model.FetchHTTP, 1500*time.Millisecond)
	m.StorageFailure("a")
	m.SetSkippedRules("a", 2)
	m.SetFailureStreak("b", 3)
	m.SetLastCapture("a", time.Unix(1700000000, 0))

	h := m.Router()

	code, body := scrape(t, h, "/healthz")
	if code != http.StatusOK || body != "ok\n" {
		t.Errorf("healthz = %d %q", code, body)
	}

	code, body = scrape(t, h, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d", code)
	}
	for _, want := range []string{
		`loginwatch_cycles_total{classification="content-changed",target="a"} 2`,
		`loginwatch_cycles_total{classification="unchanged",target="a"} 1`,
		`loginwatch_fetch_duration_seconds_count{mode="http"} 1`,
		`loginwatch_storage_failures_total{target="a"} 1`,
		`loginwatch_skipped_rules{target="a"} 2`,
		`loginwatch_fetch_failure_streak{target="b"} 3`,
		`loginwatch_last_capture_timestamp_seconds{target="a"} 1.7e+09`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	if code, _ := scrape(t, h, "/nope"); code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", code)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveCycle("a", model.Unchanged)
	m.ObserveFetch(model.FetchBrowser, time.Second)
	m.StorageFailure("a")
	m.SetSkippedRules("a", 1)
	m.SetFailureStreak("a", 1)
	m.SetLastCapture("a", time.Now())
}

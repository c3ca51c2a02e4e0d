package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesRunMetrics(t *testing.T) {
	h := Handler()
	// 重复调用不能重复注册
	h = Handler()

	before := testutil.ToFloat64(RunsTotal.WithLabelValues(ResultCompleted))
	RunsTotal.WithLabelValues(ResultCompleted).Inc()
	PostsTotal.WithLabelValues("posts", "posted").Inc()
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues(ResultCompleted)); got != before+1 {
		t.Fatalf("expected counter to increase, got %v", got)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"autopost_runs_total", "autopost_posts_total", "autopost_run_in_progress"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metric %s missing from output", name)
		}
	}
}

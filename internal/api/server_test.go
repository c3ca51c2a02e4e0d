package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"autoposter/internal/autopost/coordinator"
	"autoposter/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu       sync.Mutex
	triggers []coordinator.Trigger
	summary  *coordinator.Summary
	err      error
}

func (f *fakeRunner) Run(ctx context.Context, trigger coordinator.Trigger) (*coordinator.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		return f.summary, nil
	}
	return &coordinator.Summary{Success: true, Message: "Processed 0 posts"}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func triggerConfig() config.TriggerConfig {
	return config.TriggerConfig{
		Secret:        "s3cret",
		TrustedHeader: "X-Vercel-Cron",
		TrustedValue:  "1",
		AllowManual:   true,
	}
}

func TestTriggerAuthorization(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(*config.TriggerConfig)
		headers map[string]string
		method  string
		status  int
		trigger coordinator.Trigger
	}{
		{name: "trusted scheduler", headers: map[string]string{"X-Vercel-Cron": "1"}, status: http.StatusOK, trigger: coordinator.TriggerScheduler},
		{name: "bearer secret", headers: map[string]string{"Authorization": "Bearer s3cret"}, method: http.MethodPost, status: http.StatusOK, trigger: coordinator.TriggerSecret},
		{name: "manual", status: http.StatusOK, trigger: coordinator.TriggerManual},
		{name: "wrong secret", headers: map[string]string{"Authorization": "Bearer nope"}, status: http.StatusUnauthorized},
		{name: "basic auth", headers: map[string]string{"Authorization": "Basic czNjcmV0"}, status: http.StatusUnauthorized},
		{name: "wrong scheduler value", headers: map[string]string{"X-Vercel-Cron": "0"}, status: http.StatusUnauthorized},
		{name: "wrong scheduler value with bearer", headers: map[string]string{"X-Vercel-Cron": "0", "Authorization": "Bearer s3cret"}, status: http.StatusOK, trigger: coordinator.TriggerSecret},
		{name: "wrong scheduler value and wrong bearer", headers: map[string]string{"X-Vercel-Cron": "0", "Authorization": "Bearer nope"}, status: http.StatusUnauthorized},
		{name: "bearer without configured secret", cfg: func(c *config.TriggerConfig) { c.Secret = "" }, headers: map[string]string{"Authorization": "Bearer "}, status: http.StatusUnauthorized},
		{name: "manual disabled", cfg: func(c *config.TriggerConfig) { c.AllowManual = false }, status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := triggerConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			runner := &fakeRunner{}
			srv := httptest.NewServer(New(cfg, runner, nil).Router())
			defer srv.Close()

			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, err := http.NewRequest(method, srv.URL+TriggerPath, nil)
			require.NoError(t, err)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				require.Len(t, runner.triggers, 1)
				assert.Equal(t, tt.trigger, runner.triggers[0])
			} else {
				assert.Empty(t, runner.triggers, "rejected request must not start a run")
				var body errorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.False(t, body.Success)
			}
		})
	}
}

func TestTriggerReturnsSummary(t *testing.T) {
	runner := &fakeRunner{summary: &coordinator.Summary{Success: true, Message: "Processed 2 posts: 2 posted, 0 errors", Posted: 2, TotalProcessed: 2}}
	srv := httptest.NewServer(New(triggerConfig(), runner, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + TriggerPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["posted"])
	assert.Equal(t, float64(2), body["totalProcessed"])
	for _, key := range []string{"message", "errors", "results", "timestamp"} {
		assert.Contains(t, body, key)
	}
}

func TestTriggerTopLevelFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("all post collections failed to scan")}
	srv := httptest.NewServer(New(triggerConfig(), runner, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + TriggerPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "failed to scan")
}

func TestHealthz(t *testing.T) {
	ok := httptest.NewServer(New(triggerConfig(), &fakeRunner{}, fakePinger{}).Router())
	defer ok.Close()
	resp, err := http.Get(ok.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := httptest.NewServer(New(triggerConfig(), &fakeRunner{}, fakePinger{err: errors.New("no reachable servers")}).Router())
	defer down.Close()
	resp, err = http.Get(down.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(New(triggerConfig(), &fakeRunner{}, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

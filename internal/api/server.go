package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"autoposter/internal/autopost/coordinator"
	"autoposter/internal/config"
	"autoposter/internal/logger"
	"autoposter/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TriggerPath 外部调度器调用的路径
const TriggerPath = "/api/cron/auto-post"

// ErrUnauthorized 触发请求没有有效凭据
var ErrUnauthorized = errors.New("unauthorized")

// Runner 执行一次运行（由 coordinator.Coordinator 实现）
type Runner interface {
	Run(ctx context.Context, trigger coordinator.Trigger) (*coordinator.Summary, error)
}

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers for the trigger endpoint.
type Server struct {
	cfg    config.TriggerConfig
	runner Runner
	pinger Pinger
}

// New constructs the API server. pinger may be nil.
func New(cfg config.TriggerConfig, runner Runner, pinger Pinger) *Server {
	return &Server{
		cfg:    cfg,
		runner: runner,
		pinger: pinger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Get(TriggerPath, s.handleTrigger)
	r.Post(TriggerPath, s.handleTrigger)
	return r
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	trigger, err := s.authorize(r)
	if err != nil {
		telemetry.TriggerRejects.Inc()
		logger.L().Warnf("Rejected auto-post trigger from %s: %v", r.RemoteAddr, err)
		writeJSON(w, http.StatusUnauthorized, errorResponse{Success: false, Error: "Unauthorized"})
		return
	}

	// 运行一旦开始就处理完，不随调用方断开而中止
	summary, err := s.runner.Run(context.WithoutCancel(r.Context()), trigger)
	if err != nil {
		logger.L().Errorf("Auto-post run failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// authorize 识别受信任调度器、共享密钥或手动调用
// 携带了任一凭据头但不匹配的请求一律拒绝，不会退回到手动模式
func (s *Server) authorize(r *http.Request) (coordinator.Trigger, error) {
	// 出示过凭据的请求不能再按手动触发放行
	presented := false
	if s.cfg.TrustedHeader != "" {
		if values, ok := r.Header[http.CanonicalHeaderKey(s.cfg.TrustedHeader)]; ok {
			if len(values) > 0 && s.cfg.TrustedValue != "" && secureEqual(values[0], s.cfg.TrustedValue) {
				return coordinator.TriggerScheduler, nil
			}
			presented = true
		}
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if ok && s.cfg.Secret != "" && secureEqual(strings.TrimSpace(token), s.cfg.Secret) {
			return coordinator.TriggerSecret, nil
		}
		return "", ErrUnauthorized
	}

	if !presented && s.cfg.AllowManual {
		return coordinator.TriggerManual, nil
	}
	return "", ErrUnauthorized
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

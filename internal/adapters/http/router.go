// Package httpadapter exposes study intake, task state and project
// provisioning over HTTP for the api service.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mammoai/mammoannotator/internal/config"
	"github.com/mammoai/mammoannotator/internal/core/ports"
	"github.com/mammoai/mammoannotator/internal/observability/metrics"
)

const (
	serviceName = "api"

	// backpressureWait is how long a request may wait for an in-flight
	// slot before the gate rejects it.
	backpressureWait = 200 * time.Millisecond
)

type Router struct {
	cfg      config.Config
	intake   ports.StudyIntake
	tasks    ports.TaskReader
	projects ports.ProjectProvisioner
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	intake ports.StudyIntake,
	tasks ports.TaskReader,
	projects ports.ProjectProvisioner,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		intake:   intake,
		tasks:    tasks,
		projects: projects,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/studies", rt.queueStudy)
	mux.HandleFunc("/v1/studies/", rt.getTask)
	mux.HandleFunc("/v1/projects", rt.createProject)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait, rt.rejectionRecorder("backpressure"))
	handler = rateLimitMiddleware(handler, rt.limiter(), rt.rejectionRecorder("rate_limit"))
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) limiter() *rate.Limiter {
	if rt.cfg.APIRateLimitRPS <= 0 {
		return nil
	}
	burst := rt.cfg.APIRateLimitBurst
	if burst <= 0 {
		burst = rt.cfg.APIRateLimitRPS
	}
	return rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst)
}

func (rt *Router) rejectionRecorder(reason string) func() {
	if rt.metrics == nil {
		return nil
	}
	return func() {
		rt.metrics.RecordTrafficRejection(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// queueStudy registers a study and enqueues it for preparation. The study
// field takes an absolute directory or a "<patient>/<study>" path under
// the studies root.
func (rt *Router) queueStudy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Study     string `json:"study"`
		ProjectID int64  `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Study) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "study is required"})
		return
	}

	task, err := rt.intake.IntakeStudy(r.Context(), strings.TrimSpace(req.Study), req.ProjectID)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordStudyQueued(serviceName)
	}
	writeJSON(w, http.StatusAccepted, task)
}

func (rt *Router) getTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/studies/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task id is required"})
		return
	}

	task, err := rt.tasks.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// createProject provisions the annotation project from the configured
// template and returns its id.
func (rt *Router) createProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	project, err := rt.projects.ProvisionProject(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordProjectCreated(serviceName)
	}
	writeJSON(w, http.StatusCreated, project)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

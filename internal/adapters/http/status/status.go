// Package status declares HTTP contracts and route registration helpers for
// the engine's observability and control surface.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/mosaic/internal/adapters/registry"
	"github.com/okian/mosaic/internal/domain/model"
)

// Engine bundles what the handlers need from the running pipeline. Using an
// interface bundle keeps the handler layer loosely coupled to the app layer.
type Engine interface {
	GetStats() map[string]interface{}
	Snapshot(ctx context.Context) []model.Resource
	Resource(ctx context.Context, id string) (model.Resource, error)
	Register(ctx context.Context, res model.Resource, sink registry.Sink) (string, error)
	ForceReload(ctx context.Context, id string) error
	Pause(ctx context.Context)
	Resume(ctx context.Context)
}

// Server wires HTTP routes for the engine surface.
type Server struct {
	engine Engine
}

// NewServer creates a status server over the given engine.
func NewServer(engine Engine) *Server {
	return &Server{engine: engine}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleMetrics)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/resources", s.handleResources)
	mux.HandleFunc("/resources/", s.handleResource)
	mux.HandleFunc("/pause", s.handlePause)
	mux.HandleFunc("/resume", s.handleResume)
	mux.HandleFunc("/reload/", s.handleReload)
}

// resourceView mirrors the read shape returned by resource queries.
type resourceView struct {
	ID            string `json:"id"`
	Tier          string `json:"tier"`
	State         string `json:"state"`
	RetryCount    int    `json:"retry_count"`
	ElapsedMS     int64  `json:"elapsed_ms"`
	AppliedSource string `json:"applied_source,omitempty"`
	RegisteredAt  string `json:"registered_at"`
}

func toView(res model.Resource) resourceView {
	return resourceView{
		ID:            res.ID,
		Tier:          res.Tier.String(),
		State:         res.State.String(),
		RetryCount:    res.RetryCount,
		ElapsedMS:     res.Elapsed.Milliseconds(),
		AppliedSource: res.AppliedSource,
		RegisteredAt:  res.RegisteredAt.Format(time.RFC3339),
	}
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(s.engine.GetStats())
}

// registerRequest mirrors the body accepted by POST /resources.
type registerRequest struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Fallback string `json:"fallback"`
	Tier     string `json:"tier"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

func (req registerRequest) validate() error {
	if strings.TrimSpace(req.Source) == "" {
		return errors.New("missing source")
	}
	return nil
}

// handleResources handles GET and POST /resources requests.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		s.handleRegister(w, r)
		return
	default:
		http.NotFound(w, r)
		return
	}
	snapshot := s.engine.Snapshot(r.Context())
	views := make([]resourceView, len(snapshot))
	for i, res := range snapshot {
		views[i] = toView(res)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(views)
}

// handleRegister handles POST /resources requests.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tier := model.TierNormal
	if req.Tier != "" {
		parsed, err := model.ParseTier(req.Tier)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tier = parsed
	}

	id, err := s.engine.Register(r.Context(), model.Resource{
		ID:             req.ID,
		OriginalSource: req.Source,
		FallbackSource: req.Fallback,
		Tier:           tier,
		Width:          req.Width,
		Height:         req.Height,
	}, nil)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// handleResource handles GET /resources/{id} requests.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/resources/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	res, err := s.engine.Resource(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(toView(res))
}

// handlePause handles POST /pause requests.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.engine.Pause(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

// handleResume handles POST /resume requests.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	s.engine.Resume(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

// handleReload handles POST /reload/{id} requests.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/reload/")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing resource id"))
		return
	}
	if err := s.engine.ForceReload(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

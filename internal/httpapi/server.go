package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mfalconi/lingotutor/internal/config"
	"github.com/mfalconi/lingotutor/internal/conversation"
	"github.com/mfalconi/lingotutor/internal/genlang"
	"github.com/mfalconi/lingotutor/internal/observability"
	"github.com/mfalconi/lingotutor/internal/policy"
	"github.com/mfalconi/lingotutor/internal/pronunciation"
	"github.com/mfalconi/lingotutor/internal/store"
)

type Server struct {
	cfg            config.Config
	store          store.Store
	conversations  *conversation.Service
	pronunciations *pronunciation.Service
	metrics        *observability.Metrics
	upgrader       websocket.Upgrader
}

func New(cfg config.Config, st store.Store, conv *conversation.Service, pron *pronunciation.Service, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:            cfg,
		store:          st,
		conversations:  conv,
		pronunciations: pron,
		metrics:        metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a learner's
				// conversation if the service is exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/users", s.handleUpsertUser)
		r.Get("/users", s.handleGetUser)

		r.Post("/conversation/ask", s.handleAsk)
		r.Put("/conversation/{id}", s.handleEditTurn)
		r.Delete("/conversation/{id}", s.handleDeleteTurn)
		r.Get("/conversation/history", s.handleConversationHistory)
		r.Get("/conversation/stream", s.handleStream)

		r.Post("/pronunciation/assess", s.handleAssess)
		r.Get("/pronunciation/history", s.handlePronunciationHistory)
		r.Get("/pronunciation/tips", s.handleTips)

		r.Get("/perf/pipeline", s.handlePerfPipeline)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "ready",
	})
}

func (s *Server) handlePerfPipeline(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.PipelineSnapshot())
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}

// respondServiceError maps pipeline sentinels onto HTTP statuses. Anything
// unrecognized is logged (redacted) and reported generically so internal
// error text never reaches clients.
func (s *Server) respondServiceError(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user_not_found", "no user with that email")
	case errors.Is(err, store.ErrTurnNotFound):
		respondError(w, http.StatusNotFound, "turn_not_found", "no such conversation turn")
	case errors.Is(err, store.ErrNotOwner):
		respondError(w, http.StatusForbidden, "forbidden", "turn belongs to a different user")
	case errors.Is(err, genlang.ErrUpstream):
		respondError(w, http.StatusBadGateway, "model_unavailable", "the language model could not be reached")
	case errors.Is(err, pronunciation.ErrInvalidAudio):
		respondError(w, http.StatusBadRequest, "invalid_audio", "payload is not recognizable audio")
	default:
		log.Printf("%s failed: %s", operation, policy.LogSafe(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func limitFromQuery(r *http.Request, fallback, max int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

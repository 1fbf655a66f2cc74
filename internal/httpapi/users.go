package httpapi

import (
	"net/http"
	"strings"

	"github.com/mfalconi/lingotutor/internal/store"
)

type upsertUserRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	NativeLanguage  string `json:"nativeLanguage"`
	Level           string `json:"level"`
	Goal            string `json:"goal"`
	Interests       string `json:"interests"`
	FocusArea       string `json:"focusArea"`
	Occupation      string `json:"occupation"`
	PreferredTopics string `json:"preferredTopics"`
	ContentType     string `json:"contentType"`
	TutorVoice      string `json:"tutorVoice"`
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	user, err := s.store.UpsertUser(r.Context(), store.User{
		Email:           req.Email,
		Name:            req.Name,
		NativeLanguage:  req.NativeLanguage,
		Level:           req.Level,
		Goal:            req.Goal,
		Interests:       req.Interests,
		FocusArea:       req.FocusArea,
		Occupation:      req.Occupation,
		PreferredTopics: req.PreferredTopics,
		ContentType:     req.ContentType,
		TutorVoice:      req.TutorVoice,
	})
	if err != nil {
		s.respondServiceError(w, "upsert user", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email query param is required")
		return
	}

	user, err := s.store.UserByEmail(r.Context(), email)
	if err != nil {
		s.respondServiceError(w, "get user", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

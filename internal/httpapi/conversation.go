package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mfalconi/lingotutor/internal/conversation"
)

type askRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type askResponse struct {
	Success     bool   `json:"success"`
	TurnID      string `json:"turn_id"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
	Feedback    string `json:"feedback"`
	FollowUp    string `json:"followUp"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	result, err := s.conversations.Ask(r.Context(), req.Email, req.Message)
	if err != nil {
		s.respondServiceError(w, "conversation ask", err)
		return
	}

	respondJSON(w, http.StatusOK, askResponse{
		Success:     true,
		TurnID:      result.TurnID,
		Answer:      result.Reply.Answer,
		Explanation: result.Reply.Explanation,
		Feedback:    result.Reply.Feedback,
		FollowUp:    result.Reply.FollowUp,
	})
}

type editTurnRequest struct {
	Email               string `json:"email"`
	Content             string `json:"content"`
	GenerateNewResponse bool   `json:"generateNewResponse"`
}

type editTurnResponse struct {
	Success     bool                     `json:"success"`
	TurnID      string                   `json:"turn_id"`
	Regenerated bool                     `json:"regenerated"`
	Reply       *conversation.TutorReply `json:"reply,omitempty"`
	RegenError  string                   `json:"regen_error,omitempty"`
}

func (s *Server) handleEditTurn(w http.ResponseWriter, r *http.Request) {
	turnID := strings.TrimSpace(chi.URLParam(r, "id"))
	if turnID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing turn id")
		return
	}

	var req editTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Content = strings.TrimSpace(req.Content)
	if req.Email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}

	result, err := s.conversations.Edit(r.Context(), turnID, req.Email, req.Content, req.GenerateNewResponse)
	if err != nil {
		s.respondServiceError(w, "conversation edit", err)
		return
	}

	// Partial success: the edit committed even when regeneration failed, so
	// the envelope still reports success with the regeneration error attached.
	respondJSON(w, http.StatusOK, editTurnResponse{
		Success:     true,
		TurnID:      result.TurnID,
		Regenerated: result.Reply != nil,
		Reply:       result.Reply,
		RegenError:  result.RegenError,
	})
}

func (s *Server) handleDeleteTurn(w http.ResponseWriter, r *http.Request) {
	turnID := strings.TrimSpace(chi.URLParam(r, "id"))
	if turnID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing turn id")
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email query param is required")
		return
	}

	if err := s.conversations.Delete(r.Context(), turnID, email); err != nil {
		s.respondServiceError(w, "conversation delete", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email query param is required")
		return
	}
	limit, ok := limitFromQuery(r, 50, 200)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return
	}

	turns, err := s.conversations.History(r.Context(), email, limit)
	if err != nil {
		s.respondServiceError(w, "conversation history", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"turns":   turns,
	})
}

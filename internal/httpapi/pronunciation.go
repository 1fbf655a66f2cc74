package httpapi

import (
	"io"
	"net/http"
	"strings"
)

var allowedAudioTypes = map[string]bool{
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/mp3":   true,
	"audio/mpeg":  true,
	"audio/webm":  true,
	"audio/ogg":   true,
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	// Cap the whole request body; the form fields ride along with the audio.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxAudioBytes+(64<<10))
	if err := r.ParseMultipartForm(s.cfg.MaxAudioBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "multipart form too large or malformed")
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	word := strings.TrimSpace(r.FormValue("word"))
	if email == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}
	if word == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "word is required")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "audio file is required")
		return
	}
	defer file.Close()

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !allowedAudioTypes[contentType] {
		respondError(w, http.StatusBadRequest, "unsupported_audio_type", "audio must be wav, mp3, webm, or ogg")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxAudioBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read audio payload")
		return
	}
	if int64(len(data)) > s.cfg.MaxAudioBytes {
		respondError(w, http.StatusBadRequest, "audio_too_large", "audio exceeds the upload limit")
		return
	}

	result, err := s.pronunciations.Assess(r.Context(), email, word, data, contentType)
	if err != nil {
		s.respondServiceError(w, "pronunciation assess", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"attempt_id": result.AttemptID,
		"audio_url":  result.AudioURL,
		"word":       result.Assessment.Word,
		"accuracy":   result.Assessment.Accuracy,
		"feedback":   result.Assessment.Feedback,
		"advice":     result.Assessment.Advice,
	})
}

func (s *Server) handlePronunciationHistory(w http.ResponseWriter, r *http.Request) {
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

	attempts, err := s.pronunciations.History(r.Context(), email, limit)
	if err != nil {
		s.respondServiceError(w, "pronunciation history", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"attempts": attempts,
	})
}

func (s *Server) handleTips(w http.ResponseWriter, r *http.Request) {
	word := strings.TrimSpace(r.URL.Query().Get("word"))
	if word == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "word query param is required")
		return
	}

	guide := s.pronunciations.Tips(r.Context(), word)
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"guide":   guide,
	})
}

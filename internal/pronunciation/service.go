// Package pronunciation implements the audio-upload-then-assess flow, the
// attempt history listing, and the word tips guide.
package pronunciation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mfalconi/lingotutor/internal/audio"
	"github.com/mfalconi/lingotutor/internal/genlang"
	"github.com/mfalconi/lingotutor/internal/mediastore"
	"github.com/mfalconi/lingotutor/internal/observability"
	"github.com/mfalconi/lingotutor/internal/store"
)

// ErrInvalidAudio marks a payload whose bytes do not look like any accepted
// audio container, whatever its declared content type said.
var ErrInvalidAudio = errors.New("payload is not recognizable audio")

// Assessment is the structured verdict for one attempt. Accuracy is a whole
// percentage, clamped to 0..100.
type Assessment struct {
	Word     string `json:"word"`
	Accuracy int    `json:"accuracy"`
	Feedback string `json:"feedback"`
	Advice   string `json:"advice"`
}

// AssessResult bundles the persisted attempt with its assessment.
type AssessResult struct {
	AttemptID  string
	AudioURL   string
	Assessment Assessment
	FellBack   bool
}

// AttemptView is an attempt prepared for history rendering, with the stored
// feedback best-effort re-parsed.
type AttemptView struct {
	ID        string     `json:"id"`
	Word      string     `json:"word"`
	AudioURL  string     `json:"audio_url"`
	Accuracy  int        `json:"accuracy"`
	Feedback  Assessment `json:"feedback"`
	CreatedAt time.Time  `json:"created_at"`
}

type Service struct {
	store     store.Store
	generator genlang.Generator
	uploader  mediastore.Uploader
	metrics   *observability.Metrics
}

func NewService(st store.Store, gen genlang.Generator, up mediastore.Uploader, metrics *observability.Metrics) *Service {
	return &Service{store: st, generator: gen, uploader: up, metrics: metrics}
}

// Assess validates and uploads the recording, asks the model for a verdict,
// and persists the attempt. A malformed model response degrades to the
// deterministic fallback assessment; the attempt is persisted either way.
func (s *Service) Assess(ctx context.Context, email, word string, data []byte, contentType string) (AssessResult, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return AssessResult{}, err
	}

	if audio.DetectFormat(data) == audio.FormatUnknown {
		return AssessResult{}, ErrInvalidAudio
	}

	audioURL, err := s.uploader.UploadAudio(ctx, data, contentType)
	if err != nil {
		s.metrics.UploadErrors.Inc()
		return AssessResult{}, fmt.Errorf("upload audio: %w", err)
	}

	assessment, fellBack := s.assessWord(ctx, user, word)
	if fellBack {
		s.metrics.ParseFallbacks.Inc()
		s.metrics.ObserveIndicator("pronunciation_fallback")
	}

	feedback, err := json.Marshal(assessment)
	if err != nil {
		return AssessResult{}, fmt.Errorf("serialize feedback: %w", err)
	}

	attempt, err := s.store.SaveAttempt(ctx, store.PronunciationAttempt{
		UserID:   user.ID,
		Word:     word,
		AudioURL: audioURL,
		Accuracy: assessment.Accuracy,
		Feedback: string(feedback),
	})
	if err != nil {
		return AssessResult{}, fmt.Errorf("persist attempt: %w", err)
	}

	return AssessResult{
		AttemptID:  attempt.ID,
		AudioURL:   audioURL,
		Assessment: assessment,
		FellBack:   fellBack,
	}, nil
}

func (s *Service) assessWord(ctx context.Context, user store.User, word string) (Assessment, bool) {
	prompt := buildAssessPrompt(user, word)
	raw, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		s.metrics.ModelCalls.WithLabelValues("error").Inc()
		return fallbackAssessment(word), true
	}
	s.metrics.ModelCalls.WithLabelValues("ok").Inc()
	return parseAssessment(raw, word)
}

// History lists attempts, newest first. Stored feedback that no longer parses
// degrades to a minimal assessment around the stored accuracy.
func (s *Service) History(ctx context.Context, email string, limit int) ([]AttemptView, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	attempts, err := s.store.ListAttempts(ctx, user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	out := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		var fb Assessment
		if err := json.Unmarshal([]byte(a.Feedback), &fb); err != nil || strings.TrimSpace(fb.Word) == "" {
			fb = Assessment{Word: a.Word, Accuracy: a.Accuracy, Feedback: a.Feedback}
		}
		out = append(out, AttemptView{
			ID:        a.ID,
			Word:      a.Word,
			AudioURL:  a.AudioURL,
			Accuracy:  a.Accuracy,
			Feedback:  fb,
			CreatedAt: a.CreatedAt,
		})
	}
	return out, nil
}

func buildAssessPrompt(user store.User, word string) string {
	var b strings.Builder
	b.WriteString("You are a pronunciation coach for an English learner")
	if lang := strings.TrimSpace(user.NativeLanguage); lang != "" {
		b.WriteString(" whose native language is ")
		b.WriteString(lang)
	}
	b.WriteString(".\n\n")
	b.WriteString("The learner just recorded themselves saying the word: ")
	b.WriteString(word)
	b.WriteString("\n\n")
	b.WriteString(`Estimate how such a learner typically performs on this word and respond with ONLY a raw JSON object, no markdown fencing, in exactly this format:
{
  "word": "` + word + `",
  "accuracy": <whole number 0-100>,
  "feedback": "<one or two sentences on the likely trouble spots>",
  "advice": "<one concrete practice suggestion>"
}`)
	return b.String()
}

func parseAssessment(raw, word string) (Assessment, bool) {
	cleaned := stripFences(raw)

	var a Assessment
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		// One bounded recovery attempt for responses that kept the field
		// list but dropped the outer braces.
		recovered := false
		if !strings.HasPrefix(cleaned, "{") &&
			strings.Contains(cleaned, `"word"`) && strings.Contains(cleaned, `"accuracy"`) {
			if err := json.Unmarshal([]byte("{"+cleaned+"}"), &a); err == nil {
				recovered = true
			}
		}
		if !recovered {
			return fallbackAssessment(word), true
		}
	}

	if strings.TrimSpace(a.Word) == "" {
		a.Word = word
	}
	if a.Accuracy < 0 {
		a.Accuracy = 0
	}
	if a.Accuracy > 100 {
		a.Accuracy = 100
	}
	if strings.TrimSpace(a.Feedback) == "" {
		a.Feedback = fallbackAssessment(word).Feedback
	}
	if strings.TrimSpace(a.Advice) == "" {
		a.Advice = fallbackAssessment(word).Advice
	}
	return a, false
}

func fallbackAssessment(word string) Assessment {
	return Assessment{
		Word:     word,
		Accuracy: 70,
		Feedback: fmt.Sprintf("We could not fully analyze this attempt, but practicing %q out loud a few more times will help.", word),
		Advice:   "Record the word again slowly, then at normal speed.",
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

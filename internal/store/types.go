package store

import (
	"context"
	"errors"
	"time"
)

// User is a learner profile. Email is the lookup key used by all handlers.
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	NativeLanguage  string    `json:"native_language"`
	Level           string    `json:"level"`
	Goal            string    `json:"goal"`
	Interests       string    `json:"interests"`
	FocusArea       string    `json:"focus_area"`
	Occupation      string    `json:"occupation"`
	PreferredTopics string    `json:"preferred_topics"`
	ContentType     string    `json:"content_type"`
	TutorVoice      string    `json:"tutor_voice"`
	CreatedAt       time.Time `json:"created_at"`
}

// Turn stores one user-message/model-response exchange. Response holds the
// model output as serialized text and is not guaranteed to be valid JSON.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// PronunciationAttempt stores one recorded pronunciation submission.
// Attempts are insert-only.
type PronunciationAttempt struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Word      string    `json:"word"`
	AudioURL  string    `json:"audio_url"`
	Accuracy  int       `json:"accuracy"`
	Feedback  string    `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrTurnNotFound = errors.New("turn not found")
	ErrNotOwner     = errors.New("turn does not belong to user")
)

// Store persists learners, conversation turns, and pronunciation attempts.
//
// Mutations that take both an id and a userID enforce ownership in a single
// conditional statement; a mismatch yields ErrNotOwner and leaves the row
// unchanged.
type Store interface {
	UpsertUser(ctx context.Context, user User) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)

	SaveTurn(ctx context.Context, turn Turn) (Turn, error)
	// RecentTurns returns up to limit turns in chronological order,
	// skipping excludeID when non-empty.
	RecentTurns(ctx context.Context, userID string, limit int, excludeID string) ([]Turn, error)
	// ListTurns returns up to limit turns, newest first.
	ListTurns(ctx context.Context, userID string, limit int) ([]Turn, error)
	UpdateTurnMessage(ctx context.Context, id, userID, message string) error
	UpdateTurnResponse(ctx context.Context, id, userID, response string) error
	DeleteTurn(ctx context.Context, id, userID string) error

	SaveAttempt(ctx context.Context, attempt PronunciationAttempt) (PronunciationAttempt, error)
	// ListAttempts returns up to limit attempts, newest first.
	ListAttempts(ctx context.Context, userID string, limit int) ([]PronunciationAttempt, error)

	Close() error
}

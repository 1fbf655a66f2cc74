package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]User // keyed by lowercase email
	turns    map[string]Turn
	attempts []PronunciationAttempt
	seq      int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users: make(map[string]User),
		turns: make(map[string]Turn),
	}
}

// now returns a monotonically increasing timestamp so records inserted within
// the same wall-clock tick still sort deterministically.
func (s *InMemoryStore) now() time.Time {
	s.seq++
	return time.Now().UTC().Add(time.Duration(s.seq) * time.Microsecond)
}

func (s *InMemoryStore) UpsertUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if existing, ok := s.users[user.Email]; ok {
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	} else {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = s.now()
		}
	}
	s.users[user.Email] = user
	return user, nil
}

func (s *InMemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *InMemoryStore) SaveTurn(_ context.Context, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	s.turns[turn.ID] = turn
	return turn, nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, userID string, limit int, excludeID string) ([]Turn, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	newest := s.turnsNewestFirstLocked(userID, excludeID, limit)

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(newest)-1; i < j; i, j = i+1, j-1 {
		newest[i], newest[j] = newest[j], newest[i]
	}
	return newest, nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnsNewestFirstLocked(userID, "", limit), nil
}

func (s *InMemoryStore) turnsNewestFirstLocked(userID, excludeID string, limit int) []Turn {
	all := make([]Turn, 0, len(s.turns))
	for _, t := range s.turns {
		if t.UserID != userID || t.ID == excludeID {
			continue
		}
		all = append(all, t)
	}
	// Insertion-order sort by CreatedAt descending.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].CreatedAt.After(all[j-1].CreatedAt); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func (s *InMemoryStore) UpdateTurnMessage(_ context.Context, id, userID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.turns[id]
	if !ok {
		return ErrTurnNotFound
	}
	if t.UserID != userID {
		return ErrNotOwner
	}
	t.Message = message
	s.turns[id] = t
	return nil
}

func (s *InMemoryStore) UpdateTurnResponse(_ context.Context, id, userID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.turns[id]
	if !ok {
		return ErrTurnNotFound
	}
	if t.UserID != userID {
		return ErrNotOwner
	}
	t.Response = response
	s.turns[id] = t
	return nil
}

func (s *InMemoryStore) DeleteTurn(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.turns[id]
	if !ok {
		return ErrTurnNotFound
	}
	if t.UserID != userID {
		return ErrNotOwner
	}
	delete(s.turns, id)
	return nil
}

func (s *InMemoryStore) SaveAttempt(_ context.Context, attempt PronunciationAttempt) (PronunciationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = s.now()
	}
	s.attempts = append(s.attempts, attempt)
	return attempt, nil
}

func (s *InMemoryStore) ListAttempts(_ context.Context, userID string, limit int) ([]PronunciationAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PronunciationAttempt, 0, limit)
	for i := len(s.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if s.attempts[i].UserID == userID {
			out = append(out, s.attempts[i])
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

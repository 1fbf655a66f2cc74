package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists learner data in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			native_language TEXT NOT NULL DEFAULT '',
			level TEXT NOT NULL DEFAULT '',
			goal TEXT NOT NULL DEFAULT '',
			interests TEXT NOT NULL DEFAULT '',
			focus_area TEXT NOT NULL DEFAULT '',
			occupation TEXT NOT NULL DEFAULT '',
			preferred_topics TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			tutor_voice TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			message TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_user_created ON turns (user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS pronunciation_attempts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			word TEXT NOT NULL,
			audio_url TEXT NOT NULL DEFAULT '',
			accuracy INT NOT NULL DEFAULT 0,
			feedback TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user_created ON pronunciation_attempts (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user User) (User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, native_language, level, goal, interests,
			focus_area, occupation, preferred_topics, content_type, tutor_voice, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			native_language = EXCLUDED.native_language,
			level = EXCLUDED.level,
			goal = EXCLUDED.goal,
			interests = EXCLUDED.interests,
			focus_area = EXCLUDED.focus_area,
			occupation = EXCLUDED.occupation,
			preferred_topics = EXCLUDED.preferred_topics,
			content_type = EXCLUDED.content_type,
			tutor_voice = EXCLUDED.tutor_voice
		 RETURNING id, created_at`,
		user.ID, user.Email, user.Name, user.NativeLanguage, user.Level, user.Goal,
		user.Interests, user.FocusArea, user.Occupation, user.PreferredTopics,
		user.ContentType, user.TutorVoice, user.CreatedAt,
	)
	if err := row.Scan(&user.ID, &user.CreatedAt); err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, native_language, level, goal, interests, focus_area,
			occupation, preferred_topics, content_type, tutor_voice, created_at
		 FROM users WHERE email=$1`,
		email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.NativeLanguage, &u.Level, &u.Goal, &u.Interests,
		&u.FocusArea, &u.Occupation, &u.PreferredTopics, &u.ContentType, &u.TutorVoice, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (id, user_id, message, response, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		turn.ID, turn.UserID, turn.Message, turn.Response, turn.CreatedAt,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("save turn: %w", err)
	}
	return turn, nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, userID string, limit int, excludeID string) ([]Turn, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, message, response, created_at
		 FROM turns WHERE user_id=$1 AND ($2 = '' OR id <> $2)
		 ORDER BY created_at DESC LIMIT $3`,
		userID, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	items, err := scanTurns(rows, limit)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, message, response, created_at
		 FROM turns WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows, limit)
}

func scanTurns(rows pgx.Rows, capHint int) ([]Turn, error) {
	items := make([]Turn, 0, capHint)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.Message, &t.Response, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}

// UpdateTurnMessage rewrites the stored user message. The WHERE clause carries
// the ownership check so concurrent edits cannot interleave between a read
// and a write.
func (s *PostgresStore) UpdateTurnMessage(ctx context.Context, id, userID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE turns SET message=$3 WHERE id=$1 AND user_id=$2`,
		id, userID, message,
	)
	if err != nil {
		return fmt.Errorf("update turn message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

func (s *PostgresStore) UpdateTurnResponse(ctx context.Context, id, userID, response string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE turns SET response=$3 WHERE id=$1 AND user_id=$2`,
		id, userID, response,
	)
	if err != nil {
		return fmt.Errorf("update turn response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

func (s *PostgresStore) DeleteTurn(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM turns WHERE id=$1 AND user_id=$2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete turn: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMiss(ctx, id)
	}
	return nil
}

// classifyMiss distinguishes a missing turn from an ownership mismatch after
// a conditional mutation touched zero rows.
func (s *PostgresStore) classifyMiss(ctx context.Context, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM turns WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("classify turn miss: %w", err)
	}
	if exists {
		return ErrNotOwner
	}
	return ErrTurnNotFound
}

func (s *PostgresStore) SaveAttempt(ctx context.Context, attempt PronunciationAttempt) (PronunciationAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pronunciation_attempts (id, user_id, word, audio_url, accuracy, feedback, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.ID, attempt.UserID, attempt.Word, attempt.AudioURL, attempt.Accuracy,
		attempt.Feedback, attempt.CreatedAt,
	)
	if err != nil {
		return PronunciationAttempt{}, fmt.Errorf("save attempt: %w", err)
	}
	return attempt, nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, userID string, limit int) ([]PronunciationAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, word, audio_url, accuracy, feedback, created_at
		 FROM pronunciation_attempts WHERE user_id=$1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	items := make([]PronunciationAttempt, 0, limit)
	for rows.Next() {
		var a PronunciationAttempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.Word, &a.AudioURL, &a.Accuracy, &a.Feedback, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

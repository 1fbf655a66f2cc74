package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/mfalconi/lingotutor/internal/genlang"
	"github.com/mfalconi/lingotutor/internal/observability"
	"github.com/mfalconi/lingotutor/internal/store"
)

// Service runs the conversational turn pipeline: context assembly, prompt
// construction, model invocation, response normalization, persistence.
type Service struct {
	store     store.Store
	generator genlang.Generator
	assembler *Assembler
	metrics   *observability.Metrics
}

func NewService(st store.Store, gen genlang.Generator, metrics *observability.Metrics, contextTurns int) *Service {
	return &Service{
		store:     st,
		generator: gen,
		assembler: NewAssembler(st, contextTurns),
		metrics:   metrics,
	}
}

// AskResult is the outcome of one completed turn.
type AskResult struct {
	TurnID   string
	Reply    TutorReply
	FellBack bool
}

// EditResult reports an edit and, when regeneration was requested, either the
// regenerated reply or the regeneration failure. A non-empty RegenError with
// a nil outer error is the partial-success case: the message edit committed
// but the new response could not be produced.
type EditResult struct {
	TurnID     string
	Reply      *TutorReply
	FellBack   bool
	RegenError string
}

// TurnView is a turn prepared for client rendering, with the stored response
// best-effort parsed back into the structured shape.
type TurnView struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Reply     TutorReply `json:"reply"`
	CreatedAt time.Time  `json:"created_at"`
}

// Ask runs the full pipeline for a new message.
func (s *Service) Ask(ctx context.Context, email, message string) (AskResult, error) {
	return s.ask(ctx, email, message, nil)
}

// StreamAsk runs the same pipeline but forwards incremental model text to
// onDelta before the final parsed reply is produced.
func (s *Service) StreamAsk(ctx context.Context, email, message string, onDelta func(string) error) (AskResult, error) {
	return s.ask(ctx, email, message, onDelta)
}

func (s *Service) ask(ctx context.Context, email, message string, onDelta func(string) error) (AskResult, error) {
	turnStart := time.Now()

	stageStart := time.Now()
	user, contextBlock, err := s.assembler.Assemble(ctx, email, "")
	if err != nil {
		s.metrics.Turns.WithLabelValues("ask", "error").Inc()
		return AskResult{}, err
	}
	s.metrics.ObserveStage("context_assembly", time.Since(stageStart))

	prompt := BuildPrompt(user, contextBlock, message)

	stageStart = time.Now()
	raw, err := s.invoke(ctx, prompt, onDelta)
	if err != nil {
		s.metrics.ModelCalls.WithLabelValues("error").Inc()
		s.metrics.Turns.WithLabelValues("ask", "error").Inc()
		return AskResult{}, err
	}
	s.metrics.ModelCalls.WithLabelValues("ok").Inc()
	s.metrics.ObserveStage("model_call", time.Since(stageStart))

	stageStart = time.Now()
	reply, fellBack := ParseReply(raw)
	if fellBack {
		s.metrics.ParseFallbacks.Inc()
		s.metrics.ObserveIndicator("parse_fallback")
	}
	s.metrics.ObserveStage("parse", time.Since(stageStart))

	// The raw model text is what gets stored, parseable or not, so no turn
	// is ever lost to a malformed response.
	stageStart = time.Now()
	turn, err := s.store.SaveTurn(ctx, store.Turn{
		UserID:   user.ID,
		Message:  message,
		Response: raw,
	})
	if err != nil {
		s.metrics.Turns.WithLabelValues("ask", "error").Inc()
		return AskResult{}, fmt.Errorf("persist turn: %w", err)
	}
	s.metrics.ObserveStage("persist", time.Since(stageStart))
	s.metrics.ObserveStage("turn_total", time.Since(turnStart))
	s.metrics.Turns.WithLabelValues("ask", "ok").Inc()

	return AskResult{TurnID: turn.ID, Reply: reply, FellBack: fellBack}, nil
}

func (s *Service) invoke(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	if onDelta != nil {
		if streamer, ok := s.generator.(genlang.Streamer); ok {
			return streamer.Stream(ctx, prompt, onDelta)
		}
	}
	raw, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if onDelta != nil && raw != "" {
		if err := onDelta(raw); err != nil {
			return "", err
		}
	}
	return raw, nil
}

// Edit rewrites a turn's user message after an ownership check. With
// regenerate set, it re-runs the pipeline for the edited message (excluding
// the edited turn from its own history) and overwrites the stored response in
// place; the same row is reused, no new turn is created. A model failure
// during regeneration does not roll back the edit.
func (s *Service) Edit(ctx context.Context, turnID, email, content string, regenerate bool) (EditResult, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		s.metrics.Turns.WithLabelValues("edit", "error").Inc()
		return EditResult{}, err
	}

	if err := s.store.UpdateTurnMessage(ctx, turnID, user.ID, content); err != nil {
		s.metrics.Turns.WithLabelValues("edit", "error").Inc()
		return EditResult{}, err
	}

	if !regenerate {
		s.metrics.Turns.WithLabelValues("edit", "ok").Inc()
		return EditResult{TurnID: turnID}, nil
	}

	_, contextBlock, err := s.assembler.Assemble(ctx, email, turnID)
	if err != nil {
		// The edit is already committed; report regeneration separately.
		s.metrics.Turns.WithLabelValues("edit", "partial").Inc()
		return EditResult{TurnID: turnID, RegenError: fmt.Sprintf("context assembly failed: %v", err)}, nil
	}

	prompt := BuildPrompt(user, contextBlock, content)
	raw, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		s.metrics.ModelCalls.WithLabelValues("error").Inc()
		s.metrics.Turns.WithLabelValues("edit", "partial").Inc()
		s.metrics.ObserveIndicator("regen_model_failure")
		return EditResult{TurnID: turnID, RegenError: err.Error()}, nil
	}
	s.metrics.ModelCalls.WithLabelValues("ok").Inc()

	reply, fellBack := ParseReply(raw)
	if fellBack {
		s.metrics.ParseFallbacks.Inc()
		s.metrics.ObserveIndicator("parse_fallback")
	}

	if err := s.store.UpdateTurnResponse(ctx, turnID, user.ID, raw); err != nil {
		s.metrics.Turns.WithLabelValues("edit", "partial").Inc()
		return EditResult{TurnID: turnID, RegenError: fmt.Sprintf("persist regenerated response: %v", err)}, nil
	}

	s.metrics.Turns.WithLabelValues("edit", "ok").Inc()
	return EditResult{TurnID: turnID, Reply: &reply, FellBack: fellBack}, nil
}

// Delete removes a turn after an ownership check. Deleting an id that no
// longer exists reports store.ErrTurnNotFound; callers treat that as 404,
// never as a crash.
func (s *Service) Delete(ctx context.Context, turnID, email string) error {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		s.metrics.Turns.WithLabelValues("delete", "error").Inc()
		return err
	}
	if err := s.store.DeleteTurn(ctx, turnID, user.ID); err != nil {
		s.metrics.Turns.WithLabelValues("delete", "error").Inc()
		return err
	}
	s.metrics.Turns.WithLabelValues("delete", "ok").Inc()
	return nil
}

// History lists a user's turns, newest first, with stored responses
// best-effort parsed. Unparseable responses degrade to the raw text as the
// answer.
func (s *Service) History(ctx context.Context, email string, limit int) ([]TurnView, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.ListTurns(ctx, user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}

	out := make([]TurnView, 0, len(turns))
	for _, t := range turns {
		reply, err := parseStrict(t.Response)
		if err != nil {
			reply = TutorReply{Answer: t.Response, Success: true}
		}
		out = append(out, TurnView{
			ID:        t.ID,
			Message:   t.Message,
			Reply:     reply,
			CreatedAt: t.CreatedAt,
		})
	}
	return out, nil
}

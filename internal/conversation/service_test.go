package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mfalconi/lingotutor/internal/genlang"
	"github.com/mfalconi/lingotutor/internal/observability"
	"github.com/mfalconi/lingotutor/internal/store"
)

var metricsSeq atomic.Int64

// newTestMetrics returns metrics under a unique namespace so the default
// prometheus registry never sees duplicate collectors across tests.
func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_conversation_%d", metricsSeq.Add(1)))
}

type fakeGenerator struct {
	reply string
	err   error
	calls int
	last  string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.last = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

const goodReply = `{"answer":"Nice work!","explanation":"","feedback":"","followUp":"What else did you do?","success":true}`

func newTestService(t *testing.T, gen genlang.Generator) (*Service, *store.InMemoryStore, store.User) {
	t.Helper()
	st := store.NewInMemoryStore()
	user, err := st.UpsertUser(context.Background(), store.User{Email: "student@example.com", Name: "Sam"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	return NewService(st, gen, newTestMetrics(), 5), st, user
}

func TestAskPersistsTurn(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, st, user := newTestService(t, gen)

	result, err := svc.Ask(context.Background(), user.Email, "I practiced yesterday")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if result.TurnID == "" {
		t.Fatalf("empty turn id")
	}
	if result.FellBack {
		t.Fatalf("FellBack = true for valid model output")
	}
	if result.Reply.Answer != "Nice work!" {
		t.Fatalf("Answer = %q", result.Reply.Answer)
	}

	turns, err := st.ListTurns(context.Background(), user.ID, 10)
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("stored turns = %d, want 1", len(turns))
	}
	if turns[0].Message != "I practiced yesterday" {
		t.Fatalf("stored message = %q", turns[0].Message)
	}
	if turns[0].Response != goodReply {
		t.Fatalf("stored response = %q, want raw model text", turns[0].Response)
	}
}

func TestAskUnknownUserSkipsModel(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, _, _ := newTestService(t, gen)

	_, err := svc.Ask(context.Background(), "ghost@example.com", "hello")
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
	if gen.calls != 0 {
		t.Fatalf("model called %d times for unknown user", gen.calls)
	}
}

func TestAskIncludesRecentTurnsInPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, st, user := newTestService(t, gen)
	ctx := context.Background()

	if _, err := st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "earlier question", Response: goodReply}); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	if _, err := svc.Ask(ctx, user.Email, "follow-up"); err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !contains(gen.last, "earlier question") {
		t.Fatalf("prompt missing prior turn:\n%s", gen.last)
	}
}

func TestAskModelFailurePersistsNothing(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: boom", genlang.ErrUpstream)}
	svc, st, user := newTestService(t, gen)

	_, err := svc.Ask(context.Background(), user.Email, "hello")
	if !errors.Is(err, genlang.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	turns, _ := st.ListTurns(context.Background(), user.ID, 10)
	if len(turns) != 0 {
		t.Fatalf("turn persisted despite model failure")
	}
}

func TestAskFallsBackOnGarbage(t *testing.T) {
	gen := &fakeGenerator{reply: "sorry, I cannot do JSON today"}
	svc, st, user := newTestService(t, gen)

	result, err := svc.Ask(context.Background(), user.Email, "hello")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !result.FellBack {
		t.Fatalf("FellBack = false for unparseable output")
	}
	if result.Reply.Answer == "" {
		t.Fatalf("fallback answer empty")
	}

	turns, _ := st.ListTurns(context.Background(), user.ID, 10)
	if turns[0].Response != "sorry, I cannot do JSON today" {
		t.Fatalf("raw text not persisted: %q", turns[0].Response)
	}
}

func TestEditWithoutRegeneration(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, st, user := newTestService(t, gen)
	ctx := context.Background()

	turn, _ := st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "old", Response: "old resp"})
	gen.calls = 0

	result, err := svc.Edit(ctx, turn.ID, user.Email, "new message", false)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if result.Reply != nil || result.RegenError != "" {
		t.Fatalf("unexpected regeneration fields: %+v", result)
	}
	if gen.calls != 0 {
		t.Fatalf("model called without regenerate flag")
	}

	turns, _ := st.ListTurns(ctx, user.ID, 1)
	if turns[0].Message != "new message" || turns[0].Response != "old resp" {
		t.Fatalf("edit semantics wrong: %+v", turns[0])
	}
}

func TestEditRegenerateOverwritesResponse(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, st, user := newTestService(t, gen)
	ctx := context.Background()

	turn, _ := st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "old", Response: "old resp"})

	result, err := svc.Edit(ctx, turn.ID, user.Email, "edited message", true)
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if result.RegenError != "" {
		t.Fatalf("RegenError = %q", result.RegenError)
	}
	if result.Reply == nil || result.Reply.Answer != "Nice work!" {
		t.Fatalf("regenerated reply missing: %+v", result)
	}
	if contains(gen.last, "old") && contains(gen.last, "old resp") {
		t.Fatalf("edited turn leaked into its own regeneration context:\n%s", gen.last)
	}

	turns, _ := st.ListTurns(ctx, user.ID, 10)
	if len(turns) != 1 {
		t.Fatalf("regeneration created a new turn: %d rows", len(turns))
	}
	if turns[0].ID != turn.ID || turns[0].Response != goodReply {
		t.Fatalf("response not overwritten in place: %+v", turns[0])
	}
}

func TestEditRegeneratePartialSuccess(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: model down", genlang.ErrUpstream)}
	svc, st, user := newTestService(t, gen)
	ctx := context.Background()

	turn, _ := st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "old", Response: "old resp"})

	result, err := svc.Edit(ctx, turn.ID, user.Email, "edited message", true)
	if err != nil {
		t.Fatalf("Edit returned hard error for regen failure: %v", err)
	}
	if result.RegenError == "" {
		t.Fatalf("RegenError empty, want regeneration failure detail")
	}
	if result.Reply != nil {
		t.Fatalf("Reply set despite regen failure")
	}

	// Edit committed, old response untouched.
	turns, _ := st.ListTurns(ctx, user.ID, 1)
	if turns[0].Message != "edited message" {
		t.Fatalf("message not updated: %q", turns[0].Message)
	}
	if turns[0].Response != "old resp" {
		t.Fatalf("response changed despite regen failure: %q", turns[0].Response)
	}
}

func TestEditForeignTurn(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, st, user := newTestService(t, gen)
	ctx := context.Background()

	intruder, _ := st.UpsertUser(ctx, store.User{Email: "intruder@example.com"})
	turn, _ := st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "mine", Response: "resp"})

	_, err := svc.Edit(ctx, turn.ID, intruder.Email, "stolen", true)
	if !errors.Is(err, store.ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
	turns, _ := st.ListTurns(ctx, user.ID, 1)
	if turns[0].Message != "mine" {
		t.Fatalf("foreign edit applied: %q", turns[0].Message)
	}
}

func TestDeleteTurnLifecycle(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, st, user := newTestService(t, gen)
	ctx := context.Background()

	turn, _ := st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "m", Response: "r"})

	if err := svc.Delete(ctx, turn.ID, user.Email); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, turn.ID, user.Email); !errors.Is(err, store.ErrTurnNotFound) {
		t.Fatalf("repeat delete err = %v, want ErrTurnNotFound", err)
	}
}

func TestHistoryDegradesUnparseableResponses(t *testing.T) {
	gen := &fakeGenerator{reply: goodReply}
	svc, st, user := newTestService(t, gen)
	ctx := context.Background()

	st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "m1", Response: goodReply})
	st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: "m2", Response: "plain model rambling"})

	views, err := svc.History(ctx, user.Email, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("len = %d, want 2", len(views))
	}
	// Newest first: m2 is the unparseable one.
	if views[0].Reply.Answer != "plain model rambling" {
		t.Fatalf("degraded answer = %q", views[0].Reply.Answer)
	}
	if !views[0].Reply.Success {
		t.Fatalf("degraded reply Success = false")
	}
	if views[1].Reply.Answer != "Nice work!" {
		t.Fatalf("parsed answer = %q", views[1].Reply.Answer)
	}
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }

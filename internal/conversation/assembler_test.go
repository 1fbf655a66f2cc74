package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mfalconi/lingotutor/internal/store"
)

func TestRenderContextBlock(t *testing.T) {
	turns := []store.Turn{
		{Message: "How do I greet someone?", Response: `{"answer":"Say hello.","explanation":"Informal greeting.","success":true}`},
		{Message: "And formally?", Response: "Good afternoon works well."},
	}

	block := RenderContextBlock(turns)
	lines := strings.Split(strings.TrimRight(block, "\n"), "\n")
	want := []string{
		"Student: How do I greet someone?",
		"Tutor: Say hello. (Informal greeting.)",
		"Student: And formally?",
		"Tutor: Good afternoon works well.",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %d, want %d:\n%s", len(lines), len(want), block)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestRenderContextBlockEmpty(t *testing.T) {
	if got := RenderContextBlock(nil); got != "" {
		t.Fatalf("empty history rendered %q", got)
	}
}

func TestAssembleUnknownUser(t *testing.T) {
	a := NewAssembler(store.NewInMemoryStore(), 5)
	_, _, err := a.Assemble(context.Background(), "ghost@example.com", "")
	if !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestAssembleLimitsAndExcludes(t *testing.T) {
	st := store.NewInMemoryStore()
	ctx := context.Background()
	user, err := st.UpsertUser(ctx, store.User{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	var lastID string
	for _, msg := range []string{"one", "two", "three", "four"} {
		turn, err := st.SaveTurn(ctx, store.Turn{UserID: user.ID, Message: msg, Response: "resp " + msg})
		if err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
		lastID = turn.ID
	}

	a := NewAssembler(st, 2)
	_, block, err := a.Assemble(ctx, user.Email, "")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if strings.Contains(block, "Student: one") || strings.Contains(block, "Student: two") {
		t.Fatalf("window not applied:\n%s", block)
	}
	if !strings.Contains(block, "Student: three") || !strings.Contains(block, "Student: four") {
		t.Fatalf("recent turns missing:\n%s", block)
	}
	// Oldest first within the window.
	if strings.Index(block, "three") > strings.Index(block, "four") {
		t.Fatalf("window not chronological:\n%s", block)
	}

	_, block, err = a.Assemble(ctx, user.Email, lastID)
	if err != nil {
		t.Fatalf("Assemble with exclusion: %v", err)
	}
	if strings.Contains(block, "Student: four") {
		t.Fatalf("excluded turn present:\n%s", block)
	}
}

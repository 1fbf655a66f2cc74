package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/mfalconi/lingotutor/internal/store"
)

// Assembler loads the learner profile and the recent turn history and renders
// it into the context block prefixed to new prompts.
type Assembler struct {
	store store.Store
	turns int
}

func NewAssembler(st store.Store, turns int) *Assembler {
	if turns <= 0 {
		turns = 5
	}
	return &Assembler{store: st, turns: turns}
}

// Assemble resolves the user by email and renders up to the configured number
// of prior turns, oldest first. excludeID skips a turn that is being edited.
// An unknown email returns store.ErrUserNotFound before any model work.
func (a *Assembler) Assemble(ctx context.Context, email, excludeID string) (store.User, string, error) {
	user, err := a.store.UserByEmail(ctx, email)
	if err != nil {
		return store.User{}, "", err
	}

	turns, err := a.store.RecentTurns(ctx, user.ID, a.turns, excludeID)
	if err != nil {
		return store.User{}, "", fmt.Errorf("load recent turns: %w", err)
	}

	return user, RenderContextBlock(turns), nil
}

// RenderContextBlock turns chronological history into the compact text block
// used inside prompts. Stored responses are opportunistically parsed to pull
// out the answer (and explanation when present); when a stored response does
// not parse, its raw text is used verbatim. Formatting degrades, never errors.
func RenderContextBlock(turns []store.Turn) string {
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	for _, t := range turns {
		b.WriteString("Student: ")
		b.WriteString(strings.TrimSpace(t.Message))
		b.WriteString("\n")

		answer, explanation := compactResponse(t.Response)
		if answer != "" {
			b.WriteString("Tutor: ")
			b.WriteString(answer)
			if explanation != "" {
				b.WriteString(" (")
				b.WriteString(explanation)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func compactResponse(stored string) (answer, explanation string) {
	if strings.TrimSpace(stored) == "" {
		return "", ""
	}
	if r, err := parseStrict(stored); err == nil {
		return strings.TrimSpace(r.Answer), strings.TrimSpace(r.Explanation)
	}
	return strings.TrimSpace(stored), ""
}

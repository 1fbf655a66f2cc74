package genlang

import (
	"context"
	"encoding/json"
	"strings"
)

// MockGenerator provides deterministic local replies when no real backend is
// configured. It honors the JSON contract the prompt asks for so the rest of
// the pipeline behaves as it would in production.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (g *MockGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	payload := map[string]any{
		"answer":      buildMockAnswer(prompt),
		"explanation": "This reply was produced by the local mock backend.",
		"feedback":    "",
		"followUp":    "What would you like to practice next?",
		"success":     true,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (g *MockGenerator) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	text, err := g.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		if err := onDelta(text); err != nil {
			return "", err
		}
	}
	return text, nil
}

func buildMockAnswer(prompt string) string {
	// The new message is the last non-empty line before the format contract.
	line := ""
	for _, l := range strings.Split(prompt, "\n") {
		l = strings.TrimSpace(l)
		if l != "" && !strings.HasPrefix(l, "{") && !strings.HasPrefix(l, "\"") {
			line = l
		}
	}
	if line == "" {
		return "Let's keep practicing together."
	}
	if len(line) > 120 {
		line = line[:120]
	}
	return "You said: " + line
}

package pronunciation

import (
	"context"
	"encoding/json"
	"strings"
)

// TipsGuide is the pronunciation guide for a single word, independent of any
// stored attempt.
type TipsGuide struct {
	Word          string   `json:"word"`
	Phonetic      string   `json:"phonetic"`
	LeadingSound  string   `json:"leading_sound"`
	TrailingSound string   `json:"trailing_sound"`
	Tips          []string `json:"tips"`
}

// Tips returns a guide for the word, model-backed when possible and otherwise
// the deterministic local guide. It never fails once the word is non-empty.
func (s *Service) Tips(ctx context.Context, word string) TipsGuide {
	raw, err := s.generator.Complete(ctx, buildTipsPrompt(word))
	if err != nil {
		s.metrics.ModelCalls.WithLabelValues("error").Inc()
		s.metrics.ObserveIndicator("tips_fallback")
		return fallbackTips(word)
	}
	s.metrics.ModelCalls.WithLabelValues("ok").Inc()

	var g TipsGuide
	if err := json.Unmarshal([]byte(stripFences(raw)), &g); err != nil ||
		strings.TrimSpace(g.Phonetic) == "" || len(g.Tips) == 0 {
		s.metrics.ObserveIndicator("tips_fallback")
		return fallbackTips(word)
	}
	g.Word = word
	if g.LeadingSound == "" || g.TrailingSound == "" {
		lead, trail := edgeSounds(word)
		if g.LeadingSound == "" {
			g.LeadingSound = lead
		}
		if g.TrailingSound == "" {
			g.TrailingSound = trail
		}
	}
	return g
}

func buildTipsPrompt(word string) string {
	return `You are a pronunciation coach. Give tips for the English word: ` + word + `

Respond with ONLY a raw JSON object, no markdown fencing, in exactly this format:
{
  "word": "` + word + `",
  "phonetic": "<simple phonetic rendering>",
  "leading_sound": "<the opening sound>",
  "trailing_sound": "<the closing sound>",
  "tips": ["<tip 1>", "<tip 2>", "<tip 3>"]
}`
}

// fallbackTips builds the local guide. The edge sounds come from the first
// and last rune; a one-rune word reuses the same rune for both so short words
// never index out of range.
func fallbackTips(word string) TipsGuide {
	lead, trail := edgeSounds(word)
	return TipsGuide{
		Word:          word,
		Phonetic:      strings.Join(strings.Split(strings.ToLower(word), ""), "-"),
		LeadingSound:  lead,
		TrailingSound: trail,
		Tips: []string{
			"Say the word slowly, one syllable at a time.",
			"Start with the \"" + lead + "\" sound and hold it for a beat.",
			"Finish clearly on the \"" + trail + "\" sound instead of trailing off.",
		},
	}
}

func edgeSounds(word string) (lead, trail string) {
	runes := []rune(strings.ToLower(strings.TrimSpace(word)))
	if len(runes) == 0 {
		return "", ""
	}
	lead = string(runes[0])
	trail = string(runes[len(runes)-1])
	return lead, trail
}

package conversation

import (
	"encoding/json"
	"strings"
)

// TutorReply is the structured shape the prompt asks the model to emit.
type TutorReply struct {
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
	Feedback    string `json:"feedback"`
	FollowUp    string `json:"followUp"`
	Success     bool   `json:"success"`
}

// ParseReply normalizes raw model text into a TutorReply. It never fails:
// when the text cannot be parsed even after one recovery attempt it returns
// the deterministic fallback built from the raw text, with fellBack set.
// A raw parse error must never surface past this function.
func ParseReply(raw string) (reply TutorReply, fellBack bool) {
	if r, err := parseStrict(raw); err == nil {
		return r, false
	}

	// One bounded recovery attempt: models occasionally drop the outer
	// braces but keep the field list intact.
	cleaned := stripFences(raw)
	if looksLikeFieldList(cleaned) {
		if r, err := parseStrict("{" + cleaned + "}"); err == nil {
			return r, false
		}
	}

	return FallbackReply(raw), true
}

// parseStrict strips fencing and requires a JSON object with a non-empty
// answer field.
func parseStrict(raw string) (TutorReply, error) {
	cleaned := stripFences(raw)

	var r TutorReply
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&r); err != nil {
		return TutorReply{}, err
	}
	if strings.TrimSpace(r.Answer) == "" {
		return TutorReply{}, errMissingAnswer
	}
	return r, nil
}

var errMissingAnswer = jsonFieldError("answer")

type jsonFieldError string

func (e jsonFieldError) Error() string { return "missing required field " + string(e) }

// FallbackReply synthesizes a fixed-shape reply from unparseable model text.
// The raw text still carries the model's words, so it becomes the answer when
// non-empty; every field is populated so clients never render holes.
func FallbackReply(raw string) TutorReply {
	answer := stripFences(raw)
	if answer == "" {
		answer = "I could not generate a proper reply this time. Could you rephrase your message?"
	}
	return TutorReply{
		Answer:      answer,
		Explanation: "",
		Feedback:    "Keep going, your practice still counts.",
		FollowUp:    "Shall we try that again?",
		Success:     true,
	}
}

// stripFences removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
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

func looksLikeFieldList(s string) bool {
	return !strings.HasPrefix(s, "{") &&
		strings.Contains(s, `"answer"`) &&
		strings.Contains(s, ":")
}

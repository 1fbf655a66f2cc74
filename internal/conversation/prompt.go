package conversation

import (
	"strings"

	"github.com/mfalconi/lingotutor/internal/store"
)

// Profile fallbacks keep the prompt well-formed when optional settings were
// never filled in.
const (
	defaultName            = "the student"
	defaultNativeLanguage  = "Unknown"
	defaultLevel           = "Intermediate"
	defaultGoal            = "General fluency"
	defaultInterests       = "Not specified"
	defaultFocusArea       = "Conversation practice"
	defaultOccupation      = "Not specified"
	defaultPreferredTopics = "Everyday topics"
	defaultContentType     = "Conversational"
)

// BuildPrompt renders the tutor instruction prompt. Pure text templating:
// deterministic given profile, context block, and message.
func BuildPrompt(user store.User, contextBlock, message string) string {
	var b strings.Builder

	b.WriteString("You are a patient, encouraging language tutor helping a student practice English.\n\n")
	b.WriteString("Student profile:\n")
	writeField(&b, "Name", user.Name, defaultName)
	writeField(&b, "Native language", user.NativeLanguage, defaultNativeLanguage)
	writeField(&b, "Level", user.Level, defaultLevel)
	writeField(&b, "Learning goal", user.Goal, defaultGoal)
	writeField(&b, "Interests", user.Interests, defaultInterests)
	writeField(&b, "Focus area", user.FocusArea, defaultFocusArea)
	writeField(&b, "Occupation", user.Occupation, defaultOccupation)
	writeField(&b, "Preferred topics", user.PreferredTopics, defaultPreferredTopics)
	writeField(&b, "Preferred content type", user.ContentType, defaultContentType)

	if strings.TrimSpace(contextBlock) != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(contextBlock)
		if !strings.HasSuffix(contextBlock, "\n") {
			b.WriteString("\n")
		}
	}

	b.WriteString("\nThe student's new message:\n")
	b.WriteString(message)
	b.WriteString("\n\n")

	b.WriteString(`Respond with ONLY a raw JSON object, no markdown fencing, no prose, in exactly this format:
{
  "answer": "<your reply to the student, in English, adjusted to their level>",
  "explanation": "<short grammar or vocabulary note, empty string if none>",
  "feedback": "<gentle correction of mistakes in the student's message, empty string if none>",
  "followUp": "<one question that keeps the conversation going>",
  "success": true
}`)

	return b.String()
}

func writeField(b *strings.Builder, label, value, fallback string) {
	v := strings.TrimSpace(value)
	if v == "" {
		v = fallback
	}
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(v)
	b.WriteString("\n")
}

package llm

// Turn is one prior exchange handed to the assistant as context.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LanguageUndetermined is returned by DetectLanguage when the text carries no
// usable language signal (emoji, numbers, very short fragments).
const LanguageUndetermined = "und"

type languageResult struct {
	Language string `json:"language" jsonschema_description:"ISO 639-1 code of the dominant language of the text, or \"und\" if it cannot be determined"`
}

type translationResult struct {
	Translation string `json:"translation" jsonschema_description:"The text translated into the target language, preserving tone and meaning"`
}

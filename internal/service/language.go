package service

import (
	"context"
	"log/slog"
	"regexp"

	"ampara.app/soporte/internal/llm"
)

// LanguageResolver picks the language a conversation turn should be answered
// in. Detection is tried first, then the language already stored on the
// conversation, then the configured default.
type LanguageResolver struct {
	llm      llm.Client // nil when the assistant is disabled
	fallback string
}

func NewLanguageResolver(client llm.Client, fallback string) *LanguageResolver {
	return &LanguageResolver{llm: client, fallback: fallback}
}

// Resolve returns the language for the current message. stored is the
// language persisted on the conversation, empty for first contact.
func (r *LanguageResolver) Resolve(ctx context.Context, text, stored string) string {
	if r.llm != nil {
		lang, err := r.llm.DetectLanguage(ctx, text)
		if err != nil {
			slog.WarnContext(ctx, "language detection failed, falling back to script heuristic", "error", err)
			lang = guessByScript(text)
		}
		if lang != "" && lang != llm.LanguageUndetermined {
			return lang
		}
	} else if lang := guessByScript(text); lang != llm.LanguageUndetermined {
		return lang
	}

	if stored != "" && stored != llm.LanguageUndetermined {
		return stored
	}
	return r.fallback
}

var scriptGuesses = []struct {
	re   *regexp.Regexp
	lang string
}{
	{regexp.MustCompile(`\p{Cyrillic}`), "ru"},
	{regexp.MustCompile(`\p{Arabic}`), "ar"},
	{regexp.MustCompile(`\p{Hebrew}`), "he"},
	{regexp.MustCompile(`\p{Hiragana}|\p{Katakana}`), "ja"},
	{regexp.MustCompile(`\p{Hangul}`), "ko"},
	{regexp.MustCompile(`\p{Han}`), "zh"},
	{regexp.MustCompile(`\p{Greek}`), "el"},
}

// guessByScript maps distinctive character ranges to a language. Latin-script
// languages are indistinguishable at this level, so they come back
// undetermined and the stored or default language takes over.
func guessByScript(text string) string {
	for _, guess := range scriptGuesses {
		if guess.re.MatchString(text) {
			return guess.lang
		}
	}
	return llm.LanguageUndetermined
}

package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ampara.app/soporte/internal/llm"
	"ampara.app/soporte/internal/service"
)

var _ = Describe("LanguageResolver", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("prefers the detected language", func() {
		assistant := &mockAssistant{
			detectLanguageFn: func(ctx context.Context, text string) (string, error) {
				return "en", nil
			},
		}
		resolver := service.NewLanguageResolver(assistant, "es")
		Expect(resolver.Resolve(ctx, "hello there", "fr")).To(Equal("en"))
	})

	It("falls back to the stored language when detection is undetermined", func() {
		assistant := &mockAssistant{
			detectLanguageFn: func(ctx context.Context, text string) (string, error) {
				return llm.LanguageUndetermined, nil
			},
		}
		resolver := service.NewLanguageResolver(assistant, "es")
		Expect(resolver.Resolve(ctx, "123", "fr")).To(Equal("fr"))
	})

	It("falls back to the default when nothing else is known", func() {
		assistant := &mockAssistant{
			detectLanguageFn: func(ctx context.Context, text string) (string, error) {
				return llm.LanguageUndetermined, nil
			},
		}
		resolver := service.NewLanguageResolver(assistant, "es")
		Expect(resolver.Resolve(ctx, ":)", "")).To(Equal("es"))
	})

	It("never returns the undetermined sentinel", func() {
		assistant := &mockAssistant{
			detectLanguageFn: func(ctx context.Context, text string) (string, error) {
				return llm.LanguageUndetermined, nil
			},
		}
		resolver := service.NewLanguageResolver(assistant, "es")
		Expect(resolver.Resolve(ctx, "???", llm.LanguageUndetermined)).To(Equal("es"))
	})

	It("uses the script heuristic when detection errors", func() {
		assistant := &mockAssistant{
			detectLanguageFn: func(ctx context.Context, text string) (string, error) {
				return "", errors.New("api down")
			},
		}
		resolver := service.NewLanguageResolver(assistant, "es")
		Expect(resolver.Resolve(ctx, "Привет, мне нужна помощь", "")).To(Equal("ru"))
	})

	It("keeps the stored language when detection errors on latin text", func() {
		assistant := &mockAssistant{
			detectLanguageFn: func(ctx context.Context, text string) (string, error) {
				return "", errors.New("api down")
			},
		}
		resolver := service.NewLanguageResolver(assistant, "es")
		Expect(resolver.Resolve(ctx, "bonjour", "fr")).To(Equal("fr"))
	})

	It("works without an assistant", func() {
		resolver := service.NewLanguageResolver(nil, "es")
		Expect(resolver.Resolve(ctx, "مرحبا", "")).To(Equal("ar"))
		Expect(resolver.Resolve(ctx, "hola", "")).To(Equal("es"))
	})
})

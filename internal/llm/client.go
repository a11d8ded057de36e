package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"ampara.app/soporte/core/config"
)

// Client exposes the LLM powered capabilities of the chat service.
type Client interface {
	// Reply produces the assistant's answer to the latest user message,
	// given the conversation so far.
	Reply(ctx context.Context, systemPrompt string, history []Turn, userText string) (string, error)
	// DetectLanguage identifies the language of a piece of text, returning
	// LanguageUndetermined when there is no reliable signal.
	DetectLanguage(ctx context.Context, text string) (string, error)
	// Translate renders text into the target language.
	Translate(ctx context.Context, text, target string) (string, error)
}

type openaiClient struct {
	client openai.Client
	model  string
}

// NewClient creates an OpenAI-backed Client.
func NewClient(cfg config.AssistantConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiClient{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *openaiClient) Reply(ctx context.Context, systemPrompt string, history []Turn, userText string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range history {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userText))

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	slog.DebugContext(ctx, "assistant reply completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason)

	return resp.Choices[0].Message.Content, nil
}

func (c *openaiClient) DetectLanguage(ctx context.Context, text string) (string, error) {
	var result languageResult
	err := c.completeJSON(ctx, "language_detection", languageResult{},
		"Identify the language the user writes in. Answer with the ISO 639-1 code, or \"und\" if the language cannot be determined.",
		text, &result)
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}
	if result.Language == "" {
		return LanguageUndetermined, nil
	}
	return result.Language, nil
}

func (c *openaiClient) Translate(ctx context.Context, text, target string) (string, error) {
	var result translationResult
	err := c.completeJSON(ctx, "translation", translationResult{},
		fmt.Sprintf("Translate the user's message into %q. Keep the tone and meaning intact. Do not add commentary.", target),
		text, &result)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return result.Translation, nil
}

// completeJSON runs a single-turn completion constrained to the JSON schema
// derived from schemaFrom and unmarshals the answer into out.
func (c *openaiClient) completeJSON(ctx context.Context, name string, schemaFrom any, systemPrompt, userText string, out any) error {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(schemaFrom)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userText),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in response")
	}

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return fmt.Errorf("parse structured response: %w", err)
	}
	return nil
}

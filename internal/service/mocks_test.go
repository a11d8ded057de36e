package service_test

import (
	"context"
	"time"

	"ampara.app/soporte/internal/llm"
	"ampara.app/soporte/internal/model"
	"ampara.app/soporte/internal/notify"
	"ampara.app/soporte/internal/store"
)

type mockConversationStore struct {
	getFn         func(ctx context.Context, id string) (*model.Conversation, error)
	mergeFn       func(ctx context.Context, id string, patch store.Patch) error
	touchFn       func(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error)
	listFn        func(ctx context.Context, state model.ConversationState, limit int) ([]model.Conversation, error)
	archiveIdleFn func(ctx context.Context, cutoff time.Time) (int, error)
}

func (m *mockConversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockConversationStore) Merge(ctx context.Context, id string, patch store.Patch) error {
	if m.mergeFn != nil {
		return m.mergeFn(ctx, id, patch)
	}
	return nil
}

func (m *mockConversationStore) TouchOnUserMessage(ctx context.Context, id, language string, at time.Time) (*model.Conversation, error) {
	if m.touchFn != nil {
		return m.touchFn(ctx, id, language, at)
	}
	return &model.Conversation{ID: id, State: model.ConversationOpen, Language: language, StartedAt: at}, nil
}

func (m *mockConversationStore) List(ctx context.Context, state model.ConversationState, limit int) ([]model.Conversation, error) {
	if m.listFn != nil {
		return m.listFn(ctx, state, limit)
	}
	return nil, nil
}

func (m *mockConversationStore) ArchiveIdle(ctx context.Context, cutoff time.Time) (int, error) {
	if m.archiveIdleFn != nil {
		return m.archiveIdleFn(ctx, cutoff)
	}
	return 0, nil
}

type mockMessageStore struct {
	appendFn           func(ctx context.Context, msg *model.Message) error
	listFn             func(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	listRecentFn       func(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	countManualSinceFn func(ctx context.Context, conversationID string, after time.Time) (int, error)
}

func (m *mockMessageStore) Append(ctx context.Context, msg *model.Message) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, msg)
	}
	return nil
}

func (m *mockMessageStore) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	if m.listFn != nil {
		return m.listFn(ctx, conversationID, limit, offset)
	}
	return nil, nil
}

func (m *mockMessageStore) ListRecent(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, conversationID, limit)
	}
	return nil, nil
}

func (m *mockMessageStore) CountManualSince(ctx context.Context, conversationID string, after time.Time) (int, error) {
	if m.countManualSinceFn != nil {
		return m.countManualSinceFn(ctx, conversationID, after)
	}
	return 0, nil
}

type mockProducer struct {
	enqueueFn func(ctx context.Context, alert notify.Alert) error
}

func (m *mockProducer) Enqueue(ctx context.Context, alert notify.Alert) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, alert)
	}
	return nil
}

func (m *mockProducer) Close() error { return nil }

type mockAssistant struct {
	replyFn          func(ctx context.Context, systemPrompt string, history []llm.Turn, userText string) (string, error)
	detectLanguageFn func(ctx context.Context, text string) (string, error)
	translateFn      func(ctx context.Context, text, target string) (string, error)
}

func (m *mockAssistant) Reply(ctx context.Context, systemPrompt string, history []llm.Turn, userText string) (string, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, systemPrompt, history, userText)
	}
	return "respuesta", nil
}

func (m *mockAssistant) DetectLanguage(ctx context.Context, text string) (string, error) {
	if m.detectLanguageFn != nil {
		return m.detectLanguageFn(ctx, text)
	}
	return llm.LanguageUndetermined, nil
}

func (m *mockAssistant) Translate(ctx context.Context, text, target string) (string, error) {
	if m.translateFn != nil {
		return m.translateFn(ctx, text, target)
	}
	return text, nil
}

type mockScheduler struct {
	scheduleFn func(conversationID string, messageAt time.Time)
}

func (m *mockScheduler) Schedule(conversationID string, messageAt time.Time) {
	if m.scheduleFn != nil {
		m.scheduleFn(conversationID, messageAt)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ampara.app/soporte/common/id"
	"ampara.app/soporte/common/logger"
	"ampara.app/soporte/core/config"
	"ampara.app/soporte/internal/llm"
	"ampara.app/soporte/internal/model"
	"ampara.app/soporte/internal/notify"
	"ampara.app/soporte/internal/store"
)

var ErrConversationNotFound = errors.New("conversation not found")

// historyWindow is how many prior messages the assistant sees.
const historyWindow = 20

// nowSecond is the timestamp for every document write. Whole seconds keep the
// stored RFC 3339 strings fixed-width, so the store's lexicographic time
// comparisons order them correctly; sub-second order is carried by the
// snowflake message IDs instead.
func nowSecond() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Reply is the outcome of an inbound visitor message. Message is nil while a
// human agent owns the conversation and the assistant stays silent.
type Reply struct {
	Message   *model.Message
	Escalated bool
}

// Scheduler arms a deferred unattended-message check.
type Scheduler interface {
	Schedule(conversationID string, messageAt time.Time)
}

// ConversationService is the conversation state machine: it routes visitor
// messages, runs escalation and intervention transitions, and keeps the
// conversation document consistent.
type ConversationService interface {
	HandleUserMessage(ctx context.Context, conversationID, text string) (*Reply, error)
	HandleAgentReply(ctx context.Context, conversationID string, agent *model.Agent, text string) (*model.Message, error)
	Release(ctx context.Context, conversationID string) error
	Close(ctx context.Context, conversationID string) error
	MarkSeen(ctx context.Context, conversationID string) error
	List(ctx context.Context, state model.ConversationState, limit int) ([]model.Conversation, error)
	Messages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
}

type conversationService struct {
	conversations store.ConversationStore
	messages      store.MessageStore
	assistant     llm.Client // nil when no API key is configured
	producer      notify.Producer
	detector      EscalationDetector
	language      *LanguageResolver
	watchdog      Scheduler
	locks         *keyLock
	chatCfg       config.ChatConfig
	systemPrompt  string
}

func NewConversationService(
	conversations store.ConversationStore,
	messages store.MessageStore,
	assistant llm.Client,
	producer notify.Producer,
	detector EscalationDetector,
	language *LanguageResolver,
	watchdog Scheduler,
	chatCfg config.ChatConfig,
	systemPrompt string,
) ConversationService {
	return &conversationService{
		conversations: conversations,
		messages:      messages,
		assistant:     assistant,
		producer:      producer,
		detector:      detector,
		language:      language,
		watchdog:      watchdog,
		locks:         newKeyLock(),
		chatCfg:       chatCfg,
		systemPrompt:  systemPrompt,
	}
}

func (s *conversationService) HandleUserMessage(ctx context.Context, conversationID, text string) (*Reply, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &conversationID,
		Component:      "soporte.conversation",
	})

	now := nowSecond()

	stored := ""
	existing, err := s.conversations.Get(ctx, conversationID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if existing != nil {
		stored = existing.Language
	}

	lang := s.language.Resolve(ctx, text, stored)

	// Reopens closed and archived conversations, creates new ones, bumps the
	// unseen counter. Intervention flags survive untouched.
	conv, err := s.conversations.TouchOnUserMessage(ctx, conversationID, lang, now)
	if err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	userMsg := s.buildUserMessage(ctx, conversationID, text, lang, now)
	if err := s.messages.Append(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("appending user message: %w", err)
	}

	// Armed on every inbound message; the check is a no-op unless the
	// conversation is intervened when it fires.
	s.watchdog.Schedule(conversationID, now)

	if s.detector.Detect(text) && !conv.Intervened {
		return s.escalate(ctx, conv, lang, now)
	}

	if conv.Intervened {
		slog.DebugContext(ctx, "assistant suppressed, conversation is intervened")
		return &Reply{}, nil
	}

	return s.assistantReply(ctx, conversationID, text, lang, now)
}

// escalate answers a human-handoff request. Every matching message gets the
// acknowledgement; the episode mark and the roster alert fire only once until
// the conversation is released or closed.
func (s *conversationService) escalate(ctx context.Context, conv *model.Conversation, lang string, now time.Time) (*Reply, error) {
	if conv.EscalationRequestedAt == nil {
		if err := s.conversations.Merge(ctx, conv.ID, store.Patch{
			store.FieldEscalationRequestedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("marking escalation: %w", err)
		}

		alert := notify.Alert{
			Kind:           notify.AlertEscalation,
			ConversationID: conv.ID,
			Text:           fmt.Sprintf("El visitante %s solicita hablar con un agente humano.", conv.ID),
		}
		if err := s.producer.Enqueue(ctx, alert); err != nil {
			// The escalation mark already persisted, so the episode stays
			// single-shot even though this alert is lost.
			slog.ErrorContext(ctx, "failed to enqueue escalation alert", "error", err)
		}

		slog.InfoContext(ctx, "escalation requested")
	}

	ack := s.localize(ctx, s.chatCfg.Acknowledgement, lang)
	ackMsg := &model.Message{
		ID:             id.New(),
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Kind:           model.KindText,
		Content:        ack,
		Language:       lang,
		SentAt:         now,
	}
	if err := s.messages.Append(ctx, ackMsg); err != nil {
		return nil, fmt.Errorf("appending acknowledgement: %w", err)
	}

	return &Reply{Message: ackMsg, Escalated: true}, nil
}

func (s *conversationService) assistantReply(ctx context.Context, conversationID, text, lang string, now time.Time) (*Reply, error) {
	content, err := s.generateReply(ctx, conversationID, text)
	if err != nil {
		slog.ErrorContext(ctx, "assistant reply failed, sending apology", "error", err)
		content = s.localize(ctx, s.chatCfg.ApologyReply, lang)
	}

	msg := &model.Message{
		ID:             id.New(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Kind:           model.KindText,
		Content:        content,
		Language:       lang,
		SentAt:         now,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending assistant message: %w", err)
	}

	return &Reply{Message: msg}, nil
}

func (s *conversationService) generateReply(ctx context.Context, conversationID, text string) (string, error) {
	if s.assistant == nil {
		return "", errors.New("assistant is not configured")
	}

	history, err := s.messages.ListRecent(ctx, conversationID, historyWindow)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	turns := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		if m.Kind != model.KindText {
			continue
		}
		role := llm.RoleUser
		if m.Role == model.RoleAssistant {
			role = llm.RoleAssistant
		}
		content := m.Content
		if m.Original != "" {
			content = m.Original
		}
		turns = append(turns, llm.Turn{Role: role, Content: content})
	}

	return s.assistant.Reply(ctx, s.systemPrompt, turns, text)
}

func (s *conversationService) HandleAgentReply(ctx context.Context, conversationID string, agent *model.Agent, text string) (*model.Message, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &conversationID,
		AgentID:        &agent.ID,
		Component:      "soporte.conversation",
	})

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	now := nowSecond()

	// The first manual reply takes the conversation over. Replies after that
	// keep the existing owner, even when they come from another agent.
	if !conv.Intervened {
		if err := s.appendStatus(ctx, conversationID, model.StatusIntervened, now); err != nil {
			return nil, err
		}
		if err := s.conversations.Merge(ctx, conversationID, store.Patch{
			store.FieldState:        string(model.ConversationOpen),
			store.FieldIntervened:   true,
			store.FieldIntervenedBy: agent.Ref(),
		}); err != nil {
			return nil, fmt.Errorf("marking intervention: %w", err)
		}
		slog.InfoContext(ctx, "conversation intervened")
	} else if err := s.conversations.Merge(ctx, conversationID, store.Patch{
		store.FieldState:         string(model.ConversationOpen),
		store.FieldLastMessageAt: now,
	}); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	msg := &model.Message{
		ID:             id.New(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Kind:           model.KindText,
		Content:        text,
		Language:       conv.Language,
		Manual:         true,
		SentAt:         now,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending agent message: %w", err)
	}

	return msg, nil
}

func (s *conversationService) Release(ctx context.Context, conversationID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("loading conversation: %w", err)
	}
	if !conv.Intervened {
		return nil
	}

	now := nowSecond()
	if err := s.conversations.Merge(ctx, conversationID, store.Patch{
		store.FieldIntervened:            false,
		store.FieldIntervenedBy:          nil,
		store.FieldEscalationRequestedAt: nil,
	}); err != nil {
		return fmt.Errorf("releasing conversation: %w", err)
	}

	if err := s.appendStatus(ctx, conversationID, model.StatusReleased, now); err != nil {
		return err
	}

	slog.InfoContext(ctx, "conversation released", "conversation_id", conversationID)
	return nil
}

func (s *conversationService) Close(ctx context.Context, conversationID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("loading conversation: %w", err)
	}

	now := nowSecond()

	if err := s.conversations.Merge(ctx, conversationID, store.Patch{
		store.FieldState:                 string(model.ConversationClosed),
		store.FieldIntervened:            false,
		store.FieldIntervenedBy:          nil,
		store.FieldEscalationRequestedAt: nil,
	}); err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}

	// "Closed" then "Released" in every case, so a reopened conversation
	// always starts from the automated state.
	if err := s.appendStatus(ctx, conversationID, model.StatusClosed, now); err != nil {
		return err
	}
	if err := s.appendStatus(ctx, conversationID, model.StatusReleased, now); err != nil {
		return err
	}

	slog.InfoContext(ctx, "conversation closed", "conversation_id", conversationID, "was_intervened", conv.Intervened)
	return nil
}

func (s *conversationService) MarkSeen(ctx context.Context, conversationID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("loading conversation: %w", err)
	}

	if err := s.conversations.Merge(ctx, conversationID, store.Patch{
		store.FieldLastSeenAt:  nowSecond(),
		store.FieldUnseenCount: 0,
	}); err != nil {
		return fmt.Errorf("marking conversation seen: %w", err)
	}
	return nil
}

func (s *conversationService) List(ctx context.Context, state model.ConversationState, limit int) ([]model.Conversation, error) {
	// The active list sweeps stale entries on the way in, so the panel never
	// shows a conversation the ticker has not caught up with yet.
	if state == model.ConversationOpen {
		cutoff := nowSecond().Add(-s.chatCfg.IdleThreshold)
		if _, err := s.conversations.ArchiveIdle(ctx, cutoff); err != nil {
			slog.WarnContext(ctx, "idle sweep on list failed", "error", err)
		}
	}
	return s.conversations.List(ctx, state, limit)
}

func (s *conversationService) Messages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	return s.messages.ListByConversation(ctx, conversationID, limit, offset)
}

// buildUserMessage normalizes the visitor text to the reference language for
// the panel, keeping the original alongside.
func (s *conversationService) buildUserMessage(ctx context.Context, conversationID, text, lang string, now time.Time) *model.Message {
	msg := &model.Message{
		ID:             id.New(),
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Kind:           model.KindText,
		Content:        text,
		Language:       lang,
		SentAt:         now,
	}

	if lang != s.chatCfg.DefaultLanguage && s.assistant != nil {
		translated, err := s.assistant.Translate(ctx, text, s.chatCfg.DefaultLanguage)
		if err != nil {
			slog.WarnContext(ctx, "failed to translate user message, keeping original", "error", err)
		} else {
			msg.Content = translated
			msg.Original = text
		}
	}

	return msg
}

// localize renders a canned reply in the visitor's language, falling back to
// the configured text when translation is unavailable.
func (s *conversationService) localize(ctx context.Context, text, lang string) string {
	if lang == s.chatCfg.DefaultLanguage || s.assistant == nil {
		return text
	}
	translated, err := s.assistant.Translate(ctx, text, lang)
	if err != nil {
		slog.WarnContext(ctx, "failed to localize canned reply", "error", err, "language", lang)
		return text
	}
	return translated
}

func (s *conversationService) appendStatus(ctx context.Context, conversationID, status string, now time.Time) error {
	msg := &model.Message{
		ID:             id.New(),
		ConversationID: conversationID,
		Role:           model.RoleSystem,
		Kind:           model.KindStatus,
		Content:        status,
		SentAt:         now,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("appending %s status: %w", status, err)
	}
	return nil
}

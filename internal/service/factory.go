package service

import (
	"ampara.app/soporte/core/config"
	"ampara.app/soporte/internal/llm"
	"ampara.app/soporte/internal/notify"
	"ampara.app/soporte/internal/store"
)

type Services struct {
	stores    *store.Stores
	assistant llm.Client
	producer  notify.Producer
	watchdog  *Watchdog
	cfg       config.Config

	conversations ConversationService
}

func NewServices(stores *store.Stores, assistant llm.Client, producer notify.Producer, cfg config.Config) *Services {
	watchdog := NewWatchdog(stores.Conversations, stores.Messages, producer, cfg.Chat.WatchdogDelay)

	s := &Services{
		stores:    stores,
		assistant: assistant,
		producer:  producer,
		watchdog:  watchdog,
		cfg:       cfg,
	}

	s.conversations = NewConversationService(
		stores.Conversations,
		stores.Messages,
		assistant,
		producer,
		NewEscalationDetector(cfg.Chat.EscalationPhrases),
		NewLanguageResolver(assistant, cfg.Chat.DefaultLanguage),
		watchdog,
		cfg.Chat,
		cfg.Assistant.SystemPrompt,
	)

	return s
}

func (s *Services) Conversations() ConversationService {
	return s.conversations
}

func (s *Services) Auth() AuthService {
	return NewAuthService(s.stores.Agents, s.stores.Sessions, s.cfg.WorkOS)
}

func (s *Services) Archiver() *Archiver {
	return NewArchiver(s.stores.Conversations, s.cfg.Chat.IdleThreshold, s.cfg.Chat.IdleThreshold/2)
}

// Watchdog exposes the timer registry so main can cancel pending checks on
// shutdown.
func (s *Services) Watchdog() *Watchdog {
	return s.watchdog
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ampara.app/soporte/common/logger"
	"ampara.app/soporte/internal/notify"
	"ampara.app/soporte/internal/store"
)

// Watchdog alerts the roster when a message in an intervened conversation sits
// unanswered. Every inbound message arms a one-shot check; a newer message
// replaces the pending one, so at most one timer per conversation is live.
type Watchdog struct {
	conversations store.ConversationStore
	messages      store.MessageStore
	producer      notify.Producer
	delay         time.Duration
	now           func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewWatchdog(
	conversations store.ConversationStore,
	messages store.MessageStore,
	producer notify.Producer,
	delay time.Duration,
) *Watchdog {
	return &Watchdog{
		conversations: conversations,
		messages:      messages,
		producer:      producer,
		delay:         delay,
		now:           nowSecond,
		timers:        make(map[string]*time.Timer),
	}
}

// Schedule arms the unattended check for a message that just arrived.
func (w *Watchdog) Schedule(conversationID string, messageAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if prev, ok := w.timers[conversationID]; ok {
		prev.Stop()
	}
	w.timers[conversationID] = time.AfterFunc(w.delay, func() {
		w.forget(conversationID)
		w.check(conversationID, messageAt)
	})
}

// Stop cancels all pending checks. Used on shutdown.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *Watchdog) forget(conversationID string) {
	w.mu.Lock()
	delete(w.timers, conversationID)
	w.mu.Unlock()
}

// check runs once per armed timer. It stays silent unless the conversation is
// intervened, the agent never answered, and no alert covered this message yet.
func (w *Watchdog) check(conversationID string, messageAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &conversationID,
		Component:      "soporte.watchdog",
	})

	conv, err := w.conversations.Get(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "watchdog failed to load conversation", "error", err)
		}
		return
	}
	if !conv.Intervened {
		return
	}

	answered, err := w.messages.CountManualSince(ctx, conversationID, messageAt)
	if err != nil {
		slog.ErrorContext(ctx, "watchdog failed to count agent replies", "error", err)
		return
	}
	if answered > 0 {
		return
	}

	// A previous alert at or after this message already covers it.
	if conv.LastWatchdogAlertAt != nil && !conv.LastWatchdogAlertAt.Before(messageAt) {
		return
	}

	alert := notify.Alert{
		Kind:           notify.AlertUnattended,
		ConversationID: conversationID,
		Text:           fmt.Sprintf("El visitante %s sigue esperando respuesta de su agente.", conversationID),
	}
	if err := w.producer.Enqueue(ctx, alert); err != nil {
		slog.ErrorContext(ctx, "watchdog failed to enqueue alert", "error", err)
		return
	}

	if err := w.conversations.Merge(ctx, conversationID, store.Patch{
		store.FieldLastWatchdogAlertAt: w.now(),
	}); err != nil {
		slog.ErrorContext(ctx, "watchdog failed to record alert time", "error", err)
	}

	slog.InfoContext(ctx, "unattended conversation alert sent")
}

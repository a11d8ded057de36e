package service

import (
	"context"
	"log/slog"
	"time"

	"ampara.app/soporte/common/logger"
	"ampara.app/soporte/internal/store"
)

// Archiver demotes open conversations that have gone quiet so the panel's
// active list only shows live traffic. Reactivation is the store's job: any
// new inbound message flips the conversation back to open.
type Archiver struct {
	conversations store.ConversationStore
	threshold     time.Duration
	interval      time.Duration
}

func NewArchiver(conversations store.ConversationStore, threshold, interval time.Duration) *Archiver {
	return &Archiver{
		conversations: conversations,
		threshold:     threshold,
		interval:      interval,
	}
}

// Run sweeps on a ticker until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.SweepIdle(ctx); err != nil {
				slog.ErrorContext(ctx, "idle sweep failed", "error", err)
			}
		}
	}
}

// SweepIdle archives every open conversation idle past the threshold and
// returns how many were archived.
func (a *Archiver) SweepIdle(ctx context.Context) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "soporte.archiver",
	})

	cutoff := nowSecond().Add(-a.threshold)
	archived, err := a.conversations.ArchiveIdle(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if archived > 0 {
		slog.InfoContext(ctx, "archived idle conversations", "count", archived)
	}
	return archived, nil
}

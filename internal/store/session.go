package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ampara.app/soporte/internal/model"
)

type pgSessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a Postgres-backed session store
func NewSessionStore(pool *pgxpool.Pool) SessionStore {
	return &pgSessionStore{pool: pool}
}

func (s *pgSessionStore) GetValid(ctx context.Context, id int64) (*model.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > NOW()`,
		id,
	)

	var session model.Session
	err := row.Scan(&session.ID, &session.AgentID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *pgSessionStore) Create(ctx context.Context, session *model.Session) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, agent_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		session.ID, session.AgentID, session.ExpiresAt,
	)
	if err := row.Scan(&session.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *pgSessionStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *pgSessionStore) DeleteExpired(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`); err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ampara.app/soporte/internal/model"
)

type pgAgentStore struct {
	pool *pgxpool.Pool
}

// NewAgentStore creates a Postgres-backed agent store
func NewAgentStore(pool *pgxpool.Pool) AgentStore {
	return &pgAgentStore{pool: pool}
}

const agentColumns = `id, name, email, avatar_url, phone, active, workos_id, created_at, updated_at`

func scanAgent(row pgx.Row) (*model.Agent, error) {
	var agent model.Agent
	err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.AvatarURL,
		&agent.Phone,
		&agent.Active,
		&agent.WorkOSID,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

func (s *pgAgentStore) GetByID(ctx context.Context, id int64) (*model.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent %d: %w", id, err)
	}
	return agent, nil
}

func (s *pgAgentStore) UpsertByWorkOSID(ctx context.Context, agent *model.Agent) error {
	// New agents enter the roster active; re-login refreshes the profile
	// fields without flipping an operator-managed active flag.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agents (id, name, email, avatar_url, workos_id, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (workos_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING `+agentColumns,
		agent.ID, agent.Name, agent.Email, agent.AvatarURL, agent.WorkOSID,
	)
	stored, err := scanAgent(row)
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	*agent = *stored
	return nil
}

func (s *pgAgentStore) ListActive(ctx context.Context) ([]model.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE active = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active agents: %w", err)
	}
	defer rows.Close()

	agents := make([]model.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent rows: %w", err)
	}
	return agents, nil
}

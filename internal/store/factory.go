package store

import (
	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles every store implementation behind its interface.
type Stores struct {
	Conversations ConversationStore
	Messages      MessageStore
	Agents        AgentStore
	Sessions      SessionStore
}

// New wires the document stores to ArangoDB and the roster stores to Postgres.
func New(db arangodb.Database, pool *pgxpool.Pool) *Stores {
	return &Stores{
		Conversations: NewConversationStore(db),
		Messages:      NewMessageStore(db),
		Agents:        NewAgentStore(pool),
		Sessions:      NewSessionStore(pool),
	}
}

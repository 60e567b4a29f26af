// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/handoff-router/internal/domain"
)

// Repository persists conversation sessions, active-chat bindings,
// the recent-orders log and per-identity message history.
type Repository interface {
	// GetSession retrieves the session for identity. An identity that has
	// never been written yields a fresh INITIAL session.
	GetSession(ctx context.Context, identity string) (*domain.Session, error)

	// PutSession creates or replaces the session for session.Identity.
	PutSession(ctx context.Context, session *domain.Session) error

	// ListHandoffSessions returns sessions in a handoff state linked to agent,
	// ordered by identity.
	ListHandoffSessions(ctx context.Context, agent string) ([]*domain.Session, error)

	// GetActiveChat returns the buyer bound to agent, or "" when unset.
	GetActiveChat(ctx context.Context, agent string) (string, error)

	// SetActiveChat binds agent to buyer, replacing any previous binding.
	SetActiveChat(ctx context.Context, agent, buyer string) error

	// ClearActiveChat removes the binding for agent.
	ClearActiveChat(ctx context.Context, agent string) error

	// RecordOrder appends an order to the bounded recent-orders log.
	RecordOrder(ctx context.Context, order *domain.Order) error

	// ListOrders returns up to limit orders, newest first.
	ListOrders(ctx context.Context, limit int) ([]*domain.Order, error)

	// AppendHistory adds a line to identity's conversation record.
	AppendHistory(ctx context.Context, identity, line string) error

	// History returns identity's conversation record, oldest first.
	History(ctx context.Context, identity string) ([]string, error)

	// PruneHistory removes history lines older than maxAge.
	PruneHistory(ctx context.Context, maxAge time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

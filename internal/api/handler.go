// Package api provides HTTP handlers for the handoff router: the inbound
// messaging webhook and the operator read and inject endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/handoff-router/internal/domain"
	"github.com/ashureev/handoff-router/internal/router"
)

// MessageRouter computes replies and effects for inbound messages.
type MessageRouter interface {
	Route(ctx context.Context, sender, text string) (router.Result, error)
	InjectSupervisorMessage(ctx context.Context, buyerID, text string) (router.Result, error)
	AgentIdentity() string
}

// EffectDispatcher executes router effects.
type EffectDispatcher interface {
	Dispatch(ctx context.Context, effects []router.Effect) error
}

// Reader is the read side of the store used by operator endpoints.
type Reader interface {
	ListOrders(ctx context.Context, limit int) ([]*domain.Order, error)
	ListHandoffSessions(ctx context.Context, agent string) ([]*domain.Session, error)
	GetActiveChat(ctx context.Context, agent string) (string, error)
	Ping(ctx context.Context) error
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

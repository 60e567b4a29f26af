package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/handoff-router/internal/domain"
	"github.com/ashureev/handoff-router/internal/middleware"
	"github.com/ashureev/handoff-router/internal/router"
)

const (
	defaultOrdersLimit = 20
	maxInjectBody      = 16 << 10
)

// OperatorHandler serves the read paths and supervisor injection.
type OperatorHandler struct {
	reader  Reader
	router  MessageRouter
	webhook *WebhookHandler
	token   string
}

// NewOperatorHandler creates an OperatorHandler. Injected messages are
// dispatched through the webhook's background dispatcher. token guards
// supervisor injection; when empty the inject route is not mounted.
func NewOperatorHandler(reader Reader, r MessageRouter, webhook *WebhookHandler, token string) *OperatorHandler {
	return &OperatorHandler{reader: reader, router: r, webhook: webhook, token: token}
}

// InjectEnabled reports whether the supervisor inject route is mounted.
func (h *OperatorHandler) InjectEnabled() bool { return h.token != "" }

// RegisterRoutes registers operator routes.
func (h *OperatorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/orders", h.ListOrders)
		r.Get("/handoffs", h.ListHandoffs)
		if h.InjectEnabled() {
			r.With(middleware.RequireToken(h.token)).Post("/supervisor/messages", h.InjectSupervisorMessage)
		}
	})
}

// ListOrders returns the newest orders, newest first.
func (h *OperatorHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := h.reader.ListOrders(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list orders", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

type handoffView struct {
	Buyer     string             `json:"buyer"`
	State     domain.State       `json:"state"`
	Data      domain.SessionData `json:"data"`
	Active    bool               `json:"active"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ListHandoffs returns every buyer currently handed off to the agent.
func (h *OperatorHandler) ListHandoffs(w http.ResponseWriter, r *http.Request) {
	agent := h.router.AgentIdentity()
	sessions, err := h.reader.ListHandoffSessions(r.Context(), agent)
	if err != nil {
		slog.Error("Failed to list handoffs", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list handoffs")
		return
	}
	active, err := h.reader.GetActiveChat(r.Context(), agent)
	if err != nil {
		slog.Error("Failed to get active chat", "error", err)
		Error(w, http.StatusInternalServerError, "failed to get active chat")
		return
	}

	views := make([]handoffView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, handoffView{
			Buyer:     s.Identity,
			State:     s.State,
			Data:      s.Data,
			Active:    s.Identity == active,
			UpdatedAt: s.UpdatedAt,
		})
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"agent":       agent,
		"active_chat": active,
		"handoffs":    views,
	})
}

type injectRequest struct {
	Buyer string `json:"buyer"`
	Text  string `json:"text"`
}

// InjectSupervisorMessage delivers a supervisor message to a buyer.
func (h *OperatorHandler) InjectSupervisorMessage(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInjectBody)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.router.InjectSupervisorMessage(r.Context(), req.Buyer, req.Text)
	switch {
	case errors.Is(err, router.ErrEmptyIdentity):
		Error(w, http.StatusBadRequest, "buyer is required")
		return
	case errors.Is(err, router.ErrEmptyText):
		Error(w, http.StatusBadRequest, "text is required")
		return
	case errors.Is(err, router.ErrNotABuyer):
		Error(w, http.StatusBadRequest, "target is not a buyer")
		return
	case err != nil:
		slog.Error("Failed to inject supervisor message", "buyer", req.Buyer, "error", err)
		Error(w, http.StatusInternalServerError, "failed to deliver message")
		return
	}

	h.webhook.dispatch(r.Context(), res.Effects)
	JSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "queued",
		"effects": len(res.Effects),
	})
}

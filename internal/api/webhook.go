package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/handoff-router/internal/identity"
	"github.com/ashureev/handoff-router/internal/router"
)

const replyRateLimited = "You're sending messages too quickly. Please wait a moment and try again."

// WebhookHandler receives inbound channel messages, replies synchronously
// and dispatches the resulting effects in the background.
type WebhookHandler struct {
	router          MessageRouter
	dispatcher      EffectDispatcher
	dispatchTimeout time.Duration
	logger          *slog.Logger
	inflight        sync.WaitGroup
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(r MessageRouter, d EffectDispatcher, dispatchTimeout time.Duration, logger *slog.Logger) *WebhookHandler {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		router:          r,
		dispatcher:      d,
		dispatchTimeout: dispatchTimeout,
		logger:          logger.With("component", "webhook"),
	}
}

// RegisterRoutes registers the webhook. Middlewares run after the identity
// middleware, so they can key on the sender.
func (h *WebhookHandler) RegisterRoutes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.With(identity.Middleware).With(middlewares...).Post("/whatsapp", h.Receive)
}

// Receive handles one inbound message.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	sender := identity.SenderFromContext(r.Context())
	text := identity.BodyFromContext(r.Context())

	res, err := h.router.Route(r.Context(), sender, text)
	if err != nil {
		h.logger.Error("Failed to route message",
			"sender", sender,
			"remote_ip", identity.IPFromRequest(r),
			"error", err,
		)
	}
	TwiML(w, res.Reply)

	h.dispatch(r.Context(), res.Effects)
}

// RateLimited replies to a throttled sender without routing the message.
func (h *WebhookHandler) RateLimited(w http.ResponseWriter, _ *http.Request) {
	TwiML(w, replyRateLimited)
}

// Wait blocks until background dispatches have finished.
func (h *WebhookHandler) Wait() {
	h.inflight.Wait()
}

// dispatch runs effects detached from the request so a client disconnect
// does not cancel delivery.
func (h *WebhookHandler) dispatch(parent context.Context, effects []router.Effect) {
	if len(effects) == 0 {
		return
	}
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), h.dispatchTimeout)
		defer cancel()
		if err := h.dispatcher.Dispatch(ctx, effects); err != nil {
			h.logger.Warn("Some effects were not delivered", "count", len(effects), "error", err)
		}
	}()
}

// SenderKey returns the webhook sender for per-sender rate limiting.
func SenderKey(r *http.Request) string {
	return identity.SenderFromContext(r.Context())
}

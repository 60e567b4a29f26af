// Package router implements the conversational handoff router: the buyer
// ordering state machine, the agent's single active-chat binding, agent
// commands, and supervisor escalation.
//
// The router never talks to the transport. Every call returns a Result
// holding the synchronous reply for the sender and a list of Effects that
// the caller dispatches afterwards, so state persistence and outbound
// delivery can fail independently.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/handoff-router/internal/domain"
)

var (
	// ErrEmptyIdentity is returned when a message has no sender or target identity.
	ErrEmptyIdentity = errors.New("empty conversation identity")
	// ErrEmptyText is returned when an injected message has no text.
	ErrEmptyText = errors.New("empty message text")
	// ErrNotABuyer is returned when a buyer-only operation targets the agent or supervisor.
	ErrNotABuyer = errors.New("identity is not a buyer")
	// ErrNotInHandoff is returned when a command targets a buyer that no human owns.
	ErrNotInHandoff = errors.New("buyer is not in handoff")
)

const replyTryAgain = "Sorry, something went wrong on our side. Please try again in a moment."

// Store is the persistence the router needs. Every call touches at most one
// session key and one binding key, so per-key atomicity is sufficient.
type Store interface {
	GetSession(ctx context.Context, identity string) (*domain.Session, error)
	PutSession(ctx context.Context, session *domain.Session) error
	ListHandoffSessions(ctx context.Context, agent string) ([]*domain.Session, error)
	GetActiveChat(ctx context.Context, agent string) (string, error)
	SetActiveChat(ctx context.Context, agent, buyer string) error
	ClearActiveChat(ctx context.Context, agent string) error
	RecordOrder(ctx context.Context, order *domain.Order) error
	ListOrders(ctx context.Context, limit int) ([]*domain.Order, error)
	AppendHistory(ctx context.Context, identity, line string) error
	History(ctx context.Context, identity string) ([]string, error)
}

// Catalog resolves buyer product selections.
type Catalog interface {
	Lookup(choice string) (domain.Product, bool)
	Menu() string
	DisplayName(name string) string
}

// Config holds the router's identities and business settings.
type Config struct {
	AgentIdentity      string
	SupervisorIdentity string // optional
	DeliveryCharge     int
	PaymentDetails     string // optional, appended to order confirmations
	Logger             *slog.Logger
	Now                func() time.Time
}

// Router dispatches inbound messages by sender role.
type Router struct {
	store          Store
	catalog        Catalog
	agent          string
	supervisor     string
	deliveryCharge int
	paymentDetails string
	logger         *slog.Logger
	now            func() time.Time
}

// New creates a Router. The agent identity is required.
func New(store Store, catalog Catalog, cfg Config) (*Router, error) {
	if store == nil || catalog == nil {
		return nil, fmt.Errorf("router requires a store and a catalog")
	}
	agent := strings.TrimSpace(cfg.AgentIdentity)
	if agent == "" {
		return nil, fmt.Errorf("agent identity: %w", ErrEmptyIdentity)
	}
	supervisor := strings.TrimSpace(cfg.SupervisorIdentity)
	if supervisor == agent {
		return nil, fmt.Errorf("supervisor identity must differ from agent identity")
	}
	if cfg.DeliveryCharge < 0 || cfg.DeliveryCharge > domain.MaxPrice {
		return nil, fmt.Errorf("delivery charge must be between 0 and %d", domain.MaxPrice)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Router{
		store:          store,
		catalog:        catalog,
		agent:          agent,
		supervisor:     supervisor,
		deliveryCharge: cfg.DeliveryCharge,
		paymentDetails: strings.TrimSpace(cfg.PaymentDetails),
		logger:         logger.With("component", "router"),
		now:            now,
	}, nil
}

// AgentIdentity returns the configured agent identity.
func (r *Router) AgentIdentity() string { return r.agent }

// SupervisorConfigured reports whether a supervisor identity is set.
func (r *Router) SupervisorConfigured() bool { return r.supervisor != "" }

// Role classifies a sender.
type Role string

const (
	RoleBuyer      Role = "buyer"
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
)

// Classify returns the role of sender.
func (r *Router) Classify(sender string) Role {
	switch {
	case sender == r.agent:
		return RoleAgent
	case r.supervisor != "" && sender == r.supervisor:
		return RoleSupervisor
	default:
		return RoleBuyer
	}
}

// Route dispatches an inbound message to the handler for the sender's role.
func (r *Router) Route(ctx context.Context, sender, text string) (Result, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return reply(replyTryAgain), ErrEmptyIdentity
	}

	switch r.Classify(sender) {
	case RoleAgent:
		return r.OnAgentMessage(ctx, text)
	case RoleSupervisor:
		return r.OnSupervisorMessage(ctx, text)
	default:
		return r.OnBuyerMessage(ctx, sender, text)
	}
}

// saveSession persists session and logs state transitions.
func (r *Router) saveSession(ctx context.Context, session *domain.Session, from domain.State) error {
	if err := r.store.PutSession(ctx, session); err != nil {
		return fmt.Errorf("save session %s: %w", session.Identity, err)
	}
	if session.State != from {
		r.logger.Info("session state changed",
			"identity", session.Identity,
			"from", from,
			"to", session.State,
			"linked_agent", session.LinkedAgent,
		)
	}
	return nil
}

// recordHistory appends to the conversation record. History only feeds
// notification summaries, so failures are logged and not returned.
func (r *Router) recordHistory(ctx context.Context, identity, line string) {
	if err := r.store.AppendHistory(ctx, identity, line); err != nil {
		r.logger.Warn("failed to append history", "identity", identity, "error", err)
	}
}

// historyText renders identity's conversation record for notifications.
func (r *Router) historyText(ctx context.Context, identity string) string {
	lines, err := r.store.History(ctx, identity)
	if err != nil {
		r.logger.Warn("failed to load history", "identity", identity, "error", err)
		return "(history unavailable)"
	}
	if len(lines) == 0 {
		return "(no messages yet)"
	}
	return strings.Join(lines, "\n")
}

// findHandoff resolves ref to a buyer in handoff with this agent. ref may be
// the full identity or a unique suffix of it, e.g. the phone number without
// the channel prefix. Suffixes shorter than minRefSuffix never match.
func (r *Router) findHandoff(ctx context.Context, ref string) (*domain.Session, error) {
	sessions, err := r.store.ListHandoffSessions(ctx, r.agent)
	if err != nil {
		return nil, fmt.Errorf("list handoff sessions: %w", err)
	}
	return matchSession(sessions, ref)
}

const minRefSuffix = 4

func matchSession(sessions []*domain.Session, ref string) (*domain.Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrEmptyIdentity
	}
	var suffixMatches []*domain.Session
	for _, s := range sessions {
		if s.Identity == ref {
			return s, nil
		}
		if len(ref) >= minRefSuffix && strings.HasSuffix(s.Identity, ref) {
			suffixMatches = append(suffixMatches, s)
		}
	}
	if len(suffixMatches) == 1 {
		return suffixMatches[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotInHandoff, ref)
}

package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/handoff-router/internal/domain"
)

const supervisorUsage = "Send #reply <buyer> <message> to talk to a buyer."

// InjectSupervisorMessage delivers a supervisor message to buyerID. The buyer
// is moved to HANDOFF_SUPERVISOR, linked to the configured agent, whatever
// state it was in. The agent's binding is left alone.
func (r *Router) InjectSupervisorMessage(ctx context.Context, buyerID, text string) (Result, error) {
	buyerID = strings.TrimSpace(buyerID)
	text = strings.TrimSpace(text)
	if buyerID == "" {
		return Result{}, ErrEmptyIdentity
	}
	if text == "" {
		return Result{}, ErrEmptyText
	}
	if r.Classify(buyerID) != RoleBuyer {
		return Result{}, fmt.Errorf("%w: %s", ErrNotABuyer, buyerID)
	}

	session, err := r.store.GetSession(ctx, buyerID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	from := session.State
	session.EnterHandoff(domain.StateHandoffSupervisor, r.agent)
	if err := r.saveSession(ctx, session, from); err != nil {
		return Result{}, err
	}
	r.recordHistory(ctx, buyerID, "Supervisor: "+text)

	return reply(fmt.Sprintf("Message delivered to %s.", buyerID),
		Effect{Kind: EffectForwardToBuyer, To: buyerID, Buyer: buyerID, Body: "Supervisor: " + text},
		Effect{Kind: EffectForwardToAgent, To: r.agent, Buyer: buyerID, Body: fmt.Sprintf("Supervisor to %s: %s", buyerID, text)},
	), nil
}

// OnSupervisorMessage handles a message arriving from the supervisor identity.
func (r *Router) OnSupervisorMessage(ctx context.Context, text string) (Result, error) {
	cmd := ParseCommand(text)
	if cmd.Kind != CommandReply {
		return reply(supervisorUsage), nil
	}

	buyer := cmd.Buyer
	if session, err := r.findHandoff(ctx, buyer); err == nil {
		buyer = session.Identity
	} else if !errors.Is(err, ErrNotInHandoff) {
		r.logger.Error("supervisor message failed", "buyer", buyer, "error", err)
		return reply(replyTryAgain), err
	}

	res, err := r.InjectSupervisorMessage(ctx, buyer, cmd.Text)
	switch {
	case errors.Is(err, ErrNotABuyer):
		return reply(fmt.Sprintf("%s is not a buyer. %s", buyer, supervisorUsage)), nil
	case err != nil:
		r.logger.Error("supervisor message failed", "buyer", buyer, "error", err)
		return reply(replyTryAgain), err
	}
	return res, nil
}

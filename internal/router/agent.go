package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/handoff-router/internal/domain"
)

const agentHelp = `Seller commands:
#list - show buyers waiting for you (* marks the active chat)
#switch <buyer> - make <buyer> the active chat
#end [buyer] - close a chat and hand the buyer back to the bot
#reply <buyer> <message> - message a buyer without switching
#supervisor [note] - ask the supervisor to join your chats
#orders [n] - show the newest orders
Any other message is sent to the active chat.`

const (
	replyNoActiveChat = "No active conversation. Use #list to see buyers and #switch <buyer> to pick one."
	replyEmptyAgent   = "Type a message for the active buyer, or #help for commands."
	replyChatClosed   = "✅ Chat closed by seller. You're back with the bot. Type 'menu' to continue."
)

// OnAgentMessage handles a message from the configured agent: a #-command or
// plain text relayed to the active chat.
func (r *Router) OnAgentMessage(ctx context.Context, text string) (Result, error) {
	cmd := ParseCommand(text)
	res, err := r.runAgentCommand(ctx, cmd)
	if err != nil {
		r.logger.Error("agent message failed", "command", cmd.Kind, "error", err)
		return reply(replyTryAgain), err
	}
	return res, nil
}

func (r *Router) runAgentCommand(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Kind {
	case CommandHelp:
		return reply(agentHelp), nil
	case CommandList:
		return r.listChats(ctx)
	case CommandSwitch:
		return r.switchChat(ctx, cmd.Buyer)
	case CommandEnd:
		return r.endChat(ctx, cmd.Buyer)
	case CommandReply:
		return r.replyTo(ctx, cmd.Buyer, cmd.Text)
	case CommandEscalate:
		return r.escalate(ctx, cmd.Text)
	case CommandOrders:
		return r.listOrders(ctx, cmd.Limit)
	case CommandInvalid:
		return reply("Usage: " + cmd.Usage), nil
	case CommandUnknown:
		return reply(fmt.Sprintf("Unknown command %s. Send #help for the list of commands.", cmd.Name)), nil
	}
	return r.relayFromAgent(ctx, cmd.Text)
}

func (r *Router) listChats(ctx context.Context) (Result, error) {
	sessions, err := r.store.ListHandoffSessions(ctx, r.agent)
	if err != nil {
		return Result{}, fmt.Errorf("list handoff sessions: %w", err)
	}
	active, err := r.store.GetActiveChat(ctx, r.agent)
	if err != nil {
		return Result{}, fmt.Errorf("get active chat: %w", err)
	}

	activeValid := false
	var b strings.Builder
	b.WriteString("Active conversations:\n")
	for _, s := range sessions {
		marker := "  "
		if s.Identity == active {
			marker = "* "
			activeValid = true
		}
		fmt.Fprintf(&b, "%s%s (%s)", marker, s.Identity, stateLabel(s.State))
		if s.Data.ProductName != "" {
			fmt.Fprintf(&b, " - %s", r.catalog.DisplayName(s.Data.ProductName))
		}
		b.WriteString("\n")
	}

	if active != "" && !activeValid {
		if err := r.store.ClearActiveChat(ctx, r.agent); err != nil {
			r.logger.Warn("failed to clear stale active chat", "agent", r.agent, "buyer", active, "error", err)
		} else {
			r.logger.Info("cleared stale active chat", "agent", r.agent, "buyer", active)
		}
	}

	if len(sessions) == 0 {
		return reply("No active conversations."), nil
	}
	return reply(strings.TrimRight(b.String(), "\n")), nil
}

func (r *Router) switchChat(ctx context.Context, ref string) (Result, error) {
	session, err := r.findHandoff(ctx, ref)
	if errors.Is(err, ErrNotInHandoff) {
		return reply(fmt.Sprintf("%s is not waiting for you. Use #list to see active conversations.", ref)), nil
	}
	if err != nil {
		return Result{}, err
	}

	if err := r.store.SetActiveChat(ctx, r.agent, session.Identity); err != nil {
		return Result{}, fmt.Errorf("bind active chat: %w", err)
	}
	r.logger.Info("active chat switched", "agent", r.agent, "buyer", session.Identity)

	msg := fmt.Sprintf("Switched to %s (%s).", session.Identity, stateLabel(session.State))
	if summary := r.dataSummary(session.Data); summary != "" {
		msg += "\n" + summary
	}
	return reply(msg), nil
}

func (r *Router) endChat(ctx context.Context, ref string) (Result, error) {
	active, err := r.store.GetActiveChat(ctx, r.agent)
	if err != nil {
		return Result{}, fmt.Errorf("get active chat: %w", err)
	}
	if ref == "" {
		if active == "" {
			return reply("No active conversation to end. Use #end <buyer>."), nil
		}
		ref = active
	}

	session, err := r.findHandoff(ctx, ref)
	if errors.Is(err, ErrNotInHandoff) {
		if ref == active {
			r.clearBinding(ctx)
		}
		return reply(fmt.Sprintf("%s is not in a chat with you.", ref)), nil
	}
	if err != nil {
		return Result{}, err
	}

	from := session.State
	session.ReturnToBot(domain.StateAwaitingProduct)
	if err := r.saveSession(ctx, session, from); err != nil {
		return Result{}, err
	}
	if active == session.Identity {
		if err := r.store.ClearActiveChat(ctx, r.agent); err != nil {
			return Result{}, fmt.Errorf("clear active chat: %w", err)
		}
	}
	r.recordHistory(ctx, session.Identity, "System: chat closed by seller")

	return reply(fmt.Sprintf("Chat with %s ended. They are back with the bot.", session.Identity), Effect{
		Kind:  EffectNoticeBuyer,
		To:    session.Identity,
		Buyer: session.Identity,
		Body:  replyChatClosed,
	}), nil
}

func (r *Router) replyTo(ctx context.Context, ref, text string) (Result, error) {
	session, err := r.findHandoff(ctx, ref)
	if errors.Is(err, ErrNotInHandoff) {
		return reply(fmt.Sprintf("%s is not waiting for you. Use #list to see active conversations.", ref)), nil
	}
	if err != nil {
		return Result{}, err
	}
	return r.sendToBuyer(ctx, session.Identity, text), nil
}

// escalate moves the agent's handoffs to HANDOFF_SUPERVISOR and alerts the supervisor.
func (r *Router) escalate(ctx context.Context, note string) (Result, error) {
	if r.supervisor == "" {
		return reply("No supervisor is configured."), nil
	}

	sessions, err := r.store.ListHandoffSessions(ctx, r.agent)
	if err != nil {
		return Result{}, fmt.Errorf("list handoff sessions: %w", err)
	}
	if len(sessions) == 0 {
		return reply("You have no active conversations to escalate."), nil
	}

	var escalated, already []string
	for _, s := range sessions {
		if s.State == domain.StateHandoffSupervisor {
			already = append(already, s.Identity)
			continue
		}
		from := s.State
		s.EnterHandoff(domain.StateHandoffSupervisor, r.agent)
		if err := r.saveSession(ctx, s, from); err != nil {
			return Result{}, err
		}
		escalated = append(escalated, s.Identity)
	}

	var b strings.Builder
	b.WriteString("🚨 The seller asked for assistance.\n")
	if note != "" {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	b.WriteString("Buyers:\n")
	for _, id := range escalated {
		fmt.Fprintf(&b, "• %s\n", id)
	}
	for _, id := range already {
		fmt.Fprintf(&b, "• %s (already escalated)\n", id)
	}
	b.WriteString("\nReply with #reply <buyer> <message> to talk to a buyer.")

	ack := fmt.Sprintf("Supervisor notified about %d conversation(s).", len(sessions))
	return reply(ack, Effect{
		Kind: EffectNotifySupervisor,
		To:   r.supervisor,
		Body: b.String(),
	}), nil
}

func (r *Router) listOrders(ctx context.Context, limit int) (Result, error) {
	orders, err := r.store.ListOrders(ctx, limit)
	if err != nil {
		return Result{}, fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		return reply("No orders yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latest %d order(s):\n", len(orders))
	for _, o := range orders {
		fmt.Fprintf(&b, "• %s %s: %s x %d, Ksh %d, %s\n",
			o.CreatedAt.Format("2006-01-02 15:04"), o.Buyer,
			r.catalog.DisplayName(o.ProductName), o.Quantity, o.Total, o.Location)
	}
	return reply(strings.TrimRight(b.String(), "\n")), nil
}

// relayFromAgent sends plain agent text to the active chat, repairing a
// binding that no longer points at a buyer in handoff with this agent.
func (r *Router) relayFromAgent(ctx context.Context, text string) (Result, error) {
	if text == "" {
		return reply(replyEmptyAgent), nil
	}

	active, err := r.store.GetActiveChat(ctx, r.agent)
	if err != nil {
		return Result{}, fmt.Errorf("get active chat: %w", err)
	}
	if active == "" {
		return reply(replyNoActiveChat), nil
	}

	session, err := r.store.GetSession(ctx, active)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	if !session.LinkedTo(r.agent) {
		r.clearBinding(ctx)
		r.logger.Info("cleared stale active chat", "agent", r.agent, "buyer", active, "state", session.State)
		return reply(fmt.Sprintf("%s is no longer waiting for you, so your message was not sent. Use #list to pick another chat.", active)), nil
	}

	return r.sendToBuyer(ctx, session.Identity, text), nil
}

func (r *Router) sendToBuyer(ctx context.Context, buyer, text string) Result {
	r.recordHistory(ctx, buyer, "Seller: "+text)
	return reply("Your message was sent to "+buyer+".", Effect{
		Kind:  EffectForwardToBuyer,
		To:    buyer,
		Buyer: buyer,
		Body:  "👨‍💼 Seller: " + text,
	})
}

func (r *Router) clearBinding(ctx context.Context) {
	if err := r.store.ClearActiveChat(ctx, r.agent); err != nil {
		r.logger.Warn("failed to clear active chat", "agent", r.agent, "error", err)
	}
}

func stateLabel(s domain.State) string {
	if s == domain.StateHandoffSupervisor {
		return "with supervisor"
	}
	return "waiting"
}

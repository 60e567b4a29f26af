package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/handoff-router/internal/domain"
)

const (
	replyConnecting       = "I've connected you with the seller. They will respond shortly."
	replyUnknownProduct   = "I didn't catch that product. Reply with a product number or 'menu' to see the list."
	replyQuantityNotInt   = "Please enter a number for quantity (e.g., 2)."
	replyQuantityPositive = "Please enter a quantity greater than zero."
	replyQuantityTooLarge = "That's more than we can take in one order. Please enter a quantity up to 10000."
	replyAskLocation      = "Thanks. Please share your delivery location (street/estate/pin)."
	replySentToSeller     = "Message sent to the seller."
	replySentToBoth       = "Message sent to the seller and the supervisor."
	replyEmptyRelay       = "Please type a message for the seller."
	replyFallback         = "I'm not sure what to do with that. Type 'menu' to see products or 'help' to contact a person."
	replyOrderIncomplete  = "Something was missing from your order, let's pick the product again."
)

// OnBuyerMessage runs one step of the buyer state machine. On error the
// returned Result still carries a reply for the buyer.
func (r *Router) OnBuyerMessage(ctx context.Context, buyerID, text string) (Result, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return reply(replyTryAgain), ErrEmptyIdentity
	}
	text = strings.TrimSpace(text)

	res, err := r.handleBuyer(ctx, buyerID, text)
	if err != nil {
		r.logger.Error("buyer message failed", "buyer", buyerID, "error", err)
		return reply(replyTryAgain), err
	}
	return res, nil
}

func (r *Router) handleBuyer(ctx context.Context, buyerID, text string) (Result, error) {
	session, err := r.store.GetSession(ctx, buyerID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	from := session.State

	r.recordHistory(ctx, buyerID, "Buyer: "+text)

	if isCatalogRequest(text) {
		if session.State == domain.StateInitial {
			session.State = domain.StateAwaitingProduct
			if err := r.saveSession(ctx, session, from); err != nil {
				return Result{}, err
			}
		}
		return reply(r.catalog.Menu()), nil
	}

	if isRestart(text) {
		if from.IsHandoff() {
			r.releaseBinding(ctx, buyerID)
		}
		session.Reset()
	}

	if wantsHuman(text) && !session.State.IsHandoff() {
		return r.handoffToAgent(ctx, session, from, text)
	}

	switch session.State {
	case domain.StateInitial:
		session.State = domain.StateAwaitingProduct
		if err := r.saveSession(ctx, session, from); err != nil {
			return Result{}, err
		}
		return reply(r.catalog.Menu()), nil

	case domain.StateAwaitingProduct:
		return r.selectProduct(ctx, session, from, text)

	case domain.StateAwaitingQuantity:
		return r.setQuantity(ctx, session, from, text)

	case domain.StateAwaitingLocation:
		return r.placeOrder(ctx, session, from, text)

	case domain.StateHandoffAgent, domain.StateHandoffSupervisor:
		return r.relayFromBuyer(session, text), nil
	}

	r.logger.Warn("session in unknown state", "buyer", buyerID, "state", session.State)
	return reply(replyFallback), nil
}

// handoffToAgent escalates a buyer that asked for a person. The binding is
// written first: if it fails the buyer stays with the bot.
func (r *Router) handoffToAgent(ctx context.Context, session *domain.Session, from domain.State, text string) (Result, error) {
	if err := r.store.SetActiveChat(ctx, r.agent, session.Identity); err != nil {
		return Result{}, fmt.Errorf("bind active chat: %w", err)
	}
	session.EnterHandoff(domain.StateHandoffAgent, r.agent)
	if err := r.saveSession(ctx, session, from); err != nil {
		return Result{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔔 Handoff alert: %s asked for a person.\n", session.Identity)
	fmt.Fprintf(&b, "Last message: %s\n", text)
	if summary := r.dataSummary(session.Data); summary != "" {
		b.WriteString("\n--- Order so far ---\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	b.WriteString("\n--- Conversation history ---\n")
	b.WriteString(r.historyText(ctx, session.Identity))
	b.WriteString("\n\nYou are now connected to the buyer. Reply here to talk to them, or send #help for commands.")

	return reply(replyConnecting, Effect{
		Kind:  EffectNotifyAgent,
		To:    r.agent,
		Buyer: session.Identity,
		Body:  b.String(),
	}), nil
}

func (r *Router) selectProduct(ctx context.Context, session *domain.Session, from domain.State, text string) (Result, error) {
	product, ok := r.catalog.Lookup(text)
	if !ok {
		return reply(replyUnknownProduct), nil
	}

	session.Data.ProductID = product.ID
	session.Data.ProductName = product.Name
	session.Data.Price = product.Price
	session.Data.Quantity = 0
	session.Data.Total = 0
	session.Data.Location = ""
	session.State = domain.StateAwaitingQuantity
	if err := r.saveSession(ctx, session, from); err != nil {
		return Result{}, err
	}
	return reply(fmt.Sprintf("How many units of *%s* do you want? (reply with a number)",
		r.catalog.DisplayName(product.Name))), nil
}

func (r *Router) setQuantity(ctx context.Context, session *domain.Session, from domain.State, text string) (Result, error) {
	qty, err := strconv.Atoi(text)
	if err != nil {
		return reply(replyQuantityNotInt), nil
	}
	if qty <= 0 {
		return reply(replyQuantityPositive), nil
	}
	if qty > domain.MaxQuantity {
		return reply(replyQuantityTooLarge), nil
	}

	session.Data.Quantity = qty
	session.Data.Total = domain.OrderTotal(session.Data.Price, qty, r.deliveryCharge)
	session.State = domain.StateAwaitingLocation
	if err := r.saveSession(ctx, session, from); err != nil {
		return Result{}, err
	}
	return reply(replyAskLocation), nil
}

func (r *Router) placeOrder(ctx context.Context, session *domain.Session, from domain.State, text string) (Result, error) {
	if text == "" {
		return reply(replyAskLocation), nil
	}
	if session.Data.ProductName == "" || session.Data.Quantity <= 0 {
		session.State = domain.StateAwaitingProduct
		if err := r.saveSession(ctx, session, from); err != nil {
			return Result{}, err
		}
		return reply(replyOrderIncomplete + "\n\n" + r.catalog.Menu()), nil
	}

	session.Data.Location = text
	order := domain.NewOrder(session.Identity, session.Data, r.deliveryCharge, r.now())
	if err := r.store.RecordOrder(ctx, order); err != nil {
		return Result{}, fmt.Errorf("record order: %w", err)
	}
	r.logger.Info("order recorded", "order_id", order.ID, "buyer", order.Buyer, "total", order.Total)

	if err := r.store.SetActiveChat(ctx, r.agent, session.Identity); err != nil {
		return Result{}, fmt.Errorf("bind active chat: %w", err)
	}
	session.Data.Total = order.Total
	session.Data.LastOrderID = order.ID
	session.EnterHandoff(domain.StateHandoffAgent, r.agent)
	if err := r.saveSession(ctx, session, from); err != nil {
		return Result{}, err
	}

	var confirm strings.Builder
	fmt.Fprintf(&confirm, "✅ Order recorded:\n%s x %d\nTotal: Ksh %d\nLocation: %s\n",
		r.catalog.DisplayName(order.ProductName), order.Quantity, order.Total, order.Location)
	if r.paymentDetails != "" {
		fmt.Fprintf(&confirm, "Pay via: %s\n", r.paymentDetails)
	}
	confirm.WriteString("\nI've connected you with the seller, they will respond shortly to confirm your order details.")

	var alert strings.Builder
	fmt.Fprintf(&alert, "🆕 New order & handoff from %s!\n\n", session.Identity)
	alert.WriteString("--- Order details ---\n")
	alert.WriteString(orderSummary(order))
	alert.WriteString("\n\n--- Conversation history ---\n")
	alert.WriteString(r.historyText(ctx, session.Identity))
	alert.WriteString("\n\nYou are now connected to the buyer. Reply here to continue the conversation.")

	return reply(confirm.String(),
		Effect{Kind: EffectOrderPlaced, Buyer: session.Identity, Order: order},
		Effect{Kind: EffectNotifyAgent, To: r.agent, Buyer: session.Identity, Body: alert.String()},
	), nil
}

// relayFromBuyer forwards a handed-off buyer's message to whoever owns the chat.
func (r *Router) relayFromBuyer(session *domain.Session, text string) Result {
	if text == "" {
		return reply(replyEmptyRelay)
	}

	agent := session.LinkedAgent
	if agent == "" {
		agent = r.agent
	}
	body := fmt.Sprintf("%s says: %s", session.Identity, text)
	effects := []Effect{{Kind: EffectForwardToAgent, To: agent, Buyer: session.Identity, Body: body}}

	if session.State == domain.StateHandoffSupervisor && r.supervisor != "" {
		effects = append(effects, Effect{Kind: EffectForwardToSupervisor, To: r.supervisor, Buyer: session.Identity, Body: body})
		return reply(replySentToBoth, effects...)
	}
	return reply(replySentToSeller, effects...)
}

// releaseBinding clears the agent's active chat if it points at buyer.
func (r *Router) releaseBinding(ctx context.Context, buyer string) {
	current, err := r.store.GetActiveChat(ctx, r.agent)
	if err != nil {
		r.logger.Warn("failed to read active chat", "agent", r.agent, "error", err)
		return
	}
	if current != buyer {
		return
	}
	if err := r.store.ClearActiveChat(ctx, r.agent); err != nil {
		r.logger.Warn("failed to clear active chat", "agent", r.agent, "error", err)
	}
}

func (r *Router) dataSummary(d domain.SessionData) string {
	if d.ProductName == "" {
		return ""
	}
	lines := []string{"• Product: " + r.catalog.DisplayName(d.ProductName)}
	if d.Quantity > 0 {
		lines = append(lines, fmt.Sprintf("• Qty: %d", d.Quantity), fmt.Sprintf("• Total: Ksh %d", d.Total))
	}
	if d.Location != "" {
		lines = append(lines, "• Location: "+d.Location)
	}
	if d.LastOrderID != "" {
		lines = append(lines, "• Last order: "+d.LastOrderID)
	}
	return strings.Join(lines, "\n")
}

func orderSummary(o *domain.Order) string {
	return fmt.Sprintf("• Order: %s\n• Product: %s\n• Qty: %d\n• Location: %s\n• Total: Ksh %d",
		o.ID, o.ProductName, o.Quantity, o.Location, o.Total)
}

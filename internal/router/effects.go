package router

import "github.com/ashureev/handoff-router/internal/domain"

// EffectKind names what the transport should do with an Effect.
type EffectKind string

const (
	// EffectNotifyAgent alerts the agent that a buyer was handed off.
	EffectNotifyAgent EffectKind = "notify_agent"
	// EffectForwardToAgent relays a buyer's message to the linked agent.
	EffectForwardToAgent EffectKind = "forward_to_agent"
	// EffectForwardToBuyer relays an agent or supervisor message to a buyer.
	EffectForwardToBuyer EffectKind = "forward_to_buyer"
	// EffectNoticeBuyer tells a buyer about a routing change.
	EffectNoticeBuyer EffectKind = "notice_buyer"
	// EffectNotifySupervisor asks the supervisor to assist.
	EffectNotifySupervisor EffectKind = "notify_supervisor"
	// EffectForwardToSupervisor relays a buyer's message to the supervisor.
	EffectForwardToSupervisor EffectKind = "forward_to_supervisor"
	// EffectOrderPlaced announces a newly recorded order. It carries no recipient.
	EffectOrderPlaced EffectKind = "order_placed"
)

// IsMessage reports whether the effect is an outbound message with a recipient.
func (k EffectKind) IsMessage() bool {
	return k != EffectOrderPlaced
}

// Effect is a declarative instruction produced by the router and executed
// by the transport layer after the reply has been computed.
type Effect struct {
	Kind  EffectKind    `json:"kind"`
	To    string        `json:"to,omitempty"`
	Body  string        `json:"body,omitempty"`
	Buyer string        `json:"buyer,omitempty"`
	Order *domain.Order `json:"order,omitempty"`
}

// Result is the synchronous reply to the sender plus the effects to dispatch.
type Result struct {
	Reply   string   `json:"reply"`
	Effects []Effect `json:"effects,omitempty"`
}

func reply(text string, effects ...Effect) Result {
	return Result{Reply: text, Effects: effects}
}

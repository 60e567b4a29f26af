// Package domain contains core domain types for the handoff router.
package domain

import (
	"time"
)

// State is the routing state of a conversation identity.
type State string

const (
	// StateInitial is the state of a fresh or restarted conversation.
	StateInitial State = "initial"
	// StateAwaitingProduct waits for a catalog selection.
	StateAwaitingProduct State = "awaiting_product"
	// StateAwaitingQuantity waits for a positive integer quantity.
	StateAwaitingQuantity State = "awaiting_quantity"
	// StateAwaitingLocation waits for a delivery location.
	StateAwaitingLocation State = "awaiting_location"
	// StateHandoffAgent routes the buyer to the human agent.
	StateHandoffAgent State = "handoff_agent"
	// StateHandoffSupervisor routes the buyer to the agent with the supervisor involved.
	StateHandoffSupervisor State = "handoff_supervisor"
)

// IsHandoff reports whether a human currently owns the conversation.
func (s State) IsHandoff() bool {
	return s == StateHandoffAgent || s == StateHandoffSupervisor
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateInitial, StateAwaitingProduct, StateAwaitingQuantity,
		StateAwaitingLocation, StateHandoffAgent, StateHandoffSupervisor:
		return true
	}
	return false
}

// SessionData holds the fields accumulated by the ordering flow.
type SessionData struct {
	ProductID   int    `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Price       int    `json:"price,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	Total       int    `json:"total,omitempty"`
	Location    string `json:"location,omitempty"`
	LastOrderID string `json:"last_order_id,omitempty"`
}

// IsEmpty returns true if no field has been collected yet.
func (d SessionData) IsEmpty() bool {
	return d == SessionData{}
}

// Session is the persisted routing state of one conversation identity.
type Session struct {
	Identity    string      `json:"identity"`
	State       State       `json:"state"`
	Data        SessionData `json:"data"`
	LinkedAgent string      `json:"linked_agent,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewSession returns the default session for an identity that has never written.
func NewSession(identity string) *Session {
	return &Session{
		Identity: identity,
		State:    StateInitial,
	}
}

// Reset returns the session to bot control with no collected data.
func (s *Session) Reset() {
	s.State = StateInitial
	s.Data = SessionData{}
	s.LinkedAgent = ""
}

// EnterHandoff moves the session into a handoff state owned by agent.
func (s *Session) EnterHandoff(state State, agent string) {
	s.State = state
	s.LinkedAgent = agent
}

// ReturnToBot hands the session back to the ordering flow at state.
func (s *Session) ReturnToBot(state State) {
	s.State = state
	s.LinkedAgent = ""
}

// LinkedTo reports whether the session is in handoff and owned by agent.
func (s *Session) LinkedTo(agent string) bool {
	return s.State.IsHandoff() && s.LinkedAgent == agent
}

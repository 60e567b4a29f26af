package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionTransitions(t *testing.T) {
	s := NewSession("whatsapp:+254722000001")
	assert.Equal(t, StateInitial, s.State)
	assert.True(t, s.Data.IsEmpty())

	s.Data = SessionData{ProductName: "aliengo kingsize black", Price: 150, Quantity: 2}
	s.EnterHandoff(StateHandoffAgent, "whatsapp:+254700000000")
	assert.True(t, s.LinkedTo("whatsapp:+254700000000"))
	assert.False(t, s.LinkedTo("whatsapp:+254799999999"))

	s.ReturnToBot(StateAwaitingProduct)
	assert.False(t, s.LinkedTo("whatsapp:+254700000000"))
	assert.Empty(t, s.LinkedAgent)
	assert.Equal(t, 2, s.Data.Quantity)

	s.Reset()
	assert.Equal(t, StateInitial, s.State)
	assert.True(t, s.Data.IsEmpty())
}

func TestStateHelpers(t *testing.T) {
	assert.True(t, StateHandoffSupervisor.IsHandoff())
	assert.False(t, StateAwaitingLocation.IsHandoff())
	assert.True(t, StateAwaitingQuantity.Valid())
	assert.False(t, State("handoff_seller").Valid())
}

func TestOrderTotalAtBounds(t *testing.T) {
	total := OrderTotal(MaxPrice, MaxQuantity, MaxPrice)
	assert.Positive(t, total)
	assert.Equal(t, int64(MaxPrice)*MaxQuantity+MaxPrice, int64(total))
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("EAT", 3*3600))
	o := NewOrder("whatsapp:+254722000001", SessionData{
		ProductName: "box with 50 booklets",
		Price:       2300,
		Quantity:    2,
		Location:    "Kilimani",
	}, 200, now)

	assert.Len(t, o.ID, 32)
	assert.Equal(t, 4800, o.Total)
	assert.Equal(t, 2300, o.UnitPrice)
	assert.Equal(t, 200, o.DeliveryCharge)
	assert.Equal(t, time.UTC, o.CreatedAt.Location())
	assert.True(t, o.CreatedAt.Equal(now))
	assert.NotEqual(t, o.ID, NewOrderID())
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/handoff-router/internal/domain"
)

func newTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "test.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetSessionDefaultsToInitial(t *testing.T) {
	s := newTestStore(t, Options{})

	session, err := s.GetSession(context.Background(), "whatsapp:+254700000001")
	require.NoError(t, err)
	assert.Equal(t, domain.StateInitial, session.State)
	assert.True(t, session.Data.IsEmpty())
	assert.Empty(t, session.LinkedAgent)
}

func TestPutSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	session := domain.NewSession("buyer-1")
	session.State = domain.StateAwaitingLocation
	session.Data = domain.SessionData{ProductID: 2, ProductName: "papers", Price: 100, Quantity: 3, Total: 500}
	require.NoError(t, s.PutSession(ctx, session))

	got, err := s.GetSession(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingLocation, got.State)
	assert.Equal(t, session.Data, got.Data)
	assert.False(t, got.CreatedAt.IsZero())

	got.EnterHandoff(domain.StateHandoffAgent, "agent")
	require.NoError(t, s.PutSession(ctx, got))
	got.ReturnToBot(domain.StateAwaitingProduct)
	require.NoError(t, s.PutSession(ctx, got))

	again, err := s.GetSession(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateAwaitingProduct, again.State)
	assert.Empty(t, again.LinkedAgent, "linked agent is cleared on return to bot")
}

func TestPutSessionRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t, Options{})
	ctx := context.Background()

	assert.Error(t, s.PutSession(ctx, &domain.Session{State: domain.StateInitial}))
	assert.Error(t, s.PutSession(ctx, &domain.Session{Identity: "x", State: "bogus"}))
}

func TestListHandoffSessionsFiltersByAgentAndState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	put := func(id string, state domain.State, agent string) {
		session := domain.NewSession(id)
		if state.IsHandoff() {
			session.EnterHandoff(state, agent)
		} else {
			session.State = state
		}
		require.NoError(t, s.PutSession(ctx, session))
	}
	put("b", domain.StateHandoffSupervisor, "agent")
	put("a", domain.StateHandoffAgent, "agent")
	put("c", domain.StateHandoffAgent, "other-agent")
	put("d", domain.StateAwaitingProduct, "")

	sessions, err := s.ListHandoffSessions(ctx, "agent")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].Identity)
	assert.Equal(t, "b", sessions[1].Identity)
}

func TestActiveChatBinding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	buyer, err := s.GetActiveChat(ctx, "agent")
	require.NoError(t, err)
	assert.Empty(t, buyer)

	require.NoError(t, s.SetActiveChat(ctx, "agent", "b1"))
	require.NoError(t, s.SetActiveChat(ctx, "agent", "b2"))
	buyer, err = s.GetActiveChat(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, "b2", buyer)

	require.NoError(t, s.ClearActiveChat(ctx, "agent"))
	buyer, err = s.GetActiveChat(ctx, "agent")
	require.NoError(t, err)
	assert.Empty(t, buyer)

	assert.Error(t, s.SetActiveChat(ctx, "agent", ""))
}

func TestRecordOrderKeepsNewestWithinRetention(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{OrderRetention: 3})

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		o := domain.NewOrder("buyer", domain.SessionData{ProductName: "p", Price: 100, Quantity: i + 1, Location: "X"}, 200, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, o.ID)
		require.NoError(t, s.RecordOrder(ctx, o))
	}

	orders, err := s.ListOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, ids[4], orders[0].ID, "newest first")
	assert.Equal(t, ids[2], orders[2].ID)
	assert.Equal(t, 100*5+200, orders[0].Total)
	assert.True(t, base.Add(4*time.Minute).Equal(orders[0].CreatedAt))

	limited, err := s.ListOrders(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecordOrderRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	o := domain.NewOrder("buyer", domain.SessionData{ProductName: "p", Price: 1, Quantity: 1, Location: "X"}, 0, time.Now())
	require.NoError(t, s.RecordOrder(ctx, o))
	err := s.RecordOrder(ctx, o)
	assert.True(t, errors.Is(err, ErrDuplicateOrder))
}

func TestHistoryIsBoundedAndPrunable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{HistoryLimit: 2})

	require.NoError(t, s.AppendHistory(ctx, "b1", "Buyer: one"))
	require.NoError(t, s.AppendHistory(ctx, "b1", "Buyer: two"))
	require.NoError(t, s.AppendHistory(ctx, "b1", "Buyer: three"))
	require.NoError(t, s.AppendHistory(ctx, "b2", "Buyer: other"))

	lines, err := s.History(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Buyer: two", "Buyer: three"}, lines)

	s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	deleted, err := s.PruneHistory(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	lines, err = s.History(ctx, "b2")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestPing(t *testing.T) {
	s := newTestStore(t, Options{})
	assert.NoError(t, s.Ping(context.Background()))
}

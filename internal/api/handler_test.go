//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/handoff-router/internal/catalog"
	"github.com/ashureev/handoff-router/internal/router"
	"github.com/ashureev/handoff-router/internal/store"
)

const (
	testAgent      = "whatsapp:+254700000000"
	testSupervisor = "whatsapp:+254711111111"
	testBuyer      = "whatsapp:+254722000001"
	testToken      = "operator-token"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	effects []router.Effect
}

func (f *fakeDispatcher) Dispatch(_ context.Context, effects []router.Effect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.effects = append(f.effects, effects...)
	return nil
}

func (f *fakeDispatcher) dispatched() []router.Effect {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]router.Effect, len(f.effects))
	copy(out, f.effects)
	return out
}

type testServer struct {
	mux        *chi.Mux
	store      *store.SQLiteStore
	webhook    *WebhookHandler
	dispatcher *fakeDispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithToken(t, testToken)
}

func newTestServerWithToken(t *testing.T, token string) *testServer {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rt, err := router.New(s, catalog.Default(), router.Config{
		AgentIdentity:      testAgent,
		SupervisorIdentity: testSupervisor,
		DeliveryCharge:     200,
	})
	require.NoError(t, err)

	d := &fakeDispatcher{}
	webhook := NewWebhookHandler(rt, d, time.Second, nil)
	mux := chi.NewRouter()
	webhook.RegisterRoutes(mux)
	NewOperatorHandler(s, rt, webhook, token).RegisterRoutes(mux)
	NewHealthHandler(s).RegisterHealth(mux)

	return &testServer{mux: mux, store: s, webhook: webhook, dispatcher: d}
}

func (ts *testServer) message(t *testing.T, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"From": {from}, "Body": {body}}
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	ts.webhook.Wait()
	return rr
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestTwiMLEscapesText(t *testing.T) {
	w := httptest.NewRecorder()
	TwiML(w, "1 < 2 & *bold*")

	assert.Equal(t, "application/xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<Response><Message>1 &lt; 2 &amp; *bold*</Message></Response>")

	w = httptest.NewRecorder()
	TwiML(w, "")
	assert.Contains(t, w.Body.String(), "<Response></Response>")
}

func TestWebhookRepliesWithMenu(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.message(t, testBuyer, "hi")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<Message>")
	assert.Contains(t, rr.Body.String(), "Aliengo Kingsize Black")
	assert.Empty(t, ts.dispatcher.dispatched())
}

func TestWebhookRejectsMissingSender(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.message(t, "", "hi")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookDispatchesEffects(t *testing.T) {
	ts := newTestServer(t)

	ts.message(t, testBuyer, "hi")
	ts.message(t, testBuyer, "2")
	ts.message(t, testBuyer, "3")
	rr := ts.message(t, testBuyer, "Kilimani")
	assert.Contains(t, rr.Body.String(), "Total: Ksh 500")

	effects := ts.dispatcher.dispatched()
	require.Len(t, effects, 2)
	assert.Equal(t, router.EffectOrderPlaced, effects[0].Kind)
	assert.Equal(t, router.EffectNotifyAgent, effects[1].Kind)

	// The agent's reply is relayed to the buyer.
	rr = ts.message(t, testAgent, "Thanks, delivering at 5pm")
	assert.Contains(t, rr.Body.String(), "Your message was sent to")
	effects = ts.dispatcher.dispatched()
	require.Len(t, effects, 3)
	assert.Equal(t, router.EffectForwardToBuyer, effects[2].Kind)
	assert.Equal(t, testBuyer, effects[2].To)
}

func TestOperatorEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.message(t, testBuyer, "hi")
	ts.message(t, testBuyer, "1")
	ts.message(t, testBuyer, "2")
	ts.message(t, testBuyer, "Westlands")

	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/orders?limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var orders struct {
		Orders []struct {
			Buyer string `json:"buyer"`
			Total int    `json:"total"`
		} `json:"orders"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&orders))
	require.Len(t, orders.Orders, 1)
	assert.Equal(t, 500, orders.Orders[0].Total)

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/orders?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/handoffs", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var handoffs struct {
		ActiveChat string `json:"active_chat"`
		Handoffs   []struct {
			Buyer  string `json:"buyer"`
			State  string `json:"state"`
			Active bool   `json:"active"`
		} `json:"handoffs"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&handoffs))
	assert.Equal(t, testBuyer, handoffs.ActiveChat)
	require.Len(t, handoffs.Handoffs, 1)
	assert.Equal(t, "handoff_agent", handoffs.Handoffs[0].State)
	assert.True(t, handoffs.Handoffs[0].Active)
}

func TestInjectSupervisorMessageEndpoint(t *testing.T) {
	ts := newTestServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/supervisor/messages", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+testToken)
		ts.mux.ServeHTTP(rr, req)
		ts.webhook.Wait()
		return rr
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"buyer":"","text":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"buyer":"`+testBuyer+`","text":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"buyer":"`+testAgent+`","text":"hi"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)

	rr := post(`{"buyer":"` + testBuyer + `","text":"We can do free delivery"}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	effects := ts.dispatcher.dispatched()
	require.Len(t, effects, 2)
	assert.Equal(t, router.EffectForwardToBuyer, effects[0].Kind)
	assert.Equal(t, "Supervisor: We can do free delivery", effects[0].Body)

	session, err := ts.store.GetSession(context.Background(), testBuyer)
	require.NoError(t, err)
	assert.Equal(t, "handoff_supervisor", string(session.State))
}

func TestInjectSupervisorMessageRequiresToken(t *testing.T) {
	body := `{"buyer":"` + testBuyer + `","text":"hello"}`
	send := func(ts *testServer, auth string) int {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/supervisor/messages", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		ts.mux.ServeHTTP(rr, req)
		ts.webhook.Wait()
		return rr.Code
	}

	ts := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, send(ts, ""))
	assert.Equal(t, http.StatusUnauthorized, send(ts, "Bearer nope"))
	assert.Empty(t, ts.dispatcher.dispatched())
	session, err := ts.store.GetSession(context.Background(), testBuyer)
	require.NoError(t, err)
	assert.Equal(t, "initial", string(session.State))

	// Without a configured token the route does not exist.
	open := newTestServerWithToken(t, "")
	assert.Equal(t, http.StatusNotFound, send(open, "Bearer "))
	assert.Empty(t, open.dispatcher.dispatched())

	rr := httptest.NewRecorder()
	open.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"database":"ok"`)
}

// Package events streams dispatched router effects to operator consoles
// over WebSocket.
package events

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/ashureev/handoff-router/internal/domain"
	"github.com/ashureev/handoff-router/internal/router"
)

const (
	// DefaultReplay is how many recent events a new console receives.
	DefaultReplay = 50

	subscriberBuffer = 64
	writeTimeout     = 5 * time.Second
)

// Event is the console view of one dispatched effect.
type Event struct {
	Kind  router.EffectKind `json:"kind"`
	To    string            `json:"to,omitempty"`
	Buyer string            `json:"buyer,omitempty"`
	Body  string            `json:"body,omitempty"`
	Order *domain.Order     `json:"order,omitempty"`
	Error string            `json:"error,omitempty"`
	At    time.Time         `json:"at"`
}

type subscriber struct {
	ch chan Event
}

// Hub fans effects out to connected consoles. Slow consoles drop events
// rather than block the dispatcher.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	recent  *ring
	origins []string
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub creates a Hub keeping replay recent events. allowedOrigins are the
// CORS origins also allowed to open the stream; empty means same-origin only.
func NewHub(replay int, allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		recent:  newRing(replay),
		origins: originPatterns(allowedOrigins),
		logger:  logger.With("component", "events"),
		now:     time.Now,
	}
}

// Publish records an executed effect and forwards it to every console.
func (h *Hub) Publish(effect router.Effect, err error) {
	ev := Event{
		Kind:  effect.Kind,
		To:    effect.To,
		Buyer: effect.Buyer,
		Body:  effect.Body,
		Order: effect.Order,
		At:    h.now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent.push(ev)
	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("console too slow, event dropped", "kind", ev.Kind)
		}
	}
}

// Subscribers returns the number of connected consoles.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// subscribe registers a console and returns the events it missed.
func (h *Hub) subscribe() (*subscriber, []Event) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
	return s, h.recent.snapshot()
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("failed to accept websocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr)
		}
	}()

	sub, backlog := h.subscribe()
	defer h.unsubscribe(sub)
	h.logger.Info("console connected", "ip", r.RemoteAddr, "backlog", len(backlog))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		h.readLoop(ctx, ws)
	}()

	for _, ev := range backlog {
		if err := h.write(ctx, ws, ev); err != nil {
			return
		}
	}
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("console disconnected", "ip", r.RemoteAddr)
			return
		case ev := <-sub.ch:
			if err := h.write(ctx, ws, ev); err != nil {
				return
			}
		}
	}
}

type clientMessage struct {
	Type string `json:"type"`
}

// readLoop answers pings and returns when the client goes away.
func (h *Hub) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		if msg.Type == "ping" {
			if err := h.writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, ws *websocket.Conn, ev Event) error {
	if err := h.writeJSON(ctx, ws, ev); err != nil {
		h.logger.Debug("websocket write error", "error", err)
		return err
	}
	return nil
}

func (h *Hub) writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, ws, v)
}

// originPatterns converts configured origins ("https://ops.example.com")
// into the host patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

// Package identity extracts and normalizes the channel identity of inbound
// webhook messages.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const (
	// FormFrom is the webhook form field carrying the sender identity.
	FormFrom = "From"
	// FormBody is the webhook form field carrying the message text.
	FormBody = "Body"

	whatsappPrefix = "whatsapp:"
	maxFormBytes   = 64 << 10
)

type contextKey int

const (
	senderKey contextKey = iota
	bodyKey
)

// SenderFromContext returns the normalized sender identity set by Middleware.
func SenderFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(senderKey).(string); ok {
		return v
	}
	return ""
}

// BodyFromContext returns the message text set by Middleware.
func BodyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(bodyKey).(string); ok {
		return v
	}
	return ""
}

// WithMessage stores sender and body on ctx.
func WithMessage(ctx context.Context, sender, body string) context.Context {
	ctx = context.WithValue(ctx, senderKey, sender)
	return context.WithValue(ctx, bodyKey, body)
}

// Normalize canonicalizes a channel identity so configured numbers and
// webhook senders compare equal: whitespace is removed and the channel
// prefix is lowercased ("WhatsApp: +254 700" -> "whatsapp:+254700").
func Normalize(raw string) string {
	id := strings.Join(strings.Fields(raw), "")
	if len(id) >= len(whatsappPrefix) && strings.EqualFold(id[:len(whatsappPrefix)], whatsappPrefix) {
		id = whatsappPrefix + id[len(whatsappPrefix):]
	}
	return id
}

// Middleware parses the webhook form and injects the sender and body into
// the request context. Requests without a sender are rejected.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form body", http.StatusBadRequest)
			return
		}

		sender := Normalize(r.PostForm.Get(FormFrom))
		if sender == "" {
			http.Error(w, "missing From", http.StatusBadRequest)
			return
		}
		body := strings.TrimSpace(r.PostForm.Get(FormBody))

		next.ServeHTTP(w, r.WithContext(WithMessage(r.Context(), sender, body)))
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package identity

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "whatsapp:+254700000001", Normalize(" WhatsApp:+254 700 000 001 "))
	assert.Equal(t, "whatsapp:+1", Normalize("whatsapp:+1"))
	assert.Equal(t, "+254700000001", Normalize("+254700000001"))
	assert.Equal(t, "", Normalize("   "))
}

func postForm(values url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestMiddlewareInjectsMessage(t *testing.T) {
	var sender, body string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		sender = SenderFromContext(r.Context())
		body = BodyFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, postForm(url.Values{"From": {"WHATSAPP:+254700000001"}, "Body": {"  2  "}}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "whatsapp:+254700000001", sender)
	assert.Equal(t, "2", body)
}

func TestMiddlewareRejectsMissingSender(t *testing.T) {
	called := false
	h := Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, postForm(url.Values{"Body": {"hi"}}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestIPFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", IPFromRequest(r))
}

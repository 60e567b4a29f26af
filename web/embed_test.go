package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleHandlerServesIndex(t *testing.T) {
	h := ConsoleHandler("/console")

	for _, path := range []string{"/console/", "/console/unknown/page"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Contains(t, rr.Body.String(), "Handoff console", path)
	}
}

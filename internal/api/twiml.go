package api

import (
	"encoding/xml"
	"log/slog"
	"net/http"
)

// twimlResponse is the messaging TwiML document. An empty response sends nothing.
type twimlResponse struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// TwiML writes a messaging response replying with messages.
func TwiML(w http.ResponseWriter, messages ...string) {
	var out []string
	for _, m := range messages {
		if m != "" {
			out = append(out, m)
		}
	}

	body, err := xml.Marshal(twimlResponse{Messages: out})
	if err != nil {
		slog.Error("Failed to encode TwiML", "error", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

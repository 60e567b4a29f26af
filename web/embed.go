// Package web embeds the operator console and provides an HTTP handler that
// serves it. The console is a single static page that reads /api/orders and
// /api/handoffs and follows /ws/events.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:console
var consoleFS embed.FS

// ConsoleHandler returns an http.Handler serving the embedded console under
// prefix (e.g. "/console"). Unknown paths fall back to index.html.
func ConsoleHandler(prefix string) http.Handler {
	subFS, err := fs.Sub(consoleFS, "console")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.StripPrefix(prefix, http.FileServer(http.FS(subFS)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
		if path == "" {
			path = "index.html"
		}

		if f, err := subFS.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		}

		r.URL.Path = prefix + "/"
		fileServer.ServeHTTP(w, r)
	})
}

// Package server exposes the video service over REST.
package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
)

// maxBodyBytes bounds request bodies; both endpoints take a few short strings.
const maxBodyBytes = 64 << 10

// Options configures the router.
type Options struct {
	// CORSOrigins lists allowed browser origins. "*" allows any origin;
	// empty disables CORS headers.
	CORSOrigins []string
}

// Router serves the REST API.
type Router struct {
	*mux.Router
	svc     *engine.Service
	origins map[string]bool
	anyOrig bool
}

// NewRouter registers the API routes for svc.
func NewRouter(svc *engine.Service, opts Options) *Router {
	r := &Router{
		Router:  mux.NewRouter(),
		svc:     svc,
		origins: make(map[string]bool, len(opts.CORSOrigins)),
	}
	for _, o := range opts.CORSOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			r.anyOrig = true
		default:
			r.origins[o] = true
		}
	}

	r.Use(requestID, logRequests, mux.CORSMethodMiddleware(r.Router), r.cors)

	r.HandleFunc("/transcript", r.handleTranscript).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/chat", r.handleChat).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/metrics", handleMetrics).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "kind": "not_found"})
	})
	return r
}

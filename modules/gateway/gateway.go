// Package gateway is the HTTP façade over the revision engine: route
// dispatch, query and header parsing, token auth and the Memento
// response surface.
package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"

	"github.com/tailrdb/tailr/tailrdb"
	"github.com/tailrdb/tailr/tailrdb/backend"
)

// Gateway serves the repository API.
type Gateway struct {
	store  *tailrdb.Store
	db     backend.Store
	logger log.Logger
}

// New creates a gateway around the engine and its backend.
func New(store *tailrdb.Store, db backend.Store, logger log.Logger) *Gateway {
	return &Gateway{
		store:  store,
		db:     db,
		logger: logger,
	}
}

// RegisterRoutes attaches all API routes to the router.
func (g *Gateway) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ready", g.ReadyHandler).Methods(http.MethodGet)
	r.HandleFunc("/{user}/{repo}", g.GetHandler).Methods(http.MethodGet)
	r.HandleFunc("/{user}/{repo}", g.PutHandler).Methods(http.MethodPut)
	r.HandleFunc("/{user}/{repo}", g.DeleteHandler).Methods(http.MethodDelete)
}

// ReadyHandler reports readiness, probing the backend when it supports
// health checks.
func (g *Gateway) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := g.db.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			http.Error(w, "backend unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// currentUser resolves the Authorization header to a user, or nil when
// the header is absent, malformed or unknown.
func (g *Gateway) currentUser(r *http.Request) *backend.User {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "token" {
		return nil
	}

	user, err := g.db.UserByToken(r.Context(), parts[1])
	if err != nil {
		return nil
	}
	return user
}

// baseURL reconstructs the external URL of the request path, honoring
// the proto header set by a fronting proxy.
func baseURL(r *http.Request) string {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return proto + "://" + r.Host + r.URL.Path
}

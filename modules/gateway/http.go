package gateway

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/tailrdb/tailr/pkg/memento"
	"github.com/tailrdb/tailr/tailrdb"
	"github.com/tailrdb/tailr/tailrdb/backend"
	"github.com/tailrdb/tailr/tailrdb/rdf"
)

// GetHandler dispatches reads: Memento/TimeGate when only key is set,
// TimeMap with timemap=true, the key index with index=true.
func (g *Gateway) GetHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	timemap := q.Get("timemap") == "true"
	index := q.Get("index") == "true"

	if (index && timemap) || (index && key != "") || (timemap && key == "") {
		http.Error(w, "conflicting query arguments", http.StatusBadRequest)
		return
	}

	asOf, err := acceptDatetime(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	repo, err := g.repo(r)
	if err != nil {
		g.writeError(w, err)
		return
	}

	switch {
	case key != "" && !timemap:
		g.memento(w, r, repo, key, asOf)
	case timemap:
		g.timeMap(w, r, repo, key)
	case index:
		g.index(w, r, repo, asOf)
	default:
		http.Error(w, "missing query arguments", http.StatusBadRequest)
	}
}

// memento recreates the resource for the given key, in its latest state
// or as of the requested datetime, with the TimeGate headers of RFC
// 7089.
func (g *Gateway) memento(w http.ResponseWriter, r *http.Request, repo *backend.Repo, key string, asOf time.Time) {
	w.Header().Set("Content-Type", "application/n-quads")
	w.Header().Set("Vary", "accept-datetime")

	rev, err := g.store.Reconstruct(r.Context(), repo.ID, key, asOf)
	if err != nil {
		g.writeError(w, err)
		return
	}

	base := baseURL(r)
	w.Header().Set("Link", memento.Link(key, base, base+"?key="+url.QueryEscape(key)+"&timemap=true"))
	w.Header().Set("Memento-Datetime", memento.FormatRFC1123(rev.Time))

	if rev.Deleted {
		// Tombstoned as of asOf: a 404 that still carries the Link and
		// Memento-Datetime headers.
		http.Error(w, "resource deleted", http.StatusNotFound)
		return
	}

	_, _ = w.Write(rev.Data)
}

// timeMap renders the change history of a key, as JSON when the Accept
// header asks for it and in link-format otherwise.
func (g *Gateway) timeMap(w http.ResponseWriter, r *http.Request, repo *backend.Repo, key string) {
	times, err := g.store.Timeline(r.Context(), repo.ID, key)
	if err != nil {
		g.writeError(w, err)
		return
	}

	base := baseURL(r)
	accept := r.Header.Get("Accept")

	if strings.Contains(accept, "application/json") || strings.Contains(accept, "*/*") {
		w.Header().Set("Content-Type", "application/json")
		err = memento.WriteJSONTimeMap(w, base, key, times)
	} else {
		w.Header().Set("Content-Type", "application/link-format")
		err = memento.WriteLinkTimeMap(w, base, key, times)
	}
	if err != nil {
		level.Warn(g.logger).Log("msg", "error writing timemap", "err", err)
	}
}

// index lists the resource keys alive as of the bound, one per line.
func (g *Gateway) index(w http.ResponseWriter, r *http.Request, repo *backend.Repo, asOf time.Time) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		if page, err = strconv.Atoi(p); err != nil || page < 1 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
	}

	keys, err := g.store.Keys(r.Context(), repo.ID, asOf, page)
	if err != nil {
		g.writeError(w, err)
		return
	}

	w.Header().Set("Vary", "accept-datetime")
	w.Header().Set("Content-Type", "text/plain")
	for _, k := range keys {
		_, _ = io.WriteString(w, k+"\n")
	}
}

// PutHandler appends a new revision of the resource specified by key.
func (g *Gateway) PutHandler(w http.ResponseWriter, r *http.Request) {
	repo, key, ts, ok := g.mutationArgs(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}

	res, err := g.store.Push(r.Context(), repo.ID, key, ts, body, r.Header.Get("Content-Type"))
	if err != nil {
		g.writeError(w, err)
		return
	}

	if !res.NoOp {
		level.Info(g.logger).Log("msg", "pushed revision", "repo", repo.Name, "type", res.Type, "len", res.Len)
	}
	w.WriteHeader(http.StatusOK)
}

// DeleteHandler tombstones the resource specified by key.
func (g *Gateway) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	repo, key, ts, ok := g.mutationArgs(w, r)
	if !ok {
		return
	}

	if _, err := g.store.Delete(r.Context(), repo.ID, key, ts); err != nil {
		g.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// mutationArgs authenticates the caller against the path user and
// parses the shared arguments of PUT and DELETE. It writes the error
// response itself when ok is false.
func (g *Gateway) mutationArgs(w http.ResponseWriter, r *http.Request) (repo *backend.Repo, key string, ts time.Time, ok bool) {
	user := g.currentUser(r)
	if user == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, "", time.Time{}, false
	}
	if user.Name != mux.Vars(r)["user"] {
		http.Error(w, "not your repository", http.StatusForbidden)
		return nil, "", time.Time{}, false
	}

	key = r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return nil, "", time.Time{}, false
	}

	ts = time.Now().UTC()
	if datestr := r.URL.Query().Get("datetime"); datestr != "" {
		var err error
		if ts, err = memento.ParseQS(datestr); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return nil, "", time.Time{}, false
		}
	}

	repo, err := g.repo(r)
	if err != nil {
		g.writeError(w, err)
		return nil, "", time.Time{}, false
	}

	return repo, key, ts, true
}

// repo resolves the {user}/{repo} path pair.
func (g *Gateway) repo(r *http.Request) (*backend.Repo, error) {
	vars := mux.Vars(r)
	return g.db.RepoByName(r.Context(), vars["user"], vars["repo"])
}

// acceptDatetime resolves the read bound: the datetime query parameter,
// else the Accept-Datetime header, else now.
func acceptDatetime(r *http.Request) (time.Time, error) {
	if datestr := r.URL.Query().Get("datetime"); datestr != "" {
		return memento.ParseQS(datestr)
	}
	if accept := r.Header.Get("Accept-Datetime"); accept != "" {
		return memento.ParseRFC1123(accept)
	}
	return time.Now().UTC(), nil
}

// writeError maps engine and backend failures to their HTTP statuses.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rdf.ErrParse),
		errors.Is(err, tailrdb.ErrNotMonotonic),
		errors.Is(err, tailrdb.ErrNoPriorRevision),
		errors.Is(err, backend.ErrTimeConflict):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tailrdb.ErrNotFound),
		errors.Is(err, backend.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		level.Error(g.logger).Log("msg", "request failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

package server

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
)

// maxSlowDelay caps /slow so a stray request can't hold a connection forever.
const maxSlowDelay = time.Minute

// Repo is one searchable repository.
type Repo struct {
	Owner       string
	Name        string
	Description string
}

// Path returns the repository page path.
func (r Repo) Path() string {
	return "/repos/" + r.Owner + "/" + r.Name
}

// DefaultRepos returns the repositories the site serves unless configured
// otherwise.
func DefaultRepos() []Repo {
	return []Repo{
		{Owner: "shoptime", Name: "phantom-testlib", Description: "Browser tests with TAP output."},
		{Owner: "go-rod", Name: "rod", Description: "A Chrome DevTools Protocol driver."},
		{Owner: "dop251", Name: "goja", Description: "ECMAScript in pure Go."},
		{Owner: "joeycumines", Name: "go-eventloop", Description: "A JavaScript-style event loop."},
	}
}

// Handler serves the fixture pages.
type Handler struct {
	mux   *http.ServeMux
	repos []Repo
	log   *logiface.Logger[logiface.Event]

	home, explore, search, repo, slow *template.Template
}

// NewHandler parses the page templates and registers the routes.
func NewHandler(repos []Repo, log *logiface.Logger[logiface.Event]) (*Handler, error) {
	h := &Handler{
		mux:   http.NewServeMux(),
		repos: repos,
		log:   log,
	}

	layout, err := template.New("layout").Parse(layoutHTML)
	if err != nil {
		return nil, err
	}
	for _, p := range []struct {
		dst **template.Template
		src string
	}{
		{&h.home, homeHTML},
		{&h.explore, exploreHTML},
		{&h.search, searchHTML},
		{&h.repo, repoHTML},
		{&h.slow, slowHTML},
	} {
		t, err := template.Must(layout.Clone()).Parse(p.src)
		if err != nil {
			return nil, err
		}
		*p.dst = t
	}

	h.mux.HandleFunc("GET /{$}", h.handleHome)
	h.mux.HandleFunc("GET /explore", h.handleExplore)
	h.mux.HandleFunc("GET /search", h.handleSearch)
	h.mux.HandleFunc("GET /repos/{owner}/{name}", h.handleRepo)
	h.mux.HandleFunc("GET /slow", h.handleSlow)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Log("fixture request")
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, h.home, nil)
}

func (h *Handler) handleExplore(w http.ResponseWriter, r *http.Request) {
	h.render(w, h.explore, struct{ Repos []Repo }{h.repos})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := struct {
		Query    string
		Type     string
		Searched bool
		Results  []Repo
	}{
		Query:    q.Get("q"),
		Type:     q.Get("type"),
		Searched: q.Has("q"),
	}
	if data.Type != "Users" {
		data.Type = "Repositories"
	}
	if data.Searched {
		data.Results = h.find(data.Query, data.Type == "Users")
	}
	h.render(w, h.search, data)
}

func (h *Handler) handleRepo(w http.ResponseWriter, r *http.Request) {
	owner, name := r.PathValue("owner"), r.PathValue("name")
	for _, repo := range h.repos {
		if repo.Owner == owner && repo.Name == name {
			h.render(w, h.repo, repo)
			return
		}
	}
	http.NotFound(w, r)
}

// handleSlow responds after ?ms milliseconds, for exercising timeouts.
func (h *Handler) handleSlow(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.URL.Query().Get("ms"))
	if err != nil || ms < 0 {
		http.Error(w, "ms must be a non-negative integer", http.StatusBadRequest)
		return
	}
	delay := min(time.Duration(ms)*time.Millisecond, maxSlowDelay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.Context().Done():
		return
	}
	h.render(w, h.slow, delay.String())
}

// find returns the repositories whose name (or owner, for user searches)
// contains query, ignoring case.
func (h *Handler) find(query string, users bool) []Repo {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []Repo
	for _, repo := range h.repos {
		field := repo.Name
		if users {
			field = repo.Owner
		}
		if strings.Contains(strings.ToLower(field), query) {
			out = append(out, repo)
		}
	}
	return out
}

func (h *Handler) render(w http.ResponseWriter, t *template.Template, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.log.Err().Err(err).Log("failed to render page")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStartStop(t *testing.T) {
	srv, err := NewServer(DefaultConfig())
	require.NoError(t, err)

	addr, err := srv.Start()
	require.NoError(t, err)
	assert.NotEqual(t, ":0", addr, "Start() should report the bound port")
	assert.Equal(t, addr, srv.Addr())
	t.Logf("Server started on %s", addr)

	url := srv.URL() + "/"
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<title>Fixture · Social Coding</title>")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err = http.Get(url)
	assert.Error(t, err, "expected connection error after shutdown")
	assert.NoError(t, srv.Shutdown(ctx), "second shutdown is a no-op")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":0", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, DefaultRepos(), cfg.Repos)
}

func TestServerDoubleStart(t *testing.T) {
	srv, err := NewServer(DefaultConfig())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	addr1, err := srv.Start()
	require.NoError(t, err)
	addr2, err := srv.Start()
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2, "second Start() should return the same address")
}

func TestServer_URLBeforeStart(t *testing.T) {
	srv, err := NewServer(DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, srv.URL())
}

func get(t *testing.T, h http.Handler, target string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec.Code, rec.Body.String()
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	h, err := NewHandler(DefaultRepos(), nil)
	require.NoError(t, err)
	return h
}

func TestHandler_SearchFormWithoutQuery(t *testing.T) {
	code, body := get(t, newTestHandler(t), "/search")

	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "<title>Search · Fixture</title>")
	assert.Contains(t, body, `name="q"`)
	assert.Contains(t, body, `id="type_value"`)
	assert.NotContains(t, body, `class="results"`)
}

func TestHandler_SearchFindsOneRepository(t *testing.T) {
	code, body := get(t, newTestHandler(t), "/search?q=phantom-testlib&type=Repositories")

	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<span class="title">Repositories (1)</span>`)
	assert.Contains(t, body, `<a href="/repos/shoptime/phantom-testlib">shoptime/phantom-testlib</a>`)
}

func TestHandler_SearchUsers(t *testing.T) {
	_, body := get(t, newTestHandler(t), "/search?q=GO-ROD&type=Users")

	assert.Contains(t, body, `<span class="title">Users (1)</span>`)
	assert.Contains(t, body, "go-rod/rod")
}

func TestHandler_SearchNoMatches(t *testing.T) {
	_, body := get(t, newTestHandler(t), "/search?q=nothing-like-this")

	assert.Contains(t, body, `<span class="title">Repositories (0)</span>`)
}

func TestHandler_RepoPage(t *testing.T) {
	h := newTestHandler(t)

	code, body := get(t, h, "/repos/shoptime/phantom-testlib")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<span class="owner">shoptime</span>`)

	code, _ = get(t, h, "/repos/nobody/nothing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandler_ExploreListsRepos(t *testing.T) {
	_, body := get(t, newTestHandler(t), "/explore")

	assert.Contains(t, body, "<title>Explore · Fixture</title>")
	for _, r := range DefaultRepos() {
		assert.Contains(t, body, r.Path())
	}
}

func TestHandler_EscapesQuery(t *testing.T) {
	_, body := get(t, newTestHandler(t), "/search?q=%3Cscript%3E")

	assert.NotContains(t, body, `value="<script>"`)
	assert.True(t, strings.Contains(body, "&lt;script&gt;"), "query must be escaped")
}

func TestHandler_Slow(t *testing.T) {
	h := newTestHandler(t)

	code, body := get(t, h, "/slow?ms=1")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Delayed by 1ms.")

	code, _ = get(t, h, "/slow?ms=soon")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHandler_UnknownPath(t *testing.T) {
	code, _ := get(t, newTestHandler(t), "/no/such/page")
	assert.Equal(t, http.StatusNotFound, code)
}

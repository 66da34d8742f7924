package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsfeed/internal/fetcher"
	"newsfeed/internal/news"
	"newsfeed/internal/scheduler"
	"newsfeed/internal/storage"
)

type mockHTTP struct {
	body string
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *storage.SQLite) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	xml, err := os.ReadFile("../../testdata/sample.xml")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := scheduler.New(store, fetcher.NewRegistry(fetcher.New(&mockHTTP{body: string(xml)}), log), log)
	svc := news.New(store, agg, "../../testdata/sources.yaml", log)
	_, err = svc.LoadSources(context.Background())
	require.NoError(t, err)
	return NewRouter(svc, log), store
}

func do(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seeded returns a router whose store holds the sample feed articles.
func seeded(t *testing.T) (*gin.Engine, *storage.SQLite) {
	t.Helper()
	router, store := newTestRouter(t)
	w := do(t, router, http.MethodPost, "/api/aggregate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return router, store
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://reader.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListSourcesDoesNotResync(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := context.Background()

	stored, err := store.ListSources(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, stored)
	wire := stored[0]
	wire.IsActive = false
	require.NoError(t, store.UpsertSource(ctx, &wire))

	w := do(t, router, http.MethodGet, "/api/sources", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Sources []sourceResponse `json:"sources"`
	}](t, w)
	require.Len(t, res.Sources, 3)
	assert.Equal(t, "Tech Wire", res.Sources[0].Name)
	assert.False(t, res.Sources[0].IsActive, "listing must not re-apply the registry file")
}

func TestAggregate(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodPost, "/api/aggregate", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[aggregateResponse](t, w)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 5, res.New)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.RunID)
}

func TestSearchArticles(t *testing.T) {
	router, _ := seeded(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTotal  int
	}{
		{name: "text query", query: "?q=crypto", wantStatus: http.StatusOK, wantTotal: 1},
		{name: "category filter", query: "?category=healthcare", wantStatus: http.StatusOK, wantTotal: 1},
		{name: "comma separated categories", query: "?category=healthcare,finance", wantStatus: http.StatusOK, wantTotal: 1},
		{name: "source categories apply", query: "?category=business", wantStatus: http.StatusOK, wantTotal: 5},
		{name: "min relevance above base", query: "?min_relevance=0.9", wantStatus: http.StatusOK, wantTotal: 0},
		{name: "malformed min relevance", query: "?min_relevance=high", wantStatus: http.StatusBadRequest},
		{name: "out of range min relevance", query: "?min_relevance=2", wantStatus: http.StatusBadRequest},
		{name: "malformed source", query: "?source=abc", wantStatus: http.StatusBadRequest},
		{name: "negative limit", query: "?limit=-3", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/api/articles/search"+tt.query, "")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			res := decode[searchResponse](t, w)
			assert.Equal(t, tt.wantTotal, res.TotalCount)
			assert.Len(t, res.Articles, tt.wantTotal)
		})
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(t, router, http.MethodGet, "/api/users/3/preferences", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"preferences":null}`, w.Body.String())

	w = do(t, router, http.MethodPatch, "/api/users/3/preferences", `{"categories":["Technology"],"keywords":["startup"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := decode[struct {
		Preferences preferencesResponse `json:"preferences"`
	}](t, w)
	assert.Equal(t, []string{"technology"}, got.Preferences.Categories)
	assert.Equal(t, []string{"startup"}, got.Preferences.Keywords)
	assert.Equal(t, "08:00", got.Preferences.Notifications.DigestTime)

	w = do(t, router, http.MethodPatch, "/api/users/3/preferences", `{"digest_time":"8am"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPatch, "/api/users/3/preferences", `{"categories":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/users/abc/preferences", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeed(t *testing.T) {
	router, _ := seeded(t)

	w := do(t, router, http.MethodPatch, "/api/users/1/preferences", `{"categories":["technology"],"excluded_keywords":["layoffs"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/users/1/feed?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[feedResponse](t, w)

	// The Tech Wire source tags every article with technology.
	assert.Equal(t, 4, res.TotalCount)
	for _, a := range res.Articles {
		assert.NotContains(t, strings.ToLower(a.Title), "layoffs")
		assert.Contains(t, res.RelevanceScores, a.ID)
	}
	assert.NotNil(t, res.Recommendations.ForYou)

	w = do(t, router, http.MethodGet, "/api/users/1/feed?offset=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInteractionsAndSaved(t *testing.T) {
	router, store := seeded(t)
	articles, err := store.QueryArticles(context.Background(), storage.ArticleQuery{Limit: 1})
	require.NoError(t, err)
	id := articles[0].ID

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "valid", body: `{"article_id":` + itoa(id) + `,"action":"clicked","reading_time_seconds":12}`, wantStatus: http.StatusOK},
		{name: "unknown action", body: `{"article_id":` + itoa(id) + `,"action":"liked"}`, wantStatus: http.StatusBadRequest},
		{name: "missing article id", body: `{"action":"viewed"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown article", body: `{"article_id":99999,"action":"viewed"}`, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/api/users/1/interactions", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}

	w := do(t, router, http.MethodPost, "/api/users/1/saved", `{"article_id":`+itoa(id)+`,"folder":"later","notes":"read on train"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/users/1/saved?folder=later", "")
	require.Equal(t, http.StatusOK, w.Code)
	saved := decode[struct {
		Saved []savedResponse `json:"saved"`
	}](t, w)
	require.Len(t, saved.Saved, 1)
	assert.Equal(t, "read on train", saved.Saved[0].Notes)
	require.NotNil(t, saved.Saved[0].Article)
	assert.Equal(t, id, saved.Saved[0].Article.ID)

	w = do(t, router, http.MethodGet, "/api/users/1/saved?folder=elsewhere", "")
	assert.JSONEq(t, `{"saved":[]}`, w.Body.String())
}

func TestDigestEndpoints(t *testing.T) {
	router, _ := seeded(t)

	w := do(t, router, http.MethodPost, "/api/users/1/digests/daily", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Digest digestResponse `json:"digest"`
	}](t, w)
	assert.Equal(t, "daily", created.Digest.Type)
	assert.False(t, created.Digest.WasRead)

	w = do(t, router, http.MethodPost, "/api/users/1/digests/daily", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"digest":null`)

	w = do(t, router, http.MethodPost, "/api/users/1/digests/weekly", "")
	require.Equal(t, http.StatusCreated, w.Code)

	path := "/api/users/1/digests/" + itoa(created.Digest.ID)
	w = do(t, router, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/users/2/digests/"+itoa(created.Digest.ID), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, path+"/read", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"changed":true}`, w.Body.String())

	w = do(t, router, http.MethodPost, path+"/read", "")
	assert.JSONEq(t, `{"changed":false}`, w.Body.String())

	w = do(t, router, http.MethodPost, "/api/users/1/digests/nope/read", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LJTian/RedditHourly/internal/logging"
	"github.com/LJTian/RedditHourly/internal/processor"
	"github.com/LJTian/RedditHourly/internal/storage"
	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticStore struct {
	snap processor.Snapshot
}

func (s staticStore) Load(context.Context) processor.Snapshot {
	return s.snap
}

func serve(t *testing.T, store SnapshotLoader, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	r, err := NewRouter(NewServer(store, logging.Discard()))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func parse(t *testing.T, w *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(w.Body.String()))
	require.NoError(t, err)
	return doc
}

func TestIndexRendersRecord(t *testing.T) {
	store := staticStore{snap: processor.Snapshot{{
		Channel:      "AskReddit",
		Title:        "T",
		Body:         "B",
		Link:         "http://x",
		Score:        42,
		TopReactions: []string{},
	}}}

	w := serve(t, store, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	body := w.Body.String()
	for _, s := range []string{"T", "AskReddit", "42", "B"} {
		assert.Contains(t, body, s)
	}

	doc := parse(t, w)
	posts := doc.Find("div.post")
	require.Equal(t, 1, posts.Length())
	assert.Equal(t, "T", posts.Find("h2").Text())
	assert.Equal(t, "AskReddit", posts.Find(".subreddit").Text())
	assert.Equal(t, "42", posts.Find(".score").Text())
	assert.Equal(t, "B", posts.Find(".body").Text())
	href, ok := posts.Find("a").Attr("href")
	require.True(t, ok)
	assert.Equal(t, "http://x", href)
	assert.Equal(t, 0, posts.Find("ul.comments").Length())
}

func TestIndexRendersEmptySnapshot(t *testing.T) {
	w := serve(t, staticStore{snap: processor.Snapshot{}}, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	doc := parse(t, w)
	assert.Equal(t, pageTitle, doc.Find("h1").Text())
	assert.Equal(t, pageTitle, doc.Find("title").Text())
	assert.Equal(t, 0, doc.Find("div.post").Length())
	assert.Contains(t, w.Body.String(), "</html>")
}

func TestIndexRendersReactionsInOrder(t *testing.T) {
	store := staticStore{snap: processor.Snapshot{
		{Channel: "nosleep", Title: "first", TopReactions: []string{"a", "b", "c"}},
		{Channel: "AskWomen", Title: "second", TopReactions: []string{}},
	}}

	doc := parse(t, serve(t, store, http.MethodGet, "/"))
	posts := doc.Find("div.post")
	require.Equal(t, 2, posts.Length())
	assert.Equal(t, "first", posts.Eq(0).Find("h2").Text())
	assert.Equal(t, "second", posts.Eq(1).Find("h2").Text())

	var comments []string
	posts.Eq(0).Find("ul.comments li").Each(func(_ int, s *goquery.Selection) {
		comments = append(comments, s.Text())
	})
	assert.Equal(t, []string{"a", "b", "c"}, comments)
}

func TestIndexEscapesContent(t *testing.T) {
	store := staticStore{snap: processor.Snapshot{{
		Channel: "AskReddit",
		Title:   "<script>alert(1)</script>",
		Body:    "a & b",
		Link:    "javascript:alert(1)",
	}}}

	w := serve(t, store, http.MethodGet, "/")
	body := w.Body.String()
	assert.NotContains(t, body, "<script>alert(1)</script>")

	doc := parse(t, w)
	assert.Equal(t, "<script>alert(1)</script>", doc.Find("div.post h2").Text())
	href, _ := doc.Find("div.post a").Attr("href")
	assert.NotContains(t, href, "javascript:")
}

func TestIndexFromMissingSnapshotFile(t *testing.T) {
	store := storage.NewStore(filepath.Join(t.TempDir(), "data.json"), nil, logging.Discard())

	w := serve(t, store, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, parse(t, w).Find("div.post").Length())
}

func TestOnlyIndexRoute(t *testing.T) {
	store := staticStore{}
	assert.Equal(t, http.StatusNotFound, serve(t, store, http.MethodGet, "/api/v1/news").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, store, http.MethodPost, "/").Code)
}

package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, routes map[string]string) (*httptest.Server, Repo) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		body, ok := routes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body == "500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, NewHTTP(srv.URL+"/", "http://covers.test", srv.Client())
}

func TestSearch_ComputesCovers(t *testing.T) {
	_, r := newCatalog(t, map[string]string{
		"/search.json?limit=2&q=dune+messiah": `{"num_found":3,"docs":[
			{"title":"Dune Messiah","key":"/works/OL1W","cover_i":42,"isbn":["111"]},
			{"title":"No cover id","key":"/works/OL2W","isbn":["222","333"]},
			{"title":"Bare","key":"/works/OL3W"}]}`,
	})

	res, err := r.Search(context.Background(), "dune messiah", 2)
	require.NoError(t, err)
	require.Equal(t, 3, res.NumFound)
	require.Len(t, res.Docs, 3)
	require.Equal(t, "http://covers.test/b/id/42-L.jpg", res.Docs[0].CoverURL)
	require.Equal(t, "http://covers.test/b/isbn/222-L.jpg", res.Docs[1].CoverURL)
	require.Equal(t, "", res.Docs[2].CoverURL)
}

func TestByISBN_FollowsWorkAndAuthors(t *testing.T) {
	_, r := newCatalog(t, map[string]string{
		"/isbn/9780441013593.json": `{"title":"Dune","publish_date":"2005","publishers":["Ace"],
			"number_of_pages":528,"works":[{"key":"/works/OL893415W"}]}`,
		"/works/OL893415W.json": `{"description":{"type":"/type/text","value":"Desert planet."},
			"authors":[{"author":{"key":"/authors/OL79034A"}}]}`,
		"/authors/OL79034A.json": `{"name":"Frank Herbert"}`,
	})

	b, err := r.ByISBN(context.Background(), "9780441013593")
	require.NoError(t, err)
	require.Equal(t, "Dune", b.Title)
	require.Equal(t, []string{"Frank Herbert"}, b.Authors)
	require.Equal(t, "Frank Herbert", b.AuthorLine())
	require.Equal(t, "Desert planet.", b.Description)
	require.Equal(t, "9780441013593", b.ISBN)
	require.Equal(t, "http://covers.test/b/isbn/9780441013593-L.jpg", b.CoverURL)
	require.Equal(t, 528, *b.NumberOfPages)
}

func TestByISBN_NotFoundAndUpstream(t *testing.T) {
	_, r := newCatalog(t, map[string]string{"/isbn/500.json": "500"})

	_, err := r.ByISBN(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, IsUpstream(err))

	_, err = r.ByISBN(context.Background(), "500")
	require.True(t, IsUpstream(err))

	dead := NewHTTP("http://127.0.0.1:1", "http://covers.test", nil)
	_, err = dead.ByISBN(context.Background(), "1")
	require.True(t, errors.Is(err, ErrUpstream))
}

func TestByOLID_UsesOLIDCover(t *testing.T) {
	_, r := newCatalog(t, map[string]string{
		"/books/OL7353617M.json": `{"title":"Fantastic Mr Fox","authors":[{"key":"/authors/OL1A"}]}`,
		"/authors/OL1A.json":     `{"name":"Roald Dahl"}`,
	})

	b, err := r.ByOLID(context.Background(), "OL7353617M")
	require.NoError(t, err)
	require.Equal(t, "http://covers.test/b/olid/OL7353617M-L.jpg", b.CoverURL)
	require.Equal(t, []string{"Roald Dahl"}, b.Authors)
	require.Equal(t, NoDescription, b.Description)
}

func TestByWorkKey_EditionDetails(t *testing.T) {
	_, r := newCatalog(t, map[string]string{
		"/works/OL45W.json": `{"title":"Emma","description":"A novel.","covers":[77],
			"authors":[{"author":{"key":"/authors/A1"}},{"author":{"key":"/authors/A2"}},
			{"author":{"key":"/authors/A3"}},{"author":{"key":"/authors/A4"}}]}`,
		"/works/OL45W/editions.json?limit=1": `{"entries":[{"key":"/books/OL9M","publish_date":"1815",
			"isbn_10":["0141439580"],"isbn_13":["9780141439587"]}]}`,
		"/authors/A1.json": `{"name":"One"}`,
		"/authors/A2.json": `{"name":"Two"}`,
		"/authors/A4.json": `{"name":"Four"}`,
	})

	for _, key := range []string{"OL45W", "works/OL45W", "/works/OL45W"} {
		b, err := r.ByWorkKey(context.Background(), key)
		require.NoError(t, err, key)
		require.Equal(t, "Emma", b.Title)
		// only the first three authors are resolved; A3 is missing upstream
		require.Equal(t, []string{"One", "Two"}, b.Authors)
		require.Equal(t, "9780141439587", b.ISBN)
		require.Equal(t, "0141439580", b.ISBN10)
		require.Equal(t, "OL9M", b.EditionKey)
		require.Equal(t, "http://covers.test/b/id/77-L.jpg", b.CoverURL)
	}
}

func TestByWorkKey_NoEditionsFallsBackToKey(t *testing.T) {
	_, r := newCatalog(t, map[string]string{
		"/works/OL46W.json": `{"title":"Untitled draft"}`,
	})

	b, err := r.ByWorkKey(context.Background(), "OL46W")
	require.NoError(t, err)
	require.Equal(t, "works/OL46W", b.ISBN)
	require.Equal(t, PlaceholderURL, b.CoverURL)
	require.Empty(t, b.Authors)
}

func TestAuthorLookupsAreBounded(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/books/OLX.json":
			_, _ = w.Write([]byte(`{"title":"Many","authors":[{"key":"/authors/1"},{"key":"/authors/2"},
				{"key":"/authors/3"},{"key":"/authors/4"},{"key":"/authors/5"}]}`))
		default:
			hits.Add(1)
			_, _ = w.Write([]byte(`{"name":"x"}`))
		}
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, "http://covers.test", srv.Client()).ByOLID(context.Background(), "OLX")
	require.NoError(t, err)
	require.Equal(t, int32(3), hits.Load())
}

func TestExtractDescription(t *testing.T) {
	cases := map[string]string{
		``:                         NoDescription,
		`null`:                     NoDescription,
		`"plain"`:                  "plain",
		`""`:                       NoDescription,
		`{"type":"t","value":"v"}`: "v",
		`["first","second"]`:       "first",
		`[]`:                       NoDescription,
		`42`:                       NoDescription,
	}
	for in, want := range cases {
		require.Equal(t, want, extractDescription(json.RawMessage(in)), in)
	}
}

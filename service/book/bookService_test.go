package booksvc_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"bookclub/model"
	bookrepo "bookclub/repository/book"
	"bookclub/repository/openlibrary"
	booksvc "bookclub/service/book"
	"bookclub/util/cache"
	"bookclub/util/database"

	"github.com/stretchr/testify/require"
)

type catalogMock struct {
	searchFn func(ctx context.Context, q string, limit int) (*openlibrary.SearchResult, error)
	byISBNFn func(ctx context.Context, isbn string) (*openlibrary.Book, error)

	searchCalls int
	isbnCalls   int
}

func (m *catalogMock) Search(ctx context.Context, q string, limit int) (*openlibrary.SearchResult, error) {
	m.searchCalls++
	return m.searchFn(ctx, q, limit)
}
func (m *catalogMock) ByISBN(ctx context.Context, isbn string) (*openlibrary.Book, error) {
	m.isbnCalls++
	if m.byISBNFn == nil {
		return nil, openlibrary.ErrNotFound
	}
	return m.byISBNFn(ctx, isbn)
}
func (m *catalogMock) ByOLID(ctx context.Context, olid string) (*openlibrary.Book, error) {
	return nil, openlibrary.ErrNotFound
}
func (m *catalogMock) ByWorkKey(ctx context.Context, key string) (*openlibrary.Book, error) {
	return nil, openlibrary.ErrNotFound
}
func (m *catalogMock) CoverByISBN(isbn string) string { return "cover/" + isbn }

func knownBooks(ctx context.Context, isbn string) (*openlibrary.Book, error) {
	return &openlibrary.Book{
		Title:       "Book " + isbn,
		Authors:     []string{"A. Writer", "B. Writer"},
		ISBN:        isbn,
		Description: "desc",
		CoverURL:    "cover/" + isbn,
	}, nil
}

func newService(t *testing.T, cat *catalogMock) (booksvc.Service, *database.DB) {
	t.Helper()
	db, err := database.NewMemory()
	require.NoError(t, err)
	t.Cleanup(db.Close)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return booksvc.New(bookrepo.New(db.Gorm), cat, cache.New[*openlibrary.SearchResult](time.Minute), log), db
}

func TestSearch_CachesByNormalizedQueryAndLimit(t *testing.T) {
	cat := &catalogMock{
		searchFn: func(ctx context.Context, q string, limit int) (*openlibrary.SearchResult, error) {
			return &openlibrary.SearchResult{NumFound: limit, Docs: []openlibrary.SearchDoc{{Title: q}}}, nil
		},
	}
	svc, _ := newService(t, cat)
	ctx := context.Background()

	first, err := svc.Search(ctx, "Dune", 0)
	require.NoError(t, err)
	require.Equal(t, booksvc.DefaultSearchLimit, first.NumFound)

	again, err := svc.Search(ctx, "  DUNE ", 10)
	require.NoError(t, err)
	require.Same(t, first, again)
	require.Equal(t, 1, cat.searchCalls)

	_, err = svc.Search(ctx, "dune", 5)
	require.NoError(t, err)
	require.Equal(t, 2, cat.searchCalls)
	require.Equal(t, cache.Stats{Total: 2}, svc.CacheStats())

	capped, err := svc.Search(ctx, "big", 1000)
	require.NoError(t, err)
	require.Equal(t, booksvc.MaxSearchLimit, capped.NumFound)
}

func TestSearch_Errors(t *testing.T) {
	cat := &catalogMock{
		searchFn: func(ctx context.Context, q string, limit int) (*openlibrary.SearchResult, error) {
			return nil, fmt.Errorf("%w: 503", openlibrary.ErrUpstream)
		},
	}
	svc, _ := newService(t, cat)

	_, err := svc.Search(context.Background(), "   ", 10)
	require.Equal(t, booksvc.ErrBadInput, booksvc.Code(err))

	_, err = svc.Search(context.Background(), "dune", 10)
	require.Equal(t, booksvc.ErrUpstream, booksvc.Code(err))
	require.True(t, errors.Is(err, openlibrary.ErrUpstream))

	// failures are not cached
	_, _ = svc.Search(context.Background(), "dune", 10)
	require.Equal(t, 2, cat.searchCalls)
	require.Equal(t, 0, svc.CacheStats().Total)
}

func TestImport_IsIdempotent(t *testing.T) {
	cat := &catalogMock{byISBNFn: knownBooks}
	svc, _ := newService(t, cat)
	ctx := context.Background()

	b, err := svc.Import(ctx, "001")
	require.NoError(t, err)
	require.Equal(t, "Book 001", b.Title)
	require.Equal(t, "A. Writer, B. Writer", b.Author)

	again, err := svc.Import(ctx, "001")
	require.NoError(t, err)
	require.Equal(t, b.ID, again.ID)
	require.Equal(t, 1, cat.isbnCalls)

	cat.byISBNFn = nil
	_, err = svc.Import(ctx, "missing")
	require.Equal(t, booksvc.ErrNotFound, booksvc.Code(err))
}

func TestEnsureBook_FallsBackToSnapshot(t *testing.T) {
	cat := &catalogMock{
		byISBNFn: func(ctx context.Context, isbn string) (*openlibrary.Book, error) {
			return nil, fmt.Errorf("%w: timeout", openlibrary.ErrUpstream)
		},
	}
	svc, _ := newService(t, cat)
	snap := model.BookSnapshot{ISBN: "777", Title: "Snap", Author: "S. Author", CoverURL: "c.jpg"}

	b, err := svc.EnsureBook(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, "Snap", b.Title)
	require.Equal(t, "S. Author", b.Author)
	require.Equal(t, "c.jpg", b.Cover)

	cat.byISBNFn = nil
	b2, err := svc.EnsureBook(context.Background(), model.BookSnapshot{ISBN: "888", Title: "Gone"})
	require.NoError(t, err)
	require.Equal(t, "Gone", b2.Title)
}

func TestShelves(t *testing.T) {
	cat := &catalogMock{byISBNFn: knownBooks}
	svc, _ := newService(t, cat)
	ctx := context.Background()

	_, err := svc.AddToShelf(ctx, 1, "wishlist", "001")
	require.Equal(t, booksvc.ErrBadInput, booksvc.Code(err))

	fav, err := svc.AddToShelf(ctx, 1, model.ShelfFavorite, "001")
	require.NoError(t, err)
	require.Equal(t, "Book 001", fav.Book.Title)

	_, err = svc.AddToShelf(ctx, 1, model.ShelfFavorite, "001")
	require.Equal(t, booksvc.ErrAlreadyOnShelf, booksvc.Code(err))

	reading, err := svc.AddToShelf(ctx, 1, model.ShelfReading, "001")
	require.NoError(t, err)

	st, err := svc.Statuses(ctx, 1, "001")
	require.NoError(t, err)
	require.ElementsMatch(t, []model.ShelfStatus{model.ShelfFavorite, model.ShelfReading}, st)

	require.Equal(t, booksvc.ErrBadInput, booksvc.Code(svc.UpdateProgress(ctx, 1, reading.ID, 101)))
	require.Equal(t, booksvc.ErrNotOnShelf, booksvc.Code(svc.UpdateProgress(ctx, 2, reading.ID, 50)))
	require.NoError(t, svc.UpdateProgress(ctx, 1, reading.ID, 40))

	list, err := svc.Shelf(ctx, 1, model.ShelfReading)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 40, list[0].Progress)

	require.NoError(t, svc.Complete(ctx, 1, "001"))
	require.Equal(t, booksvc.ErrNotOnShelf, booksvc.Code(svc.Complete(ctx, 1, "001")))

	done, err := svc.Shelf(ctx, 1, model.ShelfCompleted)
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, 100, done[0].Progress)

	require.NoError(t, svc.Remove(ctx, 1, model.ShelfFavorite, fav.ID))
	require.Equal(t, booksvc.ErrNotOnShelf, booksvc.Code(svc.Remove(ctx, 1, model.ShelfFavorite, fav.ID)))

	st, err = svc.Statuses(ctx, 1, "001")
	require.NoError(t, err)
	require.Equal(t, []model.ShelfStatus{model.ShelfCompleted}, st)
}

func TestAddReadingFor_SkipsExisting(t *testing.T) {
	cat := &catalogMock{byISBNFn: knownBooks}
	svc, _ := newService(t, cat)
	ctx := context.Background()

	b, err := svc.Import(ctx, "001")
	require.NoError(t, err)
	_, err = svc.AddToShelf(ctx, 2, model.ShelfReading, "001")
	require.NoError(t, err)

	added, already, err := svc.AddReadingFor(ctx, b.ID, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 2, added)
	require.Equal(t, 1, already)

	added, already, err = svc.AddReadingFor(ctx, b.ID, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 0, added)
	require.Equal(t, 3, already)
}

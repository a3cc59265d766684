package booksvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookclub/model"
	bookrepo "bookclub/repository/book"
	"bookclub/repository/openlibrary"
	"bookclub/util/cache"
	"bookclub/util/database"
)

type ErrCode string

const (
	ErrBadInput       ErrCode = "BAD_INPUT"
	ErrNotFound       ErrCode = "NOT_FOUND"
	ErrUpstream       ErrCode = "UPSTREAM_UNAVAILABLE"
	ErrAlreadyOnShelf ErrCode = "ALREADY_ON_SHELF"
	ErrNotOnShelf     ErrCode = "NOT_ON_SHELF"
)

type codedError struct {
	code ErrCode
	err  error
}

func (e codedError) Error() string {
	if e.err != nil {
		return string(e.code) + ": " + e.err.Error()
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.err }
func makeErr(c ErrCode) error      { return codedError{code: c} }

func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// catalogErr classifies a catalog client failure.
func catalogErr(err error) error {
	switch {
	case errors.Is(err, openlibrary.ErrNotFound):
		return makeErr(ErrNotFound)
	case openlibrary.IsUpstream(err):
		return codedError{code: ErrUpstream, err: err}
	}
	return err
}

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

type SearchCache = cache.Cache[*openlibrary.SearchResult]

type Service interface {
	Search(ctx context.Context, query string, limit int) (*openlibrary.SearchResult, error)
	ByISBN(ctx context.Context, isbn string) (*openlibrary.Book, error)
	ByOLID(ctx context.Context, olid string) (*openlibrary.Book, error)
	ByWorkKey(ctx context.Context, key string) (*openlibrary.Book, error)
	CacheStats() cache.Stats

	// Import stores the catalog entry for isbn locally; existing rows are
	// returned untouched.
	Import(ctx context.Context, isbn string) (*model.Book, error)
	// EnsureBook is Import with a fallback to snap when the catalog cannot
	// supply the book.
	EnsureBook(ctx context.Context, snap model.BookSnapshot) (*model.Book, error)
	AddReadingFor(ctx context.Context, bookID int64, userIDs []int64) (added, already int, err error)

	Shelf(ctx context.Context, userID int64, shelf model.ShelfStatus) ([]model.UserBook, error)
	AddToShelf(ctx context.Context, userID int64, shelf model.ShelfStatus, isbn string) (*model.UserBook, error)
	UpdateProgress(ctx context.Context, userID, entryID int64, progress int) error
	Complete(ctx context.Context, userID int64, isbn string) error
	Remove(ctx context.Context, userID int64, shelf model.ShelfStatus, entryID int64) error
	Statuses(ctx context.Context, userID int64, isbn string) ([]model.ShelfStatus, error)
}

type service struct {
	r       bookrepo.Repo
	catalog openlibrary.Repo
	cache   *SearchCache
	log     *slog.Logger
	now     func() time.Time
}

func New(r bookrepo.Repo, catalog openlibrary.Repo, c *SearchCache, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{r: r, catalog: catalog, cache: c, log: log, now: time.Now}
}

func (s *service) Search(ctx context.Context, query string, limit int) (*openlibrary.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, makeErr(ErrBadInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	key := fmt.Sprintf("%s|%d", cache.NormalizeKey(query), limit)
	if res, ok := s.cache.Lookup(key); ok {
		s.log.Debug("search cache hit", "query", query)
		return res, nil
	}

	res, err := s.catalog.Search(ctx, query, limit)
	if err != nil {
		return nil, catalogErr(err)
	}
	s.cache.Store(key, res)
	return res, nil
}

func (s *service) ByISBN(ctx context.Context, isbn string) (*openlibrary.Book, error) {
	if isbn = strings.TrimSpace(isbn); isbn == "" {
		return nil, makeErr(ErrBadInput)
	}
	b, err := s.catalog.ByISBN(ctx, isbn)
	if err != nil {
		return nil, catalogErr(err)
	}
	return b, nil
}

func (s *service) ByOLID(ctx context.Context, olid string) (*openlibrary.Book, error) {
	if olid = strings.TrimSpace(olid); olid == "" {
		return nil, makeErr(ErrBadInput)
	}
	b, err := s.catalog.ByOLID(ctx, olid)
	if err != nil {
		return nil, catalogErr(err)
	}
	return b, nil
}

func (s *service) ByWorkKey(ctx context.Context, key string) (*openlibrary.Book, error) {
	if strings.Trim(key, "/ ") == "" {
		return nil, makeErr(ErrBadInput)
	}
	b, err := s.catalog.ByWorkKey(ctx, key)
	if err != nil {
		return nil, catalogErr(err)
	}
	return b, nil
}

func (s *service) CacheStats() cache.Stats { return s.cache.Stats() }

func (s *service) Import(ctx context.Context, isbn string) (*model.Book, error) {
	if isbn = strings.TrimSpace(isbn); isbn == "" {
		return nil, makeErr(ErrBadInput)
	}
	if b, err := s.r.ByISBN(ctx, isbn); err != nil || b != nil {
		return b, err
	}

	cb, err := s.catalog.ByISBN(ctx, isbn)
	if err != nil {
		return nil, catalogErr(err)
	}
	return s.r.Ensure(ctx, &model.Book{
		ISBN:        isbn,
		Title:       cb.Title,
		Author:      cb.AuthorLine(),
		Description: cb.Description,
		Cover:       cb.CoverURL,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *service) EnsureBook(ctx context.Context, snap model.BookSnapshot) (*model.Book, error) {
	b, err := s.Import(ctx, snap.ISBN)
	if err == nil {
		return b, nil
	}
	switch Code(err) {
	case ErrNotFound, ErrUpstream:
		s.log.Warn("catalog lookup failed, using proposal snapshot", "isbn", snap.ISBN, "err", err)
	default:
		return nil, err
	}
	return s.r.Ensure(ctx, &model.Book{
		ISBN:      snap.ISBN,
		Title:     snap.Title,
		Author:    snap.Author,
		Cover:     snap.CoverURL,
		CreatedAt: s.now().UTC(),
	})
}

func (s *service) AddReadingFor(ctx context.Context, bookID int64, userIDs []int64) (int, int, error) {
	return s.r.AddReadingFor(ctx, bookID, userIDs, s.now().UTC())
}

func (s *service) Shelf(ctx context.Context, userID int64, shelf model.ShelfStatus) ([]model.UserBook, error) {
	if !shelf.Valid() {
		return nil, makeErr(ErrBadInput)
	}
	return s.r.Shelf(ctx, userID, shelf)
}

func (s *service) AddToShelf(ctx context.Context, userID int64, shelf model.ShelfStatus, isbn string) (*model.UserBook, error) {
	if !shelf.Valid() {
		return nil, makeErr(ErrBadInput)
	}
	b, err := s.Import(ctx, isbn)
	if err != nil {
		return nil, err
	}

	ub := &model.UserBook{UserID: userID, BookID: b.ID, Status: shelf, AddedAt: s.now().UTC()}
	if err := s.r.AddToShelf(ctx, ub); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, makeErr(ErrAlreadyOnShelf)
		}
		return nil, err
	}
	ub.Book = b
	return ub, nil
}

func (s *service) UpdateProgress(ctx context.Context, userID, entryID int64, progress int) error {
	if progress < 0 || progress > 100 {
		return makeErr(ErrBadInput)
	}
	ok, err := s.r.UpdateProgress(ctx, userID, entryID, progress)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotOnShelf)
	}
	return nil
}

func (s *service) Complete(ctx context.Context, userID int64, isbn string) error {
	b, err := s.r.ByISBN(ctx, strings.TrimSpace(isbn))
	if err != nil {
		return err
	}
	if b == nil {
		return makeErr(ErrNotOnShelf)
	}
	if err := s.r.Complete(ctx, userID, b.ID, s.now().UTC()); err != nil {
		if errors.Is(err, bookrepo.ErrNotOnShelf) {
			return makeErr(ErrNotOnShelf)
		}
		return err
	}
	return nil
}

func (s *service) Remove(ctx context.Context, userID int64, shelf model.ShelfStatus, entryID int64) error {
	if !shelf.Valid() {
		return makeErr(ErrBadInput)
	}
	ok, err := s.r.Remove(ctx, userID, shelf, entryID)
	if err != nil {
		return err
	}
	if !ok {
		return makeErr(ErrNotOnShelf)
	}
	return nil
}

func (s *service) Statuses(ctx context.Context, userID int64, isbn string) ([]model.ShelfStatus, error) {
	if isbn = strings.TrimSpace(isbn); isbn == "" {
		return nil, makeErr(ErrBadInput)
	}
	out, err := s.r.StatusesFor(ctx, userID, isbn)
	if out == nil {
		out = []model.ShelfStatus{}
	}
	return out, err
}

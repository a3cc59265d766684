package openlibrary

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	// ErrUpstream wraps transport failures, non-404 error statuses and
	// undecodable bodies.
	ErrUpstream = errors.New("catalog: upstream unavailable")
)

const (
	NoDescription  = "No description available"
	PlaceholderURL = "https://via.placeholder.com/250x350?text=No+Cover"
	maxAuthors     = 3
)

type SearchDoc struct {
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name,omitempty"`
	ISBN             []string `json:"isbn,omitempty"`
	EditionKey       []string `json:"edition_key,omitempty"`
	Key              string   `json:"key"`
	FirstPublishYear *int     `json:"first_publish_year,omitempty"`
	CoverID          *int64   `json:"cover_i,omitempty"`
	Publisher        []string `json:"publisher,omitempty"`
	CoverURL         string   `json:"cover_url"`
}

type SearchResult struct {
	Docs     []SearchDoc `json:"docs"`
	NumFound int         `json:"num_found"`
}

type Book struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	ISBN          string   `json:"isbn"`
	ISBN10        string   `json:"isbn_10,omitempty"`
	ISBN13        string   `json:"isbn_13,omitempty"`
	EditionKey    string   `json:"edition_key,omitempty"`
	Description   string   `json:"description"`
	CoverURL      string   `json:"cover_url"`
	PublishDate   string   `json:"publish_date,omitempty"`
	Publishers    []string `json:"publishers,omitempty"`
	NumberOfPages *int     `json:"number_of_pages,omitempty"`
}

// AuthorLine joins author names for storage in a single column.
func (b *Book) AuthorLine() string { return strings.Join(b.Authors, ", ") }

type Repo interface {
	Search(ctx context.Context, query string, limit int) (*SearchResult, error)
	ByISBN(ctx context.Context, isbn string) (*Book, error)
	ByOLID(ctx context.Context, olid string) (*Book, error)
	ByWorkKey(ctx context.Context, workKey string) (*Book, error)
	CoverByISBN(isbn string) string
}

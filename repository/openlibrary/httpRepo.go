package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bookclub/util/httpx"
)

type httpRepo struct {
	baseURL   string
	coversURL string
	client    *http.Client
}

func NewHTTP(baseURL, coversURL string, client *http.Client) Repo {
	if client == nil {
		client = httpx.Client()
	}
	return &httpRepo{
		baseURL:   strings.TrimRight(baseURL, "/"),
		coversURL: strings.TrimRight(coversURL, "/"),
		client:    client,
	}
}

func (r *httpRepo) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: GET %s: %s", ErrUpstream, path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

func (r *httpRepo) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var out SearchResult
	if err := r.getJSON(ctx, "/search.json?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	for i := range out.Docs {
		out.Docs[i].CoverURL = r.docCover(&out.Docs[i])
	}
	return &out, nil
}

type keyRef struct {
	Key string `json:"key"`
}

type editionDoc struct {
	Title         string   `json:"title"`
	Authors       []keyRef `json:"authors"`
	PublishDate   string   `json:"publish_date"`
	Publishers    []string `json:"publishers"`
	NumberOfPages *int     `json:"number_of_pages"`
	Works         []keyRef `json:"works"`
	Key           string   `json:"key"`
	ISBN10        []string `json:"isbn_10"`
	ISBN13        []string `json:"isbn_13"`
}

type workDoc struct {
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description"`
	Authors     []struct {
		Author keyRef `json:"author"`
	} `json:"authors"`
	Covers []int64 `json:"covers"`
}

func (w *workDoc) authorKeys() []string {
	var keys []string
	for _, a := range w.Authors {
		if a.Author.Key != "" {
			keys = append(keys, a.Author.Key)
		}
	}
	return keys
}

func (r *httpRepo) ByISBN(ctx context.Context, isbn string) (*Book, error) {
	b, err := r.fromEdition(ctx, "/isbn/"+url.PathEscape(isbn)+".json")
	if err != nil {
		return nil, err
	}
	b.ISBN = isbn
	b.CoverURL = r.CoverByISBN(isbn)
	return b, nil
}

func (r *httpRepo) ByOLID(ctx context.Context, olid string) (*Book, error) {
	b, err := r.fromEdition(ctx, "/books/"+url.PathEscape(olid)+".json")
	if err != nil {
		return nil, err
	}
	b.ISBN = olid
	b.CoverURL = fmt.Sprintf("%s/b/olid/%s-L.jpg", r.coversURL, olid)
	return b, nil
}

// fromEdition loads an edition and, best effort, its work for description
// and author keys.
func (r *httpRepo) fromEdition(ctx context.Context, path string) (*Book, error) {
	var ed editionDoc
	if err := r.getJSON(ctx, path, &ed); err != nil {
		return nil, err
	}

	var work workDoc
	if len(ed.Works) > 0 && ed.Works[0].Key != "" {
		if err := r.getJSON(ctx, ed.Works[0].Key+".json", &work); err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, ctx.Err())
		}
	}

	authorKeys := make([]string, 0, len(ed.Authors))
	for _, a := range ed.Authors {
		if a.Key != "" {
			authorKeys = append(authorKeys, a.Key)
		}
	}
	if len(authorKeys) == 0 {
		authorKeys = work.authorKeys()
	}

	title := ed.Title
	if title == "" {
		title = "Unknown"
	}
	return &Book{
		Title:         title,
		Authors:       r.authorNames(ctx, authorKeys),
		Description:   extractDescription(work.Description),
		PublishDate:   ed.PublishDate,
		Publishers:    ed.Publishers,
		NumberOfPages: ed.NumberOfPages,
	}, nil
}

func (r *httpRepo) ByWorkKey(ctx context.Context, workKey string) (*Book, error) {
	key := normalizeWorkKey(workKey)

	var work workDoc
	if err := r.getJSON(ctx, key+".json", &work); err != nil {
		return nil, err
	}

	cover := PlaceholderURL
	if len(work.Covers) > 0 && work.Covers[0] > 0 {
		cover = fmt.Sprintf("%s/b/id/%d-L.jpg", r.coversURL, work.Covers[0])
	}
	title := work.Title
	if title == "" {
		title = "Unknown"
	}

	b := &Book{
		Title:       title,
		Authors:     r.authorNames(ctx, work.authorKeys()),
		Description: extractDescription(work.Description),
		CoverURL:    cover,
	}

	var eds struct {
		Entries []editionDoc `json:"entries"`
	}
	if err := r.getJSON(ctx, key+"/editions.json?limit=1", &eds); err == nil && len(eds.Entries) > 0 {
		ed := eds.Entries[0]
		b.EditionKey = strings.TrimPrefix(ed.Key, "/books/")
		b.PublishDate = ed.PublishDate
		b.Publishers = ed.Publishers
		b.NumberOfPages = ed.NumberOfPages
		if len(ed.ISBN10) > 0 {
			b.ISBN10 = ed.ISBN10[0]
		}
		if len(ed.ISBN13) > 0 {
			b.ISBN13 = ed.ISBN13[0]
		}
	}

	switch {
	case b.ISBN13 != "":
		b.ISBN = b.ISBN13
	case b.ISBN10 != "":
		b.ISBN = b.ISBN10
	default:
		b.ISBN = strings.TrimPrefix(key, "/")
	}
	return b, nil
}

// authorNames resolves up to maxAuthors keys; lookups that fail are skipped.
func (r *httpRepo) authorNames(ctx context.Context, keys []string) []string {
	names := []string{}
	if len(keys) > maxAuthors {
		keys = keys[:maxAuthors]
	}
	for _, k := range keys {
		var a struct {
			Name string `json:"name"`
		}
		if err := r.getJSON(ctx, k+".json", &a); err != nil {
			continue
		}
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return names
}

func (r *httpRepo) CoverByISBN(isbn string) string {
	return fmt.Sprintf("%s/b/isbn/%s-L.jpg", r.coversURL, isbn)
}

func (r *httpRepo) docCover(d *SearchDoc) string {
	if d.CoverID != nil {
		return fmt.Sprintf("%s/b/id/%d-L.jpg", r.coversURL, *d.CoverID)
	}
	if len(d.ISBN) > 0 {
		return r.CoverByISBN(d.ISBN[0])
	}
	return ""
}

// extractDescription accepts a plain string, {"value": string} or [string].
func extractDescription(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return NoDescription
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return orDefault(s)
	}
	var obj struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Value != nil {
		return orDefault(*obj.Value)
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		if err := json.Unmarshal(arr[0], &s); err == nil {
			return orDefault(s)
		}
	}
	return NoDescription
}

func orDefault(s string) string {
	if s == "" {
		return NoDescription
	}
	return s
}

// normalizeWorkKey accepts "OL45W", "works/OL45W" or "/works/OL45W".
func normalizeWorkKey(k string) string {
	k = "/" + strings.Trim(k, "/")
	if !strings.HasPrefix(k, "/works/") {
		k = "/works" + k
	}
	return k
}

// IsUpstream reports whether err is a catalog availability fault.
func IsUpstream(err error) bool { return errors.Is(err, ErrUpstream) }

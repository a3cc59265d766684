package book

import (
	"log/slog"
	"net/http"
	"strings"

	booksvc "bookclub/service/book"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc booksvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// fail maps a service error to a response.
func (h *Controller) fail(c echo.Context, op string, err error) error {
	switch booksvc.Code(err) {
	case booksvc.ErrBadInput:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad input"})
	case booksvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
	case booksvc.ErrUpstream:
		h.Log.Warn(op, "err", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"message": "book catalog unavailable"})
	case booksvc.ErrAlreadyOnShelf:
		return c.JSON(http.StatusConflict, echo.Map{"message": "book already on this shelf"})
	case booksvc.ErrNotOnShelf:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "book not on this shelf"})
	default:
		h.Log.Error(op, "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
}

// GET /v1/books/search?q=&limit=
func (h *Controller) Search(c echo.Context) error {
	var req SearchReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid query"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}
	res, err := h.Svc.Search(c.Request().Context(), req.Q, req.Limit)
	if err != nil {
		return h.fail(c, "book search", err)
	}
	return c.JSON(http.StatusOK, res)
}

// GET /v1/books/isbn/:isbn
func (h *Controller) ByISBN(c echo.Context) error {
	b, err := h.Svc.ByISBN(c.Request().Context(), c.Param("isbn"))
	if err != nil {
		return h.fail(c, "book by isbn", err)
	}
	return c.JSON(http.StatusOK, b)
}

// GET /v1/books/olid/:olid
func (h *Controller) ByOLID(c echo.Context) error {
	b, err := h.Svc.ByOLID(c.Request().Context(), c.Param("olid"))
	if err != nil {
		return h.fail(c, "book by olid", err)
	}
	return c.JSON(http.StatusOK, b)
}

// GET /v1/books/work/*
func (h *Controller) ByWorkKey(c echo.Context) error {
	key := strings.TrimPrefix(c.Param("*"), "/")
	b, err := h.Svc.ByWorkKey(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "book by work", err)
	}
	return c.JSON(http.StatusOK, b)
}

// POST /v1/books/import/:isbn
func (h *Controller) Import(c echo.Context) error {
	b, err := h.Svc.Import(c.Request().Context(), c.Param("isbn"))
	if err != nil {
		return h.fail(c, "book import", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "book imported", "book": b})
}

// GET /v1/books/cache/stats
func (h *Controller) CacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Svc.CacheStats())
}

package book

import (
	"net/http"
	"strconv"

	"bookclub/app/echoServer/jwtx"
	"bookclub/model"

	"github.com/labstack/echo/v4"
)

func (h *Controller) shelfParam(c echo.Context) (model.ShelfStatus, bool) {
	raw := c.Param("shelf")
	return model.ShelfStatus(raw), h.V.Var(raw, "required,shelf") == nil
}

// GET /v1/shelves/:shelf
func (h *Controller) MyShelf(c echo.Context) error {
	return h.shelf(c, jwtx.UserID(c))
}

// GET /v1/users/:id/shelves/:shelf
func (h *Controller) UserShelf(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid user id"})
	}
	return h.shelf(c, id)
}

func (h *Controller) shelf(c echo.Context, userID int64) error {
	s, ok := h.shelfParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unknown shelf"})
	}
	rows, err := h.Svc.Shelf(c.Request().Context(), userID, s)
	if err != nil {
		return h.fail(c, "shelf list", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"shelf": s, "books": rows})
}

// POST /v1/shelves/:shelf
func (h *Controller) AddToShelf(c echo.Context) error {
	s, ok := h.shelfParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unknown shelf"})
	}
	var req AddToShelfReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	entry, err := h.Svc.AddToShelf(c.Request().Context(), jwtx.UserID(c), s, req.ISBN)
	if err != nil {
		return h.fail(c, "shelf add", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "added to shelf", "entry": entry})
}

// PUT /v1/shelves/reading/:id/progress
func (h *Controller) UpdateProgress(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid entry id"})
	}
	var req ProgressReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	if err := h.Svc.UpdateProgress(c.Request().Context(), jwtx.UserID(c), id, *req.Progress); err != nil {
		return h.fail(c, "shelf progress", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "progress updated", "progress": *req.Progress})
}

// PUT /v1/shelves/reading/:isbn/complete
func (h *Controller) Complete(c echo.Context) error {
	if err := h.Svc.Complete(c.Request().Context(), jwtx.UserID(c), c.Param("isbn")); err != nil {
		return h.fail(c, "shelf complete", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "marked as completed"})
}

// DELETE /v1/shelves/:shelf/:id
func (h *Controller) Remove(c echo.Context) error {
	s, ok := h.shelfParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "unknown shelf"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid entry id"})
	}
	if err := h.Svc.Remove(c.Request().Context(), jwtx.UserID(c), s, id); err != nil {
		return h.fail(c, "shelf remove", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /v1/shelves/status?isbn=
func (h *Controller) Statuses(c echo.Context) error {
	isbn := c.QueryParam("isbn")
	if isbn == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "isbn is required"})
	}
	st, err := h.Svc.Statuses(c.Request().Context(), jwtx.UserID(c), isbn)
	if err != nil {
		return h.fail(c, "shelf status", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"isbn": isbn, "statuses": st})
}

package club

import (
	"log/slog"
	"net/http"
	"strconv"

	"bookclub/app/echoServer/jwtx"
	clubsvc "bookclub/service/club"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc clubsvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

var messages = map[clubsvc.ErrCode]struct {
	status int
	msg    string
}{
	clubsvc.ErrNotFound:           {http.StatusNotFound, "club not found"},
	clubsvc.ErrBadInput:           {http.StatusBadRequest, "bad input"},
	clubsvc.ErrAlreadyMember:      {http.StatusConflict, "already a member"},
	clubsvc.ErrNotAMember:         {http.StatusForbidden, "not a member of this club"},
	clubsvc.ErrForbidden:          {http.StatusForbidden, "forbidden"},
	clubsvc.ErrUserNotFound:       {http.StatusNotFound, "user not found"},
	clubsvc.ErrBookNotFound:       {http.StatusNotFound, "book not found"},
	clubsvc.ErrInvalidCode:        {http.StatusBadRequest, "invalid code"},
	clubsvc.ErrInvitationNotFound: {http.StatusNotFound, "invitation not found"},
	clubsvc.ErrInvitationClosed:   {http.StatusConflict, "invitation already answered"},
	clubsvc.ErrNotInvitee:         {http.StatusForbidden, "invitation belongs to another user"},
}

func (h *Controller) fail(c echo.Context, op string, err error) error {
	if m, ok := messages[clubsvc.Code(err)]; ok {
		return c.JSON(m.status, echo.Map{"message": m.msg})
	}
	h.Log.Error(op, "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
	return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
}

func idParam(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// POST /v1/clubs
func (h *Controller) Create(c echo.Context) error {
	var req CreateClubReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	cl, err := h.Svc.Create(c.Request().Context(), jwtx.UserID(c), clubsvc.CreateInput{
		Title:       req.Title,
		Genre:       req.Genre,
		Description: req.Description,
		CoverImage:  req.CoverImage,
	})
	if err != nil {
		return h.fail(c, "club create", err)
	}
	h.Log.Info("club created", "club_id", cl.ID, "user_id", jwtx.UserID(c))
	return c.JSON(http.StatusCreated, cl)
}

// GET /v1/clubs
func (h *Controller) List(c echo.Context) error {
	rows, err := h.Svc.List(c.Request().Context())
	if err != nil {
		return h.fail(c, "club list", err)
	}
	return c.JSON(http.StatusOK, rows)
}

// GET /v1/clubs/genres
func (h *Controller) ByGenre(c echo.Context) error {
	groups, err := h.Svc.ByGenre(c.Request().Context())
	if err != nil {
		return h.fail(c, "club by genre", err)
	}
	return c.JSON(http.StatusOK, groups)
}

// GET /v1/clubs/mine
func (h *Controller) Mine(c echo.Context) error {
	rows, err := h.Svc.Mine(c.Request().Context(), jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "club mine", err)
	}
	return c.JSON(http.StatusOK, rows)
}

// GET /v1/clubs/:id
func (h *Controller) Detail(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	d, err := h.Svc.Detail(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "club detail", err)
	}
	m, err := h.Svc.Membership(c.Request().Context(), id, jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "club membership", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"club": d, "membership": m})
}

// POST /v1/clubs/:id/join
func (h *Controller) Join(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	m, err := h.Svc.Join(c.Request().Context(), id, jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "club join", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "joined", "membership": m})
}

// DELETE /v1/clubs/:id/membership
func (h *Controller) Leave(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	if err := h.Svc.Leave(c.Request().Context(), id, jwtx.UserID(c)); err != nil {
		return h.fail(c, "club leave", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /v1/clubs/:id/members
func (h *Controller) Members(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	ms, err := h.Svc.Members(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "club members", err)
	}
	return c.JSON(http.StatusOK, ms)
}

// PUT /v1/clubs/:id/book
func (h *Controller) AssignBook(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	var req AssignBookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	actor := jwtx.UserID(c)
	target := req.UserID
	if target == 0 {
		target = actor
	}
	b, err := h.Svc.AssignBook(c.Request().Context(), id, actor, target, req.BookID)
	if err != nil {
		return h.fail(c, "club assign book", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "book assigned", "book": b})
}

// GET /v1/clubs/:id/share
func (h *Controller) ShareCode(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	code, err := h.Svc.ShareCode(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "club share", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"code": code})
}

// GET /v1/clubs/shared/:code
func (h *Controller) ByShareCode(c echo.Context) error {
	d, err := h.Svc.ByShareCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return h.fail(c, "club by share code", err)
	}
	return c.JSON(http.StatusOK, d)
}

// POST /v1/clubs/:id/invitations
func (h *Controller) Invite(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	var req InviteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	inv, err := h.Svc.Invite(c.Request().Context(), id, jwtx.UserID(c), req.Email)
	if err != nil {
		return h.fail(c, "club invite", err)
	}
	return c.JSON(http.StatusCreated, inv)
}

// GET /v1/invitations
func (h *Controller) Pending(c echo.Context) error {
	invs, err := h.Svc.PendingInvitations(c.Request().Context(), jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "pending invitations", err)
	}
	return c.JSON(http.StatusOK, invs)
}

// GET /v1/invitations/code/:code
func (h *Controller) ByCode(c echo.Context) error {
	inv, err := h.Svc.InvitationByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return h.fail(c, "invitation by code", err)
	}
	return c.JSON(http.StatusOK, inv)
}

// POST /v1/invitations/:id/accept
func (h *Controller) Accept(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid invitation id"})
	}
	inv, err := h.Svc.Accept(c.Request().Context(), id, jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "invitation accept", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "invitation accepted", "invitation": inv})
}

// POST /v1/invitations/:id/reject
func (h *Controller) Reject(c echo.Context) error {
	id, ok := idParam(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid invitation id"})
	}
	if err := h.Svc.Reject(c.Request().Context(), id, jwtx.UserID(c)); err != nil {
		return h.fail(c, "invitation reject", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "invitation rejected"})
}

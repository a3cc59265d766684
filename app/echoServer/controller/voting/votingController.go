package voting

import (
	"log/slog"
	"net/http"
	"strconv"

	"bookclub/app/echoServer/jwtx"
	votingsvc "bookclub/service/voting"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc votingsvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

func (h *Controller) fail(c echo.Context, op string, err error) error {
	switch votingsvc.Code(err) {
	case votingsvc.ErrNotAMember:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "not a member of this club"})
	case votingsvc.ErrWrongPhase:
		return c.JSON(http.StatusConflict, echo.Map{"message": "voting session is in the wrong phase"})
	case votingsvc.ErrAlreadyActive:
		return c.JSON(http.StatusConflict, echo.Map{"message": "club already has an active voting session"})
	case votingsvc.ErrNoProposals:
		return c.JSON(http.StatusConflict, echo.Map{"message": "no proposals to vote on"})
	case votingsvc.ErrDuplicateBook:
		return c.JSON(http.StatusConflict, echo.Map{"message": "book already proposed in this session"})
	case votingsvc.ErrNotFavorited:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"message": "book must be on your favorites shelf"})
	case votingsvc.ErrProposalNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "proposal not found"})
	case votingsvc.ErrSessionNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no active voting session"})
	case votingsvc.ErrNotWinner:
		return c.JSON(http.StatusConflict, echo.Map{"message": "proposal did not win its session"})
	case votingsvc.ErrBadInput:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad input"})
	case votingsvc.ErrUpstreamUnavail:
		h.Log.Warn(op, "err", err)
		return c.JSON(http.StatusBadGateway, echo.Map{"message": "book catalog unavailable"})
	default:
		h.Log.Error(op,
			"err", err,
			"req_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"path", c.Path(),
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
}

func clubID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// POST /v1/clubs/:id/voting/start
func (h *Controller) Start(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	var req StartReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	s, err := h.Svc.Start(c.Request().Context(), id, jwtx.UserID(c), req.Title)
	if err != nil {
		return h.fail(c, "voting start", err)
	}
	h.Log.Info("voting started", "club_id", id, "session_id", s.ID)
	return c.JSON(http.StatusCreated, s)
}

// POST /v1/clubs/:id/voting/propose
func (h *Controller) Propose(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	var req ProposeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	res, err := h.Svc.Propose(c.Request().Context(), id, jwtx.UserID(c), req.ISBN)
	if err != nil {
		return h.fail(c, "voting propose", err)
	}
	status := http.StatusOK
	if res.Action == votingsvc.ActionCreated {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// POST /v1/clubs/:id/voting/open
func (h *Controller) Open(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	res, err := h.Svc.OpenVoting(c.Request().Context(), id, jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "voting open", err)
	}
	return c.JSON(http.StatusOK, res)
}

// POST /v1/clubs/:id/voting/vote
func (h *Controller) Vote(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	var req VoteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	res, err := h.Svc.Vote(c.Request().Context(), id, jwtx.UserID(c), req.ProposalID)
	if err != nil {
		return h.fail(c, "voting vote", err)
	}
	return c.JSON(http.StatusOK, res)
}

// POST /v1/clubs/:id/voting/close
func (h *Controller) Close(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	res, err := h.Svc.Close(c.Request().Context(), id, jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "voting close", err)
	}
	h.Log.Info("voting closed",
		"club_id", id,
		"winner_isbn", res.Winner.ISBN,
		"tie", res.WasTie,
	)
	return c.JSON(http.StatusOK, res)
}

// GET /v1/clubs/:id/voting/active
func (h *Controller) Active(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	v, err := h.Svc.Active(c.Request().Context(), id, jwtx.UserID(c))
	if err != nil {
		return h.fail(c, "voting active", err)
	}
	return c.JSON(http.StatusOK, v)
}

// GET /v1/clubs/:id/reading-list
func (h *Controller) ReadingList(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	rows, err := h.Svc.ReadingList(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, "voting reading list", err)
	}
	return c.JSON(http.StatusOK, rows)
}

// POST /v1/clubs/:id/voting/winner-to-reading
func (h *Controller) WinnerToReading(c echo.Context) error {
	id, ok := clubID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
	}
	var req VoteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid body"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	res, err := h.Svc.AddWinnerToReading(c.Request().Context(), id, jwtx.UserID(c), req.ProposalID)
	if err != nil {
		return h.fail(c, "voting winner to reading", err)
	}
	return c.JSON(http.StatusOK, res)
}

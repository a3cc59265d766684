package chat

import (
	"log/slog"
	"net/http"
	"strconv"

	"bookclub/app/echoServer/jwtx"
	chatsvc "bookclub/service/chat"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc chatsvc.Service
	Log *slog.Logger
}

// GET /v1/chat/history?club_id=&limit=
// Without club_id the general room is returned.
func (h *Controller) History(c echo.Context) error {
	var clubID *int64
	if raw := c.QueryParam("club_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club id"})
		}
		clubID = &id
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid limit"})
		}
		limit = n
	}

	msgs, err := h.Svc.History(c.Request().Context(), jwtx.UserID(c), clubID, limit)
	if err != nil {
		switch chatsvc.Code(err) {
		case chatsvc.ErrNotAMember:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "not a member of this club"})
		case chatsvc.ErrBadInput:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad input"})
		default:
			h.Log.Error("chat history", "err", err, "req_id", c.Response().Header().Get(echo.HeaderXRequestID))
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, msgs)
}

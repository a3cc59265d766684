package ws

import (
	"log/slog"
	"net/http"
	"strconv"

	chatsvc "bookclub/service/chat"
	jwtutil "bookclub/util/jwt"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Handler upgrades authenticated requests into room connections.
type Handler struct {
	Hub    *Hub
	Chat   chatsvc.Service
	Secret string
	// Origins limits browser origins; empty allows any.
	Origins []string
	Log     *slog.Logger
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(h.Origins) == 0 || origin == "" {
				return true
			}
			for _, o := range h.Origins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// GET /v1/chat/ws?token=&club_id=
//
// Browsers cannot set headers on a websocket handshake, so the token comes
// from the query string; an Authorization header is accepted too.
func (h *Handler) Connect(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = c.Request().Header.Get(echo.HeaderAuthorization)
	}
	claims, err := jwtutil.ParseAuth(token, h.Secret)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	var clubID *int64
	if raw := c.QueryParam("club_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid club_id"})
		}
		clubID = &id
	}

	if err := h.Chat.CanJoin(c.Request().Context(), claims.UserID, clubID); err != nil {
		if chatsvc.Code(err) == chatsvc.ErrNotAMember {
			return c.JSON(http.StatusForbidden, echo.Map{"message": "not a member of this club"})
		}
		h.Log.Error("ws join check", "err", err, "user_id", claims.UserID)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}

	up := h.upgrader()
	conn, err := up.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered
		h.Log.Warn("ws upgrade failed", "user_id", claims.UserID, "err", err)
		return nil
	}

	client := &Client{
		hub:      h.Hub,
		conn:     conn,
		poster:   h.Chat,
		userID:   claims.UserID,
		username: claims.Username,
		clubID:   clubID,
		room:     RoomFor(clubID),
		send:     make(chan []byte, sendBufferSize),
	}
	if !h.Hub.join(client) {
		conn.Close()
		return nil
	}

	go client.WritePump()
	client.ReadPump()
	return nil
}

package echoServer

import (
	"log/slog"

	"bookclub/app/echoServer/controller/auth"
	"bookclub/app/echoServer/controller/book"
	"bookclub/app/echoServer/controller/chat"
	"bookclub/app/echoServer/controller/club"
	"bookclub/app/echoServer/controller/voting"
	"bookclub/app/echoServer/ws"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

type C struct {
	Auth      *auth.Controller
	Book      *book.Controller
	Club      *club.Controller
	Voting    *voting.Controller
	Chat      *chat.Controller
	WS        *ws.Handler
	JWTSecret string
	Log       *slog.Logger
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// the socket authenticates itself from the query token
	pub.GET("/chat/ws", c.WS.Connect)

	// Auth
	auth := e.Group("/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(c.JWTSecret),

		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization:Bearer ",
	}))
	auth.Use(CurrentUser(c.Log))

	auth.GET("/users/me", c.Auth.Me)

	// Catalog
	auth.GET("/books/search", c.Book.Search)
	auth.GET("/books/isbn/:isbn", c.Book.ByISBN)
	auth.GET("/books/olid/:olid", c.Book.ByOLID)
	auth.GET("/books/work/*", c.Book.ByWorkKey)
	auth.POST("/books/import/:isbn", c.Book.Import)
	auth.GET("/books/cache/stats", c.Book.CacheStats)

	// Shelves
	auth.GET("/shelves/status", c.Book.Statuses)
	auth.GET("/shelves/:shelf", c.Book.MyShelf)
	auth.POST("/shelves/:shelf", c.Book.AddToShelf)
	auth.PUT("/shelves/reading/:id/progress", c.Book.UpdateProgress)
	auth.PUT("/shelves/reading/:isbn/complete", c.Book.Complete)
	auth.DELETE("/shelves/:shelf/:id", c.Book.Remove)
	auth.GET("/users/:id/shelves/:shelf", c.Book.UserShelf)

	// Clubs
	auth.POST("/clubs", c.Club.Create)
	auth.GET("/clubs", c.Club.List)
	auth.GET("/clubs/genres", c.Club.ByGenre)
	auth.GET("/clubs/mine", c.Club.Mine)
	auth.GET("/clubs/shared/:code", c.Club.ByShareCode)
	auth.GET("/clubs/:id", c.Club.Detail)
	auth.POST("/clubs/:id/join", c.Club.Join)
	auth.DELETE("/clubs/:id/membership", c.Club.Leave)
	auth.GET("/clubs/:id/members", c.Club.Members)
	auth.PUT("/clubs/:id/book", c.Club.AssignBook)
	auth.GET("/clubs/:id/share", c.Club.ShareCode)
	auth.POST("/clubs/:id/invitations", c.Club.Invite)

	// Invitations
	auth.GET("/invitations", c.Club.Pending)
	auth.GET("/invitations/code/:code", c.Club.ByCode)
	auth.POST("/invitations/:id/accept", c.Club.Accept)
	auth.POST("/invitations/:id/reject", c.Club.Reject)

	// Voting
	auth.POST("/clubs/:id/voting/start", c.Voting.Start)
	auth.POST("/clubs/:id/voting/propose", c.Voting.Propose)
	auth.POST("/clubs/:id/voting/open", c.Voting.Open)
	auth.POST("/clubs/:id/voting/vote", c.Voting.Vote)
	auth.POST("/clubs/:id/voting/close", c.Voting.Close)
	auth.GET("/clubs/:id/voting/active", c.Voting.Active)
	auth.GET("/clubs/:id/reading-list", c.Voting.ReadingList)
	auth.POST("/clubs/:id/voting/winner-to-reading", c.Voting.WinnerToReading)

	// Chat
	auth.GET("/chat/history", c.Chat.History)
}

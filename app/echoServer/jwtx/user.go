package jwtx

import (
	"errors"

	jwtutil "bookclub/util/jwt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// context keys set once the token is verified
const (
	KeyUserID   = "user_id"
	KeyUsername = "username"
)

// ClaimsFromContext reads the token echo-jwt stored under "user".
func ClaimsFromContext(c echo.Context) (*jwtutil.Claims, error) {
	tok, ok := c.Get("user").(*jwt.Token)
	if !ok || tok == nil {
		return nil, errors.New("no jwt token in context")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid jwt claims")
	}
	return jwtutil.FromMap(claims)
}

func UserID(c echo.Context) int64 {
	id, _ := c.Get(KeyUserID).(int64)
	return id
}

func Username(c echo.Context) string {
	name, _ := c.Get(KeyUsername).(string)
	return name
}

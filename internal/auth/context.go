package auth

import (
	"Fly8Backend/internal/apperror"

	"github.com/labstack/echo/v4"
)

const contextKey = "principal"

func SetPrincipal(c echo.Context, p Principal) {
	c.Set(contextKey, p)
}

// PrincipalFrom returns the principal stored by the JWT middleware.
func PrincipalFrom(c echo.Context) (Principal, bool) {
	p, ok := c.Get(contextKey).(Principal)
	return p, ok && p.ID != ""
}

// Current is PrincipalFrom for handlers: a missing principal is an Unauthorized error.
func Current(c echo.Context) (Principal, error) {
	p, ok := PrincipalFrom(c)
	if !ok {
		return Principal{}, apperror.Unauthorized("User not authenticated")
	}
	return p, nil
}

package middleware

import (
	"net/http"

	"Fly8Backend/internal/auth"
	"Fly8Backend/pkg/response"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// JWTMiddleware verifies the bearer token and stores the caller's principal on the context.
func JWTMiddleware(verifier *auth.TokenVerifier, log *zap.Logger) echo.MiddlewareFunc {
	log = log.Named("jwt")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, err := verifier.Verify(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				log.Debug("rejected token", zap.String("path", c.Request().URL.Path), zap.Error(err))
				if err == auth.ErrMissingToken {
					return response.Fail(c, http.StatusUnauthorized, "Missing Token")
				}
				return response.Fail(c, http.StatusUnauthorized, "Invalid Token")
			}
			auth.SetPrincipal(c, principal)
			return next(c)
		}
	}
}

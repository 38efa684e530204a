package response

import (
	"Fly8Backend/internal/apperror"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Payload is merged into the response envelope next to "success".
type Payload map[string]interface{}

// Success writes {success: true, ...payload}.
func Success(c echo.Context, status int, payload Payload) error {
	body := Payload{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	return c.JSON(status, body)
}

// Message writes {success: true, message}.
func Message(c echo.Context, status int, msg string) error {
	return Success(c, status, Payload{"message": msg})
}

// Fail writes {success: false, message} with an explicit status.
func Fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Payload{"success": false, "message": msg})
}

// Error translates a tagged service failure into its status code and logs it.
func Error(c echo.Context, log *zap.Logger, err error) error {
	status := apperror.HTTPStatus(err)
	fields := []zap.Field{
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= 500 {
		log.Error("request failed", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}
	return Fail(c, status, apperror.PublicMessage(err))
}

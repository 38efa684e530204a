package notification

import (
	"net/http"
	"strconv"
	"time"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/auth"
	"Fly8Backend/pkg/response"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// NotificationHandler serves the caller's own notifications.
type NotificationHandler struct {
	service *NotificationService
	log     *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service *NotificationService, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, log: log.Named("notification.http")}
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation("%s must be an integer", name)
	}
	return v, nil
}

func queryTime(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperror.Validation("%s must be an RFC 3339 timestamp or a date", name)
}

func parseFilter(c echo.Context) (Filter, error) {
	f := Filter{
		Status:   Status(c.QueryParam("status")),
		Type:     Type(c.QueryParam("type")),
		Priority: Priority(c.QueryParam("priority")),
	}
	var err error
	if f.From, err = queryTime(c, "startDate"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(c, "endDate"); err != nil {
		return f, err
	}
	return f, nil
}

// ListNotifications returns a filtered page of the caller's notifications.
func (h *NotificationHandler) ListNotifications(c echo.Context) error {
	recipient, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return listPage(c, h.service, h.log, recipient)
}

// listPage answers with one filtered page of recipient's live notifications.
func listPage(c echo.Context, service *NotificationService, log *zap.Logger, recipient auth.Principal) error {
	filter, err := parseFilter(c)
	if err != nil {
		return response.Error(c, log, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return response.Error(c, log, err)
	}
	limit, err := queryInt(c, "limit", DefaultPageSize)
	if err != nil {
		return response.Error(c, log, err)
	}

	result, err := service.List(c.Request().Context(), recipient, filter, page, limit)
	if err != nil {
		return response.Error(c, log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{
		"notifications": result.Notifications,
		"pagination": map[string]interface{}{
			"currentPage":        result.CurrentPage,
			"totalPages":         result.TotalPages,
			"totalNotifications": result.TotalNotifications,
			"hasMore":            result.HasMore,
		},
	})
}

func (h *NotificationHandler) GetNotification(c echo.Context) error {
	recipient, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	n, err := h.service.Get(c.Request().Context(), c.Param("id"), recipient)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{"notification": n})
}

func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	recipient, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	count, err := h.service.UnreadCount(c.Request().Context(), recipient)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{"count": count})
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	recipient, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	n, err := h.service.MarkRead(c.Request().Context(), c.Param("id"), recipient)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{"notification": n})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	recipient, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	count, err := h.service.MarkAllRead(c.Request().Context(), recipient)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{
		"message": "All notifications marked as read",
		"count":   count,
	})
}

func (h *NotificationHandler) Archive(c echo.Context) error {
	recipient, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	n, err := h.service.Archive(c.Request().Context(), c.Param("id"), recipient)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{"notification": n})
}

func (h *NotificationHandler) DeleteNotification(c echo.Context) error {
	recipient, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	if err := h.service.Remove(c.Request().Context(), c.Param("id"), recipient); err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Message(c, http.StatusOK, "Notification deleted successfully")
}

package notification

import (
	"fmt"
	"net/http"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/auth"
	"Fly8Backend/pkg/response"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AdminHandler lets advisors push notifications to students and remove any notification.
type AdminHandler struct {
	service   *NotificationService
	directory auth.Directory
	log       *zap.Logger
}

func NewAdminHandler(service *NotificationService, directory auth.Directory, log *zap.Logger) *AdminHandler {
	return &AdminHandler{service: service, directory: directory, log: log.Named("notification.admin")}
}

// SendRequest targets one recipient. RecipientRole defaults to student.
type SendRequest struct {
	RecipientID   string    `json:"recipientId"`
	RecipientRole auth.Role `json:"recipientRole"`
	Content
}

type BulkRequest struct {
	StudentIDs []string `json:"studentIds"`
	Content
}

func (h *AdminHandler) Send(c echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "Invalid request")
	}
	if req.RecipientID == "" {
		return response.Error(c, h.log, apperror.Validation("Recipient ID is required"))
	}
	if req.RecipientRole == "" {
		req.RecipientRole = auth.RoleStudent
	}
	recipient := auth.Principal{ID: req.RecipientID, Role: req.RecipientRole}
	if !recipient.Role.Valid() {
		return response.Error(c, h.log, apperror.Validation("Invalid recipient role %q", req.RecipientRole))
	}

	ctx := c.Request().Context()
	exists, err := h.directory.Exists(ctx, recipient)
	if err != nil {
		return response.Error(c, h.log, apperror.Infrastructure("Error sending notification", err))
	}
	if !exists {
		return response.Error(c, h.log, apperror.NotFound("Recipient not found"))
	}

	n, err := h.service.Notify(ctx, recipient, req.Content)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusCreated, response.Payload{
		"message":      "Notification sent successfully",
		"notification": n,
	})
}

func (h *AdminHandler) SendBulk(c echo.Context) error {
	var req BulkRequest
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "Invalid request")
	}
	if len(req.StudentIDs) == 0 {
		return response.Error(c, h.log, apperror.Validation("Student IDs array is required"))
	}

	recipients := make([]auth.Principal, len(req.StudentIDs))
	for i, id := range req.StudentIDs {
		recipients[i] = auth.Principal{ID: id, Role: auth.RoleStudent}
	}
	created, err := h.service.NotifyMany(c.Request().Context(), recipients, req.Content)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusCreated, response.Payload{
		"message": fmt.Sprintf("Notifications sent to %d students", len(created)),
		"count":   len(created),
	})
}

// SendAll notifies every active student.
func (h *AdminHandler) SendAll(c echo.Context) error {
	var req Content
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "Invalid request")
	}

	ctx := c.Request().Context()
	ids, err := h.directory.ActiveIDs(ctx, auth.RoleStudent)
	if err != nil {
		return response.Error(c, h.log, apperror.Infrastructure("Error sending notifications", err))
	}
	if len(ids) == 0 {
		return response.Error(c, h.log, apperror.NotFound("No active students found"))
	}

	recipients := make([]auth.Principal, len(ids))
	for i, id := range ids {
		recipients[i] = auth.Principal{ID: id, Role: auth.RoleStudent}
	}
	created, err := h.service.NotifyMany(ctx, recipients, req)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	h.log.Info("broadcast notification sent", zap.Int("recipients", len(created)))
	return response.Success(c, http.StatusCreated, response.Payload{
		"message": fmt.Sprintf("Notification sent to all %d active students", len(created)),
		"count":   len(created),
	})
}

// StudentNotifications pages through one student's live notifications.
func (h *AdminHandler) StudentNotifications(c echo.Context) error {
	studentID := c.Param("studentId")
	if studentID == "" {
		return response.Error(c, h.log, apperror.Validation("Student ID is required"))
	}
	return listPage(c, h.service, h.log, auth.Principal{ID: studentID, Role: auth.RoleStudent})
}

func (h *AdminHandler) Delete(c echo.Context) error {
	if err := h.service.RemoveAny(c.Request().Context(), c.Param("id")); err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Message(c, http.StatusOK, "Notification deleted successfully")
}

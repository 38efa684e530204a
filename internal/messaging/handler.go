package messaging

import (
	"net/http"
	"strconv"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/auth"
	"Fly8Backend/pkg/response"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// MessageHandler handles HTTP requests for conversations and messages.
type MessageHandler struct {
	service *Service
	log     *zap.Logger
}

func NewMessageHandler(service *Service, log *zap.Logger) *MessageHandler {
	return &MessageHandler{service: service, log: log.Named("messaging.http")}
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	RecipientID string       `json:"recipientId"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
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

// ListConversations returns a summary of every conversation of the caller.
func (h *MessageHandler) ListConversations(c echo.Context) error {
	viewer, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	conversations, err := h.service.ListConversations(c.Request().Context(), viewer)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// ListMessages returns one page of a conversation and marks the caller's unread messages as read.
func (h *MessageHandler) ListMessages(c echo.Context) error {
	viewer, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	limit, err := queryInt(c, "limit", DefaultPageSize)
	if err != nil {
		return response.Error(c, h.log, err)
	}

	result, err := h.service.ListMessages(c.Request().Context(), c.Param("id"), viewer, page, limit)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{
		"messages": result.Messages,
		"pagination": map[string]interface{}{
			"currentPage":   result.CurrentPage,
			"totalPages":    result.TotalPages,
			"totalMessages": result.TotalMessages,
			"hasMore":       result.HasMore,
		},
	})
}

// SendMessage creates a message to the counterpart role of the caller.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	sender, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Fail(c, http.StatusBadRequest, "Invalid request")
	}

	msg, err := h.service.Send(c.Request().Context(), SendInput{
		Sender:        sender,
		RecipientID:   req.RecipientID,
		RecipientRole: sender.Role.Counterpart(),
		Content:       req.Content,
		Attachments:   req.Attachments,
	})
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusCreated, response.Payload{"data": msg})
}

func (h *MessageHandler) GetMessage(c echo.Context) error {
	viewer, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	msg, err := h.service.Get(c.Request().Context(), c.Param("id"), viewer)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{"data": msg})
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
	viewer, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	msg, err := h.service.MarkRead(c.Request().Context(), c.Param("id"), viewer)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{"data": msg})
}

func (h *MessageHandler) MarkDelivered(c echo.Context) error {
	viewer, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	msg, err := h.service.MarkDelivered(c.Request().Context(), c.Param("id"), viewer)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{"data": msg})
}

func (h *MessageHandler) DeleteMessage(c echo.Context) error {
	sender, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	if err := h.service.SoftDelete(c.Request().Context(), c.Param("id"), sender); err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Message(c, http.StatusOK, "Message deleted successfully")
}

// SearchMessages matches q against the caller's messages, optionally within one conversation.
func (h *MessageHandler) SearchMessages(c echo.Context) error {
	viewer, err := auth.Current(c)
	if err != nil {
		return response.Error(c, h.log, err)
	}
	messages, err := h.service.Search(c.Request().Context(), viewer, c.QueryParam("q"), c.QueryParam("conversationId"))
	if err != nil {
		return response.Error(c, h.log, err)
	}
	return response.Success(c, http.StatusOK, response.Payload{
		"messages": messages,
		"count":    len(messages),
	})
}

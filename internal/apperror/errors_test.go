package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusAndCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", Validation("content is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthorized", Unauthorized("missing token"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", NotFound("message %s not found", "abc"), http.StatusNotFound, "NOT_FOUND"},
		{"access denied", AccessDenied("not a participant"), http.StatusForbidden, "ACCESS_DENIED"},
		{"conflict", Conflict("archived"), http.StatusConflict, "CONFLICT"},
		{"infrastructure", Infrastructure("store unavailable", errors.New("dial tcp")), http.StatusInternalServerError, "SERVER_ERROR"},
		{"untagged", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
			assert.Equal(t, tt.code, Code(tt.err))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("list messages: %w", AccessDenied("not a participant"))
	assert.True(t, Is(err, KindAccessDenied))
	assert.Equal(t, "not a participant", PublicMessage(err))
}

func TestPublicMessageHidesInfrastructureCause(t *testing.T) {
	err := Infrastructure("Error fetching messages", errors.New("connection refused"))
	assert.Equal(t, "Error fetching messages", PublicMessage(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("raw")))
}

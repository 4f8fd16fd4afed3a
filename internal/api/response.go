package api

import (
	"errors"
	"net/http"

	"ykj/studio/internal/chat"
	"ykj/studio/internal/media"
	"ykj/studio/internal/workflow"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func writeData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"data":     data,
		"trace_id": traceIDFromContext(c),
	})
}

func writeError(c *gin.Context, status int, code, message string, retryable bool, details map[string]any) {
	c.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			Retryable: retryable,
			Details:   details,
		},
		"trace_id": traceIDFromContext(c),
	})
}

func writeUnauthorized(c *gin.Context) {
	writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", false, nil)
}

// writeDomainError maps workflow, chat and media failures onto the envelope.
func writeDomainError(c *gin.Context, err error) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(c, http.StatusUnprocessableEntity, "MISSING_FILE", verr.Message, false, nil)
	case errors.Is(err, workflow.ErrEmptyPrompt):
		writeError(c, http.StatusBadRequest, "EMPTY_PROMPT", "Prompt is empty", false, nil)
	case errors.Is(err, workflow.ErrInvalidOption):
		writeError(c, http.StatusBadRequest, "INVALID_OPTION", err.Error(), false, nil)
	case errors.Is(err, workflow.ErrFileRejected):
		writeError(c, http.StatusUnsupportedMediaType, "FILE_REJECTED", "File type is not accepted in this mode", false, nil)
	case errors.Is(err, workflow.ErrBusy), errors.Is(err, chat.ErrBusy):
		writeError(c, http.StatusConflict, "BUSY", err.Error(), true, nil)
	case errors.Is(err, workflow.ErrChatMode):
		writeError(c, http.StatusConflict, "CHAT_MODE", "Chat mode has no generation workflow", false, nil)
	case errors.Is(err, chat.ErrNotActive):
		writeError(c, http.StatusConflict, "CHAT_NOT_ACTIVE", "Switch to chat mode first", false, nil)
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(c, http.StatusBadRequest, "EMPTY_MESSAGE", "Message is empty", false, nil)
	case errors.Is(err, chat.ErrReset):
		writeError(c, http.StatusConflict, "CHAT_RESET", "The conversation was reset", false, nil)
	case errors.Is(err, chat.ErrStreamInterrupted):
		writeError(c, http.StatusBadGateway, "STREAM_INTERRUPTED", err.Error(), true, nil)
	case errors.Is(err, workflow.ErrNoResult), errors.Is(err, media.ErrUnknownRef):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Nothing to download", false, nil)
	case errors.Is(err, workflow.ErrClosed):
		writeError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down", true, nil)
	default:
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), true, nil)
	}
}

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domerrors "github.com/garyellow/timetable-linebot-go/internal/errors"
	"github.com/garyellow/timetable-linebot-go/internal/sentry"
)

// Response is the envelope of every API reply.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

const (
	messageOK       = "操作成功"
	messageInternal = "服务器内部错误，请稍后重试"
)

// OK writes a 200 envelope carrying data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: messageOK, Data: data})
}

// Fail writes an envelope whose code equals the HTTP status.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Code: status, Message: message})
}

// AbortFail writes a failure envelope and stops the handler chain.
func AbortFail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

// StatusOf maps a domain error onto an HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domerrors.ErrForbidden):
		return http.StatusForbidden
	case domerrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case domerrors.IsNotFound(err), errors.Is(err, domerrors.ErrNoTerm):
		return http.StatusNotFound
	case domerrors.IsImportBusy(err):
		return http.StatusConflict
	case errors.Is(err, domerrors.ErrRecognition):
		return http.StatusUnprocessableEntity
	case domerrors.IsRateLimitExceeded(err):
		return http.StatusTooManyRequests
	case errors.Is(err, domerrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with its user-facing message. Unexpected failures
// are reported to Sentry and counted.
func (h *Handler) writeError(c *gin.Context, module string, err error) {
	status := StatusOf(err)
	message := domerrors.GetUserMessage(err)
	var wrapped *domerrors.WrappedError
	if !errors.As(err, &wrapped) && status == http.StatusInternalServerError {
		message = messageInternal
	}

	if status >= http.StatusInternalServerError {
		sentry.CaptureExceptionWithContext(c.Request.Context(), err)
		if h.metrics != nil {
			h.metrics.RecordHTTPError(http.StatusText(status), module)
		}
	}
	_ = c.Error(err)
	Fail(c, status, message)
}

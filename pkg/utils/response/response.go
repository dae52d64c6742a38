package response

import (
	"net/http"

	"examgrader/pkg/errors"
	"examgrader/pkg/utils/contextkey"
	"examgrader/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorBody is the JSON shape of every non-2xx response.
type ErrorBody struct {
	Error   string                 `json:"error"`
	Code    errors.ErrorCode       `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Error maps err to its code's HTTP status. Server-side failures are logged with the stack.
func Error(c *gin.Context, err error) {
	e := errors.GetError(err)
	status := e.Code.HTTPStatus()

	fields := []zap.Field{
		zap.Int("code", int(e.Code)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if len(e.Details) > 0 {
		fields = append(fields, zap.Any("details", e.Details))
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", append(fields, zap.String("stack", e.Stack))...)
	} else {
		logger.Warn(c.Request.Context(), "request rejected", fields...)
	}

	c.JSON(status, ErrorBody{
		Error:   e.Error(),
		Code:    e.Code,
		Details: e.Details,
		TraceID: traceID(c),
	})
}

// BadRequest rejects a request that failed binding before reaching the service.
func BadRequest(c *gin.Context, message string) {
	Error(c, errors.New(errors.InvalidParams).WithMessage(message))
}

func traceID(c *gin.Context) string {
	return c.GetString(contextkey.TraceID.String())
}

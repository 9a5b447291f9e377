package response

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dotecxy/legado2-sub001/errors"
)

// Response represents the standard API response format
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	URL       string `json:"url,omitempty"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Response codes outside the book error taxonomy
const (
	CodeSuccess         = "OK"
	CodeBadRequest      = "BAD_REQUEST"
	CodeNotFound        = "NOT_FOUND"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeCanceled        = "CANCELED"
	CodeInternalError   = "INTERNAL_ERROR"
)

// getRequestMeta extracts request metadata from context
func getRequestMeta(c *gin.Context) (string, string, int64) {
	return c.GetString("request_id"), c.GetString("trace_id"), time.Now().Unix()
}

// Success sends a successful response
func Success(c *gin.Context, data any) {
	requestID, traceID, timestamp := getRequestMeta(c)
	c.JSON(http.StatusOK, Response{
		Code:      CodeSuccess,
		Data:      data,
		RequestID: requestID,
		TraceID:   traceID,
		Timestamp: timestamp,
	})
}

// Error sends an error response
func Error(c *gin.Context, httpStatus int, code, message string) {
	requestID, traceID, timestamp := getRequestMeta(c)
	c.JSON(httpStatus, Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		TraceID:   traceID,
		Timestamp: timestamp,
	})
}

// BadRequest sends a bad request response
func BadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "bad request"
	}
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

// TooManyRequests sends a too many requests response
func TooManyRequests(c *gin.Context) {
	Error(c, http.StatusTooManyRequests, CodeTooManyRequests, "too many requests")
}

// FromError sends the response matching a book operation error
func FromError(c *gin.Context, err error) {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		Error(c, http.StatusRequestTimeout, CodeCanceled, err.Error())
		return
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		Error(c, http.StatusInternalServerError, CodeInternalError, err.Error())
		return
	}
	requestID, traceID, timestamp := getRequestMeta(c)
	message := appErr.Message
	if appErr.Cause != nil {
		message += ": " + appErr.Cause.Error()
	}
	c.JSON(StatusOf(appErr.Code), Response{
		Code:      appErr.Code,
		Message:   message,
		URL:       appErr.URL,
		RequestID: requestID,
		TraceID:   traceID,
		Timestamp: timestamp,
	})
}

// StatusOf maps a book error code to an HTTP status
func StatusOf(code string) int {
	switch code {
	case errors.CodeSourceInvalid, errors.CodeURLInvalid, errors.CodeRuleInvalid:
		return http.StatusBadRequest
	case errors.CodeTocEmpty, errors.CodeContentEmpty:
		return http.StatusNotFound
	case errors.CodeFetchFailed:
		return http.StatusBadGateway
	case errors.CodeScriptFailed:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

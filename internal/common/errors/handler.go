// internal/common/errors/handler.go
package errors

import (
	"net/http"
)

// ErrorHandler turns any error reaching the transport into a status code and
// a client-safe message, logging the full detail.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Response is the public part of an error; internal detail never goes here.
type Response struct {
	Status  int
	Code    ErrorCode
	Message string
}

// Handle normalizes err, logs it and returns what the caller may see.
func (h *ErrorHandler) Handle(err error, requestID string) Response {
	stdErr := h.normalizeError(err)
	status := HTTPStatus(stdErr.Code)
	h.logError(stdErr, status, requestID)

	resp := Response{Status: status, Code: stdErr.Code}
	switch stdErr.Code {
	case ErrCodeValidation:
		resp.Message = stdErr.Details
		if resp.Message == "" {
			resp.Message = stdErr.Message
		}
	case ErrCodeRateLimited:
		resp.Message = "too many requests, slow down"
	default:
		resp.Message = "internal server error"
	}
	return resp
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

func (h *ErrorHandler) logError(stdErr *StandardError, status int, requestID string) {
	fields := map[string]interface{}{
		"requestId":     requestID,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"status":        status,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
		return
	}
	h.logger.Warn("request rejected", fields)
}

// Package handler exposes the cart API over HTTP with echo.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/dukerupert/dbcart/internal/domain"
	"github.com/dukerupert/dbcart/internal/middleware"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	case domain.ENOTIMPL:
		return http.StatusNotImplemented // 501
	default:
		return http.StatusInternalServerError // 500
	}
}

// ErrorResponse logs err and writes it with the status its code maps to.
// Internal errors are shown with a generic message.
func ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	body := errorBody{Error: errorDetail{
		Code:    code,
		Message: domain.ErrorMessage(err),
		Fields:  domain.GetValidationFields(err),
	}}
	if body.Error.Fields != nil {
		body.Error.Message = "Validation failed"
	}

	logError(r, err, status)
	write(w, r, status, body)
}

// HTTPErrorHandler renders errors returned by echo handlers, including
// echo's own routing errors, in the domain error envelope.
func HTTPErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			message := http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok && m != "" {
				message = m
			}
			if he.Code >= 500 {
				logError(c.Request(), err, he.Code)
			}
			write(c.Response(), c.Request(), he.Code, errorBody{Error: errorDetail{
				Code:    httpStatusToErrorCode(he.Code),
				Message: message,
			}})
			return
		}

		ErrorResponse(c.Response(), c.Request(), err)
	}
}

func httpStatusToErrorCode(status int) string {
	switch {
	case status == http.StatusNotFound:
		return domain.ENOTFOUND
	case status == http.StatusConflict:
		return domain.ECONFLICT
	case status == http.StatusNotImplemented:
		return domain.ENOTIMPL
	case status >= 500:
		return domain.EINTERNAL
	default:
		return domain.EINVALID
	}
}

func logError(r *http.Request, err error, status int) {
	logger := middleware.GetLogger(r.Context())
	attrs := []any{
		"error", err.Error(),
		"code", domain.ErrorCode(err),
		"op", domain.ErrorOp(err),
		"status", status,
	}
	if status >= 500 {
		logger.Error("request failed", attrs...)
	} else {
		logger.Debug("request rejected", attrs...)
	}
}

func write(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	if wantsText(r) {
		http.Error(w, body.Error.Message, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// wantsText reports whether the client asked for text or HTML rather than JSON.
func wantsText(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" || strings.Contains(accept, "application/json") {
		return false
	}
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "text/plain")
}

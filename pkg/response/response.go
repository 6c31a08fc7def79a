package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every content-service endpoint replies with.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo carries a machine-readable code next to the human message.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes shared by the helpers below.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
)

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

// fail aborts the chain so later handlers cannot overwrite the error body.
func fail(c *gin.Context, status int, code, message string, data any) {
	c.AbortWithStatusJSON(status, Response{
		Data:  data,
		Error: &ErrorInfo{Code: code, Message: message},
	})
}

// Success replies 200 with data.
func Success(c *gin.Context, data any) { ok(c, http.StatusOK, data) }

// Created replies 201 with data.
func Created(c *gin.Context, data any) { ok(c, http.StatusCreated, data) }

// Error replies with an arbitrary status and code.
func Error(c *gin.Context, status int, code, message string) {
	fail(c, status, code, message, nil)
}

func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, CodeBadRequest, message, nil)
}

func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, CodeForbidden, message, nil)
}

func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, CodeNotFound, message, nil)
}

func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, CodeConflict, message, nil)
}

// ConflictWithData replies 409 and includes the current server state, so
// a rejected writer can rebase without a second round trip.
func ConflictWithData(c *gin.Context, code, message string, data any) {
	fail(c, http.StatusConflict, code, message, data)
}

func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, CodeInternal, message, nil)
}

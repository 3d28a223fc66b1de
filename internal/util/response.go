package util

import (
	"errors"
	"net/http"

	"github.com/zachsimson/Lockedin/internal/apperr"

	"github.com/gin-gonic/gin"
)

type Response map[string]interface{}

// Business codes are the HTTP status times 100 plus one.
const (
	CodeOK           = 0
	CodeInvalidParam = 40001
	CodeAuth         = 40101
	CodeForbidden    = 40301
	CodeNotFound     = 40401
	CodeConflict     = 40901
	CodeLocked       = 42301
	CodeTooMany      = 42901
	CodeServerErr    = 50001
)

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code": CodeOK,
		"data": data,
	})
}

func Error(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
	})
}

// Fail renders err through the apperr taxonomy. Errors without a code are
// reported as internal and their text is not exposed.
func Fail(c *gin.Context, err error) {
	var appErr *apperr.AppError
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, CodeServerErr, "internal server error")
		return
	}

	status := apperr.HTTPStatus(appErr.Code())
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	body := gin.H{
		"code":    status*100 + 1,
		"error":   appErr.Code(),
		"message": appErr.Message(),
	}
	if d := appErr.Details(); len(d) > 0 {
		body["details"] = d
	}
	c.JSON(status, body)
}

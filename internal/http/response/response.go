package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/haventory/haventory-backend/internal/platform/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAppError maps a typed error onto the envelope using the apperr
// status table; anything untyped is a 500.
func RespondAppError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	if code == "" {
		code = "internal"
	}
	RespondError(c, apperr.HTTPStatus(err), code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

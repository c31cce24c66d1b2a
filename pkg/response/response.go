package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// Account and linking.
const (
	CodeAccountNotFound   = 1001
	CodeInvalidCredential = 1002
	CodeNotLinked         = 1003
)

// Injection.
const (
	CodeInsufficientCredit = 1101
	CodeItemNotFound       = 1102
	CodeInjectionBusy      = 1103
	CodeGrantFailed        = 1110
	CodeMissingInstanceID  = 1111
	CodePartialInjection   = 1112 // item granted, customization failed
	CodeUpstreamTimeout    = 1113
	CodeUpstreamNetwork    = 1114
	CodeCatalogUnavailable = 1120
)

// Top-ups.
const (
	CodeProductNotFound     = 1201
	CodeTransactionNotFound = 1202
	CodeAlreadyResolved     = 1203
	CodeProofRequired       = 1204
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

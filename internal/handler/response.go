package handler

import (
	"errors"
	"net/http"

	"github.com/blues/fundvault/internal/logger"
	"github.com/blues/fundvault/internal/logic"
	"github.com/gin-gonic/gin"
)

// AccountKey 请求身份在 gin.Context 中的键, 由鉴权中间件写入
const AccountKey = "fundvault.account"

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Success: false,
		Message: message,
		Data:    nil,
	})
}

// StatusOf 业务错误对应的 HTTP 状态码
func StatusOf(err error) int {
	switch {
	case errors.Is(err, logic.ErrNotFound), errors.Is(err, logic.ErrFundInactive):
		return http.StatusNotFound
	case errors.Is(err, logic.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, logic.ErrInvalidDate),
		errors.Is(err, logic.ErrInvalidArgument),
		errors.Is(err, logic.ErrInvalidAmount),
		errors.Is(err, logic.ErrAmountOverflow),
		errors.Is(err, logic.ErrBelowReserve):
		return http.StatusBadRequest
	case errors.Is(err, logic.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, logic.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, logic.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// handleError 输出业务错误, 内部错误不向客户端暴露细节
func handleError(c *gin.Context, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		ErrorResponse(c, status, "internal server error")
		return
	}
	ErrorResponse(c, status, err.Error())
}

// currentAccount 当前请求的身份
func currentAccount(c *gin.Context) string {
	return c.GetString(AccountKey)
}

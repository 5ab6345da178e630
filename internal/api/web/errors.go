package web

import (
	"errors"
	"net/http"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeUnknownMethod     ErrorCode = "UNKNOWN_METHOD"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeJobTerminal       ErrorCode = "JOB_TERMINAL"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ErrorResp 统一错误响应
type ErrorResp struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// statusOf 领域错误到 http 状态码的映射
func statusOf(err error) (int, ErrorCode) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, errs.ErrUnknownMethod):
		return http.StatusNotFound, CodeUnknownMethod
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, errs.ErrJobTerminal):
		return http.StatusConflict, CodeJobTerminal
	case errors.Is(err, errs.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, CodeInvalidTransition
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func abortWithError(c *gin.Context, err error, logger *zap.Logger) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("[jdelivery] request failed", zap.Error(err), zap.String("path", c.FullPath()))
		// 内部错误不向调用方暴露细节
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResp{Code: code, Message: msg})
}

package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/JrMarcco/jdelivery/internal/api/web/middleware"
	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/JrMarcco/jdelivery/internal/service/engine"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Validator 请求体校验
type Validator interface {
	Validate() error
}

// DeliveryJobHandler delivery job 的 http 接口
type DeliveryJobHandler struct {
	svc    engine.Service
	logger *zap.Logger
}

// RegisterRoutes 注册路由，callbackMiddlewares 只作用于适配器回调接口。
func (h *DeliveryJobHandler) RegisterRoutes(r gin.IRouter, callbackMiddlewares ...gin.HandlerFunc) {
	jobs := r.Group("/jobs")
	jobs.POST("", h.CreateJob)
	jobs.GET("", h.ListJobs)
	jobs.GET("/:id", h.GetJob)
	jobs.GET("/:id/history", h.History)
	jobs.POST("/:id/cancel", h.Cancel)
	jobs.POST("/:id/advance", h.Advance)

	callbacks := jobs.Group("/:id/methods/:methodId", callbackMiddlewares...)
	callbacks.POST("/attempt", h.RecordAttempt)
	callbacks.POST("/confirm", h.RecordConfirm)
	callbacks.POST("/fail", h.RecordFail)
}

func (h *DeliveryJobHandler) CreateJob(c *gin.Context) {
	var req CreateJobReq
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.CreateJob(c.Request.Context(), req.toDomain())
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *DeliveryJobHandler) ListJobs(c *gin.Context) {
	var req ListJobsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid query: %w", errs.ErrValidation, err), h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		abortWithError(c, err, h.logger)
		return
	}

	jobs, err := h.svc.ListJobs(c.Request.Context(), req.toDomain())
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *DeliveryJobHandler) GetJob(c *gin.Context) {
	job, err := h.svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *DeliveryJobHandler) History(c *gin.Context) {
	from, err := parseTime(c.Query("from"))
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}

	history, err := h.svc.History(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *DeliveryJobHandler) Cancel(c *gin.Context) {
	var req CancelReq
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req.Actor)
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *DeliveryJobHandler) Advance(c *gin.Context) {
	job, err := h.svc.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *DeliveryJobHandler) RecordAttempt(c *gin.Context) {
	var req AttemptReq
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RecordAttempt(c.Request.Context(), c.Param("id"), c.Param("methodId"), req.toDomain())
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *DeliveryJobHandler) RecordConfirm(c *gin.Context) {
	var req ConfirmReq
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RecordConfirm(c.Request.Context(), c.Param("id"), c.Param("methodId"), req.toDomain())
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *DeliveryJobHandler) RecordFail(c *gin.Context) {
	var req FailReq
	if !h.bind(c, &req) {
		return
	}

	job, err := h.svc.RecordFail(c.Request.Context(), c.Param("id"), c.Param("methodId"), req.toDomain())
	if err != nil {
		abortWithError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, job)
}

// actorSetter 回调请求的 actor 以 token 中的身份为准
type actorSetter interface {
	setActor(actor string)
}

// bind 解析并校验请求体。
func (h *DeliveryJobHandler) bind(c *gin.Context, req Validator) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid request body: %w", errs.ErrValidation, err), h.logger)
		return false
	}
	if as, ok := req.(actorSetter); ok {
		if actor := middleware.ActorFrom(c); actor != "" {
			as.setActor(actor)
		}
	}
	if err := req.Validate(); err != nil {
		abortWithError(c, err, h.logger)
		return false
	}
	return true
}

func parseTime(val string) (time.Time, error) {
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid time %q, expect ISO-8601", errs.ErrValidation, val)
	}
	return t.UTC(), nil
}

func NewDeliveryJobHandler(svc engine.Service, logger *zap.Logger) *DeliveryJobHandler {
	return &DeliveryJobHandler{
		svc:    svc,
		logger: logger,
	}
}

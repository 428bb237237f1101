package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go-approvals/internal/api/dto"
	"go-approvals/internal/domain"
	"go-approvals/internal/metrics"
	"go-approvals/internal/notify"
	"go-approvals/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActorHeader carries the authenticated user id. Authentication itself
// happens in front of this service.
const ActorHeader = "X-Actor-ID"

type ApprovalHandler struct {
	service service.ApprovalService
	hub     *notify.Hub
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewApprovalHandler(svc service.ApprovalService, hub *notify.Hub, m *metrics.Metrics, logger *zap.Logger) *ApprovalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalHandler{service: svc, hub: hub, metrics: m, logger: logger}
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(h *ApprovalHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.observe())

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/definitions", h.CreateDefinition)
		api.GET("/definitions/:id", h.GetDefinition)

		api.POST("/instances", h.StartWorkflow)
		api.GET("/instances/:id", h.GetInstance)
		api.GET("/instances/:id/history", h.GetHistory)
		api.POST("/instances/:id/cancel", h.CancelInstance)
		api.POST("/instances/:id/resubmit", h.ResubmitInstance)

		api.POST("/steps/:id/decision", h.SubmitDecision)
		api.POST("/steps/:id/reassign", h.ReassignStep)

		api.GET("/approvals", h.ListApprovals)
		api.POST("/escalations/sweep", h.RunSweep)

		api.GET("/events", h.StreamEvents)
		api.GET("/events/ws", h.EventsWebSocket)
	}
	return router
}

func (h *ApprovalHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidDecision),
		errors.Is(err, domain.ErrInvalidDefinition),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStaleState),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnroutableStep):
		return http.StatusUnprocessableEntity
	case errors.Is(err, notify.ErrTooManySubscribers):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *ApprovalHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: err.Error()})
}

func (h *ApprovalHandler) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
}

func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", c.Param("id"))
	}
	return id, nil
}

func actorID(c *gin.Context) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.GetHeader(ActorHeader))
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s header is required", ActorHeader)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s header", ActorHeader)
	}
	return id, nil
}

func companyQuery(c *gin.Context, required bool) (uuid.UUID, error) {
	raw := c.Query("company_id")
	if raw == "" {
		if required {
			return uuid.Nil, errors.New("company_id is required")
		}
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid company_id %q", raw)
	}
	return id, nil
}

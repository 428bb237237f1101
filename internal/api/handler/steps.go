package handler

import (
	"net/http"

	"go-approvals/internal/api/dto"

	"github.com/gin-gonic/gin"
)

func (h *ApprovalHandler) SubmitDecision(c *gin.Context) {
	stepID, err := pathID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	actor, err := actorID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := h.service.SubmitDecision(c.Request.Context(), stepID, actor, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewInstanceResponse(state))
}

func (h *ApprovalHandler) ReassignStep(c *gin.Context) {
	stepID, err := pathID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	actor, err := actorID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	var req dto.ReassignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := h.service.Reassign(c.Request.Context(), stepID, actor, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewInstanceResponse(state))
}

// ListApprovals is the actor's inbox of pending steps.
func (h *ApprovalHandler) ListApprovals(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	company, err := companyQuery(c, true)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	steps, err := h.service.PendingApprovals(c.Request.Context(), company, actor)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewStepResponses(steps))
}

func (h *ApprovalHandler) RunSweep(c *gin.Context) {
	var req dto.SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	report, err := h.service.RunSweep(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

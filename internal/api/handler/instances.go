package handler

import (
	"net/http"

	"go-approvals/internal/api/dto"

	"github.com/gin-gonic/gin"
)

func (h *ApprovalHandler) StartWorkflow(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	var req dto.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := h.service.StartWorkflow(c.Request.Context(), actor, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewInstanceResponse(state))
}

func (h *ApprovalHandler) GetInstance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := h.service.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewInstanceResponse(state))
}

func (h *ApprovalHandler) GetHistory(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	transitions, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransitionResponses(transitions))
}

func (h *ApprovalHandler) CancelInstance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	actor, err := actorID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	// The body is optional.
	var req dto.CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	state, err := h.service.Cancel(c.Request.Context(), id, actor, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewInstanceResponse(state))
}

func (h *ApprovalHandler) ResubmitInstance(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	actor, err := actorID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	state, err := h.service.Resubmit(c.Request.Context(), id, actor)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewInstanceResponse(state))
}

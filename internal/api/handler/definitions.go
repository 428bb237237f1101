package handler

import (
	"net/http"

	"go-approvals/internal/api/dto"

	"github.com/gin-gonic/gin"
)

func (h *ApprovalHandler) CreateDefinition(c *gin.Context) {
	var req dto.CreateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	def, err := h.service.CreateDefinition(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewDefinitionResponse(def))
}

func (h *ApprovalHandler) GetDefinition(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	def, err := h.service.GetDefinition(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewDefinitionResponse(def))
}

package handler

import (
	"time"

	"github.com/gin-gonic/gin"
)

// observe records one request counter sample per handled route.
func (h *ApprovalHandler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		h.metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

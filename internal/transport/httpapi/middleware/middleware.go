package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stocktracker/utils"
)

// RequestID takes the X-Request-ID header or mints a fresh id, reflects it in
// the response and stores it in the request context for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rqID := c.GetHeader("X-Request-ID")
		if rqID == "" {
			rqID = uuid.NewString()
		}

		c.Writer.Header().Set("X-Request-ID", rqID)
		c.Request = c.Request.WithContext(utils.CtxWithRqID(c.Request.Context(), rqID))

		c.Next()
	}
}

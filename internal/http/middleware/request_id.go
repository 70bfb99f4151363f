package middleware

import (
	"github.com/ashtonliu88/diff-digest/common/id"
	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-Id"

// RequestID tags every request with a snowflake ID, returned in the response
// header and attached to the request context as the session log field.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := id.New()
		c.Header(RequestIDHeader, id.Format(sessionID))

		ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
			SessionID: &sessionID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/pitstophq/pitstop/internal/auditctx"
)

const headerActor = "X-Actor-ID"

// RequestMeta copies actor metadata off the request into context so the
// audit side-channel can stamp activities without seeing the HTTP layer.
func RequestMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auditctx.WithMeta(c.Request.Context(), auditctx.Meta{
			ActorID:   c.GetHeader(headerActor),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/haventory/haventory-backend/internal/platform/ctxutil"
)

// AttachRequestContext seeds every request with RequestData so downstream
// code can always rely on a request id; auth fills in the user later.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			RequestID: uuid.NewString(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

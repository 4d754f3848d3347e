package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/lenderinbox/internal/utils"
)

// CustomContextMiddleware adds custom context to all requests
func CustomContextMiddleware(appSource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.SetAppSourceInContext(c.Request.Context(), appSource)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

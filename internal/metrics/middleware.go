package metrics

import "github.com/gin-gonic/gin"

// RequestMiddleware records request and error counts for every HTTP request.
func RequestMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.IncRequests()
		if c.Writer.Status() >= 400 {
			m.IncErrors()
		}
	}
}

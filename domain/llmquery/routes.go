package llmquery

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the query pipeline routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	api := e.Group("/api")
	api.POST("/query", handler.SubmitQuery)
	api.GET("/query/:id", handler.GetQuery)
}

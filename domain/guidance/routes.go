package guidance

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the fuzzy retrieval routes
func RegisterRoutes(e *echo.Echo, handler *Handler) {
	api := e.Group("/api")
	api.POST("/search/fuzzy", handler.SearchFuzzy)
	api.GET("/topics", handler.Topics)
	api.GET("/links", handler.Links)
}

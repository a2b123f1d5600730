package gateway

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the tour API on api, normally the /api group
func RegisterRoutes(api *gin.RouterGroup, h *Handler, stream *TourStream) {
	api.GET("/manifolds", h.ListManifolds)

	// Tour routes
	api.POST("/tours/generate", h.GenerateTour)
	api.POST("/tours/solve", h.SolveTour)
	api.GET("/solve", h.SolveQuery)

	// Run history
	api.GET("/runs", h.ListRuns)

	// WebSocket routes
	api.GET("/ws/tours", stream.StreamTour)
}

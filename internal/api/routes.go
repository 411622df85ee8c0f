package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if h.svc.Images != nil {
		router.GET("/images/:id", h.image)
	}

	api := router.Group("/api", requireActor())

	api.POST("/products", h.createProduct)
	api.GET("/products", h.listProducts)
	api.GET("/products/:id", h.getProduct)

	api.POST("/inspections", h.createInspection)
	api.GET("/inspections", h.listInspections)
	api.GET("/inspections/:id", h.getInspection)
	api.PATCH("/inspections/:id", h.updateInspection)
	api.DELETE("/inspections/:id", h.deleteInspection)
	api.POST("/inspections/:id/complete", h.completeInspection)
	api.POST("/inspections/:id/images", h.uploadImages)

	api.POST("/defects", h.createDefect)
	api.POST("/defects/bulk", h.bulkCreateDefects)
	api.GET("/defects", h.listDefects)
	api.GET("/defects/:id", h.getDefect)
	api.PATCH("/defects/:id", h.updateDefect)
	api.DELETE("/defects/:id", h.deleteDefect)
	api.POST("/defects/:id/resolve", h.resolveDefect)

	api.GET("/stats/defects", h.defectStats)
	api.GET("/activities", h.listActivities)
	api.GET("/events", h.events)
}

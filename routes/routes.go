package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-attentionmap/clustering"
	"go-attentionmap/config"
	"go-attentionmap/db"
	"go-attentionmap/gamification"
	"go-attentionmap/handlers"
	"go-attentionmap/hub"
)

func SetupRouter(store db.Store, engine *clustering.Engine, h *hub.Hub, gamify *gamification.Service, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Attention Map API",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/events", func(c *gin.Context) {
			handlers.CreateEventHandler(c, engine, gamify)
		})
		api.GET("/events", func(c *gin.Context) {
			handlers.ListEventsHandler(c, store)
		})
		api.GET("/events/stream", func(c *gin.Context) {
			handlers.StreamEventsHandler(c, h, cfg.Stream.KeepAlive)
		})
		api.GET("/events/:id", func(c *gin.Context) {
			handlers.GetEventHandler(c, store)
		})
		api.PATCH("/events/:id/status", func(c *gin.Context) {
			handlers.UpdateEventStatusHandler(c, store, h, gamify)
		})

		api.GET("/clusters", func(c *gin.Context) {
			handlers.ListClustersHandler(c, store)
		})
		api.GET("/clusters/:id", func(c *gin.Context) {
			handlers.GetClusterHandler(c, store)
		})

		api.GET("/stats/summary", func(c *gin.Context) {
			handlers.StatsHandler(c, store)
		})

		api.GET("/profiles/:id", func(c *gin.Context) {
			handlers.GetProfileHandler(c, store)
		})
		api.GET("/badges", handlers.ListBadgesHandler)

		api.POST("/simulate", func(c *gin.Context) {
			handlers.SimulateHandler(c, engine)
		})
	}

	return r
}

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter creates and configures the gin router. InitTaskManager and
// InitScheduler must have been called first.
func SetupRouter() *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/transfers", StartTransfer)
		api.GET("/transfers", ListTransfers)
		api.GET("/transfers/:id", GetTransfer)
		api.DELETE("/transfers/:id", CancelTransfer)

		api.POST("/schedules", CreateSchedule)
		api.GET("/schedules", ListSchedules)
		api.GET("/schedules/stats", GetSchedulerStats)
		api.GET("/schedules/:id", GetSchedule)
		api.PUT("/schedules/:id", UpdateSchedule)
		api.DELETE("/schedules/:id", DeleteSchedule)
		api.POST("/schedules/:id/enable", EnableSchedule)
		api.POST("/schedules/:id/disable", DisableSchedule)
		api.POST("/schedules/:id/run", RunScheduleNow)
	}

	return router
}

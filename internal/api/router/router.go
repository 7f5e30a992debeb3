package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/glue-pipeline/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "pipeline-service",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "pipeline-service",
		})
	})

	executionHandler := handler.NewExecutionHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// GET /api/v1/definition - State machine document
		v1.GET("/definition", executionHandler.GetDefinition)

		executions := v1.Group("/executions")
		{
			// POST /api/v1/executions - Start an execution
			executions.POST("", executionHandler.StartExecution)

			// GET /api/v1/executions - List executions with pagination
			executions.GET("", executionHandler.ListExecutions)

			// GET /api/v1/executions/:execution_id - Execution with history
			executions.GET("/:execution_id", executionHandler.GetExecution)
		}

		runs := v1.Group("/jobs/runs")
		{
			// GET /api/v1/jobs/runs - List job runs with pagination
			runs.GET("", jobHandler.ListJobRuns)

			// GET /api/v1/jobs/runs/:run_id - Job run details
			runs.GET("/:run_id", jobHandler.GetJobRun)

			// POST /api/v1/jobs/runs/:run_id/stop - Stop an active job run
			runs.POST("/:run_id/stop", jobHandler.StopJobRun)
		}
	}

	return r
}

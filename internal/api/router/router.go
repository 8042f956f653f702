package router

import (
	"net/http"

	"github.com/cloudpipe/cloudpipe/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config carries the handler dependencies plus the API credentials enforced
// on every /api/v1 route.
type Config struct {
	Deps      *handler.Dependencies
	APIKey    string
	APISecret string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(cfg *Config) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(cfg.Deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "cloudpipe-api",
		})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobHandler := handler.NewJobHandler(cfg.Deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.APIKey, cfg.APISecret))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a new job
			jobs.POST("", jobHandler.SubmitJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/kill - Request job cancellation
			jobs.POST("/:job_id/kill", jobHandler.KillJob)

			// GET /api/v1/jobs/:job_id/result - Get the result of a finished job
			jobs.GET("/:job_id/result", jobHandler.GetJobResult)
		}
	}

	return r
}

// api/routes/router.go
package routes

import (
	"fmt"
	"net/http"
	"time"

	"medqueue/internal/notifications"
	"medqueue/internal/queues"
	"medqueue/internal/shared/config"
	"medqueue/internal/shared/database"
	"medqueue/pkg/cache"
	"medqueue/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Router holds all route dependencies
type Router struct {
	config   *config.Config
	db       *database.DB
	log      *logger.Logger
	producer *notifications.KafkaTransitionProducer
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, log *logger.Logger, producer *notifications.KafkaTransitionProducer) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		log:      log,
		producer: producer,
	}
}

// SetupRoutes configures all application routes. Registering the custom
// binding validators can fail; without them the transition and priority
// endpoints would accept arbitrary strings, so the error aborts startup.
func (r *Router) SetupRoutes(engine *gin.Engine) error {
	if err := queues.RegisterValidations(); err != nil {
		return fmt.Errorf("failed to register request validations: %w", err)
	}

	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	// API routes
	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupQueueRoutes(api)
	}
	return nil
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "medqueue",
			})
			return
		}

		if r.producer != nil {
			if err := r.producer.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":    "degraded",
					"error":     err.Error(),
					"timestamp": time.Now(),
					"service":   "medqueue",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "medqueue",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}

// setupQueueRoutes wires the queue engine: repository, cache, notifier,
// service, controller.
func (r *Router) setupQueueRoutes(rg *gin.RouterGroup) {
	cacheService := cache.NewService(r.db.GetRedisClient())

	queueRepo := queues.NewRepository(r.db.GetPostgreSQL(), r.config.Queue.LockWait)

	// The producer is optional; a nil notifier degrades to a no-op hand-off.
	var notifier queues.Notifier
	if r.producer != nil {
		notifier = r.producer
	}

	queueService := queues.NewService(queueRepo, notifier, cacheService, r.log)
	queueController := queues.NewController(queueService)

	queues.SetupQueueRoutes(rg, queueController)
}

package queues

import (
	"medqueue/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupQueueRoutes(rg *gin.RouterGroup, controller *Controller) {
	// Queue routes
	queues := rg.Group("/queues")
	queues.Use(middleware.JWTAuth(), middleware.RequireAnyRole())
	{
		queues.GET("", controller.ListQueues)                 // GET /api/v1/queues
		queues.GET("/:queue_id", controller.ListQueue)        // GET /api/v1/queues/:queue_id
		queues.POST("/:queue_id/items", controller.Enroll)    // POST /api/v1/queues/:queue_id/items
	}

	// Queue item routes
	items := rg.Group("/queue-items")
	items.Use(middleware.JWTAuth(), middleware.RequireAnyRole())
	{
		items.GET("/:id", controller.GetItem)                          // GET /api/v1/queue-items/:id
		items.POST("/:id/transitions", controller.RequestTransition)   // POST /api/v1/queue-items/:id/transitions
		items.PUT("/:id/priority", controller.SetPriority)             // PUT /api/v1/queue-items/:id/priority
	}

	// Administrative aggregate views
	admin := rg.Group("/admin/queues")
	admin.Use(middleware.JWTAuth(), middleware.RequireAdministrative())
	{
		admin.GET("/stats", controller.GetStats) // GET /api/v1/admin/queues/stats
	}
}

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ali-irt/Karigar/internal/common"
	"github.com/ali-irt/Karigar/internal/config"
	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/httpapi/handlers"
	"github.com/ali-irt/Karigar/internal/httpapi/middleware"
	"github.com/ali-irt/Karigar/internal/realtime"
)

func NewRouter(db *gorm.DB, cfg config.Config, svc *dispatch.Service, hub *realtime.Hub) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, svc)
	ws := realtime.NewHandler(hub, svc, cfg.JWTSecret)

	r.GET("/ping", h.Ping)

	// CRUD users register
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	// realtime endpoint; authorizes via query token inside the handler
	// because browser websocket clients cannot set headers
	r.GET("/ws/jobs/:id", ws.HandleConnection)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(db, cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.PUT("/me/availability", h.SetAvailability)

	// Jobs (JWT required)
	authGroup.POST("/jobs", h.CreateJob)
	authGroup.GET("/jobs/available", h.ListAvailableJobs)
	authGroup.GET("/jobs/:id", h.GetJob)
	authGroup.POST("/jobs/:id/accept", h.AcceptJob)
	authGroup.POST("/jobs/:id/start", h.StartJob)
	authGroup.POST("/jobs/:id/complete", h.CompleteJob)
	authGroup.POST("/jobs/:id/cancel", h.CancelJob)
	authGroup.GET("/jobs/:id/messages", h.ListJobMessages)
	authGroup.GET("/jobs/:id/locations", h.ListJobLocations)

	return r
}

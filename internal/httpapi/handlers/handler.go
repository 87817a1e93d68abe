package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ali-irt/Karigar/internal/config"
	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/httpapi/middleware"
)

type Handler struct {
	DB  *gorm.DB
	Cfg config.Config
	Svc *dispatch.Service
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *dispatch.Service) *Handler {
	return &Handler{DB: db, Cfg: cfg, Svc: svc}
}

func (h *Handler) Ping(c *gin.Context) {
	c.JSON(200, gin.H{"message": "pong"})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func roleFromContext(c *gin.Context) string {
	v, ok := c.Get(middleware.RoleKey)
	if !ok {
		return ""
	}
	role, _ := v.(string)
	return role
}

package realtime

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ali-irt/Karigar/internal/auth"
	"github.com/ali-irt/Karigar/internal/dispatch"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades realtime connections and walks each one through
// authorizing -> joined. Unauthenticated or non-participant callers are
// closed without a message.
type Handler struct {
	hub       *Hub
	svc       *dispatch.Service
	jwtSecret string
}

func NewHandler(hub *Hub, svc *dispatch.Service, jwtSecret string) *Handler {
	return &Handler{hub: hub, svc: svc, jwtSecret: jwtSecret}
}

// HandleConnection serves GET /ws/jobs/:id. The token rides in the query
// string because browser websocket clients cannot set headers.
func (h *Handler) HandleConnection(c *gin.Context) {
	jobID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade job=%s err=%v", jobID, err)
		return
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	claims, err := auth.ParseJWT(token, h.jwtSecret)
	if err != nil {
		conn.Close()
		return
	}

	ctx := c.Request.Context()
	user, err := h.svc.GetUser(ctx, claims.UserID)
	if err != nil || user.IsSuspended {
		conn.Close()
		return
	}

	job, err := h.svc.GetJob(ctx, jobID)
	if err != nil {
		conn.Close()
		return
	}
	if !h.svc.IsParticipant(job, user.ID, user.Role) {
		conn.Close()
		return
	}

	client := NewClient(h.hub, h.svc, conn, job.ID, user)
	h.hub.Join(client)

	// ack goes to this connection only
	client.reply(map[string]any{
		"type":    "connection_established",
		"message": fmt.Sprintf("Connected to job %s channel.", job.ID),
	})

	go client.WritePump()
	go client.ReadPump()
}

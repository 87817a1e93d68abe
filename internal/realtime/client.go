package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	persistTimeout = 5 * time.Second
)

// Client is one joined connection: a participant of one job's group.
type Client struct {
	id    string
	jobID string
	user  *models.User

	hub  *Hub
	svc  *dispatch.Service
	conn *websocket.Conn
	send chan []byte
}

func NewClient(hub *Hub, svc *dispatch.Service, conn *websocket.Conn, jobID string, user *models.User) *Client {
	return &Client{
		id:    uuid.New().String(),
		jobID: jobID,
		user:  user,
		hub:   hub,
		svc:   svc,
		conn:  conn,
		send:  make(chan []byte, 256),
	}
}

type inboundFrame struct {
	Type      string   `json:"type"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Text      string   `json:"text"`
}

// ReadPump pumps frames from the connection into the handlers. It owns the
// connection teardown: on exit the client leaves its group and the write
// pump is released by closing send.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Leave(c)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws read client=%s job=%s err=%v", c.id, c.jobID, err)
			}
			break
		}
		c.handleFrame(data)
	}
}

// WritePump pumps broadcast frames from the hub to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("ws write client=%s job=%s err=%v", c.id, c.jobID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound frame. Malformed frames are dropped
// silently; a live stream is not worth closing over occasional bad input.
// Only an unknown type gets an error reply, and only to the sender.
func (c *Client) handleFrame(data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return
	}

	switch f.Type {
	case "location_update":
		c.handleLocationUpdate(f)
	case "chat_message":
		c.handleChatMessage(f)
	default:
		c.reply(map[string]any{
			"type":    "error",
			"message": "Invalid message type.",
		})
	}
}

func (c *Client) handleLocationUpdate(f inboundFrame) {
	if f.Latitude == nil || f.Longitude == nil {
		return
	}
	lat, lon := *f.Latitude, *f.Longitude

	// The durable write runs off the read loop so a slow insert never stalls
	// delivery. If it fails we log and broadcast anyway.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if _, err := c.svc.RecordLocation(ctx, c.jobID, c.user.ID, c.user.Role, lat, lon); err != nil {
			log.Printf("record location job=%s user=%d err=%v", c.jobID, c.user.ID, err)
		}
	}()

	c.broadcast(map[string]any{
		"type":        "location_update",
		"sender_id":   c.user.ID,
		"sender_role": c.user.Role,
		"latitude":    lat,
		"longitude":   lon,
		"timestamp":   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (c *Client) handleChatMessage(f inboundFrame) {
	if f.Text == "" {
		return
	}

	// Persist first so the broadcast carries the stored row and its id. If
	// the write fails the message still goes out, just without a row id; the
	// bounded timeout keeps a stuck database from holding the message back
	// indefinitely.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		msg, err := c.svc.SaveChatMessage(ctx, c.jobID, c.user, f.Text)
		if err != nil {
			log.Printf("save chat message job=%s user=%d err=%v", c.jobID, c.user.ID, err)
			msg = &dispatch.ChatMessage{
				JobID:      c.jobID,
				SenderID:   c.user.ID,
				SenderName: c.user.Name,
				SenderRole: c.user.Role,
				Text:       f.Text,
				CreatedAt:  time.Now().UTC(),
			}
		}
		c.broadcast(map[string]any{
			"type":    "chat_message",
			"message": msg,
		})
	}()
}

func (c *Client) broadcast(frame map[string]any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("marshal frame job=%s err=%v", c.jobID, err)
		return
	}
	c.hub.Broadcast(c.jobID, payload)
}

// reply sends a frame to this connection only.
func (c *Client) reply(frame map[string]any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

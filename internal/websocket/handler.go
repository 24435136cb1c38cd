package websocket

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs registers the connection and blocks until it closes.
func ServeWs(hub *Hub, asker Asker, c *websocket.Conn, userID uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		Hub:    hub,
		Asker:  asker,
		Conn:   c,
		UserID: userID,
		Send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
	}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}

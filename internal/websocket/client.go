package websocket

import (
	"context"
	"encoding/json"
	"time"

	"ai-memory-agent-be/pkg/agent/orchestrator"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Asker runs one question and streams its events into out. out is closed by the callee.
type Asker interface {
	AskStream(ctx context.Context, userID uuid.UUID, question string, out chan<- orchestrator.Event) error
}

// inbound is a message sent by the browser
type inbound struct {
	Type     string `json:"type"`
	Question string `json:"question"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub   *Hub
	Asker Asker

	Conn *websocket.Conn

	UserID uuid.UUID

	// Buffered channel of outbound messages.
	Send chan []byte

	ctx    context.Context
	cancel context.CancelFunc
}

// readPump reads "ask" messages and starts a run for each.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"user_id": c.UserID, "error": err.Error()})
			}
			break
		}

		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "ask" || msg.Question == "" {
			c.reply(Message{Type: "invalid_message", Data: map[string]string{"message": "expected {\"type\":\"ask\",\"question\":\"...\"}"}})
			continue
		}
		if c.Asker == nil {
			continue
		}
		go c.ask(msg.Question)
	}
}

func (c *Client) ask(question string) {
	events := make(chan orchestrator.Event)
	go func() {
		if err := c.Asker.AskStream(c.ctx, c.UserID, question, events); err != nil {
			c.Hub.logger.Warn("Client", "Ask over websocket failed", map[string]interface{}{"user_id": c.UserID, "error": err.Error()})
		}
	}()

	for e := range events {
		msg := Message{Type: "agent_event", Data: e}
		if e.Kind == orchestrator.EventComplete {
			msg.RunId = e.RunID.String()
		}
		c.reply(msg)
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	case <-c.ctx.Done():
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			// one frame per message; clients parse each frame as a single JSON value
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

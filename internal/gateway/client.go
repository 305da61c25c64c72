package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single websocket peer owned by one authenticated user.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID int64
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: batch queued frames into a single
			// websocket message with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		// The only inbound message is an application-level ping
		var in struct {
			Ping float64 `json:"ping"`
		}
		if json.Unmarshal(msg, &in) != nil || in.Ping == 0 {
			continue
		}
		pong, _ := json.Marshal(pongFrame{
			Type:     framePong,
			Ping:     in.Ping,
			ServerTS: time.Now().UnixMilli(),
		})
		select {
		case c.send <- pong:
		default:
		}
	}
}

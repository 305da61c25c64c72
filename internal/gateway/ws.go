package gateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ignition-scanner/internal/model"
)

// closeUnauthorized is the close code sent when token validation fails,
// distinguishable from transport errors on the frontend.
const closeUnauthorized = 4401

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// TokenAuth resolves the authenticated user from an HTTP request.
type TokenAuth interface {
	FromRequest(r *http.Request) (model.User, error)
}

// Handler upgrades trigger-feed websocket connections. The connection is
// upgraded first and authenticated after, so rejections arrive as a
// websocket close frame with code 4401 instead of an HTTP error the
// browser cannot inspect.
type Handler struct {
	hub   *Hub
	auth  TokenAuth
	prefs model.PreferenceStore
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(hub *Hub, auth TokenAuth, prefs model.PreferenceStore) *Handler {
	return &Handler{hub: hub, auth: auth, prefs: prefs}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[scanserver] ws upgrade failed: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	user, err := h.auth.FromRequest(r)
	if err != nil {
		log.Printf("[scanserver] ws auth rejected: %v", err)
		msg := websocket.FormatCloseMessage(closeUnauthorized, "invalid token")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, h.hub.sendBuf),
		hub:    h.hub,
		userID: user.ID,
	}

	// Queue the greeting and the replay backlog before registering the
	// client, so a concurrent RemoveClient cannot close the channel
	// while we write to it.
	if hello, err := HelloFrame(user.ID, time.Now().UTC()); err == nil {
		client.send <- hello
	}
	h.queueReplay(client)

	h.hub.register(client)
	go client.writePump()
	go client.readPump()
}

// queueReplay copies retained trigger frames into the client's queue,
// skipping those the user has cleared.
func (h *Handler) queueReplay(c *Client) {
	entries := h.hub.ReplayEntries()
	if len(entries) == 0 {
		return
	}

	settings, err := h.prefs.GetSettings(context.Background(), c.userID)
	if err != nil {
		log.Printf("[scanserver] ws replay: settings for user=%d: %v", c.userID, err)
	}

	for _, e := range entries {
		if err == nil && settings.ClearedBefore(e.At) {
			continue
		}
		select {
		case c.send <- e.Frame:
		default:
			return
		}
	}
}

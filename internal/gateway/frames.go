package gateway

import (
	"encoding/json"
	"time"

	"ignition-scanner/internal/model"
)

// Frame type discriminators on the websocket wire.
const (
	frameTrigger = "trigger"
	frameHot5    = "hot5"
	frameHello   = "hello"
	framePong    = "pong"
)

// triggerFrame is a trigger event pushed to followers. The event fields
// stay flat next to type and ts.
type triggerFrame struct {
	Type string  `json:"type"`
	TS   float64 `json:"ts"`
	model.EventWire
}

// hot5Frame carries the per-tick hotlist for live-feed users.
type hot5Frame struct {
	Type  string           `json:"type"`
	TS    float64          `json:"ts"`
	Items []model.Hot5Item `json:"items"`
}

// helloFrame is the first frame on every accepted connection.
type helloFrame struct {
	Type   string  `json:"type"`
	TS     float64 `json:"ts"`
	UserID int64   `json:"user_id"`
}

type pongFrame struct {
	Type     string  `json:"type"`
	Ping     float64 `json:"ping"`
	ServerTS int64   `json:"server_ts"`
}

// pubEnvelope is the Redis pub/sub wrapper carried on the events channel.
// The frame is pre-serialized by the publisher so every scanserver replica
// forwards identical bytes.
type pubEnvelope struct {
	Kind    string          `json:"kind"`
	UserIDs []int64         `json:"user_ids"`
	At      time.Time       `json:"at"`
	Frame   json.RawMessage `json:"frame"`
}

// unixFloat converts a time to fractional unix seconds. Microsecond
// resolution keeps the value exact in a float64; nanoseconds would not.
func unixFloat(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// TriggerFrame serializes a trigger event for the websocket wire.
func TriggerFrame(ev *model.TriggerEvent, now time.Time) ([]byte, error) {
	return json.Marshal(triggerFrame{
		Type:      frameTrigger,
		TS:        unixFloat(now),
		EventWire: ev.Wire(now),
	})
}

// Hot5Frame serializes a hotlist snapshot for the websocket wire.
func Hot5Frame(items []model.Hot5Item, now time.Time) ([]byte, error) {
	if items == nil {
		items = []model.Hot5Item{}
	}
	return json.Marshal(hot5Frame{
		Type:  frameHot5,
		TS:    unixFloat(now),
		Items: items,
	})
}

// HelloFrame serializes the connection greeting.
func HelloFrame(userID int64, now time.Time) ([]byte, error) {
	return json.Marshal(helloFrame{
		Type:   frameHello,
		TS:     unixFloat(now),
		UserID: userID,
	})
}

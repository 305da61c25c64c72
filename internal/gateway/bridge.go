package gateway

import (
	"context"
	"encoding/json"
	"log"

	"ignition-scanner/internal/barstore"
)

// Bridge consumes the Redis events channel and feeds the hub. Each
// scanserver replica runs one bridge; triggers also land in the replay
// ring so reconnecting clients catch up.
type Bridge struct {
	store *barstore.Store
	hub   *Hub
}

// NewBridge creates a bridge between the events channel and the hub.
func NewBridge(store *barstore.Store, hub *Hub) *Bridge {
	return &Bridge{store: store, hub: hub}
}

// Run subscribes to the events channel and dispatches frames until ctx
// is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub, err := b.store.Subscribe(ctx, barstore.EventsChannel)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	log.Printf("[scanserver] subscribed to %s", barstore.EventsChannel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.dispatch([]byte(msg.Payload))
		}
	}
}

// dispatch routes one envelope from the events channel.
func (b *Bridge) dispatch(payload []byte) {
	var env pubEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("[scanserver] bad envelope on %s: %v", barstore.EventsChannel, err)
		return
	}

	switch env.Kind {
	case frameTrigger:
		b.hub.RecordTrigger(env.At, env.Frame)
		sent := b.hub.SendToUsers(env.UserIDs, env.Frame)
		log.Printf("[scanserver] trigger frame queued to %d connections", sent)
	case frameHot5:
		b.hub.SendToUsers(env.UserIDs, env.Frame)
	default:
		log.Printf("[scanserver] unknown envelope kind %q", env.Kind)
	}
}

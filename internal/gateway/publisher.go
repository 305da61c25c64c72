package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ignition-scanner/internal/barstore"
	"ignition-scanner/internal/model"
)

// eventPublisher is the pub/sub slice of the bar store the publisher needs.
type eventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Publisher serializes trigger and hotlist frames and puts them on the
// events channel for every scanserver replica to fan out.
type Publisher struct {
	pub     eventPublisher
	channel string
}

// NewPublisher creates a publisher on the scanner events channel.
func NewPublisher(pub eventPublisher) *Publisher {
	return &Publisher{pub: pub, channel: barstore.EventsChannel}
}

// PublishTrigger sends a trigger frame addressed to userIDs. Published
// even with no recipients so replicas retain the frame for replay.
func (p *Publisher) PublishTrigger(ctx context.Context, ev *model.TriggerEvent, userIDs []int64) error {
	frame, err := TriggerFrame(ev, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("encode trigger frame: %w", err)
	}
	return p.publish(ctx, pubEnvelope{
		Kind:    frameTrigger,
		UserIDs: userIDs,
		At:      ev.TriggeredAt,
		Frame:   frame,
	})
}

// PublishHot5 sends a hotlist frame addressed to userIDs. Hotlist frames
// are ephemeral, so no recipients means nothing to publish.
func (p *Publisher) PublishHot5(ctx context.Context, items []model.Hot5Item, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	frame, err := Hot5Frame(items, now)
	if err != nil {
		return fmt.Errorf("encode hot5 frame: %w", err)
	}
	return p.publish(ctx, pubEnvelope{
		Kind:    frameHot5,
		UserIDs: userIDs,
		At:      now,
		Frame:   frame,
	})
}

func (p *Publisher) publish(ctx context.Context, env pubEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode publish envelope: %w", err)
	}
	return p.pub.Publish(ctx, p.channel, payload)
}

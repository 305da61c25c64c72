package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"ignition-scanner/internal/model"
	"ignition-scanner/pkg/pushover"
)

// sentTTL bounds both the idempotency key lifetime and the maximum age
// of an event we will still push.
const sentTTL = 6 * time.Hour

const defaultQueueSize = 256

// Delivery outcomes, one per candidate user per event.
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
)

// Sender delivers one composed push message.
type Sender interface {
	Send(ctx context.Context, msg pushover.Message) error
}

// DedupStore claims the once-per-user-per-event send slot.
type DedupStore interface {
	// MarkPushSent returns false when another worker already claimed the
	// slot for this event and user.
	MarkPushSent(ctx context.Context, eventID string, userID int64, ttl time.Duration) (bool, error)
}

// Pusher drains a queue of trigger event ids and pushes each event to
// every eligible user exactly once. One user's failure never blocks the
// rest of the batch.
type Pusher struct {
	events model.EventStore
	prefs  model.PreferenceStore
	dedup  DedupStore
	sender Sender

	jobs chan string
	wg   sync.WaitGroup

	// OnOutcome, when set, observes every per-user delivery outcome.
	OnOutcome func(outcome string)
}

// NewPusher builds a pusher with a bounded in-process queue.
func NewPusher(events model.EventStore, prefs model.PreferenceStore, dedup DedupStore, sender Sender, queueSize int) *Pusher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Pusher{
		events: events,
		prefs:  prefs,
		dedup:  dedup,
		sender: sender,
		jobs:   make(chan string, queueSize),
	}
}

// EnqueuePush queues an event id for delivery. Never blocks; a full
// queue drops the job.
func (p *Pusher) EnqueuePush(eventID string) {
	select {
	case p.jobs <- eventID:
	default:
		log.Printf("[push] queue full, dropping event %s", eventID)
	}
}

// Start launches the delivery workers. They exit when ctx is cancelled.
func (p *Pusher) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-p.jobs:
					p.process(ctx, id)
				}
			}
		}()
	}
	log.Printf("[push] %d workers started", workers)
}

// Wait blocks until all workers have exited.
func (p *Pusher) Wait() { p.wg.Wait() }

func (p *Pusher) process(ctx context.Context, eventID string) {
	ev, err := p.events.EventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Printf("[push] event %s vanished before delivery", eventID)
		} else {
			log.Printf("[push] load event %s: %v", eventID, err)
		}
		return
	}

	if age := time.Since(ev.TriggeredAt); age > sentTTL {
		log.Printf("[push] event %s is %s old, skipping", eventID, age.Round(time.Second))
		return
	}

	candidates, err := p.prefs.PushCandidates(ctx)
	if err != nil {
		log.Printf("[push] load candidates for event %s: %v", eventID, err)
		return
	}

	for i := range candidates {
		p.outcome(p.deliver(ctx, ev, &candidates[i]))
	}
}

// deliver pushes one event to one candidate, returning the outcome.
func (p *Pusher) deliver(ctx context.Context, ev *model.TriggerEvent, s *model.UserScannerSettings) string {
	if s.ClearedBefore(ev.TriggeredAt) {
		return OutcomeSkipped
	}
	if s.NotifyOnlyHODBreak && !ev.BrokeHOD && !ev.HasTag(model.TagHODBreak) {
		return OutcomeSkipped
	}
	if s.NotifyMinScore != nil && ev.Score < *s.NotifyMinScore {
		return OutcomeSkipped
	}

	ok, err := p.dedup.MarkPushSent(ctx, ev.ID, s.UserID, sentTTL)
	if err != nil {
		log.Printf("[push] dedup event=%s user=%d: %v", ev.ID, s.UserID, err)
		return OutcomeFailed
	}
	if !ok {
		return OutcomeDuplicate
	}

	if err := p.sender.Send(ctx, composeMessage(ev, s)); err != nil {
		log.Printf("[push] send event=%s user=%d: %v", ev.ID, s.UserID, err)
		return OutcomeFailed
	}

	log.Printf("[push] sent event=%s user=%d symbol=%s score=%.1f", ev.ID, s.UserID, ev.Symbol, ev.Score)
	return OutcomeSent
}

func (p *Pusher) outcome(o string) {
	if p.OnOutcome != nil {
		p.OnOutcome(o)
	}
}

func composeMessage(ev *model.TriggerEvent, s *model.UserScannerSettings) pushover.Message {
	body := fmt.Sprintf("$%.2f  %+.2f%% 1m / %+.2f%% 5m\nRVOL %.1fx 1m / %.1fx 5m\nScore %.0f [%s]",
		ev.LastPrice, ev.PctChange1m, ev.PctChange5m,
		ev.Rvol1m, ev.Rvol5m,
		ev.Score, strings.Join(ev.ReasonTags, ", "))
	return pushover.Message{
		UserKey:  s.PushoverUserKey,
		Title:    fmt.Sprintf("🚀 %s ignition", ev.Symbol),
		Body:     body,
		Device:   s.PushoverDevice,
		Sound:    s.PushoverSound,
		Priority: s.PushoverPriority,
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"ignition-scanner/internal/model"
	"ignition-scanner/pkg/pushover"
)

type fakeEvents struct {
	model.EventStore
	byID map[string]*model.TriggerEvent
}

func (f *fakeEvents) EventByID(_ context.Context, id string) (*model.TriggerEvent, error) {
	ev, ok := f.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return ev, nil
}

type fakePrefs struct {
	model.PreferenceStore
	candidates []model.UserScannerSettings
	err        error
}

func (f *fakePrefs) PushCandidates(context.Context) ([]model.UserScannerSettings, error) {
	return f.candidates, f.err
}

type fakeDedup struct {
	seen map[string]bool
	err  error
}

func (f *fakeDedup) MarkPushSent(_ context.Context, eventID string, userID int64, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	key := fmt.Sprintf("%s:%d", eventID, userID)
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fakeSender struct {
	msgs     []pushover.Message
	failKeys map[string]bool
}

func (f *fakeSender) Send(_ context.Context, msg pushover.Message) error {
	if f.failKeys[msg.UserKey] {
		return errors.New("pushover: status 500: boom")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func candidate(userID int64) model.UserScannerSettings {
	s := model.DefaultUserScannerSettings(userID)
	s.PushoverEnabled = true
	s.PushoverUserKey = fmt.Sprintf("key%027d", userID)
	return s
}

func pushEvent(id string, at time.Time) *model.TriggerEvent {
	return &model.TriggerEvent{
		ID:          id,
		Symbol:      "AAPL",
		TriggeredAt: at,
		ReasonTags:  []string{model.TagRvol1mThr, model.TagUp1m},
		LastPrice:   10.20,
		Rvol1m:      6.2,
		Rvol5m:      3.1,
		PctChange1m: 1.4,
		PctChange5m: 3.9,
		Score:       60,
	}
}

func newTestPusher(cands []model.UserScannerSettings, evs ...*model.TriggerEvent) (*Pusher, *fakeSender, *fakeDedup) {
	events := &fakeEvents{byID: make(map[string]*model.TriggerEvent)}
	for _, ev := range evs {
		events.byID[ev.ID] = ev
	}
	sender := &fakeSender{}
	dedup := &fakeDedup{}
	p := NewPusher(events, &fakePrefs{candidates: cands}, dedup, sender, 8)
	return p, sender, dedup
}

func TestPushDeliversToCandidates(t *testing.T) {
	ev := pushEvent("ev-1", time.Now().UTC())
	p, sender, _ := newTestPusher([]model.UserScannerSettings{candidate(1), candidate(2)}, ev)

	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-1")

	if want := []string{OutcomeSent, OutcomeSent}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	if len(sender.msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.msgs))
	}
	for i, want := range []string{candidate(1).PushoverUserKey, candidate(2).PushoverUserKey} {
		if sender.msgs[i].UserKey != want {
			t.Errorf("msg[%d] user key = %q, want %q", i, sender.msgs[i].UserKey, want)
		}
	}
}

func TestPushRespectsClearMark(t *testing.T) {
	at := time.Now().UTC()
	ev := pushEvent("ev-1", at)

	cleared := candidate(1)
	cleared.ClearedUntil = &at // clear mark is inclusive
	before := at.Add(-time.Minute)
	open := candidate(2)
	open.ClearedUntil = &before

	p, sender, _ := newTestPusher([]model.UserScannerSettings{cleared, open}, ev)
	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-1")

	if want := []string{OutcomeSkipped, OutcomeSent}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	if len(sender.msgs) != 1 || sender.msgs[0].UserKey != open.PushoverUserKey {
		t.Fatalf("expected a single message to user 2, got %v", sender.msgs)
	}
}

func TestPushOnlyHODBreakGate(t *testing.T) {
	now := time.Now().UTC()
	plain := pushEvent("ev-plain", now)
	flagged := pushEvent("ev-flag", now)
	flagged.BrokeHOD = true
	tagged := pushEvent("ev-tag", now)
	tagged.ReasonTags = append(tagged.ReasonTags, model.TagHODBreak)

	strict := candidate(1)
	strict.NotifyOnlyHODBreak = true

	p, sender, _ := newTestPusher([]model.UserScannerSettings{strict}, plain, flagged, tagged)
	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-plain")
	p.process(context.Background(), "ev-flag")
	p.process(context.Background(), "ev-tag")

	if want := []string{OutcomeSkipped, OutcomeSent, OutcomeSent}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	if len(sender.msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.msgs))
	}
}

func TestPushMinScoreGate(t *testing.T) {
	now := time.Now().UTC()
	low := pushEvent("ev-low", now)
	low.Score = 30
	exact := pushEvent("ev-exact", now)
	exact.Score = 50

	min := 50.0
	picky := candidate(1)
	picky.NotifyMinScore = &min
	anyScore := candidate(2)

	p, _, _ := newTestPusher([]model.UserScannerSettings{picky, anyScore}, low, exact)
	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-low")
	if want := []string{OutcomeSkipped, OutcomeSent}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("low-score outcomes = %v, want %v", outcomes, want)
	}

	outcomes = nil
	p.process(context.Background(), "ev-exact")
	if want := []string{OutcomeSent, OutcomeSent}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("threshold-score outcomes = %v, want %v", outcomes, want)
	}
}

func TestPushDuplicateSuppressed(t *testing.T) {
	ev := pushEvent("ev-1", time.Now().UTC())
	p, sender, _ := newTestPusher([]model.UserScannerSettings{candidate(1)}, ev)

	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-1")
	p.process(context.Background(), "ev-1")

	if want := []string{OutcomeSent, OutcomeDuplicate}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	if len(sender.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.msgs))
	}
}

func TestPushStaleEventSkipped(t *testing.T) {
	ev := pushEvent("ev-old", time.Now().UTC().Add(-7*time.Hour))
	p, sender, _ := newTestPusher([]model.UserScannerSettings{candidate(1)}, ev)

	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-old")

	if len(outcomes) != 0 {
		t.Fatalf("stale event produced outcomes %v", outcomes)
	}
	if len(sender.msgs) != 0 {
		t.Fatalf("stale event was pushed: %v", sender.msgs)
	}
}

func TestPushMissingEventDropped(t *testing.T) {
	p, sender, _ := newTestPusher([]model.UserScannerSettings{candidate(1)})

	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-gone")

	if len(outcomes) != 0 || len(sender.msgs) != 0 {
		t.Fatalf("missing event produced deliveries: outcomes=%v msgs=%v", outcomes, sender.msgs)
	}
}

func TestPushSenderFailureIsolation(t *testing.T) {
	ev := pushEvent("ev-1", time.Now().UTC())
	cands := []model.UserScannerSettings{candidate(1), candidate(2), candidate(3)}
	p, sender, _ := newTestPusher(cands, ev)
	sender.failKeys = map[string]bool{cands[1].PushoverUserKey: true}

	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-1")

	if want := []string{OutcomeSent, OutcomeFailed, OutcomeSent}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	if len(sender.msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.msgs))
	}
	for _, msg := range sender.msgs {
		if msg.UserKey == cands[1].PushoverUserKey {
			t.Fatalf("failing user received a message")
		}
	}
}

func TestPushDedupErrorCountsAsFailure(t *testing.T) {
	ev := pushEvent("ev-1", time.Now().UTC())
	p, sender, dedup := newTestPusher([]model.UserScannerSettings{candidate(1)}, ev)
	dedup.err = errors.New("redis down")

	var outcomes []string
	p.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

	p.process(context.Background(), "ev-1")

	if want := []string{OutcomeFailed}; !reflect.DeepEqual(outcomes, want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
	if len(sender.msgs) != 0 {
		t.Fatalf("message sent without a dedup claim: %v", sender.msgs)
	}
}

func TestComposeMessage(t *testing.T) {
	ev := pushEvent("ev-1", time.Now().UTC())
	ev.LastPrice = 12.5
	ev.PctChange1m = 2.25
	ev.PctChange5m = -0.5
	ev.Rvol1m = 6.23
	ev.Rvol5m = 3.08
	ev.Score = 87.4
	ev.ReasonTags = []string{model.TagRvol1mThr, model.TagHODBreak}

	s := candidate(9)
	s.PushoverDevice = "pixel"
	s.PushoverSound = "cashregister"
	s.PushoverPriority = 1

	msg := composeMessage(ev, &s)

	if msg.Title != "🚀 AAPL ignition" {
		t.Errorf("title = %q", msg.Title)
	}
	wantBody := "$12.50  +2.25% 1m / -0.50% 5m\nRVOL 6.2x 1m / 3.1x 5m\nScore 87 [RVOL_1M_THR, HOD_BREAK]"
	if msg.Body != wantBody {
		t.Errorf("body = %q, want %q", msg.Body, wantBody)
	}
	if msg.UserKey != s.PushoverUserKey {
		t.Errorf("user key = %q, want %q", msg.UserKey, s.PushoverUserKey)
	}
	if msg.Device != "pixel" || msg.Sound != "cashregister" || msg.Priority != 1 {
		t.Errorf("device/sound/priority = %q/%q/%d", msg.Device, msg.Sound, msg.Priority)
	}
}

func TestPushEnqueueNeverBlocks(t *testing.T) {
	events := &fakeEvents{byID: make(map[string]*model.TriggerEvent)}
	p := NewPusher(events, &fakePrefs{}, &fakeDedup{}, &fakeSender{}, 1)

	done := make(chan struct{})
	go func() {
		p.EnqueuePush("a")
		p.EnqueuePush("b")
		p.EnqueuePush("c")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnqueuePush blocked on a full queue")
	}
	if len(p.jobs) != 1 {
		t.Fatalf("queue holds %d jobs, want 1", len(p.jobs))
	}
}

func TestPusherStartDrainsQueue(t *testing.T) {
	ev := pushEvent("ev-1", time.Now().UTC())
	p, sender, _ := newTestPusher([]model.UserScannerSettings{candidate(1)}, ev)

	outcomes := make(chan string, 4)
	p.OnOutcome = func(o string) { outcomes <- o }

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, 1)
	p.EnqueuePush("ev-1")

	select {
	case o := <-outcomes:
		if o != OutcomeSent {
			t.Fatalf("outcome = %q, want %q", o, OutcomeSent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never processed the queued event")
	}

	cancel()
	p.Wait()

	if len(sender.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.msgs))
	}
}

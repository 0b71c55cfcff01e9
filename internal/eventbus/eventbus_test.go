package eventbus

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
)

func TestMessageRoundTrip(t *testing.T) {
	data, err := encodeMessage(events.EventPulseFired, events.Payload{"index": 3}, "node-a")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := decodeMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.EventType != events.EventPulseFired || msg.NodeID != "node-a" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.MessageID == "" || msg.Timestamp.IsZero() {
		t.Fatalf("message id and timestamp must be set: %+v", msg)
	}
	// JSON numbers decode as float64.
	if msg.Payload["index"] != float64(3) {
		t.Fatalf("payload = %v", msg.Payload)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"not json", `{"payload":{}}`} {
		if _, err := decodeMessage([]byte(in)); err == nil {
			t.Errorf("decodeMessage(%q) succeeded", in)
		}
	}
}

func TestSubject(t *testing.T) {
	if got := subject("cadence.events", events.EventDayWrapped); got != "cadence.events.driver.day_wrapped" {
		t.Fatalf("subject = %q", got)
	}
	if got := subject("cadence.", events.EventPulseFired); got != "cadence.pulse.fired" {
		t.Fatalf("subject with trailing dot = %q", got)
	}
}

func TestNodeIDIsUnique(t *testing.T) {
	a, b := NodeID(), NodeID()
	if a == b || !strings.Contains(a, "-") {
		t.Fatalf("node ids %q and %q", a, b)
	}
}

func TestRedisBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultRedisConfig()
	cfg.MaxFailures = 2
	rb := &RedisBus{cfg: cfg, logger: zerolog.Nop(), now: func() time.Time { return now }}

	if !rb.allow() {
		t.Fatal("breaker should start closed")
	}
	rb.recordFailure()
	if !rb.allow() {
		t.Fatal("one failure should not open the breaker")
	}
	rb.recordFailure()
	if rb.allow() {
		t.Fatal("breaker should be open after MaxFailures")
	}

	now = now.Add(cfg.RetryAfter)
	if !rb.allow() {
		t.Fatal("breaker should allow a probe after RetryAfter")
	}
	rb.recordSuccess()
	if !rb.openUntil.IsZero() || rb.failCount != 0 {
		t.Fatalf("success should reset the breaker: %+v", rb)
	}
}

func TestRedisPublishWhileOpenDeliversLocally(t *testing.T) {
	local := events.NewBus()
	sub := local.Subscribe(events.EventPulseFired)

	now := time.Now()
	rb := &RedisBus{
		cfg:    DefaultRedisConfig(),
		local:  local,
		logger: zerolog.Nop(),
		now:    func() time.Time { return now },
	}
	rb.trip()

	rb.Publish(events.EventPulseFired, events.Payload{"index": 1})

	select {
	case p := <-sub:
		if p["index"] != 1 {
			t.Fatalf("payload = %v", p)
		}
	default:
		t.Fatal("expected local delivery")
	}
}

package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SigPulse/internal/domain/models"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *fakePublisher) PublishSignal(_ context.Context, event string, sig *models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event+":"+sig.Symbol)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordCycle(time.Duration, int)      {}
func (m *countingMetrics) RecordSignal(string, string, string) {}
func (m *countingMetrics) RecordLevelCounts(int, int, int)     {}
func (m *countingMetrics) RecordRegime(string, float64)        {}
func (m *countingMetrics) RecordLastPrice(string, float64)     {}
func (m *countingMetrics) RecordLatency(string, float64)       {}
func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func testSignal(symbol string) *models.Signal {
	return &models.Signal{Symbol: symbol, Level: models.LevelA0, Direction: models.DirectionLong}
}

func TestPublishForwardsEvent(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPublishPipeline(pub, newCountingMetrics())

	if err := p.Publish(context.Background(), "fired", testSignal("ACME")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := pub.published(); len(got) != 1 || got[0] != "fired:ACME" {
		t.Fatalf("published = %v", got)
	}
}

func TestPublishThrottlesPerSymbol(t *testing.T) {
	pub := &fakePublisher{}
	mets := newCountingMetrics()
	p := NewPublishPipeline(pub, mets, WithMinSpacing(time.Minute))

	ctx := context.Background()
	if err := p.Publish(ctx, "fired", testSignal("ACME")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	// Throttled events drop silently; the caller has nothing to act on.
	if err := p.Publish(ctx, "promoted", testSignal("ACME")); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if err := p.Publish(ctx, "fired", testSignal("OTHR")); err != nil {
		t.Fatalf("other symbol publish: %v", err)
	}

	got := pub.published()
	if len(got) != 2 || got[0] != "fired:ACME" || got[1] != "fired:OTHR" {
		t.Fatalf("published = %v, want the ACME burst collapsed", got)
	}
	if mets.count("pipeline_throttle") != 1 {
		t.Fatalf("throttle count = %d, want 1", mets.count("pipeline_throttle"))
	}
}

func TestPublishTerminalBypassesThrottle(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPublishPipeline(pub, newCountingMetrics(), WithMinSpacing(time.Minute))

	ctx := context.Background()
	if err := p.Publish(ctx, "fired", testSignal("ACME")); err != nil {
		t.Fatalf("fired: %v", err)
	}
	if err := p.Publish(ctx, "expired", testSignal("ACME")); err != nil {
		t.Fatalf("expired: %v", err)
	}
	if err := p.Publish(ctx, "disqualified", testSignal("ACME")); err != nil {
		t.Fatalf("disqualified: %v", err)
	}

	got := pub.published()
	if len(got) != 3 {
		t.Fatalf("published = %v, want terminal events through the throttle", got)
	}
}

func TestPublishValidates(t *testing.T) {
	mets := newCountingMetrics()
	p := NewPublishPipeline(&fakePublisher{}, mets)

	ctx := context.Background()
	if err := p.Publish(ctx, "", testSignal("ACME")); err == nil {
		t.Fatalf("want error for empty event")
	}
	if err := p.Publish(ctx, "fired", nil); err == nil {
		t.Fatalf("want error for nil signal")
	}
	if err := p.Publish(ctx, "fired", &models.Signal{}); err == nil {
		t.Fatalf("want error for empty symbol")
	}
	if mets.count("pipeline_validate") != 3 {
		t.Fatalf("validate errors = %d, want 3", mets.count("pipeline_validate"))
	}
}

func TestPublishBuffersOnDownstreamError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	mets := newCountingMetrics()
	p := NewPublishPipeline(pub, mets, WithBufferSize(10))

	err := p.Publish(context.Background(), "fired", testSignal("ACME"))
	if err == nil {
		t.Fatalf("want wrapped downstream error")
	}
	if mets.count("pipeline_publish") != 1 {
		t.Fatalf("publish errors = %d, want 1", mets.count("pipeline_publish"))
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("buffered = %d, want 1", len(p.bufCh))
	}
}

func TestFlushDrainsBufferOnRecovery(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	mets := newCountingMetrics()
	p := NewPublishPipeline(pub, mets, WithBufferSize(10))

	ctx := context.Background()
	if err := p.Publish(ctx, "fired", testSignal("ACME")); err == nil {
		t.Fatalf("want downstream error while the broker is down")
	}

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := pub.published(); len(got) == 1 && got[0] == "fired:ACME" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("buffered event never flushed, published = %v", pub.published())
}

package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SigPulse/internal/domain/models"
	domrepo "SigPulse/internal/domain/repository"
)

// SignalEvent is one lifecycle event bound for the downstream feed.
type SignalEvent struct {
	Event  string
	Signal *models.Signal
}

// PublishPipeline sits between the engine and the signal feed. It throttles
// per-symbol event bursts (one symbol flapping must not storm the topic),
// and buffers events when the feed is unavailable, flushing in the background
// with backoff.
type PublishPipeline struct {
	pub        domrepo.SignalPublisher
	metrics    domrepo.Metrics
	minSpacing time.Duration
	bufSize    int
	bufCh      chan *SignalEvent
	stopCh     chan struct{}
	started    bool
	mu         sync.Mutex
	lastSeen   map[string]time.Time // per-symbol last published time
}

type PipelineOption func(*PublishPipeline)

// WithMinSpacing sets the minimum gap between published events per symbol.
func WithMinSpacing(d time.Duration) PipelineOption {
	return func(p *PublishPipeline) {
		if d > 0 {
			p.minSpacing = d
		}
	}
}

// WithBufferSize sets the holding buffer size used when the feed is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewPublishPipeline creates a new pipeline.
func NewPublishPipeline(pub domrepo.SignalPublisher, metrics domrepo.Metrics, opts ...PipelineOption) *PublishPipeline {
	p := &PublishPipeline{
		pub:        pub,
		metrics:    metrics,
		minSpacing: 2 * time.Second,
		bufSize:    500,
		stopCh:     make(chan struct{}),
		lastSeen:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *SignalEvent, p.bufSize)
	return p
}

// Start launches background flushing of buffered events.
func (p *PublishPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case ev := <-p.bufCh:
				if ev == nil {
					continue
				}
				if err := p.pub.PublishSignal(ctx, ev.Event, ev.Signal); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- ev:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *PublishPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Publish validates, throttles, and forwards an event, buffering on errors.
// Expiry events bypass the throttle: downstream must always learn a signal
// ended.
func (p *PublishPipeline) Publish(ctx context.Context, event string, sig *models.Signal) error {
	start := time.Now()
	if err := validateEvent(event, sig); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	terminal := event == "expired" || event == "disqualified"
	if !terminal && !p.allow(sig.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.pub.PublishSignal(ctx, event, sig); err != nil {
		p.metrics.RecordError("pipeline_publish")
		select {
		case p.bufCh <- &SignalEvent{Event: event, Signal: sig}:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_publish", time.Since(start).Seconds())
	return nil
}

func validateEvent(event string, sig *models.Signal) error {
	if event == "" {
		return fmt.Errorf("event empty")
	}
	if sig == nil {
		return fmt.Errorf("signal nil")
	}
	if sig.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	return nil
}

func (p *PublishPipeline) allow(symbol string, now time.Time) bool {
	if p.minSpacing <= 0 {
		return true
	}
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < p.minSpacing {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

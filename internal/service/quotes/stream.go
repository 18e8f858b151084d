package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Stream is the websocket quote source variant: it subscribes once and keeps
// the latest quote per symbol in memory, so Fetch is a local read and the
// poll loop never blocks on the wire.
type Stream struct {
	url            string
	apiKey         string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu     sync.RWMutex
	latest map[string]*models.Quote

	conn   *websocket.Conn
	cancel context.CancelFunc
}

// NewStream creates a websocket quote source and starts its read loop.
func NewStream(ctx context.Context, url, apiKey string, symbols []string, reconnectDelay, pingInterval time.Duration) (drepo.QuoteSource, error) {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	s := &Stream{
		url:            url,
		apiKey:         apiKey,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		latest:         make(map[string]*models.Quote),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.readLoop(loopCtx)
	go s.pingLoop(loopCtx)
	return s, nil
}

func (s *Stream) connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.url, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("quote stream connect: %w", err)
	}
	s.conn = conn
	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	return nil
}

type wsQuote struct {
	Symbol        string   `json:"s"`
	Price         *float64 `json:"p"`
	PreviousClose *float64 `json:"pc"`
	Volume        *float64 `json:"v"`
	AverageVolume *float64 `json:"av"`
	T             int64    `json:"t"` // ms
}

type wsFrame struct {
	Type string    `json:"type"`
	Data []wsQuote `json:"data"`
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.conn == nil {
			return
		}
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			// reconnect and resubscribe; stale quotes survive the gap
			time.Sleep(s.reconnectDelay)
			if err := s.connect(ctx); err != nil {
				continue
			}
			continue
		}
		var frame wsFrame
		if err := json.Unmarshal(b, &frame); err != nil || frame.Type != "quote" {
			continue
		}
		s.mu.Lock()
		for _, d := range frame.Data {
			if d.Symbol == "" {
				continue
			}
			q := &models.Quote{
				Symbol:        d.Symbol,
				Price:         models.Coerce(d.Price, 0),
				PreviousClose: models.Coerce(d.PreviousClose, 0),
				Volume:        models.Coerce(d.Volume, 0),
				AverageVolume: models.Coerce(d.AverageVolume, 0),
				ObservedAt:    time.Unix(d.T/1000, 0),
			}
			if q.Valid() {
				s.latest[d.Symbol] = q
			}
		}
		s.mu.Unlock()
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.conn != nil {
				_ = s.conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// Fetch returns the most recent quote for each requested symbol from the
// in-memory table. Symbols not yet seen on the stream are absent.
func (s *Stream) Fetch(_ context.Context, symbols []string) (map[string]*models.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.latest[sym]; ok {
			cp := *q
			out[sym] = &cp
		}
	}
	return out, nil
}

func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

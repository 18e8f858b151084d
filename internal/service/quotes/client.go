package quotes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"
	"SigPulse/internal/service/ratelimit"
	xhttp "SigPulse/pkg/http"
)

// Client pulls quotes in bulk from an HTTP quote API. Partial results are
// normal: symbols the upstream throttles or omits are simply absent from the
// returned map.
type Client struct {
	baseURL string
	apiKey  string
	http    *xhttp.Client
	rl      *ratelimit.Limiter
}

// New creates an HTTP quote source.
func New(baseURL, apiKey string, timeout time.Duration) drepo.QuoteSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		rl:      ratelimit.New(),
	}
}

// quotePayload is the loosely-typed upstream record. Optional fields are
// pointers so "missing" is distinguishable from zero; Coerce maps them to
// defined defaults at this boundary.
type quotePayload struct {
	Symbol        string   `json:"symbol"`
	Price         *float64 `json:"price"`
	PreviousClose *float64 `json:"previous_close"`
	Volume        *float64 `json:"volume"`
	AverageVolume *float64 `json:"average_volume"`
	Timestamp     int64    `json:"t"`
}

// Fetch pulls the latest quotes for the symbol list in one call. Malformed
// per-symbol records are skipped, never fatal.
func (c *Client) Fetch(ctx context.Context, symbols []string) (map[string]*models.Quote, error) {
	if len(symbols) == 0 {
		return map[string]*models.Quote{}, nil
	}
	if !c.rl.Allow("quotes:bulk", 5, 2) {
		return nil, fmt.Errorf("quote fetch rate limited")
	}

	var payload []quotePayload
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v1/quotes",
		Headers: map[string]string{
			"X-Api-Key": c.apiKey,
		},
		QueryParams: map[string][]string{
			"symbols": {strings.Join(symbols, ",")},
		},
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	out := make(map[string]*models.Quote, len(payload))
	for _, p := range payload {
		if p.Symbol == "" {
			continue
		}
		q := &models.Quote{
			Symbol:        p.Symbol,
			Price:         models.Coerce(p.Price, 0),
			PreviousClose: models.Coerce(p.PreviousClose, 0),
			Volume:        models.Coerce(p.Volume, 0),
			AverageVolume: models.Coerce(p.AverageVolume, 0),
			ObservedAt:    time.Now(),
		}
		if p.Timestamp > 0 {
			if p.Timestamp > 1e11 { // ms
				p.Timestamp /= 1000
			}
			q.ObservedAt = time.Unix(p.Timestamp, 0)
		}
		if !q.Valid() {
			continue
		}
		out[q.Symbol] = q
	}
	return out, nil
}

func (c *Client) Close() error { return nil }

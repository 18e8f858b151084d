package catalyst

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"
	xhttp "SigPulse/pkg/http"
)

// Client resolves news catalysts for a symbol batch from an HTTP scoring
// service. The engine only ever reads complete snapshots built from this
// source by the background refresher.
type Client struct {
	baseURL string
	http    *xhttp.Client
}

func New(baseURL string, timeout time.Duration) drepo.CatalystSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type catalystPayload struct {
	Symbol        string   `json:"symbol"`
	CatalystScore *float64 `json:"catalyst_score"`
	Category      string   `json:"category"`
	Headline      string   `json:"headline"`
	WarnFlags     []string `json:"warn_flags"`
}

// Fetch pulls catalyst annotations for the symbol list. Symbols without news
// are absent from the result; that is the normal case, not an error.
func (c *Client) Fetch(ctx context.Context, symbols []string) (map[string]*models.Catalyst, error) {
	if len(symbols) == 0 {
		return map[string]*models.Catalyst{}, nil
	}

	var payload []catalystPayload
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v1/catalysts",
		QueryParams: map[string][]string{
			"symbols": {strings.Join(symbols, ",")},
		},
	}, &payload)
	if err != nil {
		return nil, fmt.Errorf("fetch catalysts: %w", err)
	}

	now := time.Now()
	out := make(map[string]*models.Catalyst, len(payload))
	for _, p := range payload {
		if p.Symbol == "" {
			continue
		}
		out[p.Symbol] = &models.Catalyst{
			Symbol:        p.Symbol,
			CatalystScore: models.Coerce(p.CatalystScore, 0),
			Category:      p.Category,
			Headline:      p.Headline,
			WarnFlags:     p.WarnFlags,
			UpdatedAt:     now,
		}
	}
	return out, nil
}

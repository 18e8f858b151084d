package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"
	xhttp "SigPulse/pkg/http"
	xutil "SigPulse/pkg/util"
)

// Loader reads the externally-ranked watch-list from a local JSON file or an
// HTTP endpoint, capped at maxSize entries. Ranking itself is upstream's job.
type Loader struct {
	source  string
	maxSize int
	http    *xhttp.Client
}

func New(source string, maxSize int, timeout time.Duration) drepo.WatchlistSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{
		source:  source,
		maxSize: maxSize,
		http:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// Load fetches and decodes the ordered candidate set. Malformed entries are
// skipped; an unreachable source is an error the caller degrades on.
func (l *Loader) Load(ctx context.Context) ([]*models.WatchlistEntry, error) {
	var raw []byte
	if strings.HasPrefix(l.source, "http://") || strings.HasPrefix(l.source, "https://") {
		err := l.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    l.source,
		}, &raw)
		if err != nil {
			return nil, fmt.Errorf("fetch watchlist: %w", err)
		}
	} else {
		b, err := os.ReadFile(l.source)
		if err != nil {
			return nil, fmt.Errorf("read watchlist: %w", err)
		}
		raw = b
	}

	var entries []*models.WatchlistEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}

	now := time.Now()
	out := make([]*models.WatchlistEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil || e.Symbol == "" {
			continue
		}
		deriveEarnings(e, now)
		out = append(out, e)
		if l.maxSize > 0 && len(out) >= l.maxSize {
			break
		}
	}
	return out, nil
}

// deriveEarnings fills the earnings flags from earnings_date when the
// upstream ranker only ships the date.
func deriveEarnings(e *models.WatchlistEntry, now time.Time) {
	if e.EarningsDate == "" || e.EarningsSoon || e.EarningsToday {
		return
	}
	at, ok := xutil.ParseTime(e.EarningsDate)
	if !ok {
		return
	}
	y1, m1, d1 := now.UTC().Date()
	y2, m2, d2 := at.UTC().Date()
	e.EarningsToday = y1 == y2 && m1 == m2 && d1 == d2
	until := at.Sub(now)
	e.EarningsSoon = e.EarningsToday || (until > 0 && until <= 7*24*time.Hour)
}

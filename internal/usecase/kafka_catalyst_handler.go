package usecase

import (
	"context"
	"encoding/json"
	"time"

	"SigPulse/internal/domain/models"
	drepo "SigPulse/internal/domain/repository"
	pkgkafka "SigPulse/pkg/kafka"
)

// KafkaCatalystHandler consumes news-catalyst events from a topic and merges
// them into the catalyst cache, the streaming alternative to the HTTP
// refresher. The poll loop still only ever reads complete snapshots.
type KafkaCatalystHandler struct {
	topic   string
	cache   *CatalystCache
	metrics drepo.Metrics
}

func NewKafkaCatalystHandler(topic string, cache *CatalystCache, metrics drepo.Metrics) *KafkaCatalystHandler {
	return &KafkaCatalystHandler{topic: topic, cache: cache, metrics: metrics}
}

func (h *KafkaCatalystHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, score, category, headline, warn_flags, t}
func (h *KafkaCatalystHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol    string   `json:"symbol"`
		Score     float64  `json:"score"`
		Category  string   `json:"category"`
		Headline  string   `json:"headline"`
		WarnFlags []string `json:"warn_flags"`
		T         int64    `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("catalyst_unmarshal")
		return err
	}
	if m.Symbol == "" {
		return nil
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	updated := time.Now()
	if m.T > 0 {
		updated = time.Unix(m.T, 0)
	}

	h.cache.Merge(&models.Catalyst{
		Symbol:        m.Symbol,
		CatalystScore: m.Score,
		Category:      m.Category,
		Headline:      m.Headline,
		WarnFlags:     m.WarnFlags,
		UpdatedAt:     updated,
	})
	h.metrics.RecordLatency("catalyst_ingest_seconds", time.Since(updated).Seconds())
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCatalystHandler)(nil)

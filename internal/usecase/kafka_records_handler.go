package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FieldPulse/internal/domain/models"
	drepo "FieldPulse/internal/domain/repository"
	pkgkafka "FieldPulse/pkg/kafka"
	applogger "FieldPulse/pkg/logger"
	"FieldPulse/pkg/util"
)

// KafkaRecordsHandler consumes raw market records from Kafka and feeds them
// into the pipeline. One record per message; the topic is partitioned by
// symbol so per-symbol ordering holds.
type KafkaRecordsHandler struct {
	topic   string
	pipe    *Pipeline
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewKafkaRecordsHandler(topic string, pipe *Pipeline, metrics drepo.Metrics) *KafkaRecordsHandler {
	return &KafkaRecordsHandler{topic: topic, pipe: pipe, metrics: metrics, l: applogger.Nop()}
}

func (h *KafkaRecordsHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *KafkaRecordsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, timestamp, fields{}}
// timestamp accepts RFC3339 or unix seconds.
func (h *KafkaRecordsHandler) Handle(ctx context.Context, key, value []byte) error {
	var m struct {
		Symbol    string         `json:"symbol"`
		Timestamp string         `json:"timestamp"`
		Fields    map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(value, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode record: %w", err)
	}
	if m.Symbol == "" {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode record: missing symbol")
	}
	ts, ok := util.ParseTime(m.Timestamp)
	if !ok {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode record: bad timestamp %q", m.Timestamp)
	}

	raw := models.RawMarketRecord{
		Timestamp: ts.UTC(),
		Symbol:    m.Symbol,
		Fields:    m.Fields,
	}
	h.l.Debug("record received",
		applogger.String("symbol", raw.Symbol),
		applogger.String("ts", raw.Timestamp.Format(time.RFC3339)),
	)
	return h.pipe.RunBucket(ctx, raw)
}

var _ pkgkafka.MessageHandler = (*KafkaRecordsHandler)(nil)

package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pix-gateway/internal/message"
	"pix-gateway/internal/model"

	"github.com/VictoriaMetrics/metrics"
	"github.com/segmentio/kafka-go"
)

var (
	publishSuccessCounter = metrics.GetOrCreateCounter(`settlement_events_total{result="published"}`)
	publishErrorCounter   = metrics.GetOrCreateCounter(`settlement_events_total{result="publish_failed"}`)
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// SettlementPublisher announces settled transactions to downstream
// consumers. A failed publish is logged and counted; the settlement itself
// is already committed and stays.
type SettlementPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewSettlementPublisher(writer MessageWriter, logger *slog.Logger) *SettlementPublisher {
	return &SettlementPublisher{writer: writer, logger: logger}
}

func (p *SettlementPublisher) PublishPaid(ctx context.Context, tx *model.Transaction) {
	paidAt := time.Now()
	if tx.PaidAt != nil {
		paidAt = *tx.PaidAt
	}
	fee := tx.Fees().Fee(tx.Amount)

	value, err := json.Marshal(message.Settlement{
		Event:      message.EventTransactionPaid,
		Txid:       tx.Txid,
		MerchantID: tx.MerchantID,
		Acquirer:   string(tx.Acquirer),
		Amount:     tx.Amount,
		Fee:        fee,
		NetAmount:  tx.Amount - fee,
		PaidAt:     paidAt,
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "Error encoding settlement event", "error", err)
		publishErrorCounter.Inc()
		return
	}

	// txid as key keeps every event of one transaction on one partition
	err = p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(tx.Txid), Value: value})
	if err != nil {
		p.logger.ErrorContext(ctx, "Error writing settlement event to Kafka", "error", err)
		publishErrorCounter.Inc()
		return
	}

	p.logger.InfoContext(ctx, "Published settlement event")
	publishSuccessCounter.Inc()
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishPaid(context.Context, *model.Transaction) {}

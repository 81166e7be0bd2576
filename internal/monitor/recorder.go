// Package monitor records the outcome of every acquirer call made while
// creating charges, for alerting on provider degradation.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pix-gateway/internal/acquirer"
	"pix-gateway/internal/model"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
)

const (
	KindSuccess         = "success"
	KindHTTPError       = "http_error"
	KindInvalidResponse = "invalid_response"
	KindTransportError  = "transport_error"
)

type EventStore interface {
	Insert(ctx context.Context, event *model.AcquirerEvent) error
}

type Recorder struct {
	store  EventStore
	logger *slog.Logger
}

func NewRecorder(store EventStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Classify maps an acquirer call error to its monitoring kind.
func Classify(err error) string {
	var httpErr *acquirer.HTTPError
	switch {
	case err == nil:
		return KindSuccess
	case errors.As(err, &httpErr):
		return KindHTTPError
	case errors.Is(err, acquirer.ErrInvalidResponse):
		return KindInvalidResponse
	default:
		return KindTransportError
	}
}

func (r *Recorder) Success(ctx context.Context, a model.Acquirer, txid string, latency time.Duration) {
	r.record(ctx, &model.AcquirerEvent{Acquirer: a, Kind: KindSuccess, Latency: latency, Txid: txid})
}

func (r *Recorder) Failure(ctx context.Context, a model.Acquirer, err error, latency time.Duration) {
	excerpt := err.Error()
	var httpErr *acquirer.HTTPError
	if errors.As(err, &httpErr) {
		excerpt = fmt.Sprintf("status %d: %s", httpErr.StatusCode, httpErr.Body)
	}

	r.record(ctx, &model.AcquirerEvent{
		Acquirer: a,
		Kind:     Classify(err),
		Excerpt:  acquirer.Excerpt(excerpt),
		Latency:  latency,
	})
}

// record never fails the caller: a lost monitoring event is only logged.
func (r *Recorder) record(ctx context.Context, event *model.AcquirerEvent) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`acquirer_calls_total{acquirer=%q,kind=%q}`, event.Acquirer, event.Kind)).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`acquirer_call_duration_milliseconds{acquirer=%q}`, event.Acquirer)).
		Update(float64(event.Latency.Milliseconds()))

	if event.Kind != KindSuccess {
		r.logger.WarnContext(ctx, "Acquirer call failed", "acquirer", event.Acquirer, "kind", event.Kind,
			"excerpt", event.Excerpt, "latencyMs", event.Latency.Milliseconds())
	}

	if err := r.store.Insert(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "Error recording acquirer event", "acquirer", event.Acquirer, "error", err)
	}
}

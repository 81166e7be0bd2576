// Package poller asks acquirers for the status of generated charges and
// advances the ledger. Settlement only happens through the conditional
// MarkPaid update, so overlapping runs and webhooks are harmless.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pix-gateway/internal/acquirer"
	"pix-gateway/internal/config"
	"pix-gateway/internal/credentials"
	"pix-gateway/internal/logcontext"
	"pix-gateway/internal/model"
	"pix-gateway/internal/tokencache"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Outcome string

const (
	OutcomeUpdated     Outcome = "updated"
	OutcomeAlreadyPaid Outcome = "already_paid"
	OutcomePending     Outcome = "pending"
	OutcomeExpired     Outcome = "expired"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeError       Outcome = "error"
)

const (
	ReasonUndetermined       = "acquirer_undetermined"
	ReasonNotConfigured      = "not_configured"
	ReasonAuthentication     = "authentication_failed"
	ReasonNotFound           = "not_found_at_acquirer"
	ReasonUnrecognizedStatus = "unrecognized_status"
)

var (
	unrecognizedStatusCounter = metrics.GetOrCreateCounter(`poller_unrecognized_status_total`)
	batchDurationHistogram    = metrics.GetOrCreateHistogram(`poller_batch_duration_milliseconds`)
)

type Ledger interface {
	GetByTxid(ctx context.Context, txid string) (*model.Transaction, error)
	ListPending(ctx context.Context, limit int) ([]*model.Transaction, error)
	MarkPaid(ctx context.Context, txid string, paidAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, txid string) (bool, error)
}

type Gateways interface {
	Gateway(ctx context.Context, a model.Acquirer, merchantID *uuid.UUID) (acquirer.Gateway, error)
}

type AcquirerResolver interface {
	Acquirer(ctx context.Context, merchantID *uuid.UUID) (model.Acquirer, bool, error)
}

type Publisher interface {
	PublishPaid(ctx context.Context, tx *model.Transaction)
}

type Result struct {
	Txid           string         `json:"txid"`
	Acquirer       model.Acquirer `json:"acquirer,omitempty"`
	Outcome        Outcome        `json:"outcome"`
	ProviderStatus string         `json:"providerStatus,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Error          string         `json:"error,omitempty"`
	PaidAt         *time.Time     `json:"paidAt,omitempty"`
}

type BatchResult struct {
	RunID   string   `json:"runId"`
	Checked int      `json:"checked"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errored int      `json:"errored"`
	Expired int      `json:"expired"`
	Pending int      `json:"pending"`
	Results []Result `json:"results"`
}

type Poller struct {
	ledger    Ledger
	gateways  Gateways
	acquirers AcquirerResolver
	publisher Publisher
	pageSize  int
	delay     time.Duration
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration)
}

func NewPoller(ledger Ledger, gateways Gateways, acquirers AcquirerResolver, publisher Publisher, cfg config.Poller,
	logger *slog.Logger) *Poller {
	return &Poller{
		ledger:    ledger,
		gateways:  gateways,
		acquirers: acquirers,
		publisher: publisher,
		pageSize:  cfg.PageSize,
		delay:     cfg.Delay(),
		logger:    logger,
		now:       time.Now,
		sleep:     sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Check polls one transaction. A paid row returns immediately without
// contacting the acquirer. The error is non-nil only when the ledger lookup
// fails; provider problems are reported in the result.
func (p *Poller) Check(ctx context.Context, txid string) (*Result, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("txid", txid))

	tx, err := p.ledger.GetByTxid(ctx, txid)
	if err != nil {
		return nil, err
	}

	result, _ := p.check(ctx, tx, map[model.Acquirer]bool{})
	p.observe(result)
	return &result, nil
}

// Batch polls up to one page of generated transactions, newest first,
// sequentially and with a fixed delay between acquirer calls. Failures are
// per item and never stop the batch.
func (p *Poller) Batch(ctx context.Context) (*BatchResult, error) {
	start := p.now()
	runID := uuid.New().String()

	// set runId as a correlation id for all logs in scope
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", runID))

	pending, err := p.ledger.ListPending(ctx, p.pageSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error fetching pending transactions", "error", err)
		return nil, errors.Wrap(err, "list pending transactions")
	}
	p.logger.InfoContext(ctx, "Polling pending transactions", "count", len(pending))

	batch := &BatchResult{RunID: runID, Results: make([]Result, 0, len(pending))}
	authFailed := map[model.Acquirer]bool{}
	called := false

	for _, tx := range pending {
		itemCtx := logcontext.AppendCtx(ctx, slog.String("txid", tx.Txid))

		if called {
			p.sleep(ctx, p.delay)
		}

		var result Result
		result, called = p.check(itemCtx, tx, authFailed)
		p.observe(result)

		batch.Checked++
		switch result.Outcome {
		case OutcomeUpdated:
			batch.Updated++
		case OutcomeExpired:
			batch.Expired++
		case OutcomePending:
			batch.Pending++
		case OutcomeError:
			batch.Errored++
		default:
			batch.Skipped++
		}
		batch.Results = append(batch.Results, result)
	}

	batchDurationHistogram.Update(float64(p.now().Sub(start).Milliseconds()))
	p.logger.InfoContext(ctx, "Polling finished", "checked", batch.Checked, "updated", batch.Updated,
		"skipped", batch.Skipped, "errored", batch.Errored)

	return batch, nil
}

// check reports whether the acquirer was contacted alongside the result.
func (p *Poller) check(ctx context.Context, tx *model.Transaction, authFailed map[model.Acquirer]bool) (Result, bool) {
	result := Result{Txid: tx.Txid, Acquirer: tx.Acquirer}

	switch tx.Status {
	case model.StatusPaid:
		result.Outcome = OutcomeAlreadyPaid
		result.PaidAt = tx.PaidAt
		return result, false
	case model.StatusExpired:
		result.Outcome = OutcomeExpired
		return result, false
	}

	a, ok, err := p.resolveAcquirer(ctx, tx)
	if err != nil {
		return failed(result, err), false
	}
	if !ok {
		p.logger.WarnContext(ctx, "Cannot determine acquirer")
		return skipped(result, ReasonUndetermined), false
	}
	result.Acquirer = a
	ctx = logcontext.AppendCtx(ctx, slog.String("acquirer", string(a)))

	if authFailed[a] {
		return skipped(result, ReasonAuthentication), false
	}

	gateway, err := p.gateways.Gateway(ctx, a, &tx.MerchantID)
	if err != nil {
		if errors.Is(err, credentials.ErrNotConfigured) {
			p.logger.WarnContext(ctx, "Acquirer credentials not configured", "error", err)
			return skipped(result, ReasonNotConfigured), false
		}
		return failed(result, err), false
	}

	remote, err := gateway.Transaction(ctx, tx.Txid)
	if err != nil {
		switch {
		case errors.Is(err, tokencache.ErrAuthentication):
			authFailed[a] = true
			result.Reason = ReasonAuthentication
		case errors.Is(err, acquirer.ErrNotFound):
			result.Reason = ReasonNotFound
		}
		p.logger.ErrorContext(ctx, "Error querying acquirer status", "error", err)
		return failed(result, err), true
	}
	result.ProviderStatus = remote.Status

	switch remote.State {
	case acquirer.StatusPaid:
		return p.settle(ctx, tx, remote, result), true

	case acquirer.StatusExpired:
		transitioned, err := p.ledger.MarkExpired(ctx, tx.Txid)
		if err != nil {
			p.logger.ErrorContext(ctx, "Error marking transaction expired", "error", err)
			return failed(result, err), true
		}
		if !transitioned {
			return p.stored(ctx, tx.Txid, result), true
		}
		result.Outcome = OutcomeExpired
		return result, true

	case acquirer.StatusUnknown:
		p.logger.WarnContext(ctx, "Unrecognized acquirer status, treating as pending", "status", remote.Status)
		unrecognizedStatusCounter.Inc()
		result.Reason = ReasonUnrecognizedStatus
	}

	result.Outcome = OutcomePending
	return result, true
}

func (p *Poller) settle(ctx context.Context, tx *model.Transaction, remote *acquirer.RemoteTransaction, result Result) Result {
	paidAt := p.now()
	if remote.PaidAt != nil {
		paidAt = *remote.PaidAt
	}

	transitioned, err := p.ledger.MarkPaid(ctx, tx.Txid, paidAt)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error marking transaction paid", "error", err)
		return failed(result, err)
	}
	if !transitioned {
		result.Outcome = OutcomeAlreadyPaid
		return result
	}

	p.logger.InfoContext(ctx, "Transaction settled", "paidAt", paidAt)

	settled := *tx
	settled.Status = model.StatusPaid
	settled.PaidAt = &paidAt
	p.publisher.PublishPaid(ctx, &settled)

	result.Outcome = OutcomeUpdated
	result.PaidAt = &paidAt
	return result
}

// stored reports the row as it is now, after another writer changed it
// between the read and a conditional update.
func (p *Poller) stored(ctx context.Context, txid string, result Result) Result {
	current, err := p.ledger.GetByTxid(ctx, txid)
	if err != nil {
		p.logger.ErrorContext(ctx, "Error reloading transaction", "error", err)
		return failed(result, err)
	}

	p.logger.InfoContext(ctx, "Transaction changed concurrently", "status", current.Status)
	switch current.Status {
	case model.StatusPaid:
		result.Outcome = OutcomeAlreadyPaid
		result.PaidAt = current.PaidAt
	case model.StatusExpired:
		result.Outcome = OutcomeExpired
	default:
		result.Outcome = OutcomePending
	}
	return result
}

// resolveAcquirer prefers the stored tag, then the identifier shape, then the
// merchant's configuration.
func (p *Poller) resolveAcquirer(ctx context.Context, tx *model.Transaction) (model.Acquirer, bool, error) {
	if tx.Acquirer.Valid() {
		return tx.Acquirer, true, nil
	}
	if a, ok := acquirer.Detect(tx.Txid); ok {
		return a, true, nil
	}
	return p.acquirers.Acquirer(ctx, &tx.MerchantID)
}

func (p *Poller) observe(result Result) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`poller_items_total{acquirer=%q,outcome=%q}`, result.Acquirer, result.Outcome)).Inc()
}

func skipped(result Result, reason string) Result {
	result.Outcome = OutcomeSkipped
	result.Reason = reason
	return result
}

func failed(result Result, err error) Result {
	result.Outcome = OutcomeError
	result.Error = acquirer.Excerpt(err.Error())
	return result
}

// Package reconcile backfills the ledger from an acquirer's own transaction
// history. Records already known by id or external reference are never
// inserted twice, so a run can be repeated safely.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pix-gateway/internal/acquirer"
	"pix-gateway/internal/config"
	"pix-gateway/internal/logcontext"
	"pix-gateway/internal/model"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Outcome string

const (
	OutcomeImported      Outcome = "imported"
	OutcomeAlreadyExists Outcome = "already_exists"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeUserNotFound  Outcome = "user_not_found"
	OutcomeError         Outcome = "error"
)

const (
	ModeListing = "listing"
	ModeIDs     = "ids"

	ReasonInvalidAmount = "invalid_amount"
	ReasonMissingID     = "missing_id"
)

var ErrInvalidRequest = errors.New("invalid reconciliation request")

type Ledger interface {
	ExistsByReference(ctx context.Context, refs ...string) (bool, error)
	CreateIfAbsent(ctx context.Context, tx *model.Transaction) (bool, error)
}

type Merchants interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Settings interface {
	FeeSchedule(ctx context.Context, merchantID *uuid.UUID) (model.FeeSchedule, error)
	Location(ctx context.Context, merchantID *uuid.UUID) (*time.Location, error)
}

type Gateways interface {
	Gateway(ctx context.Context, a model.Acquirer, merchantID *uuid.UUID) (acquirer.Gateway, error)
}

// Request selects provider records by period, by explicit ids, or both.
// MerchantID pins every imported record to one merchant and selects that
// merchant's credentials.
type Request struct {
	Acquirer   model.Acquirer
	From       *time.Time
	To         *time.Time
	IDs        []string
	MerchantID *uuid.UUID
}

type Item struct {
	ID         string     `json:"id"`
	Outcome    Outcome    `json:"outcome"`
	Txid       string     `json:"txid,omitempty"`
	MerchantID *uuid.UUID `json:"merchantId,omitempty"`
	Amount     int64      `json:"amount,omitempty"`
	Status     string     `json:"status,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type Report struct {
	RunID         string         `json:"runId"`
	Acquirer      model.Acquirer `json:"acquirer"`
	Mode          string         `json:"mode"`
	Imported      int            `json:"imported"`
	AlreadyExists int            `json:"alreadyExists"`
	Skipped       int            `json:"skipped"`
	NotFound      int            `json:"notFound"`
	UserNotFound  int            `json:"userNotFound"`
	Errored       int            `json:"errored"`
	Items         []Item         `json:"items"`
}

func (r *Report) add(item Item) {
	switch item.Outcome {
	case OutcomeImported:
		r.Imported++
	case OutcomeAlreadyExists:
		r.AlreadyExists++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeNotFound:
		r.NotFound++
	case OutcomeUserNotFound:
		r.UserNotFound++
	case OutcomeError:
		r.Errored++
	}
	r.Items = append(r.Items, item)
	metrics.GetOrCreateCounter(fmt.Sprintf(`reconcile_items_total{acquirer=%q,outcome=%q}`, r.Acquirer, item.Outcome)).Inc()
}

type Engine struct {
	ledger    Ledger
	merchants Merchants
	settings  Settings
	gateways  Gateways
	delay     time.Duration
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration)
}

func NewEngine(ledger Ledger, merchants Merchants, settings Settings, gateways Gateways, cfg config.Poller,
	logger *slog.Logger) *Engine {
	return &Engine{
		ledger:    ledger,
		merchants: merchants,
		settings:  settings,
		gateways:  gateways,
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

func (r Request) validate() error {
	if !r.Acquirer.Valid() {
		return errors.Wrapf(ErrInvalidRequest, "unknown acquirer %q", r.Acquirer)
	}
	if (r.From == nil) != (r.To == nil) {
		return errors.Wrap(ErrInvalidRequest, "period needs both from and to")
	}
	if r.From != nil && r.To.Before(*r.From) {
		return errors.Wrap(ErrInvalidRequest, "period ends before it starts")
	}
	if r.From == nil && len(r.IDs) == 0 {
		return errors.Wrap(ErrInvalidRequest, "either a period or ids are required")
	}
	return nil
}

// Run reconciles one acquirer. With a period the acquirer's listing is used;
// when listing fails and ids were also given, the run degrades to per-id
// lookups. Errors are returned only when nothing could be attempted.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx = logcontext.AppendCtx(ctx, slog.String("runId", runID), slog.String("acquirer", string(req.Acquirer)))

	if req.MerchantID != nil {
		exists, err := e.merchants.Exists(ctx, *req.MerchantID)
		if err != nil {
			return nil, errors.Wrap(err, "lookup merchant")
		}
		if !exists {
			return nil, errors.Wrapf(ErrInvalidRequest, "merchant %s not found", req.MerchantID)
		}
	}

	gateway, err := e.gateways.Gateway(ctx, req.Acquirer, req.MerchantID)
	if err != nil {
		return nil, err
	}

	ids := lo.Uniq(lo.Compact(lo.Map(req.IDs, func(id string, _ int) string { return strings.TrimSpace(id) })))
	report := &Report{RunID: runID, Acquirer: req.Acquirer, Items: []Item{}}
	r := &run{Engine: e, gateway: gateway, pinned: req.MerchantID, report: report}

	if req.From != nil {
		records, err := gateway.Transactions(ctx, *req.From, *req.To)
		switch {
		case err == nil:
			report.Mode = ModeListing
			e.logger.InfoContext(ctx, "Reconciling listed transactions", "count", len(records))
			ids = r.importListed(ctx, records, ids)
		case len(ids) > 0:
			e.logger.WarnContext(ctx, "Listing failed, falling back to id lookups", "error", err)
		default:
			return nil, errors.Wrap(err, "list transactions")
		}
	}

	if report.Mode == "" {
		report.Mode = ModeIDs
	}
	if len(ids) > 0 {
		e.logger.InfoContext(ctx, "Reconciling transactions by id", "count", len(ids))
	}

	for i, id := range ids {
		if i > 0 {
			e.sleep(ctx, e.delay)
		}
		report.add(r.importByID(logcontext.AppendCtx(ctx, slog.String("id", id)), id))
	}

	e.logger.InfoContext(ctx, "Reconciliation finished", "imported", report.Imported,
		"alreadyExists", report.AlreadyExists, "notFound", report.NotFound, "errored", report.Errored)
	return report, nil
}

// run holds the state of one reconciliation invocation.
type run struct {
	*Engine
	gateway acquirer.Gateway
	pinned  *uuid.UUID
	report  *Report
}

// importListed processes listed records, restricted to ids when given, and
// returns the ids the listing did not contain.
func (r *run) importListed(ctx context.Context, records []*acquirer.RemoteTransaction, ids []string) []string {
	if len(ids) == 0 {
		for _, record := range records {
			r.report.add(r.importRecord(logcontext.AppendCtx(ctx, slog.String("id", record.ID)), record))
		}
		return nil
	}

	wanted := lo.SliceToMap(ids, func(id string) (string, bool) { return id, true })
	for _, record := range records {
		matched := lo.Filter([]string{record.ID, record.ExternalRef}, func(ref string, _ int) bool { return wanted[ref] })
		if len(matched) == 0 {
			continue
		}
		for _, ref := range matched {
			delete(wanted, ref)
		}
		r.report.add(r.importRecord(logcontext.AppendCtx(ctx, slog.String("id", record.ID)), record))
	}

	return lo.Filter(ids, func(id string, _ int) bool { return wanted[id] })
}

func (r *run) importByID(ctx context.Context, id string) Item {
	item := Item{ID: id}

	exists, err := r.ledger.ExistsByReference(ctx, id)
	if err != nil {
		return failed(item, err)
	}
	if exists {
		item.Outcome = OutcomeAlreadyExists
		return item
	}

	record, err := r.gateway.Transaction(ctx, id)
	if err != nil {
		if errors.Is(err, acquirer.ErrNotFound) {
			item.Outcome = OutcomeNotFound
			return item
		}
		r.logger.ErrorContext(ctx, "Error fetching transaction", "error", err)
		return failed(item, err)
	}

	imported := r.importRecord(ctx, record)
	imported.ID = id
	return imported
}

func (r *run) importRecord(ctx context.Context, record *acquirer.RemoteTransaction) Item {
	item := Item{ID: record.ID, Amount: record.Amount, Status: record.Status}
	if record.ID == "" {
		item.Outcome = OutcomeSkipped
		item.Reason = ReasonMissingID
		return item
	}

	refs := lo.Compact([]string{record.ID, record.ExternalRef})
	exists, err := r.ledger.ExistsByReference(ctx, refs...)
	if err != nil {
		return failed(item, err)
	}
	if exists {
		item.Outcome = OutcomeAlreadyExists
		return item
	}

	if record.Amount <= 0 {
		item.Outcome = OutcomeSkipped
		item.Reason = ReasonInvalidAmount
		return item
	}

	merchantID, reason, err := r.owner(ctx, record)
	if err != nil {
		return failed(item, err)
	}
	if merchantID == nil {
		r.logger.WarnContext(ctx, "Cannot attribute transaction to a merchant", "reason", reason)
		item.Outcome = OutcomeUserNotFound
		item.Reason = reason
		return item
	}
	item.MerchantID = merchantID

	tx, err := r.transaction(ctx, record, *merchantID)
	if err != nil {
		return failed(item, err)
	}

	inserted, err := r.ledger.CreateIfAbsent(ctx, tx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting transaction", "error", err)
		return failed(item, err)
	}
	if !inserted {
		item.Outcome = OutcomeAlreadyExists
		return item
	}

	r.logger.InfoContext(ctx, "Imported transaction", "txid", tx.Txid, "merchantId", merchantID.String())
	item.Outcome = OutcomeImported
	item.Txid = tx.Txid
	return item
}

// owner returns nil and a reason when the record cannot be attributed.
func (r *run) owner(ctx context.Context, record *acquirer.RemoteTransaction) (*uuid.UUID, string, error) {
	if r.pinned != nil {
		return r.pinned, "", nil
	}

	switch owner := InferOwner(record).(type) {
	case Resolved:
		exists, err := r.merchants.Exists(ctx, owner.MerchantID)
		if err != nil {
			return nil, "", errors.Wrap(err, "lookup merchant")
		}
		if !exists {
			return nil, ReasonUnknownMerchant, nil
		}
		return &owner.MerchantID, "", nil
	case Unresolved:
		return nil, owner.Reason, nil
	}
	return nil, ReasonNoOwnerHint, nil
}

func (r *run) transaction(ctx context.Context, record *acquirer.RemoteTransaction, merchantID uuid.UUID) (*model.Transaction, error) {
	fees, err := r.settings.FeeSchedule(ctx, &merchantID)
	if err != nil {
		return nil, err
	}
	loc, err := r.settings.Location(ctx, &merchantID)
	if err != nil {
		return nil, err
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	local := createdAt.In(loc)

	tx := &model.Transaction{
		Txid:          record.ID,
		MerchantID:    merchantID,
		Acquirer:      r.gateway.Acquirer(),
		Amount:        record.Amount,
		Status:        model.StatusGenerated,
		FeePercentage: fees.Percentage,
		FeeFixed:      fees.Fixed,
		DonorName:     record.Customer.Name,
		DonorDocument: record.Customer.Document,
		DonorEmail:    record.Customer.Email,
		Product:       record.Metadata["product"],
		CreatedAt:     createdAt,
		ReportDate:    time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
	}
	if record.ExternalRef != record.ID {
		tx.ExternalRef = record.ExternalRef
	}

	switch record.State {
	case acquirer.StatusPaid:
		paidAt := createdAt
		if record.PaidAt != nil {
			paidAt = *record.PaidAt
		}
		tx.Status = model.StatusPaid
		tx.PaidAt = &paidAt
	case acquirer.StatusExpired:
		tx.Status = model.StatusExpired
	}
	return tx, nil
}

func failed(item Item, err error) Item {
	item.Outcome = OutcomeError
	item.Error = acquirer.Excerpt(err.Error())
	return item
}

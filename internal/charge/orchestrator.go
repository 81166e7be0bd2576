// Package charge creates PIX charges against the acquirer a merchant is
// configured to use and records them in the ledger as generated.
package charge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pix-gateway/internal/acquirer"
	"pix-gateway/internal/credentials"
	"pix-gateway/internal/logcontext"
	"pix-gateway/internal/model"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrMerchantNotFound = errors.New("merchant not found")
)

type Ledger interface {
	Create(ctx context.Context, tx *model.Transaction) error
}

type Merchants interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Settings interface {
	Acquirer(ctx context.Context, merchantID *uuid.UUID) (model.Acquirer, bool, error)
	FeeSchedule(ctx context.Context, merchantID *uuid.UUID) (model.FeeSchedule, error)
	Location(ctx context.Context, merchantID *uuid.UUID) (*time.Location, error)
}

type Gateways interface {
	Gateway(ctx context.Context, a model.Acquirer, merchantID *uuid.UUID) (acquirer.Gateway, error)
}

type Recorder interface {
	Success(ctx context.Context, a model.Acquirer, txid string, latency time.Duration)
	Failure(ctx context.Context, a model.Acquirer, err error, latency time.Duration)
}

type Request struct {
	Amount     int64
	DonorName  string
	MerchantID uuid.UUID
	Tracking   model.Tracking
	Product    string
}

// Result carries the ledger txid and, as TransactionID, the local reference
// sent to the acquirer.
type Result struct {
	PixCode       string `json:"pixCode"`
	QRCodeURL     string `json:"qrCodeUrl"`
	Txid          string `json:"txid"`
	TransactionID string `json:"transactionId"`
}

type Orchestrator struct {
	ledger    Ledger
	merchants Merchants
	settings  Settings
	gateways  Gateways
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(ledger Ledger, merchants Merchants, settings Settings, gateways Gateways, recorder Recorder,
	logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:    ledger,
		merchants: merchants,
		settings:  settings,
		gateways:  gateways,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

func (o *Orchestrator) Create(ctx context.Context, req Request) (*Result, error) {
	ctx = logcontext.AppendCtx(ctx, slog.String("merchantId", req.MerchantID.String()))

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	exists, err := o.merchants.Exists(ctx, req.MerchantID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup merchant")
	}
	if !exists {
		return nil, ErrMerchantNotFound
	}

	merchantID := &req.MerchantID
	a, ok, err := o.settings.Acquirer(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrap(credentials.ErrNotConfigured, model.SettingAcquirer)
	}
	ctx = logcontext.AppendCtx(ctx, slog.String("acquirer", string(a)))

	fees, err := o.settings.FeeSchedule(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	loc, err := o.settings.Location(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	gateway, err := o.gateways.Gateway(ctx, a, merchantID)
	if err != nil {
		o.logger.WarnContext(ctx, "Acquirer not usable for merchant", "error", err)
		count(a, "not_configured")
		return nil, err
	}

	reference := acquirer.NewReference(a)
	customer := acquirer.SynthesizeCustomer(req.DonorName)

	o.logger.InfoContext(ctx, "Creating charge", "reference", reference, "amount", req.Amount)

	start := o.now()
	charge, err := gateway.CreateCharge(ctx, acquirer.ChargeRequest{
		Reference:  reference,
		MerchantID: req.MerchantID,
		Amount:     req.Amount,
		Product:    req.Product,
		Customer:   customer,
		Tracking:   req.Tracking,
	})
	latency := o.now().Sub(start)
	if err != nil {
		o.recorder.Failure(ctx, a, err, latency)
		count(a, "failed")
		return nil, errors.Wrap(err, "create charge")
	}

	createdAt := o.now()
	local := createdAt.In(loc)
	tx := &model.Transaction{
		Txid:          charge.Txid,
		MerchantID:    req.MerchantID,
		Acquirer:      a,
		ExternalRef:   charge.ExternalRef,
		Amount:        req.Amount,
		Status:        model.StatusGenerated,
		FeePercentage: fees.Percentage,
		FeeFixed:      fees.Fixed,
		DonorName:     customer.Name,
		DonorDocument: customer.Document,
		DonorEmail:    customer.Email,
		Product:       req.Product,
		Tracking:      req.Tracking,
		CreatedAt:     createdAt,
		ReportDate:    time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC),
	}

	if err := o.ledger.Create(ctx, tx); err != nil {
		o.logger.ErrorContext(ctx, "Charge created at acquirer but not recorded", "txid", tx.Txid, "error", err)
		count(a, "ledger_failed")
		return nil, errors.Wrap(err, "record charge")
	}

	o.recorder.Success(ctx, a, tx.Txid, latency)
	count(a, "created")
	o.logger.InfoContext(ctx, "Charge created", "txid", tx.Txid)

	return &Result{
		PixCode:       charge.PixCode,
		QRCodeURL:     charge.QRCodeURL,
		Txid:          tx.Txid,
		TransactionID: reference,
	}, nil
}

func count(a model.Acquirer, result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`charges_total{acquirer=%q,result=%q}`, a, result)).Inc()
}

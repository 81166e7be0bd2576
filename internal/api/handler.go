package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"pix-gateway/internal/acquirer"
	"pix-gateway/internal/charge"
	"pix-gateway/internal/config"
	"pix-gateway/internal/credentials"
	"pix-gateway/internal/db"
	"pix-gateway/internal/model"
	"pix-gateway/internal/poller"
	"pix-gateway/internal/reconcile"
	"pix-gateway/internal/tokencache"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

type ChargeCreator interface {
	Create(ctx context.Context, req charge.Request) (*charge.Result, error)
}

type StatusChecker interface {
	Check(ctx context.Context, txid string) (*poller.Result, error)
	Batch(ctx context.Context) (*poller.BatchResult, error)
}

type Reconciler interface {
	Run(ctx context.Context, req reconcile.Request) (*reconcile.Report, error)
}

type Handler struct {
	charges    ChargeCreator
	statuses   StatusChecker
	reconciler Reconciler
	validate   *validator.Validate
	logger     *slog.Logger
}

func NewHandler(charges ChargeCreator, statuses StatusChecker, reconciler Reconciler, logger *slog.Logger) *Handler {
	return &Handler{
		charges:    charges,
		statuses:   statuses,
		reconciler: reconciler,
		validate:   validator.New(),
		logger:     logger,
	}
}

func (h *Handler) Routes(cfg config.Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument(h.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/metrics", h.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/charges", h.CreateCharge)
		r.Get("/charges/{txid}/status", h.ChargeStatus)
		r.Post("/charges/poll", h.PollCharges)
		r.Post("/reconciliations", h.Reconcile)
	})
	r.Post("/webhooks/{acquirer}", h.Webhook)

	return r
}

// Metrics serves the request metrics followed by the domain counters kept in
// the VictoriaMetrics default set.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true}).ServeHTTP(w, r)
	metrics.WritePrometheus(w, false)
}

func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.charges.Create(r.Context(), charge.Request{
		Amount:     req.Amount,
		DonorName:  req.DonorName,
		MerchantID: uuid.MustParse(req.MerchantID),
		Tracking:   req.Tracking,
		Product:    req.Product,
	})
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ChargeResponse{
		Success:       true,
		PixCode:       result.PixCode,
		QRCodeURL:     result.QRCodeURL,
		Txid:          result.Txid,
		TransactionID: result.TransactionID,
	})
}

func (h *Handler) ChargeStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.statuses.Check(r.Context(), chi.URLParam(r, "txid"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) PollCharges(w http.ResponseWriter, r *http.Request) {
	result, err := h.statuses.Batch(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decode(w, r, &req) {
		return
	}

	from, to, err := reconcile.ParsePeriod(req.From, req.To)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}

	run := reconcile.Request{Acquirer: model.Acquirer(req.Acquirer), From: from, To: to, IDs: req.IDs}
	if req.MerchantID != "" {
		merchantID := uuid.MustParse(req.MerchantID)
		run.MerchantID = &merchantID
	}

	report, err := h.reconciler.Run(r.Context(), run)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Webhook treats a provider notification as a hint: the txid it names is
// checked against the acquirer, the payload itself settles nothing.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	a, ok := model.ParseAcquirer(chi.URLParam(r, "acquirer"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown acquirer"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}

	txid, err := acquirer.ExtractWebhookTxid(a, body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Ignoring webhook without transaction id", "acquirer", a, "error", err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.statuses.Check(r.Context(), txid)
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.logger.WarnContext(r.Context(), "Webhook for unknown transaction", "acquirer", a, "txid", txid)
		writeJSON(w, http.StatusAccepted, WebhookResponse{Received: true, Txid: txid})
	case err != nil:
		h.writeError(r.Context(), w, err)
	default:
		writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Txid: txid, Outcome: string(result.Outcome)})
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "Request failed", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var httpErr *acquirer.HTTPError
	switch {
	case errors.Is(err, charge.ErrInvalidAmount), errors.Is(err, reconcile.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, charge.ErrMerchantNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, credentials.ErrNotConfigured):
		return http.StatusUnprocessableEntity
	case errors.As(err, &httpErr), errors.Is(err, acquirer.ErrInvalidResponse),
		errors.Is(err, tokencache.ErrAuthentication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

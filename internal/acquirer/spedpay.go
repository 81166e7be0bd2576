package acquirer

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"pix-gateway/internal/model"

	"github.com/pkg/errors"
)

const defaultProduct = "Doação"

// SpedPay authenticates every request with a static secret header.
type SpedPay struct {
	sender     *sender
	secret     string
	webhookURL string
}

func NewSpedPay(baseURL, webhookURL, secret string, client *http.Client, logger *slog.Logger) *SpedPay {
	return &SpedPay{
		sender:     newSender(model.AcquirerSpedPay, baseURL, client, logger),
		secret:     secret,
		webhookURL: webhookURL,
	}
}

func (s *SpedPay) Acquirer() model.Acquirer {
	return model.AcquirerSpedPay
}

func (s *SpedPay) header() http.Header {
	return http.Header{"api-secret": []string{s.secret}}
}

func (s *SpedPay) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	product := req.Product
	if product == "" {
		product = defaultProduct
	}

	body := map[string]any{
		"amount":        req.Amount,
		"paymentMethod": "pix",
		"externalRef":   req.Reference,
		"postbackUrl":   s.webhookURL,
		"customer": map[string]any{
			"name":     req.Customer.Name,
			"email":    req.Customer.Email,
			"phone":    req.Customer.Phone,
			"document": map[string]any{"number": req.Customer.Document, "type": "cpf"},
		},
		"items": []map[string]any{
			{"title": product, "unitPrice": req.Amount, "quantity": 1, "tangible": false},
		},
		"metadata": trackingMetadata(req),
	}

	doc, err := s.sender.document(ctx, request{method: http.MethodPost, path: "/v1/transactions", header: s.header(), body: body})
	if err != nil {
		return nil, err
	}
	doc = doc.orSelf("data")

	charge := &Charge{
		Txid:           doc.str("id", "transactionId"),
		ExternalRef:    req.Reference,
		PixCode:        doc.str("pix.qrcode", "pix.qrCode", "pix.copyPaste", "pix.emv", "pixCode", "qrcode"),
		QRCodeURL:      doc.str("pix.qrcodeUrl", "pix.qrcode_url", "pix.url", "pix.qrCodeImage", "qrCodeUrl"),
		ProviderStatus: doc.str("status"),
	}
	if charge.PixCode == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "missing pix code")
	}
	if charge.Txid == "" {
		s.sender.logger.WarnContext(ctx, "Charge created without transaction id, using local reference",
			"acquirer", model.AcquirerSpedPay, "reference", req.Reference)
		charge.Txid = req.Reference
	}
	return charge, nil
}

func (s *SpedPay) Transaction(ctx context.Context, id string) (*RemoteTransaction, error) {
	doc, err := s.sender.document(ctx, request{
		method: http.MethodGet,
		path:   "/v1/transactions/" + url.PathEscape(id),
		header: s.header(),
	})
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, errors.Wrap(ErrNotFound, id)
		}
		return nil, err
	}

	tx := s.normalize(doc.orSelf("data"))
	if tx.ID == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "missing transaction id")
	}
	return tx, nil
}

func (s *SpedPay) Transactions(ctx context.Context, from, to time.Time) ([]*RemoteTransaction, error) {
	doc, err := s.sender.document(ctx, request{
		method: http.MethodGet,
		path:   "/v1/transactions",
		query: url.Values{
			"created_at_gte": []string{from.Format(time.DateOnly)},
			"created_at_lte": []string{to.Format(time.DateOnly)},
		},
		header: s.header(),
	})
	if err != nil {
		return nil, err
	}

	items, ok := doc.list("data", "transactions")
	if !ok {
		return nil, errors.Wrap(ErrInvalidResponse, "missing transaction list")
	}

	transactions := make([]*RemoteTransaction, 0, len(items))
	for _, item := range items {
		transactions = append(transactions, s.normalize(item))
	}
	return transactions, nil
}

func (s *SpedPay) normalize(doc document) *RemoteTransaction {
	status := doc.str("status")
	tx := &RemoteTransaction{
		ID:          doc.str("id"),
		ExternalRef: doc.str("externalRef", "external_ref"),
		Amount:      doc.cents("amount"),
		Status:      status,
		State:       MapStatus(model.AcquirerSpedPay, status),
		PaidAt:      doc.time(time.UTC, "paidAt", "paid_at"),
		Seller:      doc.str("seller", "seller.id"),
		Metadata:    doc.strMap("metadata"),
		Customer: Customer{
			Name:     doc.str("customer.name"),
			Document: doc.str("customer.document.number", "customer.document"),
			Email:    doc.str("customer.email"),
			Phone:    doc.str("customer.phone"),
		},
	}
	if createdAt := doc.time(time.UTC, "createdAt", "created_at"); createdAt != nil {
		tx.CreatedAt = *createdAt
	}
	return tx
}

func trackingMetadata(req ChargeRequest) map[string]string {
	metadata := map[string]string{
		"merchant_id": req.MerchantID.String(),
		"local_ref":   req.Reference,
	}
	for key, value := range map[string]string{
		"utm_source":   req.Tracking.Source,
		"utm_medium":   req.Tracking.Medium,
		"utm_campaign": req.Tracking.Campaign,
		"utm_content":  req.Tracking.Content,
		"utm_term":     req.Tracking.Term,
	} {
		if value != "" {
			metadata[key] = value
		}
	}
	return metadata
}

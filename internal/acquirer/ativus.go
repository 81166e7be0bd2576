package acquirer

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	_ "time/tzdata"

	"pix-gateway/internal/model"

	"github.com/pkg/errors"
)

// Ativus authenticates with the API key as HTTP Basic credentials and
// identifies charges by an opaque id of its own.
type Ativus struct {
	sender        *sender
	authorization string
	webhookURL    string
	location      *time.Location
}

func NewAtivus(baseURL, webhookURL, apiKey string, client *http.Client, logger *slog.Logger) *Ativus {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.UTC
	}
	return &Ativus{
		sender:        newSender(model.AcquirerAtivus, baseURL, client, logger),
		authorization: "Basic " + base64.StdEncoding.EncodeToString([]byte(apiKey)),
		webhookURL:    webhookURL,
		location:      loc,
	}
}

func (a *Ativus) Acquirer() model.Acquirer {
	return model.AcquirerAtivus
}

func (a *Ativus) header() http.Header {
	return http.Header{"Authorization": []string{a.authorization}}
}

// SellerTag is the seller value sent with every charge so reconciliation can
// attribute the record back to its merchant.
func SellerTag(merchantID string) string {
	return "merchant_" + merchantID
}

func (a *Ativus) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	body := map[string]any{
		"amount":      formatReais(req.Amount),
		"externalRef": req.Reference,
		"seller":      SellerTag(req.MerchantID.String()),
		"postbackUrl": a.webhookURL,
		"client": map[string]any{
			"name":     req.Customer.Name,
			"document": req.Customer.Document,
			"email":    req.Customer.Email,
			"telefone": req.Customer.Phone,
		},
		"metadata": trackingMetadata(req),
	}
	if req.Product != "" {
		body["product"] = req.Product
	}

	doc, err := a.sender.document(ctx, request{method: http.MethodPost, path: "/createTransaction.php", header: a.header(), body: body})
	if err != nil {
		return nil, err
	}

	charge := &Charge{
		Txid:           doc.str("idTransaction", "id_transaction", "id"),
		ExternalRef:    req.Reference,
		PixCode:        doc.str("paymentCode", "pix_code", "copia_e_cola"),
		QRCodeURL:      doc.str("paymentCodeUrl", "qrcode_url"),
		ProviderStatus: doc.str("status", "situacao"),
	}
	if charge.Txid == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "missing transaction id")
	}
	if charge.PixCode == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "missing pix code")
	}
	return charge, nil
}

// Transaction looks id up as the provider id, or as our external reference
// when id is a local reference. A 2xx answer without an id also means the
// provider does not know the charge.
func (a *Ativus) Transaction(ctx context.Context, id string) (*RemoteTransaction, error) {
	query := url.Values{"id_transaction": []string{id}}
	if _, ok := IsLocalReference(id); ok {
		query = url.Values{"externaRef": []string{id}}
	}

	doc, err := a.sender.document(ctx, request{
		method: http.MethodGet,
		path:   "/getTransactionStatus.php",
		query:  query,
		header: a.header(),
	})
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, errors.Wrap(ErrNotFound, id)
		}
		return nil, err
	}

	tx := a.normalize(doc.orSelf("transaction", "data"))
	if tx.ID == "" {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return tx, nil
}

// Transactions returns ErrListingUnavailable when the account has no access
// to the listing endpoint. The window is sent as the calendar dates of from
// and to in their own location.
func (a *Ativus) Transactions(ctx context.Context, from, to time.Time) ([]*RemoteTransaction, error) {
	doc, err := a.sender.document(ctx, request{
		method: http.MethodGet,
		path:   "/getTransactions.php",
		query: url.Values{
			"data_inicio": []string{from.Format(time.DateOnly)},
			"data_fim":    []string{to.Format(time.DateOnly)},
		},
		header: a.header(),
	})
	if err != nil {
		switch statusCode(err) {
		case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented, http.StatusForbidden:
			return nil, errors.Wrap(ErrListingUnavailable, err.Error())
		}
		return nil, err
	}

	items, ok := doc.list("transactions", "data")
	if !ok {
		return nil, errors.Wrap(ErrListingUnavailable, "missing transaction list")
	}

	transactions := make([]*RemoteTransaction, 0, len(items))
	for _, item := range items {
		transactions = append(transactions, a.normalize(item))
	}
	return transactions, nil
}

func (a *Ativus) normalize(doc document) *RemoteTransaction {
	status := doc.str("situacao", "status")
	tx := &RemoteTransaction{
		ID:          doc.str("id_transaction", "idTransaction", "id"),
		ExternalRef: doc.str("externalRef", "externaRef", "external_ref"),
		Amount:      doc.reais("valor", "amount"),
		Status:      status,
		State:       MapStatus(model.AcquirerAtivus, status),
		PaidAt:      doc.time(a.location, "data_pagamento", "paid_at"),
		Seller:      doc.str("seller"),
		Metadata:    doc.strMap("metadata"),
		Customer: Customer{
			Name:     doc.str("client.name", "nome"),
			Document: doc.str("client.document", "documento"),
			Email:    doc.str("client.email", "email"),
		},
	}
	if createdAt := doc.time(a.location, "data_criacao", "created_at"); createdAt != nil {
		tx.CreatedAt = *createdAt
	}
	return tx
}

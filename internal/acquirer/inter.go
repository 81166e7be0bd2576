package acquirer

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"pix-gateway/internal/model"

	"github.com/pkg/errors"
)

const (
	interChargeExpiry = 3600
	interMaxPages     = 50
)

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Inter issues immediate charges ("cob") under a caller-chosen txid, so the
// ledger txid is the local reference itself.
type Inter struct {
	sender *sender
	tokens TokenSource
	pixKey string
}

func NewInter(baseURL, pixKey string, tokens TokenSource, client *http.Client, logger *slog.Logger) *Inter {
	return &Inter{
		sender: newSender(model.AcquirerInter, baseURL, client, logger),
		tokens: tokens,
		pixKey: pixKey,
	}
}

// NewMTLSClient builds the client certificate transport. certificate and key
// are PEM contents or paths to PEM files. Gateways are rebuilt per call, so
// the transport keeps no idle connections behind.
func NewMTLSClient(certificate, key string, timeout time.Duration) (*http.Client, error) {
	certPEM, err := pemBytes(certificate)
	if err != nil {
		return nil, errors.Wrap(err, "read client certificate")
	}
	keyPEM, err := pemBytes(key)
	if err != nil {
		return nil, errors.Wrap(err, "read client key")
	}

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "load client certificate")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	transport.TLSClientConfig = &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func pemBytes(value string) ([]byte, error) {
	if strings.Contains(value, "-----BEGIN") {
		return []byte(value), nil
	}
	return os.ReadFile(value)
}

func (i *Inter) Acquirer() model.Acquirer {
	return model.AcquirerInter
}

func (i *Inter) header(ctx context.Context) (http.Header, error) {
	token, err := i.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return http.Header{"Authorization": []string{"Bearer " + token}}, nil
}

func (i *Inter) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	header, err := i.header(ctx)
	if err != nil {
		return nil, err
	}

	info := []map[string]string{{"nome": "merchant_id", "valor": req.MerchantID.String()}}
	if req.Product != "" {
		info = append(info, map[string]string{"nome": "produto", "valor": req.Product})
	}

	body := map[string]any{
		"calendario":     map[string]any{"expiracao": interChargeExpiry},
		"devedor":        map[string]any{"cpf": req.Customer.Document, "nome": req.Customer.Name},
		"valor":          map[string]any{"original": formatReais(req.Amount)},
		"chave":          i.pixKey,
		"infoAdicionais": info,
	}
	if req.Product != "" {
		body["solicitacaoPagador"] = req.Product
	}

	doc, err := i.sender.document(ctx, request{
		method: http.MethodPut,
		path:   "/pix/v2/cob/" + url.PathEscape(req.Reference),
		header: header,
		body:   body,
	})
	if err != nil {
		return nil, err
	}

	charge := &Charge{
		Txid:           doc.str("txid"),
		PixCode:        doc.str("pixCopiaECola", "brcode"),
		QRCodeURL:      doc.str("location", "loc.location"),
		ProviderStatus: doc.str("status"),
	}
	if charge.Txid == "" {
		charge.Txid = req.Reference
	}
	if charge.PixCode == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "missing pix code")
	}
	return charge, nil
}

func (i *Inter) Transaction(ctx context.Context, id string) (*RemoteTransaction, error) {
	header, err := i.header(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := i.sender.document(ctx, request{
		method: http.MethodGet,
		path:   "/pix/v2/cob/" + url.PathEscape(id),
		header: header,
	})
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, errors.Wrap(ErrNotFound, id)
		}
		return nil, err
	}

	tx := i.normalize(doc)
	if tx.ID == "" {
		return nil, errors.Wrap(ErrInvalidResponse, "missing txid")
	}
	return tx, nil
}

// Transactions follows the provider's pagination until the last page.
func (i *Inter) Transactions(ctx context.Context, from, to time.Time) ([]*RemoteTransaction, error) {
	header, err := i.header(ctx)
	if err != nil {
		return nil, err
	}

	var transactions []*RemoteTransaction
	for page := 0; page < interMaxPages; page++ {
		doc, err := i.sender.document(ctx, request{
			method: http.MethodGet,
			path:   "/pix/v2/cob",
			query: url.Values{
				"inicio":                []string{from.UTC().Format(time.RFC3339)},
				"fim":                   []string{to.UTC().Format(time.RFC3339)},
				"paginacao.paginaAtual": []string{strconv.Itoa(page)},
			},
			header: header,
		})
		if err != nil {
			return nil, err
		}

		items, ok := doc.list("cobs")
		if !ok {
			return nil, errors.Wrap(ErrInvalidResponse, "missing cobs list")
		}
		for _, item := range items {
			transactions = append(transactions, i.normalize(item))
		}

		pages, err := strconv.Atoi(doc.str("parametros.paginacao.quantidadeDePaginas"))
		if err != nil || page+1 >= pages {
			break
		}
	}
	return transactions, nil
}

func (i *Inter) normalize(doc document) *RemoteTransaction {
	status := doc.str("status")
	tx := &RemoteTransaction{
		ID:       doc.str("txid"),
		Amount:   doc.reais("valor.original"),
		Status:   status,
		State:    MapStatus(model.AcquirerInter, status),
		PaidAt:   doc.time(time.UTC, "pix.0.horario"),
		Metadata: doc.pairs("infoAdicionais", "nome", "valor"),
		Customer: Customer{
			Name:     doc.str("devedor.nome"),
			Document: doc.str("devedor.cpf", "devedor.cnpj"),
		},
	}
	if createdAt := doc.time(time.UTC, "calendario.criacao"); createdAt != nil {
		tx.CreatedAt = *createdAt
	}
	return tx
}

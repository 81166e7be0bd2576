// Package acquirer adapts the PIX acquirers to one normalized interface.
// Every adapter parses provider responses defensively: field names are looked
// up through ordered alias lists and only the PIX code is mandatory.
package acquirer

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"pix-gateway/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInvalidResponse    = errors.New("invalid acquirer response")
	ErrNotFound           = errors.New("transaction not found at acquirer")
	ErrListingUnavailable = errors.New("acquirer does not support listing")
)

const excerptLimit = 500

// HTTPError is returned for any non-2xx answer from an acquirer.
type HTTPError struct {
	Acquirer   model.Acquirer
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Acquirer, e.StatusCode, e.Body)
}

// Excerpt truncates s to the length kept in logs and monitoring events.
func Excerpt(s string) string {
	if utf8.RuneCountInString(s) <= excerptLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:excerptLimit])
}

type Customer struct {
	Name     string
	Document string
	Email    string
	Phone    string
}

type ChargeRequest struct {
	// Reference is the locally generated identifier sent to the acquirer.
	Reference  string
	MerchantID uuid.UUID
	Amount     int64
	Product    string
	Customer   Customer
	Tracking   model.Tracking
}

type Charge struct {
	// Txid is the identifier the ledger row is stored under.
	Txid           string
	ExternalRef    string
	PixCode        string
	QRCodeURL      string
	ProviderStatus string
}

// RemoteTransaction is a provider record normalized for polling and
// reconciliation. Amount is in cents and zero when the provider sent none.
type RemoteTransaction struct {
	ID          string
	ExternalRef string
	Amount      int64
	Status      string
	State       RemoteStatus
	CreatedAt   time.Time
	PaidAt      *time.Time
	Seller      string
	Metadata    map[string]string
	Customer    Customer
}

type Gateway interface {
	Acquirer() model.Acquirer
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// Transaction returns ErrNotFound when the acquirer does not know id.
	Transaction(ctx context.Context, id string) (*RemoteTransaction, error)
	// Transactions lists records created in [from, to].
	Transactions(ctx context.Context, from, to time.Time) ([]*RemoteTransaction, error)
}

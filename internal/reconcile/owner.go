package reconcile

import (
	"regexp"
	"strings"

	"pix-gateway/internal/acquirer"

	"github.com/google/uuid"
)

const (
	ReasonNoOwnerHint      = "no_owner_hint"
	ReasonInvalidOwnerHint = "invalid_owner_hint"
	ReasonUnknownMerchant  = "unknown_merchant"
)

var (
	sellerPattern = regexp.MustCompile(`(?i)^(?:merchant|seller|user)[_:-]?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

	ownerMetadataKeys = []string{"merchant_id", "merchantId", "user_id", "userId", "seller_id"}
)

// Ownership is either Resolved or Unresolved.
type Ownership interface {
	ownership()
}

type Resolved struct {
	MerchantID uuid.UUID
}

type Unresolved struct {
	Reason string
}

func (Resolved) ownership()   {}
func (Unresolved) ownership() {}

// InferOwner attributes a provider record to a merchant from its seller tag
// or, failing that, its metadata. It never guesses: a missing or malformed
// hint is Unresolved.
func InferOwner(tx *acquirer.RemoteTransaction) Ownership {
	hints := 0

	if seller := strings.TrimSpace(tx.Seller); seller != "" {
		hints++
		if match := sellerPattern.FindStringSubmatch(seller); match != nil {
			if id, err := uuid.Parse(match[1]); err == nil {
				return Resolved{MerchantID: id}
			}
		}
	}

	for _, key := range ownerMetadataKeys {
		value := strings.TrimSpace(tx.Metadata[key])
		if value == "" {
			continue
		}
		hints++
		if match := sellerPattern.FindStringSubmatch(value); match != nil {
			value = match[1]
		}
		if id, err := uuid.Parse(value); err == nil {
			return Resolved{MerchantID: id}
		}
	}

	if hints == 0 {
		return Unresolved{Reason: ReasonNoOwnerHint}
	}
	return Unresolved{Reason: ReasonInvalidOwnerHint}
}

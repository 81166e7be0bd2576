package message

import (
	"time"

	"github.com/google/uuid"
)

const EventTransactionPaid = "transaction.paid"

// Settlement is published once per generated → paid transition.
type Settlement struct {
	Event      string    `json:"event"`
	Txid       string    `json:"txid"`
	MerchantID uuid.UUID `json:"merchantId"`
	Acquirer   string    `json:"acquirer"`
	Amount     int64     `json:"amount"`
	Fee        int64     `json:"fee"`
	NetAmount  int64     `json:"netAmount"`
	PaidAt     time.Time `json:"paidAt"`
}

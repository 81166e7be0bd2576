package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Acquirer string

const (
	AcquirerSpedPay Acquirer = "spedpay"
	AcquirerInter   Acquirer = "inter"
	AcquirerAtivus  Acquirer = "ativus"
)

var Acquirers = []Acquirer{AcquirerSpedPay, AcquirerInter, AcquirerAtivus}

func ParseAcquirer(s string) (Acquirer, bool) {
	for _, a := range Acquirers {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

func (a Acquirer) Valid() bool {
	_, ok := ParseAcquirer(string(a))
	return ok
}

type Status string

const (
	StatusGenerated Status = "generated"
	StatusPaid      Status = "paid"
	StatusExpired   Status = "expired"
)

// Setting keys understood by the credential resolver.
const (
	SettingAcquirer          = "acquirer"
	SettingFeePercentage     = "fee_percentage"
	SettingFeeFixed          = "fee_fixed"
	SettingReportTimezone    = "report_timezone"
	SettingSpedPaySecret     = "spedpay_api_secret"
	SettingInterClientID     = "inter_client_id"
	SettingInterClientSecret = "inter_client_secret"
	SettingInterCertificate  = "inter_certificate"
	SettingInterPrivateKey   = "inter_private_key"
	SettingInterPixKey       = "inter_pix_key"
	SettingAtivusAPIKey      = "ativus_api_key"
)

// FeeSchedule is captured when a transaction is created and never recomputed.
type FeeSchedule struct {
	Percentage decimal.Decimal
	Fixed      int64
}

// Fee returns the platform fee in cents for the given amount, rounded half up.
func (f FeeSchedule) Fee(amount int64) int64 {
	variable := decimal.NewFromInt(amount).Mul(f.Percentage).Div(decimal.NewFromInt(100)).Round(0)
	return variable.IntPart() + f.Fixed
}

func (f FeeSchedule) IsZero() bool {
	return f.Percentage.IsZero() && f.Fixed == 0
}

type Tracking struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Content  string `json:"utm_content,omitempty"`
	Term     string `json:"utm_term,omitempty"`
}

type Transaction struct {
	Txid          string          `json:"txid"`
	MerchantID    uuid.UUID       `json:"merchantId"`
	Acquirer      Acquirer        `json:"acquirer,omitempty"`
	ExternalRef   string          `json:"externalRef,omitempty"`
	Amount        int64           `json:"amount"`
	Status        Status          `json:"status"`
	FeePercentage decimal.Decimal `json:"feePercentage"`
	FeeFixed      int64           `json:"feeFixed"`
	DonorName     string          `json:"donorName"`
	DonorDocument string          `json:"donorDocument"`
	DonorEmail    string          `json:"donorEmail"`
	Product       string          `json:"product,omitempty"`
	Tracking      Tracking        `json:"tracking"`
	CreatedAt     time.Time       `json:"createdAt"`
	PaidAt        *time.Time      `json:"paidAt,omitempty"`
	ReportDate    time.Time       `json:"reportDate"`
}

func (t *Transaction) Fees() FeeSchedule {
	return FeeSchedule{Percentage: t.FeePercentage, Fixed: t.FeeFixed}
}

type Merchant struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Setting struct {
	Key        string
	Value      string
	MerchantID *uuid.UUID
}

type CachedToken struct {
	ID          int64
	Acquirer    Acquirer
	Scope       string
	AccessToken string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

type AcquirerEvent struct {
	ID        int64
	Acquirer  Acquirer
	Kind      string
	Excerpt   string
	Latency   time.Duration
	Txid      string
	CreatedAt time.Time
}

package api

import (
	"pix-gateway/internal/model"
)

type ChargeRequest struct {
	Amount     int64  `json:"amount" validate:"gt=0"`
	DonorName  string `json:"donorName" validate:"max=120"`
	MerchantID string `json:"merchantId" validate:"required,uuid"`
	Product    string `json:"product" validate:"max=120"`
	model.Tracking
}

type ChargeResponse struct {
	Success       bool   `json:"success"`
	PixCode       string `json:"pixCode"`
	QRCodeURL     string `json:"qrCodeUrl"`
	Txid          string `json:"txid"`
	TransactionID string `json:"transactionId"`
}

// ReconcileRequest bounds are inclusive dates (YYYY-MM-DD) or RFC 3339 times.
type ReconcileRequest struct {
	Acquirer   string   `json:"acquirer" validate:"required,oneof=spedpay inter ativus"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	IDs        []string `json:"ids" validate:"omitempty,max=500,dive,required"`
	MerchantID string   `json:"merchantId" validate:"omitempty,uuid"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Txid     string `json:"txid,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

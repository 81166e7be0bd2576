// Command acquirer-mocks emulates the spedpay, inter and ativus endpoints the
// gateway talks to. Charges turn paid payDelay after creation. Point the
// acquirer base URLs at http://localhost:8085/{spedpay,inter,ativus}.
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	contentType = "application/json"
	payDelay    = 30 * time.Second
	expireRate  = 0.1

	// inter hands out at most tokensPerWindow tokens per tokenWindow and
	// answers 429 beyond that.
	tokensPerWindow = 3
	tokenWindow     = time.Minute
	tokenLifetime   = 3600
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type charge struct {
	ID          string
	ExternalRef string
	Amount      int64
	Seller      string
	Metadata    map[string]string
	CreatedAt   time.Time
	Expires     bool
}

func (c *charge) state(now time.Time) string {
	switch {
	case now.Sub(c.CreatedAt) < payDelay:
		return "pending"
	case c.Expires:
		return "expired"
	default:
		return "paid"
	}
}

func (c *charge) paidAt() any {
	if c.state(time.Now()) != "paid" {
		return nil
	}
	return c.CreatedAt.Add(payDelay)
}

type store struct {
	mu       sync.Mutex
	charges  map[string]*charge
	tokens   map[string]bool
	issued   []time.Time
	byExtRef map[string]string
}

func newStore() *store {
	return &store{charges: map[string]*charge{}, tokens: map[string]bool{}, byExtRef: map[string]string{}}
}

func (s *store) add(c *charge) {
	c.CreatedAt = time.Now()
	c.Expires = rand.Float64() < expireRate

	s.mu.Lock()
	defer s.mu.Unlock()
	s.charges[c.ID] = c
	if c.ExternalRef != "" {
		s.byExtRef[c.ExternalRef] = c.ID
	}
}

func (s *store) get(id string) (*charge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.charges[id]; ok {
		return c, true
	}
	c, ok := s.charges[s.byExtRef[id]]
	return c, ok
}

func (s *store) between(from, to time.Time) []*charge {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*charge
	for _, c := range s.charges {
		if !c.CreatedAt.Before(from) && !c.CreatedAt.After(to) {
			result = append(result, c)
		}
	}
	return result
}

func (s *store) issueToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	recent := s.issued[:0]
	for _, t := range s.issued {
		if now.Sub(t) < tokenWindow {
			recent = append(recent, t)
		}
	}
	s.issued = recent
	if len(s.issued) >= tokensPerWindow {
		return "", false
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.issued = append(s.issued, now)
	s.tokens[token] = true
	return token, true
}

func (s *store) validToken(header string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[strings.TrimPrefix(header, "Bearer ")]
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	s := newStore()
	r := chi.NewRouter()
	r.Use(loggingMiddleware, countMiddleware)

	r.Route("/spedpay/v1/transactions", func(r chi.Router) {
		r.Post("/", s.spedPayCreate)
		r.Get("/", s.spedPayList)
		r.Get("/{id}", s.spedPayGet)
	})

	r.Route("/inter", func(r chi.Router) {
		r.Post("/oauth/v2/token", s.interToken)
		r.Put("/pix/v2/cob/{txid}", s.interCreate)
		r.Get("/pix/v2/cob/{txid}", s.interGet)
		r.Get("/pix/v2/cob", s.interList)
	})

	r.Route("/ativus", func(r chi.Router) {
		r.Post("/createTransaction.php", s.ativusCreate)
		r.Get("/getTransactionStatus.php", s.ativusGet)
		r.Get("/getTransactions.php", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not Found"})
		})
	})

	slog.Info("Acquirer mocks listening", "addr", ":8085")
	if err := http.ListenAndServe(":8085", r); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func (s *store) spedPayCreate(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("api-secret") == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing api-secret"})
		return
	}

	var req struct {
		Amount      int64             `json:"amount"`
		ExternalRef string            `json:"externalRef"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid amount"})
		return
	}

	c := &charge{ID: uuid.NewString(), ExternalRef: req.ExternalRef, Amount: req.Amount, Metadata: req.Metadata}
	s.add(c)

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     c.ID,
		"status": "waiting_payment",
		"pix": map[string]any{
			"qrcode": brCode(c),
			"url":    "http://localhost:8085/qr/" + c.ID + ".png",
		},
	})
}

func spedPayStatus(c *charge) string {
	switch c.state(time.Now()) {
	case "paid":
		return "paid"
	case "expired":
		return "refused"
	default:
		return "waiting_payment"
	}
}

func spedPayView(c *charge) map[string]any {
	return map[string]any{
		"id":          c.ID,
		"status":      spedPayStatus(c),
		"amount":      c.Amount,
		"externalRef": c.ExternalRef,
		"createdAt":   c.CreatedAt,
		"paidAt":      c.paidAt(),
		"metadata":    c.Metadata,
	}
}

func (s *store) spedPayGet(w http.ResponseWriter, r *http.Request) {
	c, ok := s.get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "transaction not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": spedPayView(c)})
}

func (s *store) spedPayList(w http.ResponseWriter, r *http.Request) {
	from, _ := time.Parse(time.DateOnly, r.URL.Query().Get("created_at_gte"))
	to, err := time.Parse(time.DateOnly, r.URL.Query().Get("created_at_lte"))
	if err != nil {
		to = time.Now()
	}

	data := []map[string]any{}
	for _, c := range s.between(from, to.Add(24*time.Hour)) {
		data = append(data, spedPayView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (s *store) interToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("client_id") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	token, ok := s.issueToken()
	if !ok {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   tokenLifetime,
		"scope":        r.PostForm.Get("scope"),
	})
}

func (s *store) interCreate(w http.ResponseWriter, r *http.Request) {
	if !s.validToken(r.Header.Get("Authorization")) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return
	}

	var req struct {
		Valor struct {
			Original string `json:"original"`
		} `json:"valor"`
		InfoAdicionais []struct {
			Nome  string `json:"nome"`
			Valor string `json:"valor"`
		} `json:"infoAdicionais"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		return
	}
	amount, err := decimal.NewFromString(req.Valor.Original)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid valor.original"})
		return
	}

	metadata := map[string]string{}
	for _, info := range req.InfoAdicionais {
		metadata[info.Nome] = info.Valor
	}

	c := &charge{ID: chi.URLParam(r, "txid"), Amount: amount.Shift(2).IntPart(), Metadata: metadata}
	s.add(c)

	writeJSON(w, http.StatusCreated, map[string]any{
		"txid":          c.ID,
		"status":        "ATIVA",
		"pixCopiaECola": brCode(c),
		"location":      "localhost:8085/qr/" + c.ID,
	})
}

func interView(c *charge) map[string]any {
	status := "ATIVA"
	switch c.state(time.Now()) {
	case "paid":
		status = "CONCLUIDA"
	case "expired":
		status = "REMOVIDA_PELO_PSP"
	}

	info := []map[string]string{}
	for k, v := range c.Metadata {
		info = append(info, map[string]string{"nome": k, "valor": v})
	}

	view := map[string]any{
		"txid":           c.ID,
		"status":         status,
		"calendario":     map[string]any{"criacao": c.CreatedAt.UTC().Format(time.RFC3339), "expiracao": 3600},
		"valor":          map[string]any{"original": decimal.New(c.Amount, -2).StringFixed(2)},
		"infoAdicionais": info,
	}
	if status == "CONCLUIDA" {
		view["pix"] = []map[string]any{{"txid": c.ID, "horario": c.CreatedAt.Add(payDelay).UTC().Format(time.RFC3339)}}
	}
	return view
}

func (s *store) interGet(w http.ResponseWriter, r *http.Request) {
	if !s.validToken(r.Header.Get("Authorization")) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return
	}
	c, ok := s.get(chi.URLParam(r, "txid"))
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "cobranca nao encontrada"})
		return
	}
	writeJSON(w, http.StatusOK, interView(c))
}

func (s *store) interList(w http.ResponseWriter, r *http.Request) {
	if !s.validToken(r.Header.Get("Authorization")) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
		return
	}
	from, _ := time.Parse(time.RFC3339, r.URL.Query().Get("inicio"))
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("fim"))
	if err != nil {
		to = time.Now()
	}

	cobs := []map[string]any{}
	for _, c := range s.between(from, to) {
		cobs = append(cobs, interView(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parametros": map[string]any{"paginacao": map[string]any{"paginaAtual": 0, "quantidadeDePaginas": 1}},
		"cobs":       cobs,
	})
}

func (s *store) ativusCreate(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req struct {
		Amount      string            `json:"amount"`
		ExternalRef string            `json:"externalRef"`
		Seller      string            `json:"seller"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid amount"})
		return
	}

	c := &charge{
		ID:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		ExternalRef: req.ExternalRef,
		Amount:      amount.Shift(2).IntPart(),
		Seller:      req.Seller,
		Metadata:    req.Metadata,
	}
	s.add(c)

	writeJSON(w, http.StatusOK, map[string]any{
		"idTransaction":  c.ID,
		"status":         "AGUARDANDO_PAGAMENTO",
		"paymentCode":    brCode(c),
		"paymentCodeUrl": "http://localhost:8085/qr/" + c.ID + ".png",
	})
}

func (s *store) ativusGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id_transaction")
	if id == "" {
		id = r.URL.Query().Get("externaRef")
	}
	c, ok := s.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "transacao nao encontrada"})
		return
	}

	situacao := "AGUARDANDO_PAGAMENTO"
	switch c.state(time.Now()) {
	case "paid":
		situacao = "PAGO"
	case "expired":
		situacao = "EXPIRADO"
	}

	view := map[string]any{
		"id_transaction": c.ID,
		"situacao":       situacao,
		"valor":          decimal.New(c.Amount, -2).StringFixed(2),
		"externalRef":    c.ExternalRef,
		"data_criacao":   c.CreatedAt.Format(time.DateTime),
		"seller":         c.Seller,
		"metadata":       c.Metadata,
	}
	if situacao == "PAGO" {
		view["data_pagamento"] = c.CreatedAt.Add(payDelay).Format(time.DateTime)
	}
	writeJSON(w, http.StatusOK, view)
}

// brCode is a static EMV-shaped payload; nothing validates its CRC.
func brCode(c *charge) string {
	return "00020126580014br.gov.bcb.pix0136" + c.ID + "5204000053039865802BR5913PIX MOCK6009SAO PAULO6304ABCD"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package charge

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"

	"pix-gateway/internal/acquirer"
	"pix-gateway/internal/config"
	"pix-gateway/internal/credentials"
	"pix-gateway/internal/model"
	"pix-gateway/internal/monitor"
	"pix-gateway/internal/testhelpers"

	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const (
	interHost   = "https://inter.test"
	spedPayHost = "https://spedpay.test"
)

type OrchestratorTestSuite struct {
	suite.Suite
	store        *testhelpers.MemStore
	events       *testhelpers.EventLog
	orchestrator *Orchestrator
	merchant     uuid.UUID
}

func (s *OrchestratorTestSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	s.store = testhelpers.NewMemStore()
	s.events = &testhelpers.EventLog{}
	s.merchant = s.store.AddMerchant("Instituto Esperança")

	for key, value := range map[string]string{
		model.SettingInterClientID:     "client-1",
		model.SettingInterClientSecret: "secret",
		model.SettingInterPixKey:       "pix@merchant.test",
	} {
		s.Require().NoError(s.store.Set(ctx, key, value, nil))
	}

	resolver := credentials.NewResolver(s.store, map[string]string{
		model.SettingAcquirer:      "inter",
		model.SettingFeePercentage: "2.5",
		model.SettingFeeFixed:      "50",
	})
	registry := acquirer.NewRegistry(config.Acquirers{
		SpedPay: config.Acquirer{BaseURL: spedPayHost},
		Inter:   config.Acquirer{BaseURL: interHost, Scopes: "cob.read cob.write"},
	}, resolver, s.store, logger, acquirer.WithHTTPClient(&http.Client{}))

	s.orchestrator = NewOrchestrator(s.store, s.store, resolver, registry, monitor.NewRecorder(s.events, logger), logger)
}

func (s *OrchestratorTestSuite) TearDownTest() {
	gock.Off()
}

func (s *OrchestratorTestSuite) mockInterToken() {
	gock.New(interHost).
		Post("/oauth/v2/token").
		Reply(http.StatusOK).
		JSON(map[string]any{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600})
}

func (s *OrchestratorTestSuite) TestCreateWithPlatformDefaults() {
	s.mockInterToken()
	gock.New(interHost).
		Put(`/pix/v2/cob/inter[a-z0-9]+`).
		MatchHeader("Authorization", "Bearer tok-1").
		Reply(http.StatusCreated).
		JSON(map[string]any{
			"status":        "ATIVA",
			"pixCopiaECola": "00020101021226900014br.gov.bcb.pix",
			"location":      "pix.inter.test/qr/v2/abc",
		})

	result, err := s.orchestrator.Create(context.Background(), Request{Amount: 1000, MerchantID: s.merchant})
	s.Require().NoError(err)

	s.NotEmpty(result.PixCode)
	s.True(strings.HasPrefix(result.Txid, "inter"))
	s.Equal(result.Txid, result.TransactionID)
	s.True(gock.IsDone())

	tx, err := s.store.GetByTxid(context.Background(), result.Txid)
	s.Require().NoError(err)
	s.Equal(model.StatusGenerated, tx.Status)
	s.Equal(model.AcquirerInter, tx.Acquirer)
	s.True(decimal.RequireFromString("2.5").Equal(tx.FeePercentage))
	s.Equal(int64(50), tx.FeeFixed)
	s.Nil(tx.PaidAt)
	s.True(acquirer.ValidCPF(tx.DonorDocument))
	s.NotEmpty(tx.DonorName)

	s.Equal([]string{monitor.KindSuccess}, s.events.Kinds())
}

func (s *OrchestratorTestSuite) TestFeesAreFrozenAtCreation() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, model.SettingAcquirer, "spedpay", &s.merchant))
	s.Require().NoError(s.store.Set(ctx, model.SettingSpedPaySecret, "sk_live", &s.merchant))
	s.Require().NoError(s.store.Set(ctx, model.SettingFeePercentage, "4.99", nil))

	for _, id := range []string{"tx-f1", "tx-f2"} {
		gock.New(spedPayHost).
			Post("/v1/transactions").
			Reply(http.StatusOK).
			JSON(map[string]any{"id": id, "status": "waiting_payment", "pix": map[string]any{"qrcode": "000201"}})
	}

	first, err := s.orchestrator.Create(ctx, Request{Amount: 1000, MerchantID: s.merchant, DonorName: "Ana"})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Set(ctx, model.SettingFeePercentage, "9.99", nil))

	second, err := s.orchestrator.Create(ctx, Request{Amount: 1000, MerchantID: s.merchant})
	s.Require().NoError(err)

	f1, err := s.store.GetByTxid(ctx, first.Txid)
	s.Require().NoError(err)
	f2, err := s.store.GetByTxid(ctx, second.Txid)
	s.Require().NoError(err)

	s.Equal("tx-f1", f1.Txid)
	s.Equal("Ana", f1.DonorName)
	s.True(strings.HasPrefix(f1.ExternalRef, "spd"))
	s.True(decimal.RequireFromString("4.99").Equal(f1.FeePercentage))
	s.True(decimal.RequireFromString("9.99").Equal(f2.FeePercentage))
}

func (s *OrchestratorTestSuite) TestMissingPixCodeIsRecordedAsFailure() {
	s.mockInterToken()
	gock.New(interHost).
		Put(`/pix/v2/cob/inter[a-z0-9]+`).
		Reply(http.StatusCreated).
		JSON(map[string]any{"status": "ATIVA"})

	_, err := s.orchestrator.Create(context.Background(), Request{Amount: 1000, MerchantID: s.merchant})
	s.ErrorIs(err, acquirer.ErrInvalidResponse)

	s.Empty(s.store.Transactions())
	s.Equal([]string{monitor.KindInvalidResponse}, s.events.Kinds())
}

func (s *OrchestratorTestSuite) TestAcquirerHTTPErrorIsRecordedAsFailure() {
	s.mockInterToken()
	gock.New(interHost).
		Put(`/pix/v2/cob/inter[a-z0-9]+`).
		Reply(http.StatusBadRequest).
		BodyString(`{"title":"Chave inválida"}`)

	_, err := s.orchestrator.Create(context.Background(), Request{Amount: 1000, MerchantID: s.merchant})
	s.Error(err)

	events := s.events.Events()
	s.Require().Len(events, 1)
	s.Equal(monitor.KindHTTPError, events[0].Kind)
	s.Contains(events[0].Excerpt, "Chave inválida")
}

func (s *OrchestratorTestSuite) TestMissingCredentialFails() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, model.SettingAcquirer, "ativus", &s.merchant))

	_, err := s.orchestrator.Create(ctx, Request{Amount: 1000, MerchantID: s.merchant})
	s.ErrorIs(err, credentials.ErrNotConfigured)
	s.Empty(s.events.Events())
}

func (s *OrchestratorTestSuite) TestRejectsInvalidInput() {
	_, err := s.orchestrator.Create(context.Background(), Request{Amount: 0, MerchantID: s.merchant})
	s.ErrorIs(err, ErrInvalidAmount)

	_, err = s.orchestrator.Create(context.Background(), Request{Amount: 1000, MerchantID: uuid.New()})
	s.ErrorIs(err, ErrMerchantNotFound)
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}


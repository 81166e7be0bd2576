package db_test

import (
	"context"
	"log"
	"sync"
	"testing"
	"time"

	"pix-gateway/internal/db"
	"pix-gateway/internal/model"
	"pix-gateway/internal/testhelpers"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	pgContainer  *testhelpers.PostgresContainer
	pool         *pgxpool.Pool
	transactions *db.TransactionRepository
	settings     *db.SettingsRepository
	tokens       *db.TokenRepository
	merchants    *db.MerchantRepository
	events       *db.EventRepository
	ctx          context.Context
	merchant     uuid.UUID
}

func (s *RepositoryTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	if err := db.RunMigrations(pgContainer.ConnectionString); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(s.ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.transactions = db.NewTransactionRepository(pool)
	s.settings = db.NewSettingsRepository(pool)
	s.tokens = db.NewTokenRepository(pool)
	s.merchants = db.NewMerchantRepository(pool)
	s.events = db.NewEventRepository(pool)
}

func (s *RepositoryTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *RepositoryTestSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx,
		"TRUNCATE transactions, settings, acquirer_tokens, acquirer_events, merchants")
	if err != nil {
		log.Fatalf("error truncating tables: %s", err)
	}

	merchant := &model.Merchant{ID: uuid.New(), Name: "Associação Amigos"}
	s.Require().NoError(s.merchants.Create(s.ctx, merchant))
	s.merchant = merchant.ID
}

func (s *RepositoryTestSuite) transaction(txid, externalRef string) *model.Transaction {
	return &model.Transaction{
		Txid:          txid,
		MerchantID:    s.merchant,
		Acquirer:      model.AcquirerSpedPay,
		ExternalRef:   externalRef,
		Amount:        1000,
		Status:        model.StatusGenerated,
		FeePercentage: decimal.RequireFromString("4.99"),
		FeeFixed:      100,
		DonorName:     "Ana",
		Tracking:      model.Tracking{Source: "instagram", Campaign: "natal"},
		CreatedAt:     time.Now().Truncate(time.Microsecond),
		ReportDate:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *RepositoryTestSuite) TestCreateAndGet() {
	t := s.T()

	tx := s.transaction("tx-1", "spd-ref-1")
	assert.NoError(t, s.transactions.Create(s.ctx, tx))

	stored, err := s.transactions.GetByTxid(s.ctx, "tx-1")
	s.Require().NoError(err)
	assert.Equal(t, model.StatusGenerated, stored.Status)
	assert.Equal(t, "spd-ref-1", stored.ExternalRef)
	assert.True(t, decimal.RequireFromString("4.99").Equal(stored.FeePercentage))
	assert.Equal(t, tx.Tracking, stored.Tracking)
	assert.Equal(t, tx.ReportDate, stored.ReportDate.UTC())
	assert.Nil(t, stored.PaidAt)

	assert.ErrorIs(t, s.transactions.Create(s.ctx, s.transaction("tx-2", "spd-ref-1")), db.ErrDuplicate)

	_, err = s.transactions.GetByTxid(s.ctx, "missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func (s *RepositoryTestSuite) TestCreateIfAbsent() {
	t := s.T()

	inserted, err := s.transactions.CreateIfAbsent(s.ctx, s.transaction("tx-1", "ref-1"))
	assert.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.transactions.CreateIfAbsent(s.ctx, s.transaction("tx-1", ""))
	assert.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = s.transactions.CreateIfAbsent(s.ctx, s.transaction("tx-2", "ref-1"))
	assert.NoError(t, err)
	assert.False(t, inserted)

	exists, err := s.transactions.ExistsByReference(s.ctx, "nope", "ref-1")
	assert.NoError(t, err)
	assert.True(t, exists)
}

func (s *RepositoryTestSuite) TestMarkPaidTransitionsOnce() {
	t := s.T()
	s.Require().NoError(s.transactions.Create(s.ctx, s.transaction("tx-1", "")))

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		transitioned int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.transactions.MarkPaid(s.ctx, "tx-1", time.Now().Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				transitioned++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, transitioned)

	stored, err := s.transactions.GetByTxid(s.ctx, "tx-1")
	s.Require().NoError(err)
	first := *stored.PaidAt

	ok, err := s.transactions.MarkPaid(s.ctx, "tx-1", time.Now().Add(time.Hour))
	assert.NoError(t, err)
	assert.False(t, ok)

	stored, err = s.transactions.GetByTxid(s.ctx, "tx-1")
	s.Require().NoError(err)
	assert.True(t, first.Equal(*stored.PaidAt))

	_, err = s.transactions.MarkPaid(s.ctx, "missing", time.Now())
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func (s *RepositoryTestSuite) TestMarkExpiredNeverTouchesPaid() {
	t := s.T()
	s.Require().NoError(s.transactions.Create(s.ctx, s.transaction("tx-1", "")))
	s.Require().NoError(s.transactions.Create(s.ctx, s.transaction("tx-2", "")))

	_, err := s.transactions.MarkPaid(s.ctx, "tx-1", time.Now())
	s.Require().NoError(err)

	ok, err := s.transactions.MarkExpired(s.ctx, "tx-1")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.transactions.MarkExpired(s.ctx, "tx-2")
	assert.NoError(t, err)
	assert.True(t, ok)

	pending, err := s.transactions.ListPending(s.ctx, 100)
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

func (s *RepositoryTestSuite) TestListPendingNewestFirst() {
	t := s.T()
	older := s.transaction("tx-old", "")
	older.CreatedAt = time.Now().Add(-time.Hour)
	s.Require().NoError(s.transactions.Create(s.ctx, older))
	s.Require().NoError(s.transactions.Create(s.ctx, s.transaction("tx-new", "")))

	pending, err := s.transactions.ListPending(s.ctx, 1)
	assert.NoError(t, err)
	s.Require().Len(pending, 1)
	assert.Equal(t, "tx-new", pending[0].Txid)
}

func (s *RepositoryTestSuite) TestFeesAreImmutable() {
	s.Require().NoError(s.transactions.Create(s.ctx, s.transaction("tx-1", "")))

	_, err := s.pool.Exec(s.ctx, `UPDATE transactions SET fee_percentage = 1 WHERE txid = 'tx-1'`)
	s.Error(err)
}

func (s *RepositoryTestSuite) TestSettingsScopes() {
	t := s.T()

	s.Require().NoError(s.settings.Set(s.ctx, model.SettingAcquirer, "inter", nil))
	s.Require().NoError(s.settings.Set(s.ctx, model.SettingAcquirer, "spedpay", &s.merchant))
	s.Require().NoError(s.settings.Set(s.ctx, model.SettingAcquirer, "ativus", nil))

	global, ok, err := s.settings.Get(s.ctx, model.SettingAcquirer, nil)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ativus", global)

	scoped, ok, err := s.settings.Get(s.ctx, model.SettingAcquirer, &s.merchant)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "spedpay", scoped)

	_, ok, err = s.settings.Get(s.ctx, model.SettingFeeFixed, nil)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func (s *RepositoryTestSuite) TestTokensAppendOnly() {
	t := s.T()

	latest, err := s.tokens.Latest(s.ctx, model.AcquirerInter, "client-1")
	assert.NoError(t, err)
	assert.Nil(t, latest)

	for _, token := range []*model.CachedToken{
		{Acquirer: model.AcquirerInter, Scope: "client-1", AccessToken: "old", ExpiresAt: time.Now().Add(-time.Hour)},
		{Acquirer: model.AcquirerInter, Scope: "client-1", AccessToken: "new", ExpiresAt: time.Now().Add(time.Hour)},
		{Acquirer: model.AcquirerInter, Scope: "client-2", AccessToken: "other", ExpiresAt: time.Now().Add(2 * time.Hour)},
	} {
		s.Require().NoError(s.tokens.Insert(s.ctx, token))
		assert.NotZero(t, token.ID)
	}

	latest, err = s.tokens.Latest(s.ctx, model.AcquirerInter, "client-1")
	assert.NoError(t, err)
	s.Require().NotNil(latest)
	assert.Equal(t, "new", latest.AccessToken)
}

func (s *RepositoryTestSuite) TestEvents() {
	event := &model.AcquirerEvent{Acquirer: model.AcquirerAtivus, Kind: "http_error", Excerpt: "status 500",
		Latency: 1500 * time.Millisecond}
	s.Require().NoError(s.events.Insert(s.ctx, event))
	s.NotZero(event.ID)
	s.False(event.CreatedAt.IsZero())
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

package credentials

import (
	"context"
	"testing"

	"pix-gateway/internal/model"
	"pix-gateway/internal/testhelpers"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Precedence(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemStore()
	merchant := uuid.New()
	other := uuid.New()

	resolver := NewResolver(store, map[string]string{model.SettingAcquirer: "ativus"})

	value, err := resolver.Lookup(ctx, model.SettingAcquirer, &merchant)
	require.NoError(t, err)
	assert.Equal(t, Value{Value: "ativus", Source: SourceFallback}, value)

	require.NoError(t, store.Set(ctx, model.SettingAcquirer, "spedpay", nil))
	value, err = resolver.Lookup(ctx, model.SettingAcquirer, &merchant)
	require.NoError(t, err)
	assert.Equal(t, Value{Value: "spedpay", Source: SourceGlobal}, value)

	require.NoError(t, store.Set(ctx, model.SettingAcquirer, " inter ", &merchant))
	value, err = resolver.Lookup(ctx, model.SettingAcquirer, &merchant)
	require.NoError(t, err)
	assert.Equal(t, Value{Value: "inter", Source: SourceMerchant}, value)

	value, err = resolver.Lookup(ctx, model.SettingAcquirer, &other)
	require.NoError(t, err)
	assert.Equal(t, SourceGlobal, value.Source)
}

func TestLookup_BlankMerchantValueFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemStore()
	merchant := uuid.New()
	require.NoError(t, store.Set(ctx, model.SettingAtivusAPIKey, "  ", &merchant))
	require.NoError(t, store.Set(ctx, model.SettingAtivusAPIKey, "global-key", nil))

	value, err := NewResolver(store, nil).Lookup(ctx, model.SettingAtivusAPIKey, &merchant)
	require.NoError(t, err)
	assert.Equal(t, "global-key", value.Value)
}

func TestRequire_NotConfigured(t *testing.T) {
	resolver := NewResolver(testhelpers.NewMemStore(), nil)

	_, err := resolver.Require(context.Background(), model.SettingInterClientID, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), model.SettingInterClientID)
}

func TestAcquirer(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemStore()
	merchant := uuid.New()
	resolver := NewResolver(store, nil)

	_, ok, err := resolver.Acquirer(ctx, &merchant)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, model.SettingAcquirer, "Inter", &merchant))
	acquirer, ok, err := resolver.Acquirer(ctx, &merchant)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.AcquirerInter, acquirer)

	require.NoError(t, store.Set(ctx, model.SettingAcquirer, "paypal", &merchant))
	_, _, err = resolver.Acquirer(ctx, &merchant)
	assert.Error(t, err)
}

func TestFeeSchedule(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemStore()
	merchant := uuid.New()
	resolver := NewResolver(store, map[string]string{model.SettingFeeFixed: "100"})

	schedule, err := resolver.FeeSchedule(ctx, &merchant)
	require.NoError(t, err)
	assert.True(t, schedule.Percentage.IsZero())
	assert.Equal(t, int64(100), schedule.Fixed)

	require.NoError(t, store.Set(ctx, model.SettingFeePercentage, "3,5", &merchant))
	schedule, err = resolver.FeeSchedule(ctx, &merchant)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.5").Equal(schedule.Percentage))

	require.NoError(t, store.Set(ctx, model.SettingFeeFixed, "-1", nil))
	_, err = resolver.FeeSchedule(ctx, &merchant)
	assert.Error(t, err)
}

func TestLocation(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewMemStore()
	resolver := NewResolver(store, nil)

	loc, err := resolver.Location(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())

	require.NoError(t, store.Set(ctx, model.SettingReportTimezone, "Mars/Olympus", nil))
	_, err = resolver.Location(ctx, nil)
	assert.Error(t, err)
}

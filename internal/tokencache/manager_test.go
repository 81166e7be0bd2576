package tokencache

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"pix-gateway/internal/model"
	"pix-gateway/internal/testhelpers"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenHost = "https://inter.test"

func newManager(store Store) *Manager {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return NewManager(store, model.AcquirerInter, Credentials{
		ClientID:     "client-1",
		ClientSecret: "secret",
		TokenURL:     tokenHost + "/oauth/v2/token",
		Scopes:       "cob.read cob.write",
	}, &http.Client{}, logger)
}

func seed(t *testing.T, store Store, token string, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, store.Insert(context.Background(), &model.CachedToken{
		Acquirer:    model.AcquirerInter,
		Scope:       "client-1",
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}))
}

func TestToken_ReusedWithinValidity(t *testing.T) {
	defer gock.Off()

	gock.New(tokenHost).
		Post("/oauth/v2/token").
		BodyString("client_id=client-1").
		Times(1).
		Reply(http.StatusOK).
		JSON(map[string]any{"access_token": "tok-1", "token_type": "Bearer", "expires_in": 3600})

	store := testhelpers.NewMemStore()
	manager := newManager(store)

	first, err := manager.Token(context.Background())
	require.NoError(t, err)
	second, err := manager.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, "tok-1", second)
	assert.True(t, gock.IsDone())
	assert.Len(t, store.Tokens(), 1)
}

func TestToken_RefreshesNearExpiry(t *testing.T) {
	defer gock.Off()

	gock.New(tokenHost).
		Post("/oauth/v2/token").
		Reply(http.StatusOK).
		JSON(map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600})

	store := testhelpers.NewMemStore()
	seed(t, store, "old", time.Now().Add(4*time.Minute))

	token, err := newManager(store).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Len(t, store.Tokens(), 2)
}

func TestToken_RateLimitedFallsBackToStaleToken(t *testing.T) {
	defer gock.Off()

	gock.New(tokenHost).
		Post("/oauth/v2/token").
		Reply(http.StatusTooManyRequests).
		JSON(map[string]any{"error": "rate_limited"})

	store := testhelpers.NewMemStore()
	seed(t, store, "stale", time.Now().Add(-time.Hour))

	token, err := newManager(store).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stale", token)
	assert.Len(t, store.Tokens(), 1)
}

func TestToken_RateLimitedWithoutCacheFails(t *testing.T) {
	defer gock.Off()

	gock.New(tokenHost).
		Post("/oauth/v2/token").
		Reply(http.StatusTooManyRequests).
		JSON(map[string]any{"error": "rate_limited"})

	_, err := newManager(testhelpers.NewMemStore()).Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestToken_RejectedCredentialsAreFatal(t *testing.T) {
	defer gock.Off()

	gock.New(tokenHost).
		Post("/oauth/v2/token").
		Reply(http.StatusUnauthorized).
		JSON(map[string]any{"error": "invalid_client"})

	store := testhelpers.NewMemStore()
	seed(t, store, "stale", time.Now().Add(-time.Hour))

	_, err := newManager(store).Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
}

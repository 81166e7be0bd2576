// Package tokencache keeps OAuth2 client-credentials tokens in the shared
// store so concurrent invocations reuse one token per acquirer and scope.
package tokencache

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pix-gateway/internal/model"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrAuthentication is fatal for the acquirer's work in the current run.
var ErrAuthentication = errors.New("acquirer authentication failed")

const (
	refreshMargin   = 5 * time.Minute
	defaultLifetime = time.Hour
)

type Store interface {
	// Latest returns nil, nil when nothing was cached yet.
	Latest(ctx context.Context, acquirer model.Acquirer, scope string) (*model.CachedToken, error)
	Insert(ctx context.Context, token *model.CachedToken) error
}

type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       string
}

type Manager struct {
	store    Store
	acquirer model.Acquirer
	config   clientcredentials.Config
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager builds a manager whose token requests go through client, which
// carries the mTLS configuration. A nil client uses http.DefaultClient.
func NewManager(store Store, acquirer model.Acquirer, creds Credentials, client *http.Client, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		acquirer: acquirer,
		config: clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       strings.Fields(creds.Scopes),
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) scope() string {
	return m.config.ClientID
}

// Token returns a bearer token valid for at least five more minutes when one
// is cached, otherwise requests a new one. Under rate limiting the most recent
// cached token is returned even if it has expired.
func (m *Manager) Token(ctx context.Context) (string, error) {
	cached, err := m.store.Latest(ctx, m.acquirer, m.scope())
	if err != nil {
		return "", errors.Wrap(err, "load cached token")
	}

	now := m.now()
	if cached != nil && cached.ExpiresAt.After(now.Add(refreshMargin)) {
		m.count("cached")
		return cached.AccessToken, nil
	}

	if m.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	}

	m.logger.InfoContext(ctx, "Requesting access token", "acquirer", m.acquirer)
	token, err := m.config.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode == http.StatusTooManyRequests && cached != nil {
			m.logger.WarnContext(ctx, "Token endpoint rate limited, using last cached token",
				"acquirer", m.acquirer, "expiresAt", cached.ExpiresAt)
			m.count("stale")
			return cached.AccessToken, nil
		}

		m.logger.ErrorContext(ctx, "Error requesting access token", "acquirer", m.acquirer, "error", err)
		m.count("failed")
		return "", errors.Wrap(ErrAuthentication, fmt.Sprintf("%s: %v", m.acquirer, err))
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = now.Add(defaultLifetime)
	}

	entry := &model.CachedToken{
		Acquirer:    m.acquirer,
		Scope:       m.scope(),
		AccessToken: token.AccessToken,
		ExpiresAt:   expiresAt,
	}
	if err := m.store.Insert(ctx, entry); err != nil {
		m.logger.ErrorContext(ctx, "Error caching access token", "acquirer", m.acquirer, "error", err)
	}

	m.count("refreshed")
	return token.AccessToken, nil
}

func (m *Manager) count(result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`acquirer_token_total{acquirer=%q,result=%q}`, m.acquirer, result)).Inc()
}

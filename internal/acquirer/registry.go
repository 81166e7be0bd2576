package acquirer

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"pix-gateway/internal/config"
	"pix-gateway/internal/model"
	"pix-gateway/internal/tokencache"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Settings resolves a credential for a merchant, failing when it is absent
// at every level.
type Settings interface {
	Require(ctx context.Context, key string, merchantID *uuid.UUID) (string, error)
}

type Option func(*Registry)

// WithHTTPClient replaces every acquirer transport, including the mTLS one.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) {
		r.client = client
	}
}

// Registry builds gateways with the credentials configured for a merchant.
// Nothing is kept between calls: every Gateway call reads the settings again,
// so rotated credentials apply to the next request. Bearer tokens are cached
// in the token store only.
type Registry struct {
	cfg      config.Acquirers
	settings Settings
	tokens   tokencache.Store
	logger   *slog.Logger
	client   *http.Client
}

func NewRegistry(cfg config.Acquirers, settings Settings, tokens tokencache.Store, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		settings: settings,
		tokens:   tokens,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Gateway returns the adapter for a with the merchant's credentials, or an
// error wrapping credentials.ErrNotConfigured when one is missing.
func (r *Registry) Gateway(ctx context.Context, a model.Acquirer, merchantID *uuid.UUID) (Gateway, error) {
	switch a {
	case model.AcquirerSpedPay:
		secret, err := r.settings.Require(ctx, model.SettingSpedPaySecret, merchantID)
		if err != nil {
			return nil, err
		}
		return NewSpedPay(r.cfg.SpedPay.BaseURL, r.cfg.SpedPay.WebhookURL, secret,
			r.httpClient(r.cfg.SpedPay), r.logger), nil

	case model.AcquirerInter:
		return r.buildInter(ctx, merchantID)

	case model.AcquirerAtivus:
		apiKey, err := r.settings.Require(ctx, model.SettingAtivusAPIKey, merchantID)
		if err != nil {
			return nil, err
		}
		return NewAtivus(r.cfg.Ativus.BaseURL, r.cfg.Ativus.WebhookURL, apiKey,
			r.httpClient(r.cfg.Ativus), r.logger), nil
	}
	return nil, errors.Errorf("unknown acquirer %q", a)
}

func (r *Registry) buildInter(ctx context.Context, merchantID *uuid.UUID) (Gateway, error) {
	values := map[string]string{}
	for _, key := range []string{
		model.SettingInterClientID,
		model.SettingInterClientSecret,
		model.SettingInterPixKey,
	} {
		value, err := r.settings.Require(ctx, key, merchantID)
		if err != nil {
			return nil, err
		}
		values[key] = value
	}

	client := r.client
	if client == nil {
		certificate, err := r.settings.Require(ctx, model.SettingInterCertificate, merchantID)
		if err != nil {
			return nil, err
		}
		key, err := r.settings.Require(ctx, model.SettingInterPrivateKey, merchantID)
		if err != nil {
			return nil, err
		}
		client, err = NewMTLSClient(certificate, key, r.cfg.Inter.Timeout())
		if err != nil {
			return nil, err
		}
	}

	tokens := tokencache.NewManager(r.tokens, model.AcquirerInter, tokencache.Credentials{
		ClientID:     values[model.SettingInterClientID],
		ClientSecret: values[model.SettingInterClientSecret],
		TokenURL:     strings.TrimRight(r.cfg.Inter.BaseURL, "/") + "/oauth/v2/token",
		Scopes:       r.cfg.Inter.Scopes,
	}, client, r.logger)

	return NewInter(r.cfg.Inter.BaseURL, values[model.SettingInterPixKey], tokens, client, r.logger), nil
}

func (r *Registry) httpClient(cfg config.Acquirer) *http.Client {
	if r.client != nil {
		return r.client
	}
	return &http.Client{Timeout: cfg.Timeout()}
}

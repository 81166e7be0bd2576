package acquirer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"pix-gateway/internal/model"

	"github.com/pkg/errors"
)

// sender performs one JSON request against an acquirer and returns the raw
// body of a 2xx answer. Any other status becomes an *HTTPError.
type sender struct {
	acquirer model.Acquirer
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
}

type request struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   any
}

func newSender(acquirer model.Acquirer, baseURL string, client *http.Client, logger *slog.Logger) *sender {
	return &sender{
		acquirer: acquirer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		logger:   logger.With("acquirer", string(acquirer)),
	}
}

func (s *sender) do(ctx context.Context, r request) ([]byte, error) {
	endpoint := s.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var payload io.Reader
	if r.body != nil {
		body, err := json.Marshal(r.body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request")
		}
		s.logger.DebugContext(ctx, "Request payload", "payload", string(body))
		payload = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, payload)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	for key, values := range r.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	s.logger.InfoContext(ctx, "Sending request", "method", r.method, "path", r.path)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error sending request", "path", r.path, "error", err)
		return nil, errors.Wrapf(err, "%s %s", r.method, r.path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	s.logger.InfoContext(ctx, "Response status", "path", r.path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{Acquirer: s.acquirer, StatusCode: resp.StatusCode, Body: Excerpt(string(respBody))}
		s.logger.WarnContext(ctx, "Received error response", "path", r.path, "status", resp.StatusCode,
			"body", httpErr.Body)
		return nil, httpErr
	}

	return respBody, nil
}

// document decodes a 2xx answer as a JSON object.
func (s *sender) document(ctx context.Context, r request) (document, error) {
	body, err := s.do(ctx, r)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(body)
	if err != nil {
		s.logger.WarnContext(ctx, "Unparseable response", "path", r.path, "body", Excerpt(string(body)))
		return nil, err
	}
	return doc, nil
}

func statusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

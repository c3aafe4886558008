package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mapflag/mapflag-client/internal/errors"
	"github.com/mapflag/mapflag-client/internal/ratelimit"
)

const (
	headerClientID = "X-Client-Id"
	maxErrorBody   = 4 << 10
)

// TokenFunc returns the bearer token for a request. An empty token sends no
// Authorization header.
type TokenFunc func(ctx context.Context) (string, error)

// ClientIDFunc returns the persisted device id sent as X-Client-Id.
type ClientIDFunc func(ctx context.Context) (string, error)

// HTTPOptions configures an HTTPTransport.
type HTTPOptions struct {
	URL      string
	Client   *http.Client
	Token    TokenFunc
	ClientID ClientIDFunc
	// Limiter throttles requests per operation kind. Nil disables throttling.
	Limiter *ratelimit.KeyedRateLimiter
	Logger  *slog.Logger
}

// HTTPTransport is the one-shot channel for queries and mutations.
type HTTPTransport struct {
	url      string
	client   *http.Client
	token    TokenFunc
	clientID ClientIDFunc
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
}

// NewHTTPTransport creates the one-shot transport.
func NewHTTPTransport(opts HTTPOptions) *HTTPTransport {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HTTPTransport{
		url:      opts.URL,
		client:   opts.Client,
		token:    opts.Token,
		clientID: opts.ClientID,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
	}
}

// Do sends req and returns the decoded response.
// GraphQL-level errors are returned in the Response; transport failures as coded errors.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if t.limiter != nil {
		kind, err := Classify(req)
		if err != nil {
			return nil, err
		}
		if err := t.limiter.Wait(ctx, string(kind)); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode graphql request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "build graphql request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	if err := t.setHeaders(ctx, httpReq); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeTransport, "graphql request")
	}
	defer resp.Body.Close()

	t.logger.Debug("graphql request",
		"operation", req.OperationName,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		// Servers often still answer with a GraphQL error document.
		var gqlResp Response
		if json.Unmarshal(snippet, &gqlResp) == nil && len(gqlResp.Errors) > 0 {
			return nil, errors.FromHTTPStatus(resp.StatusCode, "graphql request").WithCause(gqlResp.Err())
		}
		return nil, errors.FromHTTPStatus(resp.StatusCode, "graphql request")
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.CodeTransport, "decode graphql response")
	}
	return &out, nil
}

func (t *HTTPTransport) setHeaders(ctx context.Context, req *http.Request) error {
	if t.token != nil {
		token, err := t.token(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CodeUnauthorized, "get access token")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if t.clientID != nil {
		clientID, err := t.clientID(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "get client id")
		}
		req.Header.Set(headerClientID, clientID)
	}
	return nil
}

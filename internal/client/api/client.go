// Package api is a thin HTTP client for the erpkeeper account API. It keeps
// the token pair in a TokenStore and refreshes it transparently once when an
// authenticated call is rejected.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/client/models"
	"github.com/dmitrijs2005/erpkeeper/internal/client/session"
	"github.com/dmitrijs2005/erpkeeper/internal/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const basePath = "/api/v1/users"

// TokenStore persists the session between CLI invocations.
type TokenStore interface {
	Tokens(ctx context.Context) (session.Tokens, error)
	SaveTokens(ctx context.Context, t session.Tokens) error
	ClearTokens(ctx context.Context) error
}

// Response is the server's envelope with the payload left undecoded.
type Response struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data,omitempty"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Warning    string          `json:"warning,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore
}

func New(baseURL string, timeout time.Duration, store TokenStore) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		store: store,
	}
}

// body builds a fresh request body so a call can be replayed after a refresh.
type body func() (io.Reader, string, error)

func jsonBody(v any) body {
	return func() (io.Reader, string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	}
}

func (c *Client) send(ctx context.Context, method, path string, build body, bearer string) (*Response, error) {
	var (
		reader      io.Reader
		contentType string
	)
	if build != nil {
		var err error
		if reader, contentType, err = build(); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+basePath+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return &env, nil
}

// authed sends with the cached access token. A 401 triggers one refresh and
// a replay of the request.
func (c *Client) authed(ctx context.Context, method, path string, build body) (*Response, error) {
	t, err := c.store.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	if t.Empty() {
		return nil, ErrNotLoggedIn
	}

	resp, err := c.send(ctx, method, path, build, t.AccessToken)
	if !tokenRejected(err) {
		return resp, err
	}

	if _, err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	t, err = c.store.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, method, path, build, t.AccessToken)
}

// tokenRejected reports a 401 caused by the access token rather than by
// the credentials sent in the body.
func tokenRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return false
	}
	return !errors.Is(err, common.ErrInvalidCredentials) && !errors.Is(err, common.ErrUnverified)
}

func decode[T any](resp *Response) (*T, error) {
	var v T
	if len(resp.Data) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return &v, nil
}

// AccountResult is an account plus the soft notification warning, if any.
type AccountResult struct {
	Account *models.Account
	Warning string
}

func accountResult(resp *Response, err error) (*AccountResult, error) {
	if err != nil {
		return nil, err
	}
	a, err := decode[models.Account](resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		a = nil
	}
	return &AccountResult{Account: a, Warning: resp.Warning}, nil
}

package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/util"
)

// HTTPClientSettings HTTP client configuration
type HTTPClientSettings struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

// DefaultHTTPClientSettings default HTTP client settings
func DefaultHTTPClientSettings() HTTPClientSettings {
	return HTTPClientSettings{
		MaxIdleConns:        core.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: core.HTTPMaxIdleConnsPerHost,
		MaxConnsPerHost:     core.HTTPMaxConnsPerHost,
		IdleConnTimeout:     core.HTTPIdleConnTimeout,
		TLSHandshakeTimeout: core.HTTPTLSHandshakeTimeout,
	}
}

// NewHTTPClient builds the client shared by all adapters. It has no overall
// timeout; every call is bounded by its context instead, so streams can
// outlive a fixed deadline.
func NewHTTPClient(settings HTTPClientSettings) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          settings.MaxIdleConns,
		MaxIdleConnsPerHost:   settings.MaxIdleConnsPerHost,
		MaxConnsPerHost:       settings.MaxConnsPerHost,
		IdleConnTimeout:       settings.IdleConnTimeout,
		TLSHandshakeTimeout:   settings.TLSHandshakeTimeout,
		ExpectContinueTimeout: core.HTTPExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: core.HTTPResponseHeaderTimeout,
	}
	return &http.Client{Transport: transport}
}

// doJSON sends body (if non-nil) as JSON and returns the response when the
// status is 2xx. Non-2xx responses are drained into *core.UpstreamStatusError.
func doJSON(ctx context.Context, client *http.Client, method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := util.MarshalJSON(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	}
	req.Header.Set(core.HeaderAccept, core.ContentTypeJSON)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, core.MaxUpstreamErrorBody))
		return nil, &core.UpstreamStatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

// callJSON is doJSON followed by decoding the response body into out.
func callJSON(ctx context.Context, client *http.Client, method, url string, body, out any) error {
	resp, err := doJSON(ctx, client, method, url, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, core.MaxResponseBodySize))
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, core.MaxResponseBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := util.UnmarshalJSON(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// probe issues a GET and reports any non-2xx status or transport failure.
func probe(ctx context.Context, client *http.Client, url string) error {
	return callJSON(ctx, client, http.MethodGet, url, nil, nil)
}

// send pushes chunk into out unless ctx ends first.
func send(ctx context.Context, out chan<- string, chunk string) error {
	select {
	case out <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/haulstack/console-gateway/internal/observability"
)

const defaultTimeout = 15 * time.Second

// TokenSource yields the current bearer credential, or "" when the session is
// unauthenticated.
type TokenSource func() string

// Client issues requests against the remote auth service. Cookies set by the
// service are carried across calls via the jar.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokenSource TokenSource
}

func NewClient(baseURL string, timeout time.Duration, tokenSource TokenSource) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokenSource: tokenSource,
	}, nil
}

type outboundRequest struct {
	method      string
	path        string
	body        any
	successCode int
	out         any
}

// errorBody is the failure shape the auth service returns on every non-2xx.
type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (c *Client) do(ctx context.Context, req outboundRequest) error {
	var reqBody io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshal %s %s body: %w", req.method, req.path, err)
		}
		reqBody = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, reqBody)
	if err != nil {
		return err
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenSource(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		observability.RecordUpstreamRequest(ctx, req.path, "transport_error")
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == req.successCode {
		observability.RecordUpstreamRequest(ctx, req.path, "success")
		if req.out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", req.method, req.path, err)
		}
		return nil
	}

	observability.RecordUpstreamRequest(ctx, req.path, fmt.Sprintf("http_%d", resp.StatusCode))
	return classifyFailure(resp)
}

func classifyFailure(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)

	switch {
	case resp.StatusCode >= 500:
		return &ServerFaultError{Status: resp.StatusCode, Message: messageOrDefault(body.Message, "auth service error")}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthRejectedError{Status: resp.StatusCode, Message: messageOrDefault(body.Message, "authentication failed")}
	case resp.StatusCode >= 400:
		return &ValidationError{
			Status:  resp.StatusCode,
			Message: messageOrDefault(body.Message, "request rejected"),
			Fields:  body.Errors,
		}
	default:
		return &ServerFaultError{Status: resp.StatusCode, Message: messageOrDefault(body.Message, "unexpected response")}
	}
}

func messageOrDefault(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}

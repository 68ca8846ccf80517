package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reyu/pkg/platform/circuit"
)

const (
	defaultTimeout = 10 * time.Second

	IdempotencyHeader = "Idempotency-Key"
)

// HTTPGateway drives an external escrow provider over JSON/HTTP:
//
//	POST {base}/v1/escrows               -> 201 {"reference": "..."}
//	POST {base}/v1/escrows/{ref}/release -> 2xx
//	POST {base}/v1/escrows/{ref}/refund  -> 2xx
//
// Every call carries an Idempotency-Key header so the provider can collapse
// retries. 4xx on capture is a decline, 404 and 409 on settlement map to
// ErrUnknownReference and ErrAlreadySettled, and transport errors or 5xx are
// ErrUnavailable. Consecutive unavailability trips the breaker, which is
// logged so operators see the provider go down; while it is open calls fail
// with ErrUnavailable without reaching the provider.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type HTTPOption func(*HTTPGateway)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGateway) {
		g.client = c
	}
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(g *HTTPGateway) {
		g.breaker = b
	}
}

func NewHTTPGateway(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: circuit.New("payment-gateway"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type captureResponse struct {
	Reference string `json:"reference"`
}

func (g *HTTPGateway) Capture(ctx context.Context, req CaptureRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode capture: %w", err)
	}
	resp, err := g.post(ctx, "/v1/escrows", req.IdempotencyKey, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status %d", ErrDeclined, resp.StatusCode)
	}
	var out captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode capture: %w", err)
	}
	if out.Reference == "" {
		return "", fmt.Errorf("%w: empty reference", ErrDeclined)
	}
	return out.Reference, nil
}

func (g *HTTPGateway) Release(ctx context.Context, ref string) error {
	return g.settle(ctx, ref, "release")
}

func (g *HTTPGateway) Refund(ctx context.Context, ref string) error {
	return g.settle(ctx, ref, "refund")
}

func (g *HTTPGateway) settle(ctx context.Context, ref, action string) error {
	resp, err := g.post(ctx, "/v1/escrows/"+url.PathEscape(ref)+"/"+action, ref+":"+action, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnknownReference
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadySettled
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s status %d", ErrDeclined, action, resp.StatusCode)
	}
	return nil
}

// post sends the request and feeds the outcome to the breaker. The caller
// owns the returned body.
func (g *HTTPGateway) post(ctx context.Context, path, idempotencyKey string, body []byte) (*http.Response, error) {
	if !g.breaker.Allow() {
		return nil, fmt.Errorf("%w: circuit %s open", ErrUnavailable, g.breaker.Name())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.recordFailure(ctx)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		g.recordFailure(ctx)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "payment gateway circuit closed", "breaker", g.breaker.Name())
	}
	return resp, nil
}

func (g *HTTPGateway) recordFailure(ctx context.Context) {
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.WarnContext(ctx, "payment gateway circuit opened", "breaker", g.breaker.Name())
	}
}

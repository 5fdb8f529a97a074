// Package httpclient implements the outbound HTTP client (C4): it logs the
// outbound IntegrationMessage row before issuing the wire call, classifies
// the response per the status table, and updates the row to its terminal
// state. Grounded on apps/alegra/client.py:AlegraClient.request.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/juliezen/integrationhub/domain"
	"github.com/juliezen/integrationhub/events"
	"github.com/juliezen/integrationhub/observability"
	"github.com/juliezen/integrationhub/pkg/logger"
	"github.com/juliezen/integrationhub/store/postgres"
)

// CircuitBreaker is the subset of resilience.CircuitBreaker the client
// needs, kept as an interface so tests can use a no-op implementation
// without pulling in the full resilience package.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
}

type noopBreaker struct{}

func (noopBreaker) Execute(ctx context.Context, fn func() error) error { return fn() }

type noopTracer struct{}

func (noopTracer) StartDelivery(ctx context.Context, msg observability.MessageMetadata) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}
func (noopTracer) RecordDelivery(ctx context.Context, msg observability.MessageMetadata, d time.Duration, err error) {
}
func (noopTracer) Shutdown(ctx context.Context) error { return nil }

// Client issues outbound calls to the base URL and credential named in each
// Request, recording an IntegrationMessage for every attempt.
type Client struct {
	httpClient *http.Client
	store      postgres.Store
	breaker    CircuitBreaker
	limiter    *rate.Limiter
	logger     logger.Logger
	tracer     observability.Tracer
	bus        *events.Bus
}

// Option customizes a Client.
type Option func(*Client)

func WithCircuitBreaker(cb CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithRateLimit bounds outbound calls with one limiter shared by every call
// made through the Client, whatever its credential, a safety net the
// original has no explicit equivalent for (Credential.max_retries/timeout_s
// imply the need without enforcing it).
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer attaches an observability.Tracer so every outbound call gets a
// span and a delivery-duration metric, tagged by integration and event type.
func WithTracer(t observability.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithEventBus overrides the bus outbound-message events publish to, mainly
// for tests; production code gets events.Default.
func WithEventBus(b *events.Bus) Option {
	return func(c *Client) { c.bus = b }
}

func New(store postgres.Store, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		breaker:    noopBreaker{},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     logger.NewDefaultLogger(),
		tracer:     noopTracer{},
		bus:        events.Default,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Request is one outbound call's parameters.
type Request struct {
	OrganizationID    string
	Integration       domain.Integration
	Method            string
	BaseURL           string
	Path              string
	Query             map[string]string
	Body              interface{}
	EventType         string
	ExternalReference string
	Cred              domain.Credential
}

// Response is the decoded JSON body of a successful call.
type Response struct {
	StatusCode int
	Body       map[string]interface{}
}

// Do issues one outbound call. It creates the IntegrationMessage row in
// StatusDispatched before the wire call (never after), so an
// idempotency_key collision on retry is detected even if the process
// crashes mid-call — the exact ordering apps/alegra/client.py:request
// depends on via _log_outbound_message.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	meta := observability.MessageMetadata{
		Integration: string(req.Integration),
		EventType:   req.EventType,
		Direction:   "outbound",
	}
	ctx, span := c.tracer.StartDelivery(ctx, meta)
	started := time.Now()
	resp, doErr := c.do(ctx, req)
	span.End()
	c.tracer.RecordDelivery(ctx, meta, time.Since(started), doErr)
	return resp, doErr
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	url, err := joinURL(req.BaseURL, req.Path)
	if err != nil {
		return nil, err
	}

	bodyBytes, err := marshalBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient.Do: marshal body: %w", err)
	}

	idempotencyKey := idempotencyKeyFor(req)
	msg := &domain.IntegrationMessage{
		OrganizationID:    req.OrganizationID,
		Integration:       req.Integration,
		Direction:         domain.DirectionOutbound,
		EventType:         req.EventType,
		IdempotencyKey:    idempotencyKey,
		ExternalReference: req.ExternalReference,
		Status:            domain.StatusDispatched,
		Payload:           bodyBytes,
	}
	if err := c.store.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("httpclient.Do: log outbound message: %w", err)
	}
	c.bus.Publish(ctx, events.Event{Name: fmt.Sprintf("%s.%s.dispatched", req.Integration, req.EventType), Data: msg})

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("httpclient.Do: rate limit: %w", err)
	}

	var resp *Response
	execErr := c.breaker.Execute(ctx, func() error {
		var attemptErr error
		resp, attemptErr = c.attempt(ctx, req, url, bodyBytes)
		return attemptErr
	})

	if execErr != nil {
		isNetwork := isNetworkError(execErr) || execErr == context.DeadlineExceeded
		markErr := c.store.Transition(ctx, msg.ID, domain.StatusFailed, func(m *domain.IntegrationMessage) error {
			if isNetwork {
				m.ErrorCode = "network_error"
			}
			m.RetryCount++
			return nil
		})
		if markErr != nil {
			c.logger.Error("failed to record outbound failure", "id", msg.ID, "err", markErr)
		}
		return nil, execErr
	}

	if err := c.store.Transition(ctx, msg.ID, domain.StatusProcessed, func(m *domain.IntegrationMessage) error {
		respBytes, _ := json.Marshal(resp.Body)
		m.ResponsePayload = respBytes
		return nil
	}); err != nil {
		c.logger.Error("failed to record outbound success", "id", msg.ID, "err", err)
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req Request, url string, bodyBytes []byte) (*Response, error) {
	var bodyReader io.Reader
	if len(bodyBytes) > 0 {
		bodyReader = bytes.NewReader(bodyBytes)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("httpclient.attempt: build request: %w", err)
	}
	if len(bodyBytes) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	applyAuth(httpReq, req.Cred)

	if len(req.Query) > 0 {
		q := httpReq.URL.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient.attempt: read body: %w", err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var decoded map[string]interface{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("httpclient.attempt: decode response: %w", err)
			}
		}
		return &Response{StatusCode: httpResp.StatusCode, Body: decoded}, nil
	}

	class := classifyStatus(httpResp.StatusCode)
	return nil, &domain.APIError{
		StatusCode: httpResp.StatusCode,
		ErrorCode:  class.ErrorCode,
		Retryable:  class.Retryable,
		Payload:    string(raw),
	}
}

// joinURL concatenates base and path with exactly one slash, the detail
// apps/alegra/client.py:_build_url exists solely to get right.
func joinURL(base, path string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("httpclient.joinURL: empty base URL")
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"), nil
}

func applyAuth(req *http.Request, cred domain.Credential) {
	switch cred.AuthScheme {
	case domain.AuthSchemeTokenPair:
		req.Header.Set("Authorization", "Bearer "+cred.APIKey)
		if cred.APISecret != "" {
			req.Header.Set("X-Api-Secret", cred.APISecret)
		}
	default:
		req.SetBasicAuth(cred.APIKey, cred.APISecret)
	}
}

func marshalBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}

// idempotencyKeyFor mirrors the cascade in _log_outbound_message: an
// explicit ExternalReference wins, else the body's "external_reference"
// field, then its "id" field, if Body is a map, else a fresh UUID.
func idempotencyKeyFor(req Request) string {
	if req.ExternalReference != "" {
		return req.ExternalReference
	}
	if m, ok := req.Body.(map[string]interface{}); ok {
		if v, ok := m["external_reference"].(string); ok && v != "" {
			return v
		}
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if ok := asNetError(err, &netErr); ok {
		return true
	}
	return false
}

func asNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

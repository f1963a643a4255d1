package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wms-platform/shipment-pipeline/internal/domain"
	"github.com/wms-platform/shipment-pipeline/internal/payload"
	"github.com/wms-platform/shipment-pipeline/pkg/logging"
	"github.com/wms-platform/shipment-pipeline/pkg/metrics"
	"github.com/wms-platform/shipment-pipeline/pkg/resilience"
	"github.com/wms-platform/shipment-pipeline/pkg/tracing"
)

// UPSCarrierCode identifies the UPS adapter
const UPSCarrierCode = "UPS"

const (
	tokenPath    = "/security/v1/oauth/token"
	shipmentPath = "/api/shipments/v2409/ship"
	ratePath     = "/api/rating/v2409/Rate"

	// tokens are refreshed this long before the carrier expires them
	tokenExpiryMargin = time.Minute
)

// UPSConfig holds UPS API configuration
type UPSConfig struct {
	BaseURL       string        `yaml:"baseUrl" validate:"required,url"`
	ClientID      string        `yaml:"clientId" validate:"required"`
	ClientSecret  string        `yaml:"clientSecret" validate:"required"`
	AccountNumber string        `yaml:"accountNumber" validate:"required"`
	Timeout       time.Duration `yaml:"timeout"`

	Backoff *resilience.Backoff       `yaml:"-"`
	Breaker *resilience.BreakerConfig `yaml:"-"`
}

// DefaultUPSConfig returns a configuration pointed at the UPS customer
// integration environment
func DefaultUPSConfig() *UPSConfig {
	return &UPSConfig{
		BaseURL: "https://wwwcie.ups.com",
		Timeout: 30 * time.Second,
	}
}

// UPSClient implements domain.CarrierService against the UPS REST API.
// It is the anti-corruption layer: only normalized requests go in and only
// CarrierResult or *domain.CarrierError come out.
type UPSClient struct {
	config     *UPSConfig
	httpClient *http.Client
	breaker    *resilience.Breaker
	backoff    resilience.Backoff
	logger     *logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewUPSClient creates a UPS client. m may be nil.
func NewUPSClient(config *UPSConfig, logger *logging.Logger, m *metrics.Metrics) *UPSClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &UPSClient{
		config: config,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger.WithComponent("ups-client"),
		metrics: m,
		now:     time.Now,
	}

	c.backoff = resilience.DefaultBackoff()
	if config.Backoff != nil {
		c.backoff = *config.Backoff
	}

	breakerCfg := resilience.DefaultBreakerConfig("ups")
	if config.Breaker != nil {
		*breakerCfg = *config.Breaker
	}
	breakerCfg.IsFailure = isBreakerFailure
	breakerCfg.OnStateChange = c.onBreakerStateChange
	c.breaker = resilience.NewBreaker(breakerCfg, c.logger.Logger)

	return c
}

// CarrierCode returns the carrier code this client handles
func (c *UPSClient) CarrierCode() string {
	return UPSCarrierCode
}

// EnsureSession makes sure a valid OAuth token is held and the breaker is
// not open
func (c *UPSClient) EnsureSession(ctx context.Context) error {
	if c.breaker.Open() {
		return domain.NewSessionError("UPS circuit breaker is open", resilience.ErrCircuitOpen)
	}
	_, err := c.token(ctx)
	return err
}

// CreateShipment books the shipment with UPS. It is only replayed when UPS
// rejected the attempt without processing it. A lost response comes back as
// CodeCarrierOutcomeUnknown because the shipment may exist.
func (c *UPSClient) CreateShipment(ctx context.Context, req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
	body := payload.ToCarrierPayload(req, c.config.AccountNumber)

	raw, err := c.call(ctx, "create_shipment", shipmentPath, body, isRejectedUnprocessed, true)
	if err != nil {
		return nil, err
	}

	result, err := NormalizeShipmentResponse(raw)
	if err != nil {
		return nil, unreadableResponse(err)
	}
	return result, nil
}

// RateShipment quotes the shipment without booking it
func (c *UPSClient) RateShipment(ctx context.Context, req *domain.NormalizedRequest) (*domain.CarrierResult, error) {
	body := payload.ToRatePayload(req, c.config.AccountNumber)

	raw, err := c.call(ctx, "rate_shipment", ratePath, body, isRetryable, false)
	if err != nil {
		return nil, err
	}

	result, err := NormalizeRateResponse(raw)
	if err != nil {
		return nil, unreadableResponse(err)
	}
	return result, nil
}

// call runs one carrier operation inside a span, retrying retryable
// failures, each attempt going through the circuit breaker
func (c *UPSClient) call(ctx context.Context, operation, path string, body any, retryable func(error) bool, mutating bool) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", operation, err)
	}

	return tracing.TracedOperation(ctx, "ups."+operation, func(ctx context.Context) ([]byte, error) {
		raw, err := resilience.Retry(ctx, c.backoff, retryable, func(ctx context.Context) ([]byte, error) {
			return resilience.Call(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
				return c.post(ctx, operation, path, encoded, mutating)
			})
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, domain.NewSessionError("UPS circuit breaker is open", err)
		}
		return raw, err
	}, tracing.CarrierSpanAttributes(UPSCarrierCode, operation)...)
}

func (c *UPSClient) post(ctx context.Context, operation, path string, body []byte, mutating bool) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("transId", uuid.New().String())
	req.Header.Set("transactionSrc", "shipment-pipeline")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cerr := transportError(mutating, "UPS request failed: "+err.Error(), err)
		c.observe(ctx, operation, 0, start, cerr)
		return nil, cerr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		cerr := transportError(mutating, "failed to read UPS response", err)
		c.observe(ctx, operation, resp.StatusCode, start, cerr)
		return nil, cerr
	}

	if mutating && resp.StatusCode == http.StatusGatewayTimeout {
		cerr := transportError(true, "UPS gateway timed out", nil)
		c.observe(ctx, operation, resp.StatusCode, start, cerr)
		return nil, cerr
	}
	if resp.StatusCode >= http.StatusBadRequest {
		cerr := translateHTTPError(resp.StatusCode, respBody)
		if cerr.Code == domain.CodeCarrierTokenExpired {
			c.invalidateToken()
		}
		c.observe(ctx, operation, resp.StatusCode, start, cerr)
		return nil, cerr
	}

	c.observe(ctx, operation, resp.StatusCode, start, nil)
	return respBody, nil
}

func (c *UPSClient) observe(ctx context.Context, operation string, status int, start time.Time, err error) {
	duration := c.now().Sub(start)
	c.logger.CarrierCall(ctx, UPSCarrierCode, operation, status, duration, err)
	if c.metrics != nil {
		c.metrics.RecordCarrierRequest(UPSCarrierCode, operation, err == nil, duration)
	}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// token returns the cached OAuth token, fetching a new one when missing or
// about to expire. Any failure is a session failure.
func (c *UPSClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", domain.NewSessionError("failed to build UPS token request", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("x-merchant-id", c.config.AccountNumber)

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(ctx, "oauth_token", 0, start, err)
		return "", domain.NewSessionError("UPS token request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		cerr := translateHTTPError(resp.StatusCode, body)
		c.observe(ctx, "oauth_token", resp.StatusCode, start, cerr)
		return "", domain.NewSessionError(fmt.Sprintf("UPS token request rejected with status %d", resp.StatusCode), cerr)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		if err == nil {
			err = errors.New("empty access token")
		}
		c.observe(ctx, "oauth_token", resp.StatusCode, start, err)
		return "", domain.NewSessionError("UPS token response unreadable", err)
	}
	c.observe(ctx, "oauth_token", resp.StatusCode, start, nil)

	ttl := time.Hour
	if secs, err := parsed.ExpiresIn.Int64(); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	if ttl > tokenExpiryMargin {
		ttl -= tokenExpiryMargin
	}

	c.accessToken = parsed.AccessToken
	c.expiresAt = c.now().Add(ttl)
	return c.accessToken, nil
}

func (c *UPSClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *UPSClient) onBreakerStateChange(name string, _, to gobreaker.State) {
	if c.metrics == nil {
		return
	}
	c.metrics.SetCircuitBreakerState(name, int(to))
	if to == gobreaker.StateOpen {
		c.metrics.RecordCircuitBreakerTrip(name)
	}
}

func unreadableResponse(err error) *domain.CarrierError {
	cerr := domain.NewCarrierError(domain.CodeCarrierUnknown, "", "unreadable UPS response: "+err.Error())
	cerr.Err = err
	return cerr
}

// transportError reports a request whose response never arrived. For a
// mutating call the carrier may still have acted on it.
func transportError(mutating bool, message string, err error) *domain.CarrierError {
	code := domain.CodeCarrierUnavailable
	if mutating {
		code = domain.CodeCarrierOutcomeUnknown
		message += "; the shipment may have been created"
	}
	cerr := domain.NewCarrierError(code, "", message)
	cerr.Err = err
	return cerr
}

// isRejectedUnprocessed allows replaying a mutating call only when UPS
// refused it before acting on it
func isRejectedUnprocessed(err error) bool {
	var cerr *domain.CarrierError
	if errors.As(err, &cerr) && !cerr.Fatal {
		return cerr.Code == domain.CodeCarrierTokenExpired || cerr.Code == domain.CodeCarrierRateLimited
	}
	return false
}

// isRetryable retries transient carrier failures; session failures never
func isRetryable(err error) bool {
	var cerr *domain.CarrierError
	if errors.As(err, &cerr) {
		return cerr.Retryable && !cerr.Fatal
	}
	return false
}

// isBreakerFailure counts only carrier-side outages against the breaker.
// Rejected shipments (bad address, unsupported service) are the caller's
// data, not a sick carrier.
func isBreakerFailure(err error) bool {
	var cerr *domain.CarrierError
	if errors.As(err, &cerr) {
		switch cerr.Code {
		case domain.CodeCarrierUnavailable, domain.CodeCarrierRateLimited, domain.CodeCarrierOutcomeUnknown:
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Package collector talks to the remote tracking collector.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/fieldpresence/internal/auth"
	"example.com/fieldpresence/internal/domain"
)

const tracerName = "example.com/fieldpresence/internal/collector"

// Authorizer produces the Authorization header for each request.
type Authorizer interface {
	Header(ctx context.Context) (string, error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger overrides the logger used to report malformed responses.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client issues authenticated requests against the collector endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authorizer Authorizer
	tracer     trace.Tracer
	logger     *log.Logger
}

// NewClient constructs a client with sane defaults.
func NewClient(baseURL string, authorizer Authorizer, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		authorizer: authorizer,
		tracer:     otel.Tracer(tracerName),
		logger:     log.New(log.Writer(), "[collector] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendLocation posts one sample to /tracking/update/.
func (c *Client) SendLocation(ctx context.Context, sample domain.LocationSample) error {
	body, err := json.Marshal(locationUpdate{Latitude: sample.Latitude, Longitude: sample.Longitude})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, "update", http.MethodPost, "/tracking/update/", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Latest fetches the last known location of one agent.
func (c *Client) Latest(ctx context.Context, agentID string) (domain.PresenceRecord, error) {
	path := fmt.Sprintf("/tracking/%s/latest/", url.PathEscape(agentID))
	resp, err := c.do(ctx, "latest", http.MethodGet, path, "", nil)
	if err != nil {
		return domain.PresenceRecord{}, err
	}
	defer resp.Body.Close()

	var payload latestLocation
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.PresenceRecord{}, fmt.Errorf("%w: decode latest location: %v", domain.ErrNetwork, err)
	}
	return domain.PresenceRecord{
		AgentID:    agentID,
		Latitude:   payload.Latitude,
		Longitude:  payload.Longitude,
		LastSeenAt: payload.Timestamp,
	}, nil
}

// All fetches the last known location of every agent.
func (c *Client) All(ctx context.Context) ([]domain.PresenceRecord, error) {
	resp, err := c.do(ctx, "all", http.MethodGet, "/tracking/all/", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload []agentLocation
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode agent locations: %v", domain.ErrNetwork, err)
	}

	records := make([]domain.PresenceRecord, 0, len(payload))
	for _, item := range payload {
		records = append(records, item.record())
	}
	return records, nil
}

// Punch submits a check-in, check-out or store visit as multipart form data.
func (c *Client) Punch(ctx context.Context, bundle domain.PunchBundle) (domain.PunchReceipt, error) {
	path, body, contentType, err := encodePunch(bundle)
	if err != nil {
		return domain.PunchReceipt{}, err
	}

	resp, err := c.do(ctx, string(bundle.Kind), http.MethodPost, path, contentType, body)
	if err != nil {
		return domain.PunchReceipt{}, err
	}
	defer resp.Body.Close()

	// The punch is accepted on a 2xx status; an unreadable acknowledgement only loses the receipt id.
	var ack punchAck
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Printf("%s accepted (status %d) but the acknowledgement could not be read: %v", bundle.Kind, resp.StatusCode, err)
	} else if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &ack); err != nil {
			c.logger.Printf("%s accepted (status %d) but the acknowledgement is malformed: %v", bundle.Kind, resp.StatusCode, err)
		}
	}
	return domain.PunchReceipt{
		ID:         string(ack.ID),
		Detail:     ack.Detail,
		StatusCode: resp.StatusCode,
		AcceptedAt: time.Now().UTC(),
	}, nil
}

// do performs the request and converts transport errors and non-2xx statuses into domain.ErrNetwork.
func (c *Client) do(ctx context.Context, endpoint, method, path, contentType string, body io.Reader) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "collector."+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)

	start := time.Now()
	resp, err := c.send(ctx, method, path, contentType, body)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	recordRequest(endpoint, status, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.authorizer != nil {
		header, err := c.authorizer.Header(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
		}
		req.Header.Set("Authorization", header)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return resp, &StatusError{StatusCode: resp.StatusCode, Detail: errorDetail(data)}
	}
	return resp, nil
}

var _ Authorizer = auth.Authorizer{}

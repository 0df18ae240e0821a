/**
 * @description
 * Client for the HelloWorks e-signature API. It creates single-participant
 * workflow instances and exchanges step references for authenticated links.
 * Calls are rate limited and guarded by a circuit breaker; the API token is
 * cached until shortly before it expires.
 */
package helloworks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker/v2"
	"github.com/transfa/taxform-service/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultTokenLifetime = 10 * time.Minute
	tokenRefreshMargin   = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL            string
	APIKeyID           string
	APIKeySecret       string
	RateLimitPerSecond float64
}

// Client is a client for the HelloWorks API.
type Client struct {
	baseURL      string
	apiKeyID     string
	apiKeySecret string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker[[]byte]
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helloworks api error: status %d: %s", e.Status, e.Body)
}

// NewClient creates a new HelloWorks client.
func NewClient(cfg Config) *Client {
	perSecond := cfg.RateLimitPerSecond
	if perSecond <= 0 {
		perSecond = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "helloworks",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKeyID:     cfg.APIKeyID,
		apiKeySecret: cfg.APIKeySecret,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		limiter:      rate.NewLimiter(rate.Limit(perSecond), 1),
		breaker:      breaker,
		now:          time.Now,
	}
}

type createInstanceRequest struct {
	CallbackURL             string                                `json:"callback_url"`
	WorkflowID              string                                `json:"workflow_id"`
	DocumentDelivery        bool                                  `json:"document_delivery"`
	DelegatedAuthentication bool                                  `json:"delegated_authentication"`
	Participants            map[string]domain.WorkflowParticipant `json:"participants"`
	Metadata                map[string]string                     `json:"metadata,omitempty"`
}

type instanceResponse struct {
	Data domain.WorkflowInstance `json:"data"`
}

type linkResponse struct {
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
}

type tokenResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// CreateInstance starts a workflow with exactly one participant. Delegated
// authentication is always on so HelloWorks never e-mails the signer itself.
func (c *Client) CreateInstance(ctx context.Context, req domain.CreateWorkflowRequest) (*domain.WorkflowInstance, error) {
	if req.WorkflowID == "" {
		return nil, errors.New("helloworks: workflow id is required")
	}
	if req.ParticipantID == "" {
		return nil, errors.New("helloworks: participant id is required")
	}

	payload := createInstanceRequest{
		CallbackURL:             req.CallbackURL,
		WorkflowID:              req.WorkflowID,
		DocumentDelivery:        true,
		DelegatedAuthentication: true,
		Participants:            map[string]domain.WorkflowParticipant{req.ParticipantID: req.Participant},
		Metadata:                req.Metadata,
	}

	body, err := c.do(ctx, http.MethodPost, "/v3/workflow_instances", payload)
	if err != nil {
		return nil, fmt.Errorf("create workflow instance: %w", err)
	}

	var resp instanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode workflow instance: %w", err)
	}
	if resp.Data.ID == "" {
		return nil, errors.New("helloworks: workflow instance response has no id")
	}
	return &resp.Data, nil
}

// GetAuthenticatedLink returns a signed URL for one step of an instance.
func (c *Client) GetAuthenticatedLink(ctx context.Context, instanceID, step string) (string, error) {
	path := fmt.Sprintf("/v3/workflow_instances/%s/steps/%s/authenticated_link", url.PathEscape(instanceID), url.PathEscape(step))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("get authenticated link: %w", err)
	}

	var resp linkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode authenticated link: %w", err)
	}
	if resp.Data.URL == "" {
		return "", errors.New("helloworks: authenticated link response has no url")
	}
	return resp.Data.URL, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.baseURL == "" {
		return nil, errors.New("helloworks base URL is not configured")
	}

	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, "Bearer "+token, payload)
	})
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.invalidateToken(token)
	}
	return body, err
}

// invalidateToken forgets token if it is still the cached one, so the next
// call authenticates again.
func (c *Client) invalidateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
		c.tokenExpiry = time.Time{}
	}
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.token, nil
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, http.MethodPost, "/v3/token/"+url.PathEscape(c.apiKeyID), "Bearer "+c.apiKeySecret, nil)
	})
	if err != nil {
		return "", fmt.Errorf("authenticate with helloworks: %w", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode helloworks token: %w", err)
	}
	if resp.Data.Token == "" {
		return "", errors.New("helloworks: token response is empty")
	}

	c.token = resp.Data.Token
	c.tokenExpiry = c.tokenExpiryFor(resp.Data.Token)
	return c.token, nil
}

// tokenExpiryFor reads the exp claim without verifying the signature; the
// token is only forwarded back to HelloWorks.
func (c *Client) tokenExpiryFor(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return c.now().Add(defaultTokenLifetime)
}

func (c *Client) send(ctx context.Context, method, path, authorization string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", authorization)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

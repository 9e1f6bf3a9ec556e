// Package lambda is a client for the Lambda Labs cloud API. It issues
// authenticated JSON requests and classifies failures so callers can tell
// retryable conditions from fatal ones.
package lambda

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://cloud.lambdalabs.com/api/v1"

// defaultTimeout bounds every request so a hung connection cannot stall a
// poll loop.
const defaultTimeout = 30 * time.Second

// ErrUnknownInstanceType means the API has no instance type by that name.
// Retrying cannot succeed.
var ErrUnknownInstanceType = errors.New("unknown instance type")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// Fatal reports whether retrying the same request cannot succeed. Rate
// limiting (429) is retryable; every other 4xx is not.
func (e *APIError) Fatal() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client talks to the Lambda Labs cloud API. The credential is fixed at
// construction; there is no ambient global.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     zerolog.Logger
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     cfg.Logger,
	}
}

// ValidateKey checks the API key by listing instances and discarding the
// result.
func (c *Client) ValidateKey(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/instances", nil, nil); err != nil {
		return fmt.Errorf("validating API key: %w", err)
	}
	return nil
}

// ListInstanceTypes returns every rentable instance type, keyed by name.
func (c *Client) ListInstanceTypes(ctx context.Context) (map[string]InstanceTypeOffer, error) {
	var offers map[string]InstanceTypeOffer
	if err := c.do(ctx, http.MethodGet, "/instance-types", nil, &offers); err != nil {
		return nil, fmt.Errorf("listing instance types: %w", err)
	}
	return offers, nil
}

// InstanceTypeNames returns the offered type names in stable sorted order.
func InstanceTypeNames(offers map[string]InstanceTypeOffer) []string {
	names := make([]string, 0, len(offers))
	for name := range offers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CapacityForType returns the regions currently reporting capacity for one
// instance type, in the API's response order. A type the API has never
// heard of is ErrUnknownInstanceType.
func (c *Client) CapacityForType(ctx context.Context, gpuType string) ([]RegionCapacity, error) {
	offers, err := c.ListInstanceTypes(ctx)
	if err != nil {
		return nil, err
	}
	offer, ok := offers[gpuType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstanceType, gpuType)
	}
	return offer.RegionsWithCapacity, nil
}

// LaunchInstance starts one instance of gpuType in region, attached to the
// named SSH key, and returns the new instance ID.
func (c *Client) LaunchInstance(ctx context.Context, region, gpuType, sshKey string) (string, error) {
	req := launchRequest{
		RegionName:       region,
		InstanceTypeName: gpuType,
		SSHKeyNames:      []string{sshKey},
		Quantity:         1,
	}
	var resp launchResponse
	if err := c.do(ctx, http.MethodPost, "/instance-operations/launch", req, &resp); err != nil {
		return "", fmt.Errorf("launching %s in %s: %w", gpuType, region, err)
	}
	if len(resp.InstanceIDs) == 0 {
		return "", fmt.Errorf("launching %s in %s: no instance ID in response", gpuType, region)
	}
	return resp.InstanceIDs[0], nil
}

// TerminateInstance stops one instance by ID.
func (c *Client) TerminateInstance(ctx context.Context, id string) error {
	req := terminateRequest{InstanceIDs: []string{id}}
	var resp terminateResponse
	if err := c.do(ctx, http.MethodPost, "/instance-operations/terminate", req, &resp); err != nil {
		return fmt.Errorf("terminating instance %s: %w", id, err)
	}
	return nil
}

// ListInstances returns all instances on the account.
func (c *Client) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	if err := c.do(ctx, http.MethodGet, "/instances", nil, &instances); err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}
	return instances, nil
}

// GetInstance returns one instance by ID.
func (c *Client) GetInstance(ctx context.Context, id string) (Instance, error) {
	var instance Instance
	if err := c.do(ctx, http.MethodGet, "/instances/"+id, nil, &instance); err != nil {
		return Instance{}, fmt.Errorf("getting instance %s: %w", id, err)
	}
	return instance, nil
}

// do issues one authenticated request and decodes the data envelope into
// out (which may be nil to discard the body). Non-2xx statuses come back as
// *APIError; transport failures and undecodable success bodies come back as
// plain errors, which callers treat as retryable.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env envelope
		if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decoding response data: %w", method, path, err)
	}
	return nil
}

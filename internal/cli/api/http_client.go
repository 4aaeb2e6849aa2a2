package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the provisioner
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, ", "))
}

// HTTPClient talks to the provisioner over HTTP
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	c := &HTTPClient{http: &http.Client{Timeout: 60 * time.Second}}
	c.Configure(baseURL, token)
	return c
}

// Configure points the client at baseURL, sending token as a bearer when set.
func (c *HTTPClient) Configure(baseURL, token string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.token = token
}

func (c *HTTPClient) CreateService(ctx context.Context, req *CreateServiceRequest) (*CreateServiceResponse, error) {
	var out CreateServiceResponse
	if err := c.do(ctx, http.MethodPost, "/services", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ListServices(ctx context.Context, status string) ([]Service, error) {
	path := "/services"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []Service
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetService(ctx context.Context, id string) (*Service, error) {
	return c.service(ctx, http.MethodGet, "/services/"+url.PathEscape(id), nil)
}

func (c *HTTPClient) UpdateService(ctx context.Context, id string, req *UpdateServiceRequest) (*Service, error) {
	return c.service(ctx, http.MethodPatch, "/services/"+url.PathEscape(id), req)
}

func (c *HTTPClient) SuspendService(ctx context.Context, id string) (*Service, error) {
	return c.service(ctx, http.MethodPost, "/services/"+url.PathEscape(id)+"/suspend", nil)
}

func (c *HTTPClient) UnsuspendService(ctx context.Context, id string) (*Service, error) {
	return c.service(ctx, http.MethodPost, "/services/"+url.PathEscape(id)+"/unsuspend", nil)
}

func (c *HTTPClient) ChangePackage(ctx context.Context, id, pkg string) (*Service, error) {
	return c.service(ctx, http.MethodPut, "/services/"+url.PathEscape(id)+"/package", map[string]string{"package": pkg})
}

func (c *HTTPClient) CancelService(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/services/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) ServiceUsage(ctx context.Context, id string) (Usage, error) {
	var out Usage
	if err := c.do(ctx, http.MethodGet, "/services/"+url.PathEscape(id)+"/usage", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) ListServers(ctx context.Context) ([]Server, error) {
	var out []Server
	if err := c.do(ctx, http.MethodGet, "/servers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) service(ctx context.Context, method, path string, body any) (*Service, error) {
	var out Service
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("API call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var payload struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Fields = payload.Fields
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

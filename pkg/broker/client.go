package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client talks to a broker Server. The driver uses it to establish one
// engine connection per session.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the broker at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Lease acquires a running engine endpoint.
func (c *Client) Lease(ctx context.Context) (Instance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/instances/lease", nil)
	if err != nil {
		return Instance{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Instance{}, fmt.Errorf("lease request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return Instance{}, ErrPoolExhausted
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Instance{}, fmt.Errorf("lease failed: %s: %s", resp.Status, bytes.TrimSpace(body))
	}

	var inst Instance
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil {
		return Instance{}, fmt.Errorf("decode lease response: %w", err)
	}
	return inst, nil
}

// Return gives the instance back, letting the broker kill and recycle it.
func (c *Client) Return(ctx context.Context, inst Instance) error {
	url := fmt.Sprintf("%s/instances/%s/return", c.baseURL, inst.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("return request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("return failed: %s", resp.Status)
	}
	return nil
}

// PostResult appends an arbitrary JSON result to the broker's mailbox.
func (c *Client) PostResult(ctx context.Context, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/results", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post result failed: %s", resp.Status)
	}
	return nil
}

// DrainResults fetches and clears all accumulated results.
func (c *Client) DrainResults(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/results", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drain results: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drain results failed: %s", resp.Status)
	}
	var results []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return results, nil
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type Token struct {
	UserID          int64     `json:"user_id"`
	TokenID         string    `json:"token_id"`
	RemainingUsages int64     `json:"remaining_usages"`
	ExpiryDate      time.Time `json:"expiry_date"`
	CreateDate      time.Time `json:"create_date"`
}

// Result mirrors the service's operation response. Rejections are results,
// not errors.
type Result struct {
	Status  int    `json:"status"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	Token   *Token `json:"token,omitempty"`
}

type CreateTokenRequest struct {
	UserID     int64     `json:"user_id"`
	ExpiryDate time.Time `json:"expiry_date"`
	TxnKey     string    `json:"txn_key"`
	UsageCount int       `json:"usage_count"`
}

type UseTokenRequest struct {
	UserID  int64  `json:"user_id"`
	TokenID string `json:"token_id"`
	TxnKey  string `json:"txn_key"`
}

func (c *Client) CreateToken(ctx context.Context, req CreateTokenRequest) (*Result, error) {
	return c.post(ctx, "/tokens", req)
}

func (c *Client) UseToken(ctx context.Context, req UseTokenRequest) (*Result, error) {
	return c.post(ctx, "/tokens/use", req)
}

func (c *Client) post(ctx context.Context, path string, body any) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err == nil && res.Outcome != "" {
		return &res, nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("POST %s: %s (HTTP %d)", path, apiErr.Error, resp.StatusCode)
	}
	return nil, fmt.Errorf("POST %s: unexpected HTTP %d", path, resp.StatusCode)
}

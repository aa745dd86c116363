// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package directory is the client for the remote personnel records service.
//
// The service is a plain request/response collaborator; record semantics
// live server-side. The client only fetches what the protected views render.
package directory

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxResponseSize bounds response bodies.
const MaxResponseSize = 4 * 1024 * 1024 // 4MB

var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: 30 * time.Second,
}

// Employee is one personnel record as the directory reports it.
type Employee struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	OrgUnit  string `json:"org_unit"`
	Email    string `json:"email"`
	Location string `json:"location"`
}

// Page is one page of a listing.
type Page struct {
	Items      []Employee `json:"items"`
	Total      int        `json:"total"`
	NextOffset int        `json:"next_offset"`
}

// Client talks to the directory service. Every request carries the caller's
// session token; the service enforces authorization.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a directory client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: sharedHTTPClient,
	}
}

// WithHTTPClient overrides the HTTP client (tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// ListEmployees fetches one page, optionally filtered by a search query.
func (c *Client) ListEmployees(ctx context.Context, token, query string, offset, limit int) (*Page, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	if query != "" {
		params.Set("q", query)
	}

	var page Page
	if err := c.get(ctx, "/v1/employees?"+params.Encode(), token, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetEmployee fetches one record.
func (c *Client) GetEmployee(ctx context.Context, token, id string) (*Employee, error) {
	var employee Employee
	if err := c.get(ctx, "/v1/employees/"+url.PathEscape(id), token, &employee); err != nil {
		return nil, err
	}
	return &employee, nil
}

// get issues an authenticated GET and decodes the response.
func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseSize)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, limited)
		return fmt.Errorf("directory returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}
	return nil
}

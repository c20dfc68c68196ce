// Package httpc provides an HTTP client with timeouts and small JSON helpers
// for talking to the edgecam viewer API.
package httpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultKeepAlive      = 30 * time.Second
)

// NewClient creates an HTTP client with the given overall timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Client is a shared client with DefaultTimeout.
var Client = NewClient(DefaultTimeout)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// GetJSON fetches url and decodes the JSON body into v.
func GetJSON(ctx context.Context, c *http.Client, url string, v any) error {
	return doJSON(ctx, c, http.MethodGet, url, v)
}

// PostJSON posts an empty body to url and decodes the JSON response into v,
// which may be nil.
func PostJSON(ctx context.Context, c *http.Client, url string, v any) error {
	return doJSON(ctx, c, http.MethodPost, url, v)
}

func doJSON(ctx context.Context, c *http.Client, method, url string, v any) error {
	if c == nil {
		c = Client
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &body) != nil {
			body.Error = string(data)
		}
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

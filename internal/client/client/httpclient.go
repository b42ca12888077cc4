package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

type HTTPClient struct {
	baseURL string
	http    *http.Client

	// refreshMu keeps concurrent retries from rotating the token twice.
	refreshMu sync.Mutex
}

func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

type errorBody struct {
	Error string `json:"error"`
}

type sessionBody struct {
	UserID string `json:"user_id"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return mapError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapError(resp *http.Response) error {
	var eb errorBody
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(b, &eb); err != nil || eb.Error == "" {
		eb.Error = strings.TrimSpace(string(b))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, eb.Error)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: eb.Error}
}

func (c *HTTPClient) Register(ctx context.Context, email string, password, confirmation []byte) (string, error) {
	in := map[string]string{
		"email":                 email,
		"password":              string(password),
		"password_confirmation": string(confirmation),
	}
	var out sessionBody
	if err := c.do(ctx, http.MethodPost, "/auth/register", in, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func (c *HTTPClient) Login(ctx context.Context, email string, password []byte) (string, error) {
	in := map[string]string{"email": email, "password": string(password)}
	var out sessionBody
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func (c *HTTPClient) Refresh(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	var out sessionBody
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &out); err != nil {
		return "", err
	}
	return out.UserID, nil
}

func (c *HTTPClient) Me(ctx context.Context) (*Identity, error) {
	var out Identity
	err := c.retryUnauthorized(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) Logout(ctx context.Context) (string, error) {
	var out sessionBody
	err := c.retryUnauthorized(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/auth/logout", nil, &out)
	})
	if err != nil {
		return "", err
	}
	return out.UserID, nil
}

// retryUnauthorized runs call and, when the access token is gone or
// expired, refreshes once and runs it again. A failed refresh returns the
// original error.
func (c *HTTPClient) retryUnauthorized(ctx context.Context, call func() error) error {
	err := call()
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}
	if _, rerr := c.Refresh(ctx); rerr != nil {
		return err
	}
	return call()
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

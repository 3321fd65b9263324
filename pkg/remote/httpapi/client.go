// Package httpapi talks to the kiosk REST API.
//
// Endpoints:
//
//	GET    /api/scans                      {"scans": [...]}
//	GET    /api/scans?tagId=T&active=true  one session, 404 if none
//	POST   /api/scans                      201, 409 if the id exists
//	PATCH  /api/scans/{id}                 200, 404 if unknown
//	DELETE /api/scans/{id}                 204, 404 if unknown
//	GET    /api/health                     2xx when reachable
package httpapi

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

	"github.com/0xmhha/gastmeting/pkg/logger"
	"github.com/0xmhha/gastmeting/pkg/remote"
	"github.com/0xmhha/gastmeting/pkg/scan"
)

// Config contains HTTP backend configuration.
type Config struct {
	// BaseURL is the API root, e.g. https://checkin.example.com.
	BaseURL string

	// Timeout bounds every request. Default: 10s.
	Timeout time.Duration

	// SigningKey enables HS256 bearer tokens when non-empty.
	SigningKey string

	// KioskID is the token subject.
	KioskID string
}

// Client implements remote.Store over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
	signer  *Signer
	logger  logger.Logger
}

// New returns a Client. It does not contact the server.
func New(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpapi: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("httpapi: invalid base url: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Noop()
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log,
	}
	if cfg.SigningKey != "" {
		c.signer = NewSigner(cfg.SigningKey, cfg.KioskID, 0)
	}
	return c, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		token, tokenErr := c.signer.Token()
		if tokenErr != nil {
			return nil, tokenErr
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "path", path, "error", err)
		return nil, err
	}
	return resp, nil
}

func statusError(resp *http.Response) *remote.StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &remote.StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.String(),
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, remote.MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > remote.MaxPayloadSize {
		return nil, remote.ErrPayloadTooLarge
	}
	return data, nil
}

func sessionPath(id string) string {
	return "/api/scans/" + url.PathEscape(id)
}

// ListSessions implements remote.Store.ListSessions.
func (c *Client) ListSessions(ctx context.Context) ([]scan.Session, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/scans", nil)
	if err != nil {
		return nil, scan.E(scan.ErrRemote, "list", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, scan.E(scan.ErrRemote, "list", "", statusError(resp))
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, scan.E(scan.ErrRemote, "list", "", err)
	}
	return remote.DecodeSessions(data, c.logger), nil
}

// CreateSession implements remote.Store.CreateSession.
func (c *Client) CreateSession(ctx context.Context, s scan.Session) (scan.Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/scans", s)
	if err != nil {
		return scan.Session{}, scan.E(scan.ErrRemote, "create", s.SessionID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return scan.Session{}, scan.E(scan.ErrConflict, "create", s.SessionID, nil)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return scan.Session{}, scan.E(scan.ErrInvalid, "create", s.SessionID, statusError(resp))
	default:
		return scan.Session{}, scan.E(scan.ErrRemote, "create", s.SessionID, statusError(resp))
	}
	return c.decodeOne(resp, s)
}

// UpdateSession implements remote.Store.UpdateSession.
func (c *Client) UpdateSession(ctx context.Context, id string, p scan.Patch) (scan.Session, error) {
	resp, err := c.do(ctx, http.MethodPatch, sessionPath(id), p)
	if err != nil {
		return scan.Session{}, scan.E(scan.ErrRemote, "update", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return scan.Session{}, scan.E(scan.ErrNotFound, "update", id, nil)
	default:
		return scan.Session{}, scan.E(scan.ErrRemote, "update", id, statusError(resp))
	}
	return c.decodeOne(resp, scan.Session{SessionID: id})
}

// DeleteSession implements remote.Store.DeleteSession.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, sessionPath(id), nil)
	if err != nil {
		return scan.E(scan.ErrRemote, "delete", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return scan.E(scan.ErrNotFound, "delete", id, nil)
	default:
		return scan.E(scan.ErrRemote, "delete", id, statusError(resp))
	}
}

// FindActiveByTag implements remote.Store.FindActiveByTag.
func (c *Client) FindActiveByTag(ctx context.Context, tagID string) (*scan.Session, error) {
	q := url.Values{"tagId": {tagID}, "active": {"true"}}
	resp, err := c.do(ctx, http.MethodGet, "/api/scans?"+q.Encode(), nil)
	if err != nil {
		return nil, scan.E(scan.ErrRemote, "find active", tagID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, scan.E(scan.ErrRemote, "find active", tagID, statusError(resp))
	}

	s, err := c.decodeOne(resp, scan.Session{})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeOne reads a single session body. An empty body returns fallback.
func (c *Client) decodeOne(resp *http.Response, fallback scan.Session) (scan.Session, error) {
	data, err := readBody(resp)
	if err != nil {
		return scan.Session{}, scan.E(scan.ErrRemote, "decode", fallback.SessionID, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fallback, nil
	}
	s, err := remote.DecodeSession(data)
	if err != nil {
		return scan.Session{}, scan.E(scan.ErrMalformedPayload, "decode", fallback.SessionID, err)
	}
	return s, nil
}

// Ping implements remote.Store.Ping.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return scan.E(scan.ErrRemote, "ping", "", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return scan.E(scan.ErrRemote, "ping", "", statusError(resp))
	}
	return nil
}

// Close implements remote.Store.Close.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

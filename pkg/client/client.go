// Package client is the HTTP client CLI commands use to talk to a running
// scriptherd daemon.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Client talks to the scriptherd daemon API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger
	TLS      *TLSClientConfig
	Insecure bool // skip TLS verification
}

// TLSClientConfig holds TLS settings for talking to a remote daemon.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file
	ClientCert string // client certificate file
	ClientKey  string // client private key file
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns the local-daemon defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8765",
		Timeout: 10 * time.Second,
	}
}

// New creates a daemon API client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8765"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// IsReachable reports whether a daemon answers at the configured address.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/scripts", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Scripts returns the daemon's current script listing.
func (c *Client) Scripts(ctx context.Context) ([]Script, error) {
	var out []Script
	if err := c.getJSON(ctx, c.baseURL+"/api/scripts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Running returns the currently running scripts.
func (c *Client) Running(ctx context.Context) ([]Running, error) {
	var out []Running
	if err := c.getJSON(ctx, c.baseURL+"/api/running", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Start launches the script identified by key.
func (c *Client) Start(ctx context.Context, key string) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/api/scripts/"+url.PathEscape(key)+"/start", nil)
}

// Stop stops the script identified by key.
func (c *Client) Stop(ctx context.Context, key string) error {
	return c.doRequest(ctx, http.MethodPost, c.baseURL+"/api/scripts/"+url.PathEscape(key)+"/stop", nil)
}

// Status fetches the last known process status for key.
func (c *Client) Status(ctx context.Context, key string) (Status, error) {
	var st Status
	err := c.getJSON(ctx, c.baseURL+"/api/scripts/"+url.PathEscape(key)+"/status", &st)
	return st, err
}

// UpdateSchedule sets the raw schedule string for key.
func (c *Client) UpdateSchedule(ctx context.Context, key, schedule string) error {
	body, err := json.Marshal(map[string]string{"schedule": schedule})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPut, c.baseURL+"/api/scripts/"+url.PathEscape(key)+"/schedule", body)
}

// History fetches recent run records for key ("" for all scripts).
func (c *Client) History(ctx context.Context, key string, limit int) ([]Run, error) {
	u := c.baseURL + "/api/scripts/" + url.PathEscape(key) + "/history"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	var out []Run
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Settings fetches the daemon settings.
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	err := c.getJSON(ctx, c.baseURL+"/api/settings", &s)
	return s, err
}

// UpdateSettings replaces the daemon settings.
func (c *Client) UpdateSettings(ctx context.Context, s Settings) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.doRequest(ctx, http.MethodPut, c.baseURL+"/api/settings", body)
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS == nil {
		return tlsConfig, nil
	}
	if config.TLS.SkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}
	if config.TLS.ServerName != "" {
		tlsConfig.ServerName = config.TLS.ServerName
	}
	if config.TLS.CACert != "" {
		caCert, err := os.ReadFile(config.TLS.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate %s", config.TLS.CACert)
		}
		tlsConfig.RootCAs = pool
	}
	if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// getJSON performs a GET and decodes the 200 body into v.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.checkResponse(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// doRequest performs a request whose response body is only checked for an
// API error.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "url", url, "error", err)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.checkResponse(resp)
}

func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var e ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", e.Error)
}

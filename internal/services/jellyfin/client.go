package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jellysync/internal/config"
	"jellysync/internal/services"
)

const (
	clientName    = "JellySync"
	clientVersion = "0.2.0"
	deviceName    = "jellysync"

	defaultRequestTimeout = 30 * time.Second
	connectTimeout        = 15 * time.Second
	idleTimeout           = 90 * time.Second
	maxErrorBody          = 4096
)

// HTTPDoer describes the HTTP client used to talk to Jellyfin.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one Jellyfin server on behalf of one user.
type Client struct {
	name    string
	baseURL string
	userID  string
	token   string
	api     HTTPDoer
	stream  HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides both the metadata and the streaming HTTP clients.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.api = client
			c.stream = client
		}
	}
}

// WithStreamClient overrides only the client used for content downloads.
func WithStreamClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.stream = client
		}
	}
}

// New creates a client for the resolved server. Metadata requests are bounded
// by timeout; content streams only bound the wait for response headers so
// large downloads are not cut off.
func New(server config.Server, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(server.URL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", "new client", "server url required", nil)
	}
	userID := strings.TrimSpace(server.UserID)
	if userID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", "new client", "user id required", nil)
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	transport := newTransport(timeout)
	client := &Client{
		name:    server.Name,
		baseURL: baseURL,
		userID:  userID,
		token:   strings.TrimSpace(server.Token),
		api:     &http.Client{Transport: transport, Timeout: timeout},
		stream:  &http.Client{Transport: transport},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func newTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          32,
		MaxConnsPerHost:       16,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		// Byte offsets must refer to the stored file, not a compressed stream.
		DisableCompression: true,
	}
}

// Name returns the server profile name.
func (c *Client) Name() string { return c.name }

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// UserID returns the user the client acts as.
func (c *Client) UserID() string { return c.userID }

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf(
		`MediaBrowser Client=%q, Device=%q, DeviceId=%q, Version=%q, Token=%q`,
		clientName, deviceName, c.deviceID(), clientVersion, c.token,
	))
	req.Header.Set("X-Emby-Token", c.token)
}

func (c *Client) deviceID() string {
	return deviceName + "-" + c.userID
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, op, rawURL string) (*http.Request, error) {
	if c.token == "" {
		return nil, services.WrapAuth("jellyfin", op, "no access token configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "jellyfin", op, "build request", err)
	}
	c.authorize(req)
	return req, nil
}

// getRaw performs an authenticated GET and returns the body of a 2xx response.
func (c *Client) getRaw(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, op, c.endpoint(path, query))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(op, err)
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	body, err := c.getRaw(ctx, op, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return classifyDecode(op, err)
	}
	return nil
}

package deviceapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/logging"
)

// DefaultPort is the device HTTP port
const DefaultPort = 80

// maxErrorBodyLen bounds how much device error text is kept on a DeviceError
const maxErrorBodyLen = 200

// Client talks to a Pigeon device's local HTTP API. Every method performs
// exactly one request; nothing is retried.
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.4.1:80")
	BaseURL string

	// Transport performs the requests
	Transport Transport

	logger *zap.Logger
}

// NewClient creates a client for the device at host:port
func NewClient(host string, port int) *Client {
	return NewClientWithURL(BaseURL(host, port))
}

// NewClientWithURL creates a new client with a full base URL
func NewClientWithURL(baseURL string) *Client {
	t := NewHTTPTransport(baseURL)
	return &Client{
		BaseURL:   t.BaseURL,
		Transport: t,
		logger:    logging.Named("deviceapi"),
	}
}

// NewClientWithTransport creates a client over an arbitrary transport
func NewClientWithTransport(baseURL string, t Transport) *Client {
	return &Client{
		BaseURL:   baseURL,
		Transport: t,
		logger:    logging.Named("deviceapi"),
	}
}

// SetTimeout sets the request timeout when the client uses HTTPTransport
func (c *Client) SetTimeout(timeout time.Duration) {
	if t, ok := c.Transport.(*HTTPTransport); ok {
		t.HTTPClient.Timeout = timeout
	}
}

// BaseURL builds a device base URL from an address that may already carry a
// scheme or a port. An empty host means the soft-AP address.
func BaseURL(host string, port int) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultAPAddress
	}
	if port <= 0 {
		port = DefaultPort
	}

	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err == nil && u.Host != "" {
			if u.Port() == "" {
				u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
			}
			return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/")
		}
	}

	if h, p, err := net.SplitHostPort(host); err == nil {
		return "http://" + net.JoinHostPort(h, p)
	}
	return "http://" + net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

// ScanNetworks asks the device to scan for WiFi networks (GET /wifi/networks).
// A response without wifi_list yields a NetworkList with a nil WifiList.
func (c *Client) ScanNetworks(ctx context.Context) (*NetworkList, error) {
	resp, err := c.Transport.Get(ctx, PathWifiNetworks)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(http.MethodGet, PathWifiNetworks, resp); err != nil {
		return nil, err
	}

	var list NetworkList
	if err := decodeJSON(resp.Body, &list); err != nil {
		return nil, c.parseError(http.MethodGet, PathWifiNetworks, err)
	}

	c.logger.Debug("WiFi scan complete",
		zap.Int("ap_count", list.APCount),
		zap.Int("listed", len(list.WifiList)),
		zap.Bool("wifi_list_present", list.WifiList != nil),
	)
	return &list, nil
}

// FetchSettings reads the stored settings (GET /settings)
func (c *Client) FetchSettings(ctx context.Context) (*Settings, error) {
	resp, err := c.Transport.Get(ctx, PathSettings)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(http.MethodGet, PathSettings, resp); err != nil {
		return nil, err
	}

	var settings Settings
	if err := decodeJSON(resp.Body, &settings); err != nil {
		return nil, c.parseError(http.MethodGet, PathSettings, err)
	}

	c.logger.Debug("Settings fetched",
		zap.String("device_id", settings.DeviceID),
		zap.String("wifi_ssid", settings.WifiSSID),
		zap.String("mqtt_url", settings.MQTTURL),
	)
	return &settings, nil
}

// ApplySettings posts payload verbatim (POST /settings). Any 2xx status is
// treated as acceptance; the body is kept raw because its shape is not part
// of the device contract.
func (c *Client) ApplySettings(ctx context.Context, payload SettingsPayload) (*ApplyResult, error) {
	resp, err := c.Transport.Post(ctx, PathSettings, payload)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(http.MethodPost, PathSettings, resp); err != nil {
		return nil, err
	}

	result := &ApplyResult{StatusCode: resp.StatusCode}
	if body := strings.TrimSpace(string(resp.Body)); body != "" {
		result.Body = []byte(body)
	}

	c.logger.Info("Settings accepted",
		zap.String("device", c.BaseURL),
		zap.Int("status_code", resp.StatusCode),
		zap.String("wifi_ssid", payload.WifiSSID),
	)
	return result, nil
}

// ResetSettings erases the stored settings (DELETE /settings). The device
// keeps running until rebooted, after which it opens its default soft-AP.
func (c *Client) ResetSettings(ctx context.Context) error {
	resp, err := c.Transport.Delete(ctx, PathSettings)
	if err != nil {
		return err
	}
	return c.checkStatus(http.MethodDelete, PathSettings, resp)
}

// Health reads the device's connectivity flags (GET /health)
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.Transport.Get(ctx, PathHealth)
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(http.MethodGet, PathHealth, resp); err != nil {
		return nil, err
	}

	var health Health
	if err := decodeJSON(resp.Body, &health); err != nil {
		return nil, c.parseError(http.MethodGet, PathHealth, err)
	}
	return &health, nil
}

// Ping performs a cheap reachability check using GET /health
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

func (c *Client) checkStatus(method, path string, resp *Response) error {
	if resp.OK() {
		return nil
	}

	devErr := NewHTTPError(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	devErr.Method = method
	devErr.Path = path
	devErr.Address = c.BaseURL
	devErr.Body = truncate(strings.TrimSpace(string(resp.Body)), maxErrorBodyLen)
	return devErr
}

func (c *Client) parseError(method, path string, err error) error {
	devErr := NewParseError("failed to parse JSON response", err)
	devErr.Method = method
	devErr.Path = path
	devErr.Address = c.BaseURL
	return devErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package deviceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dovecote/pigeon/internal/logging"
	"github.com/dovecote/pigeon/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout. A WiFi scan keeps
	// the device busy for several seconds, so this is longer than usual.
	DefaultTimeout = 15 * time.Second

	// maxBodyBytes bounds how much of a response body is read
	maxBodyBytes = 1 << 20
)

// Response is a device reply with its body fully read
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs raw requests against a device. Implementations return a
// Response for every status code and an error only when no response arrived.
type Transport interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string, body any) (*Response, error)
	Delete(ctx context.Context, path string) (*Response, error)
}

// HTTPTransport is the net/http implementation of Transport.
// POST bodies are encoded as JSON.
type HTTPTransport struct {
	// BaseURL is the device base URL (e.g. "http://192.168.4.1:80")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	logger *zap.Logger
}

// NewHTTPTransport creates a transport for the device at baseURL
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logging.Named("transport"),
	}
}

// Get implements Transport
func (t *HTTPTransport) Get(ctx context.Context, path string) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, nil)
}

// Post implements Transport
func (t *HTTPTransport) Post(ctx context.Context, path string, body any) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &DeviceError{
			Type:    ErrTypeValidation,
			Message: "failed to encode request body",
			Method:  http.MethodPost,
			Path:    path,
			Err:     err,
		}
	}
	return t.do(ctx, http.MethodPost, path, data)
}

// Delete implements Transport
func (t *HTTPTransport) Delete(ctx context.Context, path string) (*Response, error) {
	return t.do(ctx, http.MethodDelete, path, nil)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.BaseURL+path, reader)
	if err != nil {
		return nil, &DeviceError{
			Type:    ErrTypeNetwork,
			Message: "failed to create request",
			Method:  method,
			Path:    path,
			Address: t.BaseURL,
			Err:     err,
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	logging.LogDeviceRequest(t.BaseURL, method, path)
	start := time.Now()

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		devErr := ClassifyNetworkError(err, t.BaseURL)
		devErr.Method = method
		devErr.Path = path
		logging.LogDeviceFailure(t.BaseURL, method, path, err)
		return nil, devErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		devErr := NewNetworkError("failed to read response body", err)
		devErr.Method = method
		devErr.Path = path
		devErr.Address = t.BaseURL
		return nil, devErr
	}

	logging.LogDeviceResponse(t.BaseURL, method, path, resp.StatusCode, time.Since(start))
	logging.LogRawBytes(fmt.Sprintf("%s %s body", method, path), redactBody(data))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// redactBody masks password values in a JSON object body before it is dumped
// to the log. Bodies that are not a JSON object are returned as they are.
func redactBody(data []byte) []byte {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return data
	}

	changed := false
	for key, value := range fields {
		if !strings.Contains(key, "password") {
			continue
		}
		var secret string
		if err := json.Unmarshal(value, &secret); err == nil && secret == "" {
			continue
		}
		fields[key] = json.RawMessage(`"********"`)
		changed = true
	}
	if !changed {
		return data
	}

	redacted, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return redacted
}

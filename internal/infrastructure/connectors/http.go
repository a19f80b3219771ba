package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/erp/connector/internal/domain/erp"
	"golang.org/x/text/encoding/charmap"
)

// maxResponseSize is the maximum allowed response size from an ERP API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// ErrRemoteNotFound is the cause of connector errors for HTTP 404 responses
var ErrRemoteNotFound = errors.New("connectors: remote resource not found")

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps 404 to ErrRemoteNotFound
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrRemoteNotFound
	}
	return nil
}

// transientStatus reports whether a response status is worth retrying
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// apiRequest describes one HTTP call against an ERP API
type apiRequest struct {
	method  string
	url     string
	headers map[string]string
	body    any
}

// jsonClient performs JSON requests and classifies failures as connector errors
type jsonClient struct {
	erpType    erp.ErpType
	httpClient *http.Client
}

// do sends the request and returns the (UTF-8) response body
func (c *jsonClient) do(ctx context.Context, op string, r apiRequest) ([]byte, error) {
	var reader io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, erp.NewConnectorError(c.erpType, op, fmt.Errorf("failed to encode request: %w", err), false)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, reader)
	if err != nil {
		return nil, erp.NewConnectorError(c.erpType, op, fmt.Errorf("failed to create request: %w", err), false)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// context errors are left to the actor, which knows whether this was a
		// timeout or a cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, erp.NewConnectorError(c.erpType, op, err, true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, erp.NewConnectorError(c.erpType, op, fmt.Errorf("failed to read response: %w", err), true)
	}

	body, err = toUTF8(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, erp.NewConnectorError(c.erpType, op, err, false)
	}

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
		return nil, erp.NewConnectorError(c.erpType, op, statusErr, transientStatus(resp.StatusCode))
	}
	return body, nil
}

// decode unmarshals body into v, reporting malformed payloads as connector errors
func (c *jsonClient) decode(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return erp.NewConnectorError(c.erpType, op, fmt.Errorf("invalid response: %w", err), false)
	}
	return nil
}

// toUTF8 transcodes legacy single-byte encodings some ERP servers still emit
func toUTF8(contentType string, body []byte) ([]byte, error) {
	if contentType == "" {
		return body, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}

	var cm *charmap.Charmap
	switch strings.ToLower(params["charset"]) {
	case "windows-1252", "cp1252":
		cm = charmap.Windows1252
	case "iso-8859-1", "latin1":
		cm = charmap.ISO8859_1
	case "iso-8859-15", "latin9":
		cm = charmap.ISO8859_15
	default:
		return body, nil
	}

	decoded, err := cm.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", params["charset"], err)
	}
	return decoded, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

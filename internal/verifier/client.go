// Package verifier talks to the remote email verification service.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/email-verifier/console/internal/logging"
	"github.com/email-verifier/console/internal/models"
)

// Multipart field names expected by the upload endpoint.
const (
	FieldFile        = "file"
	FieldEmailColumn = "emailColumn"
)

// DefaultUploadPath is appended to the base URL when no path is configured.
const DefaultUploadPath = "/upload"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// Config configures a Client.
type Config struct {
	BaseURL    string
	UploadPath string
	// Timeout bounds the whole round trip. Zero means no client-side timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client submits files to the upload endpoint. Each call performs exactly one
// HTTP request; there are no retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient validates the configuration and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", cfg.BaseURL)
	}

	path := cfg.UploadPath
	if path == "" {
		path = DefaultUploadPath
	}
	endpoint := base.JoinPath(path)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout > 0 {
		c := *httpClient
		c.Timeout = cfg.Timeout
		httpClient = &c
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard("verifier")
	}

	return &Client{
		endpoint:   endpoint.String(),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Endpoint returns the full upload URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Upload posts the file and column to the upload endpoint and decodes the
// verification result. Every failure is returned as *Error.
func (c *Client) Upload(ctx context.Context, req models.UploadRequest) (*models.VerificationResult, error) {
	if req.File == nil {
		return nil, &Error{Kind: FailureRequest, Err: ErrNoFile}
	}

	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, &Error{Kind: FailureRequest, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, &Error{Kind: FailureRequest, Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.Debugf("POST %s file=%s column=%q (%d bytes)", c.endpoint, req.File.Name, req.EmailColumn, body.Len())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := FailureTransport
		if isTimeout(err) {
			kind = FailureTimeout
		}
		c.logger.Warnf("upload of %s failed after %s: %v", req.File.Name, time.Since(start).Round(time.Millisecond), err)
		return nil, &Error{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		kind := FailureTransport
		if isTimeout(err) {
			kind = FailureTimeout
		}
		return nil, &Error{Kind: kind, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warnf("upload of %s rejected: %s", req.File.Name, resp.Status)
		return nil, &Error{Kind: FailureStatus, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	result, err := DecodeResult(data)
	if err != nil {
		c.logger.Warnf("upload of %s returned an unreadable body (%d bytes)", req.File.Name, len(data))
		return nil, &Error{Kind: FailureMalformed, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Infof("upload of %s verified in %s: valid=%d invalid=%d catch-all=%d",
		req.File.Name, time.Since(start).Round(time.Millisecond),
		result.ValidCount, result.InvalidCount, result.CatchAllCount)

	return result, nil
}

func encodeForm(req models.UploadRequest) (*bytes.Buffer, string, error) {
	src, err := req.File.Open()
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", req.File.Name, err)
	}
	defer src.Close()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(FieldFile, req.File.Name)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", req.File.Name, err)
	}
	if err := writer.WriteField(FieldEmailColumn, req.EmailColumn); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

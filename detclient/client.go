package detclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	iface "TableDetFront/interface"
	"TableDetFront/logger"
	"TableDetFront/monitor"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 30 * time.Second

	pathHealth      = "/health"
	pathDetect      = "/detect"
	pathDetectBatch = "/detect-batch"
)

var (
	ErrTimeout   = errors.New("request timed out")
	ErrMalformed = errors.New("malformed response from detection API")
	ErrBadPath   = errors.New("invalid visualization path")
)

// APIError is a non-2xx answer from the detection API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the table detection API. Every call is bounded by the
// client timeout on top of the caller's context.
type Client struct {
	http    *resty.Client
	baseURL string
	timeout time.Duration
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		http:    resty.New().SetBaseURL(baseURL),
		baseURL: baseURL,
		timeout: timeout,
		log:     logger.Named("detclient"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.http.R().SetContext(ctx).Get(pathHealth)
	if err != nil {
		return c.transportError(ctx, pathHealth, err)
	}
	if resp.IsError() {
		monitor.APIRequests.WithLabelValues(pathHealth, "http_error").Inc()
		return apiError(resp)
	}
	monitor.APIRequests.WithLabelValues(pathHealth, "ok").Inc()
	return nil
}

// Detect sends one image to POST /detect. The API does not echo the file
// name for single images, so it is filled in from the upload.
func (c *Client) Detect(ctx context.Context, file iface.SelectedFile, confidence float64, visualize bool) (*iface.DetectionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", file.Name, file.MIME, bytes.NewReader(file.Content)).
		SetFormData(map[string]string{
			"confidence": formatConfidence(confidence),
			"visualize":  strconv.FormatBool(visualize),
		}).
		Post(pathDetect)
	if err != nil {
		return nil, c.transportError(ctx, pathDetect, err)
	}
	if resp.IsError() {
		monitor.APIRequests.WithLabelValues(pathDetect, "http_error").Inc()
		return nil, apiError(resp)
	}
	var result iface.DetectionResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		monitor.APIRequests.WithLabelValues(pathDetect, "malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if result.Filename == "" {
		result.Filename = file.Name
	}
	monitor.APIRequests.WithLabelValues(pathDetect, "ok").Inc()
	c.log.Debug("detect finished", zap.String("file", file.Name), zap.Bool("success", result.Success),
		zap.Int("detections", len(result.Detections)))
	return &result, nil
}

// DetectBatch sends every file to POST /detect-batch. The visualize flag is
// not part of the batch contract; the server default applies.
func (c *Client) DetectBatch(ctx context.Context, files []iface.SelectedFile, confidence float64) (*iface.BatchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req := c.http.R().SetContext(ctx)
	for _, f := range files {
		req.SetMultipartField("files", f.Name, f.MIME, bytes.NewReader(f.Content))
	}
	resp, err := req.
		SetFormData(map[string]string{"confidence": formatConfidence(confidence)}).
		Post(pathDetectBatch)
	if err != nil {
		return nil, c.transportError(ctx, pathDetectBatch, err)
	}
	if resp.IsError() {
		monitor.APIRequests.WithLabelValues(pathDetectBatch, "http_error").Inc()
		return nil, apiError(resp)
	}
	var batch iface.BatchResponse
	if err := json.Unmarshal(resp.Body(), &batch); err != nil {
		monitor.APIRequests.WithLabelValues(pathDetectBatch, "malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if batch.Results == nil {
		monitor.APIRequests.WithLabelValues(pathDetectBatch, "malformed").Inc()
		return nil, fmt.Errorf("%w: missing results", ErrMalformed)
	}
	monitor.APIRequests.WithLabelValues(pathDetectBatch, "ok").Inc()
	c.log.Debug("batch finished", zap.Int("files", len(files)), zap.Int("results", len(batch.Results)))
	return &batch, nil
}

// Visualization fetches {baseURL}{path} for a visualization_url the API
// returned. Only absolute paths on the API host are allowed.
func (c *Client) Visualization(ctx context.Context, path string) ([]byte, string, error) {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "..") {
		return nil, "", fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, "", c.transportError(ctx, "visualization", err)
	}
	if resp.IsError() {
		monitor.APIRequests.WithLabelValues("visualization", "http_error").Inc()
		return nil, "", apiError(resp)
	}
	monitor.APIRequests.WithLabelValues("visualization", "ok").Inc()
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return resp.Body(), contentType, nil
}

func (c *Client) transportError(ctx context.Context, endpoint string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		monitor.APIRequests.WithLabelValues(endpoint, "timeout").Inc()
		c.log.Warn("request timed out", zap.String("endpoint", endpoint), zap.Duration("timeout", c.timeout))
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	monitor.APIRequests.WithLabelValues(endpoint, "network_error").Inc()
	c.log.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
	return fmt.Errorf("%s: %w", endpoint, err)
}

// apiError turns an error response into an APIError, preferring the JSON
// "detail" field and falling back to the status code.
func apiError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode()}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		e.Message = detailMessage(body.Detail)
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("HTTP status %d", e.Status)
	}
	return e
}

// detailMessage understands both a plain string and the list of
// {"msg": ...} objects FastAPI sends for validation errors.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func formatConfidence(confidence float64) string {
	return strconv.FormatFloat(confidence, 'f', -1, 64)
}

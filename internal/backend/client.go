// Package backend talks to the external ReportFlow services that parse
// templates and data bundles and generate blueprints and YAML.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/reportflow/internal/blueprint"
	"github.com/kingrea/reportflow/internal/upload"
)

// DefaultBaseURL is used when no backend URL is configured.
const DefaultBaseURL = "http://127.0.0.1:8000"

const maxResponseBytes = 32 << 20

// Endpoint paths.
const (
	PathParseTemplate     = "/api/templates/parse"
	PathParseDataBundle   = "/api/files/upload/datasource"
	PathGenerateBlueprint = "/api/blueprints/generate"
	PathGenerateYaml      = "/api/yaml/generate"
	PathHealth            = "/health"
)

// Client issues collaborator requests.
type Client struct {
	baseURL   string
	http      *http.Client
	logger    *slog.Logger
	metrics   *Metrics
	requestID func() string
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the transport. Timeouts are left to the client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRequestIDs injects a deterministic request id source (tests).
func WithRequestIDs(next func() string) Option {
	return func(c *Client) {
		if next != nil {
			c.requestID = next
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{
		baseURL:   base,
		http:      http.DefaultClient,
		logger:    slog.Default(),
		requestID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ParseTemplate uploads a template and returns its tasks in reply order.
func (c *Client) ParseTemplate(ctx context.Context, file upload.File) (tasks []blueprint.Task, err error) {
	started := time.Now()
	defer func() { c.metrics.observe(OpParseTemplate, started, err) }()
	body, err := c.postFile(ctx, OpParseTemplate, PathParseTemplate, file)
	if err != nil {
		return nil, err
	}
	tasks, err = blueprint.DecodeTemplateResponse(body)
	if err != nil {
		return nil, &ShapeError{Op: OpParseTemplate, Reason: err.Error()}
	}
	return tasks, nil
}

// ParseDataBundle uploads a zip bundle and returns its data sources.
func (c *Client) ParseDataBundle(ctx context.Context, file upload.File) (sources []blueprint.DataSource, err error) {
	started := time.Now()
	defer func() { c.metrics.observe(OpParseDataBundle, started, err) }()
	body, err := c.postFile(ctx, OpParseDataBundle, PathParseDataBundle, file)
	if err != nil {
		return nil, err
	}
	sources, err = blueprint.DecodeDataSources(body)
	if err != nil {
		return nil, &ShapeError{Op: OpParseDataBundle, Reason: err.Error()}
	}
	return sources, nil
}

type blueprintRequest struct {
	Tasks       []blueprint.Task       `json:"tasks"`
	DataSources []blueprint.DataSource `json:"data_sources"`
}

// GenerateBlueprint asks the planner for a graph. A reply carrying an error
// field is returned as a result, not as a Go error.
func (c *Client) GenerateBlueprint(ctx context.Context, tasks []blueprint.Task, sources []blueprint.DataSource) (result blueprint.BlueprintResult, err error) {
	started := time.Now()
	defer func() { c.metrics.observe(OpGenerateBlueprint, started, err) }()
	body, err := c.postJSON(ctx, OpGenerateBlueprint, PathGenerateBlueprint, blueprintRequest{Tasks: tasks, DataSources: sources})
	if err != nil {
		return blueprint.BlueprintResult{}, err
	}
	result, err = blueprint.DecodeBlueprintResponse(body)
	if err != nil {
		return blueprint.BlueprintResult{}, &ShapeError{Op: OpGenerateBlueprint, Reason: err.Error()}
	}
	return result, nil
}

type yamlRequest struct {
	UserRequest string `json:"user_request"`
	Context     string `json:"context"`
}

// GenerateYaml requests a YAML workflow for the natural-language request.
func (c *Client) GenerateYaml(ctx context.Context, userRequest, promptContext string) (text string, err error) {
	started := time.Now()
	defer func() { c.metrics.observe(OpGenerateYaml, started, err) }()
	body, err := c.postJSON(ctx, OpGenerateYaml, PathGenerateYaml, yamlRequest{UserRequest: userRequest, Context: promptContext})
	if err != nil {
		return "", err
	}
	text, err = blueprint.DecodeYamlResponse(body)
	if err != nil {
		return "", &ShapeError{Op: OpGenerateYaml, Reason: err.Error()}
	}
	return text, nil
}

// Health reports the backend's status and version.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health asks the backend for its status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathHealth, nil)
	if err != nil {
		return Health{}, &TransportError{Op: OpHealth, Err: err}
	}
	body, err := c.do(OpHealth, req)
	if err != nil {
		return Health{}, err
	}
	var health Health
	if err := json.Unmarshal(body, &health); err != nil {
		return Health{}, &ShapeError{Op: OpHealth, Reason: err.Error()}
	}
	return health, nil
}

func (c *Client) postFile(ctx context.Context, op, path string, file upload.File) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if err := writer.Close(); err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(op, req)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	id := c.requestID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", id)
	log := c.logger.With("operation", op, "request_id", id)
	log.Debug("backend request", "method", req.Method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("backend request failed", "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		log.Warn("backend response unreadable", "status", resp.StatusCode, "error", err)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := blueprint.DecodeErrorDetail(body)
		log.Warn("backend returned error status", "status", resp.StatusCode, "detail", detail)
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}
	log.Debug("backend response", "status", resp.StatusCode, "bytes", len(body))
	return body, nil
}

package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/manash/moodboard/internal/metrics"
	"github.com/manash/moodboard/internal/provider"
	"github.com/manash/moodboard/pkg/models"
)

const (
	DefaultBaseURL = "http://127.0.0.1:7860"
	defaultTimeout = 120 * time.Second

	generateEndpoint = "/gradio_api/api/generate_image"
	editEndpoint     = "/gradio_api/api/edit_image_region"
	filePrefix       = "/gradio_api/file="

	opGenerate = "generate"
	opEdit     = "edit"
)

type apiRequest struct {
	Data []any `json:"data"`
}

type apiResponse struct {
	Data   []json.RawMessage `json:"data"`
	Error  json.RawMessage   `json:"error,omitempty"`
	Detail json.RawMessage   `json:"detail,omitempty"`
}

type Provider struct {
	apiKey           string
	baseURL          string
	generateTemplate string
	editTemplate     string
	httpClient       *http.Client
	verbose          bool
	log              *logrus.Logger
}

func New(cfg *provider.Config) (*Provider, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, provider.ErrBaseURLRequired
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Provider{
		apiKey:           cfg.APIKey,
		baseURL:          baseURL,
		generateTemplate: cfg.GenerateTemplate,
		editTemplate:     cfg.EditTemplate,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		verbose: cfg.Verbose,
		log:     log,
	}, nil
}

func (p *Provider) Name() string {
	return "gradio"
}

// FileURL joins the base URL, the file-serving segment and the basename only;
// the backend serves every output from one flat directory.
func (p *Provider) FileURL(path string) string {
	return p.baseURL + filePrefix + models.Basename(path)
}

func (p *Provider) Generate(ctx context.Context, req *models.GenerateRequest) (*models.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	template := req.Template
	if template == "" {
		template = p.generateTemplate
	}

	return p.call(ctx, opGenerate, generateEndpoint, apiRequest{
		Data: []any{req.Prompt, req.Model, template, req.IncludeReasoning},
	})
}

func (p *Provider) call(ctx context.Context, op, endpoint string, apiReq apiRequest) (*models.Result, error) {
	start := time.Now()
	result, err := p.do(ctx, op, endpoint, apiReq)
	metrics.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	metrics.BackendRequests.WithLabelValues(op, outcome(err)).Inc()

	fields := logrus.Fields{"op": op, "duration": time.Since(start).Round(time.Millisecond)}
	if err != nil {
		p.log.WithFields(fields).WithError(err).Warn("backend call failed")
		return nil, err
	}
	p.log.WithFields(fields).WithField("image", result.Image.Basename()).Info("backend call succeeded")
	return result, nil
}

func (p *Provider) do(ctx context.Context, op, endpoint string, apiReq apiRequest) (*models.Result, error) {
	jsonData, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + endpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	p.logRequest(http.MethodPost, url, httpReq.Header, jsonData)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &provider.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	p.logResponse(resp.StatusCode, resp.Header, body)

	var apiResp apiResponse
	parseErr := json.Unmarshal(body, &apiResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &provider.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(apiResp, parseErr == nil, resp.StatusCode),
		}
	}

	if parseErr != nil {
		return nil, &provider.MalformedResponseError{Op: op, Reason: "body is not JSON: " + parseErr.Error()}
	}

	if msg := rawMessage(apiResp.Error); msg != "" {
		return nil, &provider.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	return p.buildResult(op, apiResp)
}

func (p *Provider) buildResult(op string, apiResp apiResponse) (*models.Result, error) {
	if len(apiResp.Data) == 0 {
		return nil, &provider.MalformedResponseError{Op: op, Reason: "no data returned"}
	}

	var img imageValue
	if err := json.Unmarshal(apiResp.Data[0], &img); err != nil {
		return nil, &provider.MalformedResponseError{Op: op, Reason: err.Error()}
	}

	ref := img.resolve(p.FileURL)
	if ref.IsZero() {
		return nil, &provider.MalformedResponseError{Op: op, Reason: "image reference has neither url nor path"}
	}

	result := &models.Result{Image: ref}
	if len(apiResp.Data) > 1 {
		reasoning, err := decodeReasoning(apiResp.Data[1])
		if err != nil {
			return nil, &provider.MalformedResponseError{Op: op, Reason: err.Error()}
		}
		result.Reasoning = reasoning
	}

	return result, nil
}

func decodeReasoning(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("reasoning is not a string")
	}
	return s, nil
}

// errorMessage prefers the payload's "error", then "detail", then the status text.
func errorMessage(apiResp apiResponse, parsed bool, status int) string {
	if parsed {
		if msg := rawMessage(apiResp.Error); msg != "" {
			return msg
		}
		if msg := rawMessage(apiResp.Detail); msg != "" {
			return msg
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}

func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func outcome(err error) string {
	var (
		ne *provider.NetworkError
		re *provider.RemoteError
		me *provider.MalformedResponseError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &ne):
		return metrics.OutcomeNetwork
	case errors.As(err, &re):
		return metrics.OutcomeRemote
	case errors.As(err, &me):
		return metrics.OutcomeMalformed
	default:
		return "error"
	}
}

func (p *Provider) logRequest(method, url string, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	entry := p.log.WithFields(logrus.Fields{
		"method":  method,
		"url":     url,
		"headers": redactHeaders(headers),
	})
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err == nil {
		entry.Debugf("request body:\n%s", pretty.String())
	} else {
		entry.Debugf("request body: %s", string(body))
	}
}

func (p *Provider) logResponse(statusCode int, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	entry := p.log.WithFields(logrus.Fields{
		"status":  statusCode,
		"headers": redactHeaders(headers),
	})
	entry.Debugf("response body: %s", truncate(string(body), 2000))
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		value := strings.Join(values, ", ")
		if strings.EqualFold(key, "authorization") {
			value = "[REDACTED]"
		}
		out[key] = value
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... [truncated]"
}

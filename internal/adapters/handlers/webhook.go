package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/mmk-jobqueue/internal/domain/job"
	"github.com/target/mmk-jobqueue/internal/domain/model"
	apperrors "github.com/target/mmk-jobqueue/internal/errors"
)

// WebhookJobType delivers a JSON body to an HTTP endpoint.
const WebhookJobType model.JobType = "webhook"

const maxResponseBodyBytes = 4 * 1024

// WebhookPayload is the job payload for WebhookJobType.
type WebhookPayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	// BodyPath is a JMESPath expression selecting the part of Body that is sent.
	BodyPath string `json:"body_path,omitempty"`
}

// WebhookResult is stored as the job result on success.
type WebhookResult struct {
	StatusCode    int    `json:"status_code"`
	Body          string `json:"body,omitempty"`
	BodyTruncated bool   `json:"body_truncated,omitempty"`
}

// OAuthConfig enables OAuth2 client-credentials auth on outbound requests.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// WebhookOptions configures the webhook handler.
type WebhookOptions struct {
	HTTPClient *http.Client // Optional: base client; a 30s-timeout client by default
	OAuth      *OAuthConfig // Optional
	Settings   model.HandlerConfig
}

// Webhook delivers HTTP requests. 2xx completes the job, 429 and 5xx responses and transport
// errors are retried, and any other status fails the job.
type Webhook struct {
	client   *http.Client
	settings model.HandlerConfig
}

var _ job.Handler = (*Webhook)(nil)

// NewWebhook builds the handler.
func NewWebhook(opts WebhookOptions) (*Webhook, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.OAuth != nil {
		if opts.OAuth.TokenURL == "" || opts.OAuth.ClientID == "" {
			return nil, errors.New("oauth token url and client id are required")
		}
		cc := &clientcredentials.Config{
			ClientID:     opts.OAuth.ClientID,
			ClientSecret: opts.OAuth.ClientSecret,
			TokenURL:     opts.OAuth.TokenURL,
			Scopes:       opts.OAuth.Scopes,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		authed := cc.Client(ctx)
		authed.Timeout = client.Timeout
		client = authed
	}
	return &Webhook{client: client, settings: opts.Settings}, nil
}

func (w *Webhook) JobType() model.JobType { return WebhookJobType }

func (w *Webhook) Config() model.HandlerConfig { return w.settings }

// ValidateJobData checks the URL, method and body expression before any request is made.
func (w *Webhook) ValidateJobData(payload json.RawMessage) error {
	_, err := decodeWebhookPayload(payload)
	return err
}

func (w *Webhook) Handle(ctx context.Context, payload json.RawMessage, jc model.JobContext) (model.JobResult, error) {
	p, err := decodeWebhookPayload(payload)
	if err != nil {
		return model.JobResult{}, err
	}

	body, err := selectBody(p.Body, p.BodyPath)
	if err != nil {
		return model.JobResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, p.Method, p.URL, bytesReader(body))
	if err != nil {
		return model.JobResult{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "build request")
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Idempotency-Key", jc.JobID)
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return model.JobResult{}, apperrors.Wrap(err, apperrors.ErrCodeTransient, "send request")
	}
	respBody, truncated, readErr := readResponseBody(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && readErr == nil {
		readErr = closeErr
	}
	if readErr != nil {
		return model.JobResult{}, apperrors.Wrap(readErr, apperrors.ErrCodeTransient, "read response body")
	}

	return classifyResponse(resp, respBody, truncated)
}

func classifyResponse(resp *http.Response, body string, truncated bool) (model.JobResult, error) {
	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		raw, err := json.Marshal(WebhookResult{StatusCode: status, Body: body, BodyTruncated: truncated})
		if err != nil {
			return model.JobResult{}, apperrors.Wrap(err, apperrors.ErrCodeFatal, "encode result")
		}
		return model.Success(raw, http.StatusText(status)), nil
	case status == http.StatusTooManyRequests || status >= 500:
		msg := fmt.Sprintf("unexpected status %d", status)
		if delay, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
			return model.RetryAfter(msg, delay), nil
		}
		return model.JobResult{}, apperrors.Transient(msg)
	default:
		return model.JobResult{}, apperrors.Fatalf("unexpected status %d: %s", status, body)
	}
}

// retryAfter parses a delta-seconds Retry-After header.
func retryAfter(v string) (time.Duration, bool) {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func decodeWebhookPayload(payload json.RawMessage) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode webhook payload")
	}

	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperrors.ValidationField("url", fmt.Sprintf("invalid scheme %q", u.Scheme))
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, apperrors.ValidationField("url", "missing host")
	}

	p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	switch p.Method {
	case "":
		p.Method = http.MethodPost
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, apperrors.ValidationField("method", fmt.Sprintf("unsupported method %q", p.Method))
	}

	if expr := strings.TrimSpace(p.BodyPath); expr != "" {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid body_path")
		}
	}
	return &p, nil
}

// selectBody applies the JMESPath expression to body; an empty expression sends body as is.
func selectBody(body json.RawMessage, expr string) ([]byte, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || len(body) == 0 {
		return body, nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "decode body")
	}
	selected, err := jmespath.Search(expr, data)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "evaluate body_path")
	}
	out, err := json.Marshal(selected)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode selected body")
	}
	return out, nil
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}

func readResponseBody(body io.Reader) (string, bool, error) {
	if body == nil {
		return "", false, nil
	}
	limited := io.LimitReader(body, maxResponseBodyBytes+1)
	data, readErr := io.ReadAll(limited)
	truncated := len(data) > maxResponseBodyBytes
	if truncated {
		data = data[:maxResponseBodyBytes]
		if _, drainErr := io.Copy(io.Discard, body); drainErr != nil && readErr == nil {
			readErr = drainErr
		}
	}
	return string(data), truncated, readErr
}

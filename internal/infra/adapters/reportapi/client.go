package reportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
	"mbti-report-console/internal/infra/logging"
	"mbti-report-console/internal/infra/metrics"
)

// Compile-time check
var _ adapter.ReportService = (*Client)(nil)

// APIError is a non-2xx reply carrying the service's detail message.
type APIError = domain.ServiceError

type taskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type statusResponse struct {
	TaskID             string   `json:"task_id"`
	Status             string   `json:"status"`
	Message            string   `json:"message"`
	Progress           *float64 `json:"progress,omitempty"`
	DownloadURL        string   `json:"download_url,omitempty"`
	InsightPDFURL      string   `json:"insight_pdf_url,omitempty"`
	InsightPDFFilename string   `json:"insight_pdf_filename,omitempty"`
}

// Client talks to the MBTI report service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        logging.Component(logger, "reportapi"),
	}
}


// Resolve turns a service-relative reference into an absolute URL.
func (c *Client) Resolve(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.baseURL + ref
}

func (c *Client) CreatePersonalReport(ctx context.Context, file model.Upload) (string, error) {
	return c.upload(ctx, "/create-personal-report", map[string]model.Upload{"file": file})
}

func (c *Client) CreateDualReport(ctx context.Context, file1, file2 model.Upload) (string, error) {
	return c.upload(ctx, "/create-dual-report", map[string]model.Upload{"file1": file1, "file2": file2})
}

func (c *Client) UploadGroupZip(ctx context.Context, file model.Upload) (string, error) {
	return c.upload(ctx, "/upload-zip-group-report", map[string]model.Upload{"file": file})
}

func (c *Client) Translate(ctx context.Context, file model.Upload) (string, error) {
	return c.upload(ctx, "/translate", map[string]model.Upload{"file": file})
}

func (c *Client) InsightByDownloadURL(ctx context.Context, req adapter.InsightRequest) (string, error) {
	if req.DownloadURL == "" {
		return "", fmt.Errorf("%w: download_url is required", domain.ErrValidation)
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := [][2]string{
		{"download_url", req.DownloadURL},
		{"relationship_type", req.RelationshipType},
		{"relationship_goals", req.RelationshipGoals},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close form: %w", err)
	}
	return c.postTask(ctx, "/insight-by-download-url", w.FormDataContentType(), &body)
}

func (c *Client) GroupInsight(ctx context.Context, req adapter.GroupInsightRequest) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.postTask(ctx, "/group-insight", "application/json", bytes.NewReader(data))
}

func (c *Client) Status(ctx context.Context, taskID string) (*model.Snapshot, error) {
	var sr statusResponse
	if err := c.getJSON(ctx, "status", "/status/"+taskID, &sr); err != nil {
		return nil, err
	}
	st, err := model.ParseTaskStatus(sr.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to parse status of task %s: %w", taskID, err)
	}
	snap := &model.Snapshot{
		TaskID:             taskID,
		Status:             st,
		Message:            sr.Message,
		DownloadURL:        sr.DownloadURL,
		InsightPDFURL:      sr.InsightPDFURL,
		InsightPDFFilename: sr.InsightPDFFilename,
	}
	if sr.Progress != nil {
		snap.Progress = clampPercent(*sr.Progress)
	}
	return snap, nil
}

func (c *Client) Health(ctx context.Context) (*adapter.Health, error) {
	var h adapter.Health
	if err := c.getJSON(ctx, "health", "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Fetch streams a produced file; the caller closes the body.
func (c *Client) Fetch(ctx context.Context, ref string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, "output", http.MethodGet, c.Resolve(ref), "", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

func (c *Client) upload(ctx context.Context, path string, files map[string]model.Upload) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	// stable field order keeps requests reproducible
	for _, field := range []string{"file", "file1", "file2"} {
		up, ok := files[field]
		if !ok {
			continue
		}
		if err := writeFilePart(w, field, up); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close form: %w", err)
	}
	return c.postTask(ctx, path, w.FormDataContentType(), &body)
}

func writeFilePart(w *multipart.Writer, field string, up model.Upload) error {
	f, err := os.Open(up.Path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %v", domain.ErrValidation, up.Path, err)
	}
	defer f.Close()

	name := up.Filename
	if name == "" {
		name = filepath.Base(up.Path)
	}
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to copy %s: %w", name, err)
	}
	return nil
}

func (c *Client) postTask(ctx context.Context, path, contentType string, body io.Reader) (string, error) {
	resp, err := c.do(ctx, strings.TrimPrefix(path, "/"), http.MethodPost, c.baseURL+path, contentType, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeAPIError(resp)
	}
	var tr taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if tr.TaskID == "" {
		return "", fmt.Errorf("failed to parse response: empty task_id")
	}
	return tr.TaskID, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, out any) error {
	resp, err := c.do(ctx, endpoint, http.MethodGet, c.baseURL+path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint, method, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	reqID := logging.RequestID(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	took := time.Since(start)
	if err != nil {
		metrics.ObserveAPIRequest(endpoint, took, false)
		c.log.Error().Err(err).Str("endpoint", endpoint).Str("request_id", reqID).Msg("request failed")
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	metrics.ObserveAPIRequest(endpoint, took, ok)
	c.log.Debug().Str("endpoint", endpoint).Str("request_id", reqID).Int("status", resp.StatusCode).
		Dur("took", took).Msg("request done")
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(payload.Detail)
		}
	}
	if apiErr.Detail == "" {
		apiErr.Detail = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func clampPercent(p float64) int {
	switch {
	case p <= 0:
		return 0
	case p >= 100:
		return 100
	default:
		return int(p)
	}
}

package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/coachlens/backend/internal/models"
)

// DefaultTimeout bounds one analysis submission. On expiry the in-flight
// request is cancelled and the outcome is OutcomeTimeout.
const DefaultTimeout = 120 * time.Second

// Outcome classifies an analysis attempt.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomeTimeout            Outcome = "analysis_timeout"
	OutcomeInvalidInput       Outcome = "invalid_input"
	OutcomePayloadTooLarge    Outcome = "payload_too_large"
	OutcomeServerError        Outcome = "server_error"
	OutcomeServiceUnavailable Outcome = "service_unavailable"
	OutcomeUnknownError       Outcome = "unknown_analysis_error"
	OutcomeInvalidResponse    Outcome = "invalid_response_format"
)

// Failed reports whether the outcome is anything but success.
func (o Outcome) Failed() bool { return o != OutcomeSuccess }

// Event is one coachable moment extracted from the analysis payload.
type Event struct {
	OffsetSeconds float64
	Feedback      string
}

// Result is the normalized outcome of one analysis submission. On failure
// Events is empty and Err carries the underlying cause.
type Result struct {
	Outcome        Outcome
	Sport          string
	Events         []Event
	AnalysisFile   string
	AnnotatedVideo string
	Err            error
}

// envelope is the analysis backend's response body for POST /analyze.
type envelope struct {
	Status         string          `json:"status"`
	Sport          string          `json:"sport"`
	Analysis       json.RawMessage `json:"analysis"`
	AnalysisFile   string          `json:"analysis_file"`
	AnnotatedVideo string          `json:"annotated_video"`
}

// Client talks to the external video-analysis HTTP API. The API is a black
// box: one multipart POST per clip, bounded by the configured timeout.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an analysis API client. timeout <= 0 selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
		logger:  logger,
	}
}

// Analyze submits a clip for the given sport and maps the response to a typed
// Result. It never returns a Go error for remote failures: the taxonomy lives
// in Result.Outcome so callers can keep the session usable either way.
func (c *Client) Analyze(ctx context.Context, sport, videoPath string) *Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, contentType, err := buildMultipart(sport, videoPath)
	if err != nil {
		return &Result{Outcome: OutcomeUnknownError, Sport: sport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", body)
	if err != nil {
		return &Result{Outcome: OutcomeUnknownError, Sport: sport, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			c.logger.Warn("analysis submission timed out", zap.String("sport", sport), zap.Duration("timeout", c.timeout))
			return &Result{Outcome: OutcomeTimeout, Sport: sport, Err: err}
		}
		return &Result{Outcome: OutcomeUnknownError, Sport: sport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome := mapStatus(resp.StatusCode)
		c.logger.Warn("analysis rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("outcome", string(outcome)),
			zap.String("sport", sport))
		return &Result{Outcome: outcome, Sport: sport, Err: fmt.Errorf("analysis status %d", resp.StatusCode)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &Result{Outcome: OutcomeInvalidResponse, Sport: sport, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Status != "success" || len(env.Analysis) == 0 {
		return &Result{Outcome: OutcomeInvalidResponse, Sport: sport, Err: fmt.Errorf("incomplete success body (status=%q)", env.Status)}
	}
	events, err := ExtractEvents(env.Analysis)
	if err != nil {
		return &Result{Outcome: OutcomeInvalidResponse, Sport: sport, Err: err}
	}

	return &Result{
		Outcome:        OutcomeSuccess,
		Sport:          env.Sport,
		Events:         events,
		AnalysisFile:   env.AnalysisFile,
		AnnotatedVideo: env.AnnotatedVideo,
	}
}

// mapStatus maps non-2xx analysis responses onto the outcome taxonomy.
func mapStatus(code int) Outcome {
	switch code {
	case http.StatusBadRequest:
		return OutcomeInvalidInput
	case http.StatusRequestEntityTooLarge:
		return OutcomePayloadTooLarge
	case http.StatusInternalServerError:
		return OutcomeServerError
	case http.StatusServiceUnavailable:
		return OutcomeServiceUnavailable
	default:
		return OutcomeUnknownError
	}
}

// Sports returns the backend's supported sport list, falling back to the
// hardcoded default set on any failure.
func (c *Client) Sports(ctx context.Context) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sports", nil)
	if err != nil {
		return models.DefaultSports()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("sports lookup failed, using defaults", zap.Error(err))
		return models.DefaultSports()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.DefaultSports()
	}
	var body struct {
		Sports []string `json:"sports"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || len(body.Sports) == 0 {
		return models.DefaultSports()
	}
	return body.Sports
}

// DownloadAnalysis streams the latest analysis JSON. Best-effort auxiliary
// retrieval; caller must close the reader.
func (c *Client) DownloadAnalysis(ctx context.Context) (io.ReadCloser, error) {
	return c.download(ctx, "/download/analysis")
}

// DownloadAnnotatedVideo streams the annotated video for a sport. Best-effort;
// caller must close the reader.
func (c *Client) DownloadAnnotatedVideo(ctx context.Context, sport string) (io.ReadCloser, error) {
	return c.download(ctx, "/download/video/"+sport)
}

// AnnotatedVideoURL returns the retrievable URL for a sport's annotated video.
func (c *Client) AnnotatedVideoURL(sport string) string {
	return c.baseURL + "/download/video/" + sport
}

func (c *Client) download(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// buildMultipart assembles the sport field and video file into a multipart
// body. The whole clip is buffered; clips are bounded by the capture ceiling
// so this stays small.
func buildMultipart(sport, videoPath string) (io.Reader, string, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return nil, "", fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("sport", sport); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read clip: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

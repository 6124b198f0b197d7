package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/audio"
	"github.com/projectfr33d0m2025/whispertype-sub000/internal/version"
)

// Client sends audio windows to a Whisper-style HTTP transcription API.
// It implements Engine.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientConfig contains transcription client configuration.
type ClientConfig struct {
	Endpoint      string
	APIKey        string
	Model         string
	Language      string
	Temperature   float32
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	OutputFormat  string // "json" or "text"
}

// Response is the parsed transcription API response.
type Response struct {
	RequestID   string    `json:"request_id,omitempty"`
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"`
	Segments    []Segment `json:"segments,omitempty"`
	Duration    float64   `json:"duration,omitempty"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
}

// Segment is one timed span of transcribed text.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence,omitempty"`
}

// ClientStats represents client statistics.
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a transcription HTTP client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 2
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	if config.OutputFormat == "" {
		config.OutputFormat = "json"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// Semaphore bounds concurrent API calls
	semaphore := make(chan struct{}, config.MaxConcurrent)

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  semaphore,
	}, nil
}

// Transcribe sends one window of samples with its continuity context and
// returns the recognized text. An error means the window is lost to the
// caller: internal retries cover transient transport failures only, and
// the caller is expected to move on to the next window.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int, contextText string) (string, error) {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("failed to encode window: %w", err)
	}

	req := &windowRequest{
		id:         uuid.New().String(),
		wav:        wav,
		sampleRate: sampleRate,
		duration:   float64(len(samples)) / float64(sampleRate),
		prompt:     contextText,
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := c.doRequest(ctx, req)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return response.Text, nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("transcription failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// windowRequest carries one encoded window through the request path.
type windowRequest struct {
	id         string
	wav        []byte
	sampleRate int
	duration   float64
	prompt     string
}

// doRequest performs a single HTTP request to the transcription API.
func (c *Client) doRequest(ctx context.Context, req *windowRequest) (*Response, error) {
	body, contentType, err := c.createMultipartRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "whispertype/"+version.Version)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	if c.config.OutputFormat == "text" {
		return &Response{Text: strings.TrimSpace(string(respBody)), ProcessedAt: time.Now()}, nil
	}

	var transcriptionResp Response
	if err := json.Unmarshal(respBody, &transcriptionResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	transcriptionResp.ProcessedAt = time.Now()

	return &transcriptionResp, nil
}

// createMultipartRequest creates a multipart/form-data request body with
// the WAV window as the file part and the remaining parameters as form
// fields.
func (c *Client) createMultipartRequest(req *windowRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", fmt.Sprintf("window_%s.wav", req.id))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(req.wav); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"request_id":        req.id,
		"request_timestamp": time.Now().Format(time.RFC3339),
		"sample_rate":       fmt.Sprintf("%d", req.sampleRate),
		"duration":          fmt.Sprintf("%.3f", req.duration),
		"response_format":   c.config.OutputFormat,
		"service_name":      "whispertype",
		"service_version":   version.Version,
	}

	if req.prompt != "" {
		fields["prompt"] = req.prompt
	}
	if c.config.Language != "" {
		fields["language"] = c.config.Language
	}
	if c.config.Model != "" {
		fields["model"] = c.config.Model
	}
	if c.config.Temperature > 0 {
		fields["temperature"] = fmt.Sprintf("%.2f", c.config.Temperature)
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError determines if an error is worth another attempt.
func (c *Client) isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()

	// 5xx server errors are retryable
	if strings.Contains(errStr, "HTTP error 5") {
		return true
	}

	// Rate limiting (429) is retryable
	if strings.Contains(errStr, "HTTP error 429") {
		return true
	}

	// Network/connection errors are typically retryable
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics.
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	activeRequests := len(c.semaphore)

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  activeRequests,
	}
}

// Close waits for all in-flight requests to finish.
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}

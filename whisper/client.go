package whisper

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

	"github.com/rs/zerolog"
)

const (
	// DefaultEndpoint is the OpenAI audio transcription endpoint
	DefaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"

	// DefaultTimeout bounds a single request, upload included
	DefaultTimeout = 60 * time.Second

	// DefaultMaxAttempts is the total number of attempts, the first included
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the fixed pause between failed attempts
	DefaultRetryDelay = 2 * time.Second
)

// Client is the transcription endpoint client
type Client struct {
	apiKey         string
	endpoint       string
	model          string
	responseFormat string
	httpClient     *http.Client
	maxAttempts    int
	retryDelay     time.Duration
	onRetry        func(RetryEvent)
	log            zerolog.Logger
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithEndpoint sets a custom endpoint URL (for testing)
func WithEndpoint(url string) ClientOption {
	return func(c *Client) {
		c.endpoint = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithModel sets the requested model
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithResponseFormat sets the requested response format
func WithResponseFormat(format string) ClientOption {
	return func(c *Client) {
		c.responseFormat = format
	}
}

// WithMaxAttempts sets the attempt budget used by Transcribe
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithRetryDelay sets the pause between failed attempts
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithRetryNotify registers a callback invoked before every retry.
// It runs on the goroutine calling Transcribe.
func WithRetryNotify(fn func(RetryEvent)) ClientOption {
	return func(c *Client) {
		c.onRetry = fn
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a new transcription client
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	c := &Client{
		apiKey:         apiKey,
		endpoint:       DefaultEndpoint,
		model:          ModelWhisper1,
		responseFormat: ResponseFormatText,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		log:         zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}

	return c, nil
}

// Model returns the model identifier sent with every request
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the URL requests are posted to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Transcribe uploads the audio file and returns the transcript, retrying
// retryable failures up to the configured attempt budget.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err := c.TranscribeOnce(ctx, path)
		if err == nil {
			if attempt > 1 {
				c.log.Info().Int("attempt", attempt).Msg("transcription succeeded after retry")
			}
			return text, nil
		}

		lastErr = err

		// Cancellation ends the loop regardless of how the attempt failed
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		class := Classify(err)
		if !class.Retryable() {
			c.log.Warn().Err(err).Int("attempt", attempt).Str("class", class.String()).Msg("transcription failed, not retrying")
			return "", err
		}

		if attempt == c.maxAttempts {
			break
		}

		c.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.maxAttempts).
			Dur("delay", c.retryDelay).Msg("transcription attempt failed, retrying")
		if c.onRetry != nil {
			c.onRetry(RetryEvent{
				Attempt:     attempt,
				MaxAttempts: c.maxAttempts,
				Delay:       c.retryDelay,
				Err:         err,
			})
		}

		// Wait before retry
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}

	return "", &RetryExhaustedError{Attempts: c.maxAttempts, Last: lastErr}
}

// TranscribeOnce sends a single request and classifies its failure.
func (c *Client) TranscribeOnce(ctx context.Context, path string) (string, error) {
	body, contentType, err := c.buildForm(path)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.log.Debug().Str("url", c.endpoint).Str("model", c.model).Int("bytes", body.Len()).Msg("POST transcription")

	// Execute request
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &APIError{Class: ClassNetwork, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	// Read response body
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Class: ClassNetwork, StatusCode: resp.StatusCode, Message: "failed to read response: " + err.Error(), Err: err}
	}

	c.log.Debug().Int("status", resp.StatusCode).Dur("latency", time.Since(start)).Int("bytes", len(respBody)).Msg("transcription response")

	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	return string(respBody), nil
}

// buildForm writes the multipart body: the audio file plus the response
// format and model fields.
func (c *Client) buildForm(path string) (*bytes.Buffer, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy file to form: %w", err)
	}

	if err := writer.WriteField("response_format", c.responseFormat); err != nil {
		return nil, "", fmt.Errorf("failed to write response_format: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, "", fmt.Errorf("failed to write model: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// parseAPIError turns a non-200 response into a classified APIError. The
// body is either the JSON error envelope or plain text.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Class:      ClassifyStatus(status),
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
		apiErr.Code = env.Error.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	if apiErr.Class == ClassClient && mentionsBadFile(apiErr.Code, apiErr.Message) {
		apiErr.Class = ClassBadFile
	}

	return apiErr
}

// GetAPIKeyHelp returns help text for setting up the API key
func GetAPIKeyHelp() string {
	return `To transcribe recordings you need an OpenAI API key.

1. Sign in at https://platform.openai.com
2. Open API keys and create a new secret key
3. Run "dictate setup", or set the environment variable:

   export OPENAI_API_KEY="your-api-key"

Or create a .env file with:
   OPENAI_API_KEY=your-api-key`
}

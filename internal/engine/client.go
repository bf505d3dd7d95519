package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Static errors for engine client operations.
var (
	// ErrBaseURLRequired is returned when the engine base URL is not provided.
	ErrBaseURLRequired = errors.New("engine: base URL is required")
	// ErrModelRequired is returned when a model name is not provided.
	ErrModelRequired = errors.New("engine: model name is required")
	// ErrEmptyImage is returned when an image payload is empty.
	ErrEmptyImage = errors.New("engine: image is empty")
	// ErrNoFace is returned when the engine finds no face where one is required.
	ErrNoFace = errors.New("engine: no face found")
	// ErrEmptyResult is returned when the engine answers without an image.
	ErrEmptyResult = errors.New("engine: empty result image")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("engine: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("engine: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("engine: request failed")
)

// Client defines the operations the face processors and the safety gate need.
type Client interface {
	// ModelStatus reports whether the named model is loaded and ready.
	ModelStatus(ctx context.Context, model string) (bool, error)

	// DetectFaces returns the faces found in image, ordered left to right.
	DetectFaces(ctx context.Context, image []byte) ([]Face, error)

	// ReferenceFace returns the face at position in image.
	ReferenceFace(ctx context.Context, image []byte, position int) (Face, error)

	// Swap replaces faces in target with the face in source.
	Swap(ctx context.Context, source, target []byte, opts SwapOptions) ([]byte, error)

	// Enhance restores face detail in image.
	Enhance(ctx context.Context, image []byte, threads int) ([]byte, error)

	// ClassifyNSFW returns the probability that image is not safe for work.
	ClassifyNSFW(ctx context.Context, image []byte) (float64, error)
}

// HTTPClient is the HTTP implementation of the engine Client interface.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

var _ Client = (*HTTPClient)(nil)

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new engine HTTP client for the server at baseURL.
// The API key is optional; local engines usually run without one.
func NewClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	c := &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		maxRetries:  3,
		baseBackoff: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ModelStatus checks GET /models/{name}.
func (c *HTTPClient) ModelStatus(ctx context.Context, model string) (bool, error) {
	if model == "" {
		return false, ErrModelRequired
	}

	var resp modelResponse
	if err := c.call(ctx, http.MethodGet, "/models/"+url.PathEscape(model), nil, &resp); err != nil {
		return false, err
	}
	return resp.Ready, nil
}

// DetectFaces calls POST /detect.
func (c *HTTPClient) DetectFaces(ctx context.Context, image []byte) ([]Face, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	var resp detectResponse
	if err := c.post(ctx, "/detect", imageRequest{Image: encode(image)}, &resp); err != nil {
		return nil, err
	}
	return resp.Faces, nil
}

// ReferenceFace calls POST /reference. It returns ErrNoFace when the
// image has no face at position.
func (c *HTTPClient) ReferenceFace(ctx context.Context, image []byte, position int) (Face, error) {
	if len(image) == 0 {
		return Face{}, ErrEmptyImage
	}

	var resp referenceResponse
	if err := c.post(ctx, "/reference", referenceRequest{Image: encode(image), Position: position}, &resp); err != nil {
		return Face{}, err
	}
	if resp.Face == nil {
		return Face{}, fmt.Errorf("%w at position %d", ErrNoFace, position)
	}
	return *resp.Face, nil
}

// Swap calls POST /swap.
func (c *HTTPClient) Swap(ctx context.Context, source, target []byte, opts SwapOptions) ([]byte, error) {
	if len(source) == 0 || len(target) == 0 {
		return nil, ErrEmptyImage
	}

	req := swapRequest{
		Source:      encode(source),
		Target:      encode(target),
		ManyFaces:   opts.ManyFaces,
		Distance:    opts.Distance,
		Threads:     opts.Threads,
		MaxMemoryGB: opts.MaxMemoryGB,
	}
	if !opts.ManyFaces {
		req.Reference = opts.Reference
	}

	var resp imageResponse
	if err := c.post(ctx, "/swap", req, &resp); err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// Enhance calls POST /enhance.
func (c *HTTPClient) Enhance(ctx context.Context, image []byte, threads int) ([]byte, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	var resp imageResponse
	if err := c.post(ctx, "/enhance", imageRequest{Image: encode(image), Threads: threads}, &resp); err != nil {
		return nil, err
	}
	return decodeResult(resp)
}

// ClassifyNSFW calls POST /classify.
func (c *HTTPClient) ClassifyNSFW(ctx context.Context, image []byte) (float64, error) {
	if len(image) == 0 {
		return 0, ErrEmptyImage
	}

	var resp classifyResponse
	if err := c.post(ctx, "/classify", imageRequest{Image: encode(image)}, &resp); err != nil {
		return 0, err
	}
	return resp.NSFW, nil
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeResult(resp imageResponse) ([]byte, error) {
	if resp.Error == noFaceError {
		return nil, ErrNoFace
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	if resp.Image == "" {
		return nil, ErrEmptyResult
	}
	img, err := base64.StdEncoding.DecodeString(resp.Image)
	if err != nil {
		return nil, fmt.Errorf("engine: decode image: %w", err)
	}
	return img, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("engine: marshal %s: %w", path, err)
	}
	return c.call(ctx, http.MethodPost, path, payload, result)
}

// call sends one logical request, retrying transient failures with a
// doubling delay between attempts.
func (c *HTTPClient) call(ctx context.Context, method, path string, payload []byte, result any) error {
	delay := c.baseBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = c.once(ctx, method, c.baseURL+path, payload, result)
		if err == nil || !isRetryable(err) || attempt == c.maxRetries {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("engine: %s %s: %w", method, path, ctx.Err())
		case <-t.C:
		}
		delay *= 2
	}
	if err != nil && isRetryable(err) && c.maxRetries > 0 {
		return fmt.Errorf("engine: gave up after %d retries: %w", c.maxRetries, err)
	}
	return err
}

// maxErrorBody bounds how much of an error response is kept in the error.
const maxErrorBody = 512

func (c *HTTPClient) once(ctx context.Context, method, endpoint string, payload []byte, result any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("engine: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("engine: %w", ctx.Err())
		}
		return &retryableError{err: fmt.Errorf("engine: %s %s: %w", method, endpoint, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("engine: read response: %w", err)}
	}

	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, snippet(data))}
	case code >= 500:
		return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, code, snippet(data))}
	case code < 200 || code >= 300:
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, code, snippet(data))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("engine: decode response: %w", err)
	}
	return nil
}

func snippet(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return string(bytes.TrimSpace(b))
}

// retryableError marks transport failures, 429s and 5xx responses.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

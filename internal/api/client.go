// Package api is the client for the drive index worker. It lists and
// searches folders, renames and deletes files, streams downloads and builds
// download and preview URLs, reporting worker failures as typed errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/driveindex/drive-index/internal/config"
	"github.com/driveindex/drive-index/internal/constants"
	"github.com/driveindex/drive-index/internal/http"
	"github.com/driveindex/drive-index/internal/logging"
	"github.com/driveindex/drive-index/internal/models"
	"github.com/driveindex/drive-index/internal/pathcodec"
	"github.com/driveindex/drive-index/internal/progress"
	"github.com/driveindex/drive-index/internal/ratelimit"
)

// CredentialStore supplies cached folder passwords.
type CredentialStore interface {
	Password(drive int, path string) (string, bool)
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("retry: " + msg)
}

// apiMetrics tracks request volume against the worker
type apiMetrics struct {
	sync.Mutex
	totalCalls    int64
	windowStart   time.Time
	callsInWindow int64
}

// Client talks to the worker's folder, search, mutation and download endpoints.
type Client struct {
	httpClient     *nethttp.Client // retrying: list, search
	mutationClient *nethttp.Client // never retried: rename, delete
	transferClient *nethttp.Client // retrying, no overall timeout: downloads
	config         *config.Config
	baseURL        string
	limiter        *ratelimit.RateLimiter
	credentials    CredentialStore
	logger         *logging.Logger
	metrics        *apiMetrics
}

// Option customizes a Client.
type Option func(*Client)

// WithCredentialStore sets where cached folder passwords are read from.
func WithCredentialStore(store CredentialStore) Option {
	return func(c *Client) { c.credentials = store }
}

// WithLogger sets the logger used for request and retry diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimiter replaces the limiter built from the config.
func WithRateLimiter(limiter *ratelimit.RateLimiter) Option {
	return func(c *Client) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// NewClient creates a new worker client
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("worker base URL is empty: set site.base_url or %s", config.EnvBaseURL)
	}

	c := &Client{
		config:  cfg,
		baseURL: baseURL,
		limiter: ratelimit.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:  logging.NewNopLogger(),
		metrics: &apiMetrics{windowStart: time.Now()},
	}
	for _, opt := range opts {
		opt(c)
	}

	// Configure HTTP client with proxy support
	baseClient, err := http.ConfigureHTTPClient(cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	c.mutationClient = baseClient
	c.httpClient = c.wrapRetry(baseClient)

	transferClient, err := http.CreateTransferClient(cfg, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure transfer client: %w", err)
	}
	c.transferClient = c.wrapRetry(transferClient)

	return c, nil
}

// wrapRetry wraps a client with the retry policy for idempotent requests.
// Exhausted retries pass the last response through so its status is reported.
func (c *Client) wrapRetry(base *nethttp.Client) *nethttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = c.config.MaxRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.CheckRetry = http.CheckRetry
	retryClient.Backoff = http.Backoff
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{logger: c.logger}
	return retryClient.StandardClient()
}

// GetConfig returns the configuration used by this client
func (c *Client) GetConfig() *config.Config {
	return c.config
}

// BaseURL returns the worker origin without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest sends a JSON request to the worker after waiting on the rate limiter.
func (c *Client) doRequest(ctx context.Context, client *nethttp.Client, method, pathname string, body interface{}) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}
	c.trackCall()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+pathname, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", method).Str("path", pathname).Err(err).Msg("request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		cooldown := retryAfter(resp.Header.Get("Retry-After"))
		c.limiter.SetCooldown(cooldown)
		c.logger.Warn().Str("method", method).Str("path", pathname).Dur("cooldown", cooldown).Msg("throttled by worker")
	}

	return resp, nil
}

func (c *Client) trackCall() {
	c.metrics.Lock()
	defer c.metrics.Unlock()

	c.metrics.totalCalls++
	c.metrics.callsInWindow++
	if elapsed := time.Since(c.metrics.windowStart); elapsed >= 30*time.Second {
		c.logger.Debug().
			Float64("req_per_sec", float64(c.metrics.callsInWindow)/elapsed.Seconds()).
			Int64("total", c.metrics.totalCalls).
			Msg("worker request rate")
		c.metrics.callsInWindow = 0
		c.metrics.windowStart = time.Now()
	}
}

// retryAfter parses a Retry-After value in seconds, defaulting to one second.
func retryAfter(v string) time.Duration {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return time.Second
}

// ListOptions selects a page of a folder listing.
type ListOptions struct {
	PageToken string
	PageIndex int
	Password  string
}

// ListFolder fetches one page of a folder. An empty Password falls back to
// the password cached for the folder.
func (c *Client) ListFolder(ctx context.Context, drive int, path string, opts ListOptions) (*models.ListingPage, error) {
	folder := pathcodec.NormalizeFolder(path)

	password := opts.Password
	if password == "" && c.credentials != nil {
		password, _ = c.credentials.Password(drive, folder)
	}

	resp, err := c.doRequest(ctx, c.httpClient, nethttp.MethodPost, pathcodec.Encode(drive, folder), models.FolderRequest{
		Type:      "folder",
		Password:  password,
		PageToken: models.TokenPtr(opts.PageToken),
		PageIndex: opts.PageIndex,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchFailedError{StatusCode: resp.StatusCode}
	}

	var envelope models.ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}
	if envelope.Error != nil && envelope.Error.Code == nethttp.StatusUnauthorized {
		return nil, &PasswordRequiredError{Drive: drive, Path: folder}
	}

	return envelope.Page(), nil
}

// SearchOptions selects a page of search results.
type SearchOptions struct {
	PageToken string
	PageIndex int
}

// SearchFiles runs a search on a drive. A blank query returns an empty page
// without contacting the worker.
func (c *Client) SearchFiles(ctx context.Context, drive int, query string, opts SearchOptions) (*models.ListingPage, error) {
	if strings.TrimSpace(query) == "" {
		return &models.ListingPage{Files: []models.DriveFile{}}, nil
	}

	resp, err := c.doRequest(ctx, c.httpClient, nethttp.MethodPost, actionPath(drive, "search"), models.SearchRequest{
		Query:     query,
		PageToken: models.TokenPtr(opts.PageToken),
		PageIndex: opts.PageIndex,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SearchFailedError{StatusCode: resp.StatusCode}
	}

	var envelope models.ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return envelope.Page(), nil
}

// RenameResult is the worker's acknowledgement of a rename.
type RenameResult struct {
	Name string
}

// RenameFile renames a file by id. Rename is never retried.
func (c *Client) RenameFile(ctx context.Context, drive int, fileID, newName string) (*RenameResult, error) {
	if !validIdentifier(fileID) {
		return nil, ErrMissingIdentifier
	}

	resp, err := c.doRequest(ctx, c.mutationClient, nethttp.MethodPost, actionPath(drive, "rename"), models.RenameRequest{
		ID:   fileID,
		Name: newName,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RenameFailedError{
			StatusCode: resp.StatusCode,
			Message:    failureMessage(data, fmt.Sprintf("Rename failed: %d", resp.StatusCode)),
		}
	}

	result := &RenameResult{Name: newName}
	var ack models.MutationResponse
	if err := json.Unmarshal(data, &ack); err == nil && ack.Name != "" {
		result.Name = ack.Name
	}
	return result, nil
}

// DeleteFile permanently removes a file by id. Delete is never retried.
func (c *Client) DeleteFile(ctx context.Context, drive int, fileID string) error {
	if !validIdentifier(fileID) {
		return ErrMissingIdentifier
	}

	resp, err := c.doRequest(ctx, c.mutationClient, nethttp.MethodPost, actionPath(drive, "delete"), models.DeleteRequest{
		ID: fileID,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeleteFailedError{
			StatusCode: resp.StatusCode,
			Message:    failureMessage(data, fmt.Sprintf("Delete failed: %d", resp.StatusCode)),
		}
	}
	return nil
}

// DownloadURL returns the raw download pathname of a file in folder path.
func DownloadURL(drive int, path, filename string) string {
	return pathcodec.Encode(drive, pathcodec.NormalizeFolder(path)) + pathcodec.EncodeComponent(filename)
}

// PreviewURL returns the preview pathname of a file in folder path.
func PreviewURL(drive int, path, filename string) string {
	return DownloadURL(drive, path, filename) + pathcodec.PreviewQuery
}

// AbsoluteURL joins a pathname onto the worker origin.
func (c *Client) AbsoluteURL(pathname string) string {
	return c.baseURL + pathname
}

// Download streams a file to w and returns the number of bytes written.
func (c *Client) Download(ctx context.Context, drive int, path, filename string, w io.Writer, reporter progress.Reporter) (int64, error) {
	if reporter == nil {
		reporter = progress.NewNoOpProgress()
	}

	resp, err := c.doRequest(ctx, c.transferClient, nethttp.MethodGet, DownloadURL(drive, path, filename), nil)
	if err != nil {
		reporter.Error(err)
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &FetchFailedError{StatusCode: resp.StatusCode}
		reporter.Error(err)
		return 0, err
	}

	reporter.Start(resp.ContentLength, filename)
	n, err := io.Copy(w, progress.NewProgressReader(resp.Body, reporter))
	if err != nil {
		reporter.Error(err)
		return n, fmt.Errorf("download interrupted after %d bytes: %w", n, err)
	}
	reporter.Finish()
	return n, nil
}

// FetchPreviewText reads up to limit bytes of a file for an inline preview.
// Any failure degrades to ("", false); the preview falls back to metadata only.
func (c *Client) FetchPreviewText(ctx context.Context, drive int, path, filename string, limit int64) (string, bool) {
	if limit <= 0 {
		limit = constants.PreviewTextLimit
	}

	resp, err := c.doRequest(ctx, c.httpClient, nethttp.MethodGet, DownloadURL(drive, path, filename), nil)
	if err != nil {
		c.logger.Debug().Err(err).Str("file", filename).Msg("preview content unavailable")
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug().Int("status", resp.StatusCode).Str("file", filename).Msg("preview content unavailable")
		return "", false
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		c.logger.Debug().Err(err).Str("file", filename).Msg("preview content truncated")
		return "", false
	}
	return string(data), true
}

// actionPath builds "/{drive}:{action}" for the worker's non-folder endpoints.
func actionPath(drive int, action string) string {
	if drive < 0 {
		drive = pathcodec.DefaultDrive
	}
	return "/" + strconv.Itoa(drive) + ":" + action
}

func validIdentifier(id string) bool {
	return id != "" && id != models.PlaceholderID
}

// failureMessage returns the "message" field of a JSON error body, or fallback.
func failureMessage(body []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return fallback
}

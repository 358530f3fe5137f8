package tensorart

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"tensorjobs/internal/infra"
)

const defaultBaseURL = "https://ap-east-1.tensorart.cloud"

// Options configures the service client. Nothing is read from globals.
type Options struct {
	BaseURL        string
	APIKey         string
	UploadExpire   time.Duration
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
	// Now overrides the clock used to derive request ids.
	Now func() time.Time
}

// Client performs the HTTP calls of the upload/submit/poll/download cycle.
type Client struct {
	baseURL      string
	apiKey       string
	uploadExpire time.Duration
	httpClient   *http.Client
	logger       *infra.Logger
	now          func() time.Time
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	expire := opts.UploadExpire
	if expire <= 0 {
		expire = time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(opts.APIKey),
		uploadExpire: expire,
		httpClient:   httpClient,
		logger:       logger,
		now:          now,
	}
}

// HasCredentials reports whether the client can perform service calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadImage pushes a local file to the service and returns its handle. The
// file is read before any request is issued, so an unreadable path never
// reaches the network.
func (c *Client) UploadImage(ctx context.Context, path string) (ResourceHandle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ResourceHandle{}, fmt.Errorf("tensorart: read upload source: %w", err)
	}
	if !c.HasCredentials() {
		return ResourceHandle{}, ErrMissingAPIKey
	}

	var target uploadResponse
	req := uploadRequest{ExpireSec: int64(c.uploadExpire / time.Second)}
	if err := c.doJSON(ctx, "request upload", http.MethodPost, "/v1/resource/image", req, &target); err != nil {
		return ResourceHandle{}, err
	}
	if strings.TrimSpace(target.ResourceID) == "" || strings.TrimSpace(target.PutURL) == "" {
		return ResourceHandle{}, &NetworkError{Op: "request upload", StatusCode: http.StatusOK, Body: "missing resourceId or putUrl"}
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, target.PutURL, bytes.NewReader(data))
	if err != nil {
		return ResourceHandle{}, fmt.Errorf("tensorart: build upload request: %w", err)
	}
	// The signed destination authenticates through its own headers.
	for k, v := range target.Headers {
		putReq.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(putReq)
	if err != nil {
		return ResourceHandle{}, &NetworkError{Op: "upload bytes", Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ResourceHandle{}, &NetworkError{Op: "upload bytes", StatusCode: resp.StatusCode, Body: truncate(string(raw), 2000)}
	}

	c.logger.Debug().
		Str("resource_id", target.ResourceID).
		Str("path", path).
		Int("bytes", len(data)).
		Msg("tensorart: uploaded resource")
	return ResourceHandle{ResourceID: target.ResourceID}, nil
}

// Submit creates a job from either a TemplateJob or a StagedJob. It performs
// exactly one request and never retries.
func (c *Client) Submit(ctx context.Context, spec JobSpec) (*Job, error) {
	if spec == nil {
		return nil, errors.New("tensorart: job spec is required")
	}
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	requestID := RequestID(c.now())
	var env jobEnvelope
	if err := c.doJSON(ctx, "submit "+spec.Kind()+" job", http.MethodPost, spec.endpoint(), spec.payload(requestID), &env); err != nil {
		return nil, err
	}
	if env.Job == nil || strings.TrimSpace(env.Job.ID) == "" {
		return nil, &NetworkError{Op: "submit " + spec.Kind() + " job", StatusCode: http.StatusOK, Body: "response carries no job id"}
	}
	env.Job.RequestID = requestID
	c.logger.Info().
		Str("job_id", env.Job.ID).
		Str("request_id", requestID).
		Str("status", string(env.Job.Status)).
		Str("kind", spec.Kind()).
		Msg("tensorart: job submitted")
	return env.Job, nil
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("tensorart: job id is required")
	}
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	var env jobEnvelope
	if err := c.doJSON(ctx, "get job", http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &env); err != nil {
		return nil, err
	}
	if env.Job == nil {
		return nil, &NetworkError{Op: "get job", StatusCode: http.StatusOK, Err: ErrNoJob}
	}
	if env.Job.ID == "" {
		env.Job.ID = jobID
	}
	return env.Job, nil
}

// Download fetches an output image. The URL is public, so no credentials are
// attached. The second return value is the reported content type.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", &DownloadError{URL: imageURL, Err: fmt.Errorf("invalid url")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", &DownloadError{URL: imageURL, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &DownloadError{URL: imageURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", &DownloadError{URL: imageURL, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &DownloadError{URL: imageURL, StatusCode: resp.StatusCode, Err: err}
	}
	format := resp.Header.Get("Content-Type")
	if format == "" {
		format = "image/png"
	}
	return data, format, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("tensorart: encode %s: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("tensorart: build %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)), 2000)}
	}
	c.logger.Trace().Str("op", op).RawJSON("response", compactJSON(raw)).Msg("tensorart: response")
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(raw), 1000), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// RequestID derives the idempotency token sent with a submission: the md5 hex
// digest of the unix-seconds timestamp.
func RequestID(now time.Time) string {
	sum := md5.Sum([]byte(strconv.FormatInt(now.Unix(), 10)))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func compactJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		quoted, _ := json.Marshal(truncate(string(raw), 1000))
		return quoted
	}
	return buf.Bytes()
}

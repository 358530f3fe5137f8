package tensorart

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("tensorart: api key is required")

// ErrNoJob marks a status response without a job object. Pollers treat it as
// "not ready yet".
var ErrNoJob = errors.New("response carries no job")

// NetworkError covers transport failures and non-2xx responses of service calls.
type NetworkError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tensorart: %s: %v", e.Op, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("tensorart: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("tensorart: %s: status %d", e.Op, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call may succeed.
func (e *NetworkError) Transient() bool {
	if e.Err != nil {
		return isRetryableError(e.Err)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// JobFailedError is returned when the service reports FAILED for a job.
type JobFailedError struct {
	JobID  string
	Status JobStatus
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("tensorart: job %s finished with status %s", e.JobID, e.Status)
}

// DownloadError is returned when an output image cannot be fetched.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tensorart: download %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("tensorart: download %s: status %d", e.URL, e.StatusCode)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// TimeoutError is returned when polling gives up before a terminal status.
type TimeoutError struct {
	JobID      string
	Attempts   int
	Elapsed    time.Duration
	LastStatus JobStatus
}

func (e *TimeoutError) Error() string {
	last := string(e.LastStatus)
	if last == "" {
		last = "unknown"
	}
	return fmt.Sprintf("tensorart: job %s not finished after %d polls (%s), last status %s",
		e.JobID, e.Attempts, e.Elapsed.Round(time.Millisecond), last)
}

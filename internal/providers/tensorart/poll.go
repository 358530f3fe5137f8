package tensorart

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"tensorjobs/internal/infra"
)

// PollPolicy bounds how a job is waited on. Interval is the first delay and
// doubles on every attempt up to MaxInterval. MaxAttempts and Timeout cap the
// whole wait; zero disables the respective bound.
type PollPolicy struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// DefaultPollPolicy starts at the service's customary one second.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		MaxInterval: 8 * time.Second,
		MaxAttempts: 300,
		Timeout:     15 * time.Minute,
	}
}

// Delay returns the wait before the given zero-based attempt.
func (p PollPolicy) Delay(attempt int) time.Duration {
	base := p.Interval
	if base <= 0 {
		base = time.Second
	}
	limit := p.MaxInterval
	if limit < base {
		limit = base
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return limit
	}
	d := base << attempt
	if d <= 0 || d > limit {
		return limit
	}
	return d
}

type jobGetter interface {
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// Poller waits for jobs to reach a terminal status.
type Poller struct {
	client jobGetter
	policy PollPolicy
	logger *infra.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewPoller wires a status source with a policy. A nil logger discards output.
func NewPoller(client jobGetter, policy PollPolicy, logger *infra.Logger) *Poller {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Poller{
		client: client,
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

// Policy returns the configured policy.
func (p *Poller) Policy() PollPolicy {
	return p.policy
}

// Wait queries the job until it is SUCCESS or FAILED, always by the same id.
// It sleeps before every query. A response without a job counts as still
// pending and uses up an attempt. SUCCESS returns the job; FAILED returns the
// job together with a *JobFailedError. Running out of attempts or time yields
// a *TimeoutError; cancelling ctx returns the context error.
func (p *Poller) Wait(ctx context.Context, jobID string) (*Job, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("tensorart: poller not configured")
	}
	parent := ctx
	if p.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.policy.Timeout)
		defer cancel()
	}

	start := p.now()
	var last JobStatus
	timeout := func(attempts int) error {
		return &TimeoutError{JobID: jobID, Attempts: attempts, Elapsed: p.now().Sub(start), LastStatus: last}
	}

	for attempt := 0; ; attempt++ {
		if p.policy.MaxAttempts > 0 && attempt >= p.policy.MaxAttempts {
			return nil, timeout(attempt)
		}
		if err := p.sleep(ctx, p.policy.Delay(attempt)); err != nil {
			if parent.Err() != nil {
				return nil, parent.Err()
			}
			return nil, timeout(attempt)
		}

		job, err := p.client.GetJob(ctx, jobID)
		if err != nil {
			if parent.Err() != nil {
				return nil, parent.Err()
			}
			if ctx.Err() != nil {
				return nil, timeout(attempt + 1)
			}
			if errors.Is(err, ErrNoJob) {
				p.logger.Debug().Str("job_id", jobID).Int("attempt", attempt+1).Msg("tensorart: status response without job, still waiting")
				continue
			}
			var netErr *NetworkError
			if errors.As(err, &netErr) && netErr.Transient() {
				p.logger.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt+1).Msg("tensorart: status query failed, retrying")
				continue
			}
			return nil, err
		}

		last = job.Status
		p.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Int("attempt", attempt+1).Msg("tensorart: job status")
		switch job.Status {
		case StatusSuccess:
			return job, nil
		case StatusFailed:
			return job, &JobFailedError{JobID: jobID, Status: job.Status}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isRetryableError returns true for transient network failures and timeouts.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") || strings.Contains(s, "connection reset") || strings.Contains(s, "eof")
}

// Package scan implements the asynchronous scan-job lifecycle: submitting
// scans to the backend, polling their status at a bounded cadence, and
// settling terminal states exactly once. A Poller owns one poll session;
// the Orchestrator owns at most one Poller at a time.
package scan

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/errors"
	"github.com/sentinelsec/sentinel/internal/logging"
	"github.com/sentinelsec/sentinel/internal/metrics"
)

// FetchFunc retrieves the current status of a scan job.
type FetchFunc func(ctx context.Context, jobID string) (*client.ScanJob, error)

// PollCallbacks receive the outcome of each status fetch. OnTerminal fires
// exactly once, after which no further fetches are issued for the job.
// OnError receives transient fetch errors that do not stop the session;
// OnFatal receives the single error that ends a session after the
// consecutive-error bound is exceeded.
type PollCallbacks struct {
	OnUpdate   func(job *client.ScanJob)
	OnTerminal func(job *client.ScanJob)
	OnError    func(err error)
	OnFatal    func(err error)
}

// Poller drives repeated status fetches for one scan job until the job
// reaches a terminal state or the session is cancelled. Ticks are
// serialized: a new fetch is never issued while the previous response is
// outstanding. A response that resolves after Cancel is discarded without
// invoking any callback.
type Poller struct {
	jobID     string
	interval  time.Duration
	maxErrors int
	fetch     FetchFunc
	callbacks PollCallbacks
	logger    *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	started   bool
	stopped   bool // cancelled or terminal; no callback may fire once set
	consecErr int
}

// NewPoller creates a poll session bound to one job id. The session does
// not issue any fetches until Start is called.
func NewPoller(jobID string, interval time.Duration, maxErrors int, fetch FetchFunc, cb PollCallbacks) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		jobID:     jobID,
		interval:  interval,
		maxErrors: maxErrors,
		fetch:     fetch,
		callbacks: cb,
		logger:    logging.Default().WithComponent("poller").WithScanID(jobID),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start begins the poll loop. Calling Start more than once has no effect.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	metrics.Global().SessionStarted()
	go p.run()
}

// Cancel stops the session immediately. An in-flight fetch is interrupted
// through context cancellation and its eventual response, if any, is
// discarded. Cancel is idempotent and safe to call from any goroutine.
func (p *Poller) Cancel() {
	p.mu.Lock()
	already := p.stopped
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	if !already {
		p.logger.Debug("Poll session cancelled")
	}
}

// Done is closed when the poll loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// JobID returns the job id the session is bound to.
func (p *Poller) JobID() string {
	return p.jobID
}

func (p *Poller) run() {
	defer close(p.done)
	defer metrics.Global().SessionStopped()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		}

		// Fetch inline so ticks are serialized: the next tick cannot
		// start until this response has resolved and been handled.
		job, err := p.fetch(p.ctx, p.jobID)
		if !p.handleResponse(job, err) {
			return
		}
	}
}

// handleResponse applies one fetch outcome and reports whether the loop
// should keep going. Staleness is checked here, at the response-handling
// site, because a response can resolve after Cancel already happened.
func (p *Poller) handleResponse(job *client.ScanJob, err error) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		// A fetch that was merely interrupted by our own cancellation is
		// not a stale backend response; only count responses that actually
		// resolved after the session stopped.
		if job != nil || (err != nil && !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded)) {
			metrics.IncrementStaleDiscarded()
		}
		return false
	}

	if err != nil {
		p.consecErr++
		expired := p.consecErr >= p.maxErrors
		if expired {
			p.stopped = true
		}
		attempts := p.consecErr
		p.mu.Unlock()

		metrics.IncrementPollTicks("error")
		if expired {
			metrics.Global().IncrementPollFatals()
			p.cancel()
			p.logger.ErrorScan("Status polling gave up", p.jobID, err,
				"consecutive_errors", attempts)
			if p.callbacks.OnFatal != nil {
				p.callbacks.OnFatal(errors.ErrPollExpired(p.jobID, attempts, err))
			}
			return false
		}

		p.logger.Warn("Status fetch failed, will retry",
			"scan_id", p.jobID, "consecutive_errors", attempts, "error", err)
		if p.callbacks.OnError != nil {
			p.callbacks.OnError(err)
		}
		return true
	}

	p.consecErr = 0
	terminal := job.Status.IsTerminal()
	if terminal {
		p.stopped = true
	}
	p.mu.Unlock()

	metrics.IncrementPollTicks("ok")
	if terminal {
		p.cancel()
		p.logger.InfoScan("Scan reached terminal state", p.jobID,
			"status", job.Status)
		if p.callbacks.OnTerminal != nil {
			p.callbacks.OnTerminal(job)
		}
		return false
	}

	if p.callbacks.OnUpdate != nil {
		p.callbacks.OnUpdate(job)
	}
	return true
}

package scan

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/errors"
	"github.com/sentinelsec/sentinel/internal/logging"
	"github.com/sentinelsec/sentinel/internal/metrics"
)

// State is the orchestrator lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Backend is the slice of the API client the orchestrator needs.
type Backend interface {
	CreateScan(ctx context.Context, req client.ScanRequest) (*client.ScanJob, error)
	GetScan(ctx context.Context, id string) (*client.ScanJob, error)
}

// Hooks receive orchestrator events. All hooks are optional. RefreshDevices
// and RefreshHistory are the one-shot dependent refreshes fired on terminal
// states; they are fire-and-forget and never retried by the orchestrator.
type Hooks struct {
	OnUpdate       func(job *client.ScanJob)
	OnSettled      func(job *client.ScanJob)
	OnError        func(err error)
	RefreshDevices func(ctx context.Context)
	RefreshHistory func(ctx context.Context)
}

// Config holds orchestrator settings.
type Config struct {
	PollInterval         time.Duration
	MaxConsecutiveErrors int
	RefreshTimeout       time.Duration
}

// DefaultConfig returns default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:         2 * time.Second,
		MaxConsecutiveErrors: 5,
		RefreshTimeout:       30 * time.Second,
	}
}

// Orchestrator owns zero-or-one active scan job at a time. It validates
// and submits scans, owns the job's poll session, and fires the dependent
// refreshes exactly once when a job settles. Starting a new scan while one
// is polling cancels the old session first; late responses from the old
// session never touch the new job (last-writer-wins).
type Orchestrator struct {
	backend Backend
	config  Config
	hooks   Hooks
	logger  *logging.Logger

	mu      sync.Mutex
	state   State
	current *client.ScanJob
	poller  *Poller
	gen     uint64 // session generation; bumped on every StartScan and Stop
}

// NewOrchestrator creates an orchestrator in the idle state.
func NewOrchestrator(backend Backend, config Config, hooks Hooks) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		config:  config,
		hooks:   hooks,
		logger:  logging.Default().WithComponent("orchestrator"),
		state:   StateIdle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Current returns a copy of the current job handle, or nil when idle.
func (o *Orchestrator) Current() *client.ScanJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return nil
	}
	job := *o.current
	return &job
}

// IsScanning reports whether a scan is being submitted or polled.
// Consumers use it to block re-submission.
func (o *Orchestrator) IsScanning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateSubmitting || o.state == StatePolling
}

// StartScan validates the request, submits it to the backend, and begins
// polling the returned job. An empty or whitespace target, or an unknown
// scan kind, fails with a validation error before any network call. A
// backend rejection fails with a submission error and resets to idle.
func (o *Orchestrator) StartScan(ctx context.Context, kind client.ScanType, target string) (*client.ScanJob, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.ErrEmptyTarget()
	}
	if !kind.Valid() {
		return nil, errors.ErrUnknownScanType(string(kind))
	}

	o.mu.Lock()
	if o.poller != nil {
		o.poller.Cancel()
		o.poller = nil
	}
	o.gen++
	gen := o.gen
	o.state = StateSubmitting
	o.current = nil
	o.mu.Unlock()

	o.logger.Info("Submitting scan", "scan_type", kind, "target", target)

	job, err := o.backend.CreateScan(ctx, client.ScanRequest{
		ScanType: kind,
		Target:   target,
	})

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		// Superseded by a newer StartScan or Stop while the create call
		// was in flight; the newer writer wins.
		return nil, errors.NewScanError(errors.CodeCanceled,
			"scan submission superseded", "")
	}

	if err != nil {
		o.state = StateIdle
		o.mu.Unlock()
		metrics.Global().SetActiveScans(0)
		metrics.IncrementScansTotal(string(kind), "submit_error")
		o.logger.Error("Scan submission rejected",
			"scan_type", kind, "target", target, "error", err)
		return nil, errors.WrapSubmissionError("backend rejected scan request", target, err)
	}

	o.current = job
	o.state = StatePolling
	poller := NewPoller(job.ID, o.config.PollInterval, o.config.MaxConsecutiveErrors,
		o.backend.GetScan, PollCallbacks{
			OnUpdate:   func(j *client.ScanJob) { o.applyUpdate(gen, j) },
			OnTerminal: func(j *client.ScanJob) { o.settle(gen, j) },
			OnError:    o.reportTransient,
			OnFatal:    func(err error) { o.fail(gen, err) },
		})
	o.poller = poller
	o.mu.Unlock()

	metrics.Global().SetActiveScans(1)
	o.logger.InfoScan("Scan accepted, polling for status", job.ID,
		"scan_type", kind, "target", target, "interval", o.config.PollInterval)
	poller.Start()

	returned := *job
	return &returned, nil
}

// Stop abandons any active session, cancelling its poll scheduler and
// dereferencing the current job. Called when the consuming view stops
// observing.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.poller != nil {
		o.poller.Cancel()
		o.poller = nil
	}
	o.gen++
	o.state = StateIdle
	o.current = nil
	o.mu.Unlock()

	metrics.Global().SetActiveScans(0)
}

// applyUpdate stores a non-terminal status report for the current session.
func (o *Orchestrator) applyUpdate(gen uint64, job *client.ScanJob) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	// A terminal handle never regresses, even if the backend reports an
	// earlier state out of order.
	if o.current != nil && o.current.Status.IsTerminal() {
		o.mu.Unlock()
		return
	}
	o.current = job
	o.mu.Unlock()

	if o.hooks.OnUpdate != nil {
		o.hooks.OnUpdate(job)
	}
}

// settle records a terminal status exactly once and fires the dependent
// refreshes: the scan-history refresh for every terminal state, and the
// device-list refresh when a discovery scan completed.
func (o *Orchestrator) settle(gen uint64, job *client.ScanJob) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.current = job
	o.poller = nil
	if job.Status == client.ScanStatusCompleted {
		o.state = StateCompleted
	} else {
		o.state = StateFailed
	}
	o.mu.Unlock()

	metrics.Global().SetActiveScans(0)
	metrics.IncrementScansTotal(string(job.ScanType), string(job.Status))
	if job.DurationSeconds > 0 {
		metrics.RecordScanDuration(string(job.ScanType),
			time.Duration(job.DurationSeconds*float64(time.Second)))
	}
	o.logger.InfoScan("Scan settled", job.ID,
		"status", job.Status,
		"devices_discovered", job.DevicesDiscovered,
		"duration_seconds", job.DurationSeconds)

	if o.hooks.OnSettled != nil {
		o.hooks.OnSettled(job)
	}

	if job.ScanType == client.ScanTypeDiscovery && job.Status == client.ScanStatusCompleted {
		o.fireRefresh(o.hooks.RefreshDevices)
	}
	o.fireRefresh(o.hooks.RefreshHistory)
}

// fail ends the current session after polling exceeded its error bound.
func (o *Orchestrator) fail(gen uint64, err error) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.poller = nil
	o.state = StateFailed
	o.mu.Unlock()

	metrics.Global().SetActiveScans(0)
	o.logger.Error("Scan polling failed", "error", err)
	if o.hooks.OnError != nil {
		o.hooks.OnError(err)
	}
}

func (o *Orchestrator) reportTransient(err error) {
	if o.hooks.OnError != nil {
		o.hooks.OnError(err)
	}
}

// fireRefresh runs a one-shot refresh in its own goroutine with a bounded
// context. Refresh failures are the refresher's to report; the orchestrator
// does not retry.
func (o *Orchestrator) fireRefresh(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.config.RefreshTimeout)
		defer cancel()
		fn(ctx)
	}()
}

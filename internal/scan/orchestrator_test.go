package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/errors"
	"github.com/sentinelsec/sentinel/internal/metrics"
)

// fakeBackend scripts CreateScan and GetScan responses per job.
type fakeBackend struct {
	mu          sync.Mutex
	nextID      int
	createErr   error
	createGate  chan struct{}
	statusByJob map[string][]client.ScanStatus
	getCalls    map[string]int
	createCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		statusByJob: make(map[string][]client.ScanStatus),
		getCalls:    make(map[string]int),
	}
}

func (b *fakeBackend) script(id string, statuses ...client.ScanStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusByJob[id] = statuses
}

func (b *fakeBackend) CreateScan(ctx context.Context, req client.ScanRequest) (*client.ScanJob, error) {
	b.mu.Lock()
	b.createCalls++
	gate := b.createGate
	err := b.createErr
	b.nextID++
	id := fmt.Sprintf("scan-%d", b.nextID)
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &client.ScanJob{
		ID:       id,
		ScanType: req.ScanType,
		Target:   req.Target,
		Status:   client.ScanStatusPending,
	}, nil
}

func (b *fakeBackend) GetScan(ctx context.Context, id string) (*client.ScanJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	script, ok := b.statusByJob[id]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", id)
	}
	i := b.getCalls[id]
	b.getCalls[id]++
	if i >= len(script) {
		i = len(script) - 1
	}
	job := &client.ScanJob{
		ID:       id,
		ScanType: client.ScanTypeDiscovery,
		Target:   "10.0.0.0/24",
		Status:   script[i],
	}
	if job.Status == client.ScanStatusCompleted {
		job.DevicesDiscovered = 4
		job.DurationSeconds = 1.5
	}
	return job, nil
}

func (b *fakeBackend) created() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createCalls
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RefreshTimeout = time.Second
	return cfg
}

func TestStartScanValidation(t *testing.T) {
	backend := newFakeBackend()
	orch := NewOrchestrator(backend, testConfig(), Hooks{})
	defer orch.Stop()

	tests := []struct {
		name   string
		kind   client.ScanType
		target string
	}{
		{"empty target", client.ScanTypeDiscovery, ""},
		{"whitespace target", client.ScanTypeDiscovery, "   "},
		{"unknown scan type", client.ScanType("smb_scan"), "10.0.0.1"},
		{"empty scan type", client.ScanType(""), "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := orch.StartScan(context.Background(), tt.kind, tt.target)
			assert.Nil(t, job)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}

	assert.Equal(t, 0, backend.created(),
		"validation failures must not reach the backend")
	assert.Equal(t, StateIdle, orch.State())
}

func TestStartScanSubmissionError(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = fmt.Errorf("503 service unavailable")

	var hookErrs atomic.Int64
	orch := NewOrchestrator(backend, testConfig(), Hooks{
		OnError: func(error) { hookErrs.Add(1) },
	})
	defer orch.Stop()

	job, err := orch.StartScan(context.Background(), client.ScanTypePortScan, "10.0.0.5")
	assert.Nil(t, job)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeSubmission))
	assert.Equal(t, StateIdle, orch.State())
	assert.Nil(t, orch.Current())
}

func TestScanLifecycleToCompletion(t *testing.T) {
	backend := newFakeBackend()
	backend.script("scan-1",
		client.ScanStatusPending,
		client.ScanStatusRunning,
		client.ScanStatusCompleted,
	)

	settled := make(chan *client.ScanJob, 1)
	deviceRefresh := make(chan struct{}, 4)
	historyRefresh := make(chan struct{}, 4)

	orch := NewOrchestrator(backend, testConfig(), Hooks{
		OnSettled:      func(j *client.ScanJob) { settled <- j },
		RefreshDevices: func(context.Context) { deviceRefresh <- struct{}{} },
		RefreshHistory: func(context.Context) { historyRefresh <- struct{}{} },
	})
	defer orch.Stop()

	job, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", job.ID)
	assert.True(t, orch.IsScanning())

	var final *client.ScanJob
	select {
	case final = <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not settle")
	}

	assert.Equal(t, client.ScanStatusCompleted, final.Status)
	assert.Equal(t, 4, final.DevicesDiscovered)
	assert.Equal(t, StateCompleted, orch.State())
	assert.False(t, orch.IsScanning())

	// Discovery completion fires exactly one device refresh and one
	// history refresh.
	select {
	case <-deviceRefresh:
	case <-time.After(time.Second):
		t.Fatal("device refresh never fired")
	}
	select {
	case <-historyRefresh:
	case <-time.After(time.Second):
		t.Fatal("history refresh never fired")
	}
	select {
	case <-deviceRefresh:
		t.Fatal("device refresh fired more than once")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFailedScanSkipsDeviceRefresh(t *testing.T) {
	backend := newFakeBackend()
	backend.script("scan-1", client.ScanStatusRunning, client.ScanStatusFailed)

	settled := make(chan *client.ScanJob, 1)
	deviceRefresh := make(chan struct{}, 1)
	historyRefresh := make(chan struct{}, 1)

	orch := NewOrchestrator(backend, testConfig(), Hooks{
		OnSettled:      func(j *client.ScanJob) { settled <- j },
		RefreshDevices: func(context.Context) { deviceRefresh <- struct{}{} },
		RefreshHistory: func(context.Context) { historyRefresh <- struct{}{} },
	})
	defer orch.Stop()

	_, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.0.0/24")
	require.NoError(t, err)

	select {
	case final := <-settled:
		assert.Equal(t, client.ScanStatusFailed, final.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not settle")
	}
	assert.Equal(t, StateFailed, orch.State())

	// History refreshes on any terminal state; devices only on a
	// completed discovery.
	select {
	case <-historyRefresh:
	case <-time.After(time.Second):
		t.Fatal("history refresh never fired")
	}
	select {
	case <-deviceRefresh:
		t.Fatal("device refresh must not fire for a failed scan")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartScanSupersedesActiveSession(t *testing.T) {
	backend := newFakeBackend()
	backend.script("scan-1", client.ScanStatusRunning)
	backend.script("scan-2",
		client.ScanStatusRunning,
		client.ScanStatusCompleted,
	)

	var mu sync.Mutex
	var settledIDs []string
	orch := NewOrchestrator(backend, testConfig(), Hooks{
		OnSettled: func(j *client.ScanJob) {
			mu.Lock()
			settledIDs = append(settledIDs, j.ID)
			mu.Unlock()
		},
	})
	defer orch.Stop()

	first, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.0.0/24")
	require.NoError(t, err)
	require.Equal(t, "scan-1", first.ID)

	second, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.1.0/24")
	require.NoError(t, err)
	require.Equal(t, "scan-2", second.ID)

	require.Eventually(t, func() bool {
		return orch.State() == StateCompleted
	}, 2*time.Second, time.Millisecond)

	current := orch.Current()
	require.NotNil(t, current)
	assert.Equal(t, "scan-2", current.ID, "last writer wins")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"scan-2"}, settledIDs,
		"the superseded session must not settle")
}

func TestStopAbandonsSession(t *testing.T) {
	backend := newFakeBackend()
	backend.script("scan-1", client.ScanStatusRunning)

	var updates atomic.Int64
	orch := NewOrchestrator(backend, testConfig(), Hooks{
		OnUpdate: func(*client.ScanJob) { updates.Add(1) },
	})

	_, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.0.0/24")
	require.NoError(t, err)

	orch.Stop()
	assert.Equal(t, StateIdle, orch.State())
	assert.Nil(t, orch.Current())

	// Any response still in flight at Stop must not surface afterwards.
	before := updates.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, updates.Load())
}

func activeScansGauge(t *testing.T) float64 {
	t.Helper()
	families, err := metrics.Global().Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "sentinel_scan_active" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestActiveScanGaugeTracksSession(t *testing.T) {
	t.Run("raised while polling, cleared by stop", func(t *testing.T) {
		backend := newFakeBackend()
		backend.script("scan-1", client.ScanStatusRunning)

		orch := NewOrchestrator(backend, testConfig(), Hooks{})
		_, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.0.0/24")
		require.NoError(t, err)
		assert.Equal(t, float64(1), activeScansGauge(t))

		orch.Stop()
		assert.Equal(t, float64(0), activeScansGauge(t))
	})

	t.Run("cleared when the scan settles", func(t *testing.T) {
		backend := newFakeBackend()
		backend.script("scan-1", client.ScanStatusRunning, client.ScanStatusCompleted)

		orch := NewOrchestrator(backend, testConfig(), Hooks{})
		defer orch.Stop()

		_, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.0.0/24")
		require.NoError(t, err)

		require.Eventually(t, func() bool { return activeScansGauge(t) == 0 },
			2*time.Second, time.Millisecond)
		assert.Equal(t, StateCompleted, orch.State())
	})
}

func TestPollingFatalFailsSession(t *testing.T) {
	backend := newFakeBackend()
	// No script for scan-1: every GetScan errors.

	errCh := make(chan error, 8)
	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 2
	orch := NewOrchestrator(backend, cfg, Hooks{
		OnError: func(err error) { errCh <- err },
	})
	defer orch.Stop()

	_, err := orch.StartScan(context.Background(), client.ScanTypeDiscovery, "10.0.0.0/24")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return orch.State() == StateFailed
	}, 2*time.Second, time.Millisecond)

	var sawFatal bool
	for done := false; !done; {
		select {
		case err := <-errCh:
			if errors.IsCode(err, errors.CodePollExpired) {
				sawFatal = true
			}
		default:
			done = true
		}
	}
	assert.True(t, sawFatal, "the terminal error must carry the poll-expired code")
}

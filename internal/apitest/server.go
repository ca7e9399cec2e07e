// Package apitest provides an in-process fake of the SentinelSecure
// backend API for tests. Scan status sequences are scripted per job so
// polling behavior (pending→running→terminal, transient failures, slow
// responses) can be exercised deterministically.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/sentinelsec/sentinel/internal/client"
	"github.com/sentinelsec/sentinel/internal/config"
)

// ScanScript describes the status sequence one created scan walks through.
// Each GET of the scan advances one step; the last step repeats. Result is
// merged into the job once a terminal step is reached.
type ScanScript struct {
	Statuses []client.ScanStatus
	Result   client.ScanJob
}

// Server is a fake backend API server.
type Server struct {
	httpServer *httptest.Server

	mu          sync.Mutex
	scans       map[string]*scanState
	scanOrder   []string
	devices     []client.Device
	alerts      []client.Alert
	nextScripts []ScanScript

	failCreateScan  int
	failScanFetches int
	fetchDelay      time.Duration

	createScanCalls int
	listScanCalls   int
	listDeviceCalls int
	listAlertCalls  int
	getScanCalls    map[string]int
	resolveCalls    map[string]int
}

type scanState struct {
	job    client.ScanJob
	script ScanScript
	step   int
}

// NewServer starts a fake backend. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		scans:        make(map[string]*scanState),
		getScanCalls: make(map[string]int),
		resolveCalls: make(map[string]int),
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.handleCreateDevice).Methods(http.MethodPost)
	api.HandleFunc("/scans", s.handleListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans", s.handleCreateScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/{id}", s.handleGetScan).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleCreateAlert).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}/resolve", s.handleResolveAlert).Methods(http.MethodPatch)

	s.httpServer = httptest.NewServer(handlers.RecoveryHandler()(router))
	return s
}

// Close shuts the fake backend down.
func (s *Server) Close() {
	s.httpServer.Close()
}

// URL returns the API root endpoint, including the /api prefix.
func (s *Server) URL() string {
	return s.httpServer.URL + "/api"
}

// Config returns a configuration pointed at the fake backend with
// intervals suitable for tests.
func (s *Server) Config() *config.Config {
	cfg := config.Default()
	cfg.Backend.Endpoint = s.URL()
	cfg.Backend.RequestTimeout = 5 * time.Second
	cfg.Polling.Interval = 10 * time.Millisecond
	return cfg
}

// Client returns an API client pointed at the fake backend.
func (s *Server) Client() *client.Client {
	return client.New(s.Config())
}

// ScriptNextScan queues the status sequence for the next created scan.
func (s *Server) ScriptNextScan(script ScanScript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextScripts = append(s.nextScripts, script)
}

// FailNextCreateScan makes the next n scan creations return 500.
func (s *Server) FailNextCreateScan(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreateScan = n
}

// FailScanFetches makes the next n scan status fetches return 500.
func (s *Server) FailScanFetches(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failScanFetches = n
}

// SetFetchDelay delays every scan status fetch by d.
func (s *Server) SetFetchDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchDelay = d
}

// SeedDevice adds a device record.
func (s *Server) SeedDevice(d client.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, d)
}

// SeedAlert adds an alert record.
func (s *Server) SeedAlert(a client.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

// GetScanCalls returns how many status fetches were issued for a job id.
func (s *Server) GetScanCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getScanCalls[id]
}

// ResolveCalls returns how many resolve calls were issued for an alert id.
func (s *Server) ResolveCalls(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveCalls[id]
}

// ListDeviceCalls returns how many device list requests were served.
func (s *Server) ListDeviceCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listDeviceCalls
}

// ListScanCalls returns how many scan list requests were served.
func (s *Server) ListScanCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listScanCalls
}

// ListAlertCalls returns how many alert list requests were served.
func (s *Server) ListAlertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAlertCalls
}

// Handlers

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, client.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	stats := client.DashboardStats{
		TotalDevices: len(s.devices),
		TotalAlerts:  len(s.alerts),
		ScansToday:   len(s.scanOrder),
	}
	for _, d := range s.devices {
		if d.IsActive {
			stats.ActiveDevices++
		}
	}
	for _, a := range s.alerts {
		if !a.IsResolved {
			stats.UnresolvedAlerts++
		}
		if a.ThreatLevel == client.ThreatLevelCritical {
			stats.CriticalVulnerabilities++
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.listDeviceCalls++
	devices := append([]client.Device(nil), s.devices...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var draft client.DeviceCreate
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid device payload")
		return
	}
	device := client.Device{
		ID:         uuid.NewString(),
		IPAddress:  draft.IPAddress,
		MACAddress: draft.MACAddress,
		Hostname:   draft.Hostname,
		DeviceType: draft.DeviceType,
		IsActive:   true,
		LastSeen:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.devices = append(s.devices, device)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleListScans(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.listScanCalls++
	scans := make([]client.ScanJob, 0, len(s.scanOrder))
	for i := len(s.scanOrder) - 1; i >= 0; i-- {
		scans = append(scans, s.scans[s.scanOrder[i]].job)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	var req client.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid scan request")
		return
	}

	s.mu.Lock()
	s.createScanCalls++
	if s.failCreateScan > 0 {
		s.failCreateScan--
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "failed to create scan")
		return
	}

	script := ScanScript{Statuses: []client.ScanStatus{client.ScanStatusCompleted}}
	if len(s.nextScripts) > 0 {
		script = s.nextScripts[0]
		s.nextScripts = s.nextScripts[1:]
	}

	job := client.ScanJob{
		ID:        uuid.NewString(),
		ScanType:  req.ScanType,
		Target:    req.Target,
		Status:    client.ScanStatusPending,
		StartedAt: time.Now().UTC(),
	}
	s.scans[job.ID] = &scanState{job: job, script: script}
	s.scanOrder = append(s.scanOrder, job.ID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	s.getScanCalls[id]++
	delay := s.fetchDelay
	if s.failScanFetches > 0 {
		s.failScanFetches--
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}
		writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}

	state, ok := s.scans[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}

	status := state.script.Statuses[state.step]
	if state.step < len(state.script.Statuses)-1 {
		state.step++
	}
	state.job.Status = status
	if status.IsTerminal() {
		res := state.script.Result
		state.job.DevicesDiscovered = res.DevicesDiscovered
		state.job.VulnerabilitiesFound = res.VulnerabilitiesFound
		state.job.DurationSeconds = res.DurationSeconds
		state.job.AISummary = res.AISummary
		state.job.ErrorMessage = res.ErrorMessage
		if state.job.CompletedAt == nil {
			now := time.Now().UTC()
			state.job.CompletedAt = &now
		}
	}
	job := state.job
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	unresolvedOnly := r.URL.Query().Get("unresolved_only") == "true"

	s.mu.Lock()
	s.listAlertCalls++
	alerts := make([]client.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if unresolvedOnly && a.IsResolved {
			continue
		}
		alerts = append(alerts, a)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var draft client.AlertCreate
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid alert payload")
		return
	}
	if draft.Title == "" || draft.Description == "" {
		writeError(w, http.StatusUnprocessableEntity, "title and description are required")
		return
	}
	alert := client.Alert{
		ID:               uuid.NewString(),
		Title:            draft.Title,
		Description:      draft.Description,
		ThreatLevel:      draft.ThreatLevel,
		SourceIP:         draft.SourceIP,
		TargetIP:         draft.TargetIP,
		AttackType:       draft.AttackType,
		DetectedAt:       time.Now().UTC(),
		AIRecommendation: "Review the affected host and isolate if necessary",
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	s.resolveCalls[id]++
	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		if !s.alerts[i].IsResolved {
			now := time.Now().UTC()
			s.alerts[i].IsResolved = true
			s.alerts[i].ResolvedAt = &now
		}
		alert := s.alerts[i]
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, alert)
		return
	}
	s.mu.Unlock()
	writeError(w, http.StatusNotFound, "Alert not found")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

package client

import "time"

// ScanType identifies the kind of scan the backend should run.
type ScanType string

const (
	ScanTypeDiscovery     ScanType = "network_discovery"
	ScanTypePortScan      ScanType = "port_scan"
	ScanTypeVulnerability ScanType = "vulnerability_scan"
)

// SupportedScanTypes lists the scan kinds the orchestrator accepts.
var SupportedScanTypes = []ScanType{
	ScanTypeDiscovery,
	ScanTypePortScan,
	ScanTypeVulnerability,
}

// Valid reports whether the scan type is one the orchestrator accepts.
func (t ScanType) Valid() bool {
	for _, s := range SupportedScanTypes {
		if t == s {
			return true
		}
	}
	return false
}

// ScanStatus is the backend-reported lifecycle state of a scan job.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// IsTerminal reports whether no further status transitions occur.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// ScanJob is the tracked identity and status of one scan invocation.
// The id is assigned by the backend at creation and never changes; result
// fields are meaningful only once the status is terminal.
type ScanJob struct {
	ID                   string     `json:"id"`
	ScanType             ScanType   `json:"scan_type"`
	Target               string     `json:"target"`
	Status               ScanStatus `json:"status"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	DurationSeconds      float64    `json:"duration_seconds,omitempty"`
	DevicesDiscovered    int        `json:"devices_discovered"`
	VulnerabilitiesFound int        `json:"vulnerabilities_found"`
	PortsScanned         int        `json:"ports_scanned"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	AISummary            string     `json:"ai_summary,omitempty"`
}

// ScanRequest is the payload for creating a new scan job.
type ScanRequest struct {
	ScanType ScanType               `json:"scan_type"`
	Target   string                 `json:"target"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// DeviceType classifies a discovered device.
type DeviceType string

const (
	DeviceTypeRouter      DeviceType = "router"
	DeviceTypeSwitch      DeviceType = "switch"
	DeviceTypeServer      DeviceType = "server"
	DeviceTypeWorkstation DeviceType = "workstation"
	DeviceTypeMobile      DeviceType = "mobile"
	DeviceTypeIOT         DeviceType = "iot"
	DeviceTypePrinter     DeviceType = "printer"
	DeviceTypeUnknown     DeviceType = "unknown"
)

// Device is a device record discovered or registered on the backend.
type Device struct {
	ID         string     `json:"id"`
	IPAddress  string     `json:"ip_address"`
	MACAddress string     `json:"mac_address,omitempty"`
	Hostname   string     `json:"hostname,omitempty"`
	DeviceType DeviceType `json:"device_type"`
	OSName     string     `json:"os_name,omitempty"`
	OSVersion  string     `json:"os_version,omitempty"`
	Vendor     string     `json:"vendor,omitempty"`
	OpenPorts  []int      `json:"open_ports,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastSeen   time.Time  `json:"last_seen"`
}

// DeviceCreate is the payload for manually registering a device.
type DeviceCreate struct {
	IPAddress  string     `json:"ip_address" validate:"required,ip"`
	MACAddress string     `json:"mac_address,omitempty" validate:"omitempty,mac"`
	Hostname   string     `json:"hostname,omitempty"`
	DeviceType DeviceType `json:"device_type,omitempty"`
}

// ThreatLevel orders alert severities from informational to critical.
type ThreatLevel string

const (
	ThreatLevelInfo     ThreatLevel = "info"
	ThreatLevelLow      ThreatLevel = "low"
	ThreatLevelMedium   ThreatLevel = "medium"
	ThreatLevelHigh     ThreatLevel = "high"
	ThreatLevelCritical ThreatLevel = "critical"
)

var threatRanks = map[ThreatLevel]int{
	ThreatLevelInfo:     0,
	ThreatLevelLow:      1,
	ThreatLevelMedium:   2,
	ThreatLevelHigh:     3,
	ThreatLevelCritical: 4,
}

// Rank returns the severity rank; unknown levels rank below info.
func (l ThreatLevel) Rank() int {
	if r, ok := threatRanks[l]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether the level is at or above the given one.
func (l ThreatLevel) AtLeast(other ThreatLevel) bool {
	return l.Rank() >= other.Rank()
}

// Valid reports whether the level is a known severity.
func (l ThreatLevel) Valid() bool {
	_, ok := threatRanks[l]
	return ok
}

// Alert is a threat alert record. Resolution is monotonic: once resolved,
// ResolvedAt never changes and IsResolved never reverts.
type Alert struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	ThreatLevel      ThreatLevel `json:"threat_level"`
	DeviceID         string      `json:"device_id,omitempty"`
	SourceIP         string      `json:"source_ip,omitempty"`
	TargetIP         string      `json:"target_ip,omitempty"`
	AttackType       string      `json:"attack_type,omitempty"`
	IsResolved       bool        `json:"is_resolved"`
	DetectedAt       time.Time   `json:"detected_at"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty"`
	AIRecommendation string      `json:"ai_recommendation,omitempty"`
}

// AlertCreate is the payload for creating a threat alert.
type AlertCreate struct {
	Title       string      `json:"title" validate:"required"`
	Description string      `json:"description" validate:"required"`
	ThreatLevel ThreatLevel `json:"threat_level" validate:"required,oneof=info low medium high critical"`
	SourceIP    string      `json:"source_ip,omitempty" validate:"omitempty,ip"`
	TargetIP    string      `json:"target_ip,omitempty" validate:"omitempty,ip"`
	AttackType  string      `json:"attack_type,omitempty"`
}

// DashboardStats aggregates backend-computed counts and distributions.
type DashboardStats struct {
	TotalDevices            int            `json:"total_devices"`
	ActiveDevices           int            `json:"active_devices"`
	TotalVulnerabilities    int            `json:"total_vulnerabilities"`
	CriticalVulnerabilities int            `json:"critical_vulnerabilities"`
	TotalAlerts             int            `json:"total_alerts"`
	UnresolvedAlerts        int            `json:"unresolved_alerts"`
	ScansToday              int            `json:"scans_today"`
	NetworkSegments         int            `json:"network_segments"`
	LastScan                *time.Time     `json:"last_scan,omitempty"`
	ThreatLevelDistribution map[string]int `json:"threat_level_distribution"`
	DeviceTypeDistribution  map[string]int `json:"device_type_distribution"`
}

// HealthStatus is the backend health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

package monitor

import (
	"log/slog"
	"sync"

	"location-relay/internal/ingest"
)

// Notifier renders the single geofence notification
type Notifier interface {
	Show(title, body string) error
	Cancel() error
	IsShowing() bool
}

// Permissions are the location permissions granted to the app
type Permissions struct {
	Coarse     bool `json:"coarse"`
	Fine       bool `json:"fine"`
	Background bool `json:"background"`
}

// PlatformStatus reports what the device allows
type PlatformStatus interface {
	LocationSupported() bool
	LocationEnabled() bool
	Permissions() Permissions
}

// LocationSource turns location updates on and off
type LocationSource interface {
	StartUpdates() error
	StopUpdates() error
	Requested() bool
}

// LogNotifier stands in for a notification UI. It logs and remembers
// whether a notification is showing.
type LogNotifier struct {
	mu      sync.Mutex
	logger  *slog.Logger
	showing bool
	title   string
	body    string
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Show(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.showing = true
	n.title, n.body = title, body
	n.logger.Info("Showing geofence notification", "title", title, "body", body)
	return nil
}

func (n *LogNotifier) Cancel() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.showing = false
	n.logger.Info("Cancelled geofence notification", "title", n.title)
	return nil
}

func (n *LogNotifier) IsShowing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.showing
}

// PlatformReport is a snapshot of the device's location capabilities
type PlatformReport struct {
	Supported   bool          `json:"supported"`
	Enabled     bool          `json:"enabled"`
	Permissions Permissions   `json:"permissions"`
	Device      *DeviceReport `json:"device,omitempty"`
}

// DeviceReport is the power state stored with each position. A nil field
// is recorded as unknown.
type DeviceReport struct {
	Idle                         *bool `json:"idle,omitempty"`
	Interactive                  *bool `json:"interactive,omitempty"`
	PowerSave                    *bool `json:"power_save,omitempty"`
	IgnoringBatteryOptimizations *bool `json:"ignoring_battery_optimizations,omitempty"`
	Charging                     *bool `json:"charging,omitempty"`
}

// ReportedPlatform holds the status last reported by the on-device agent.
// Until the first report, location is assumed supported but disabled.
type ReportedPlatform struct {
	mu     sync.RWMutex
	report PlatformReport
}

func NewReportedPlatform() *ReportedPlatform {
	return &ReportedPlatform{report: PlatformReport{Supported: true}}
}

// Report replaces the stored status
func (p *ReportedPlatform) Report(r PlatformReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.report = r
}

func (p *ReportedPlatform) LocationSupported() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report.Supported
}

func (p *ReportedPlatform) LocationEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report.Enabled
}

func (p *ReportedPlatform) Permissions() Permissions {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.report.Permissions
}

// DeviceState returns the last reported power state
func (p *ReportedPlatform) DeviceState() ingest.DeviceState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	d := p.report.Device
	if d == nil {
		return ingest.UnknownDeviceState
	}
	return ingest.DeviceState{
		DeviceIdle:                   flag(d.Idle),
		Interactive:                  flag(d.Interactive),
		PowerSave:                    flag(d.PowerSave),
		IgnoringBatteryOptimizations: flag(d.IgnoringBatteryOptimizations),
		Charging:                     flag(d.Charging),
	}
}

func flag(b *bool) ingest.Flag {
	if b == nil {
		return ingest.FlagUnknown
	}
	return ingest.FlagOf(*b)
}

// UpdateRequests records whether updates are wanted. The on-device agent
// polls it through the status endpoint.
type UpdateRequests struct {
	mu        sync.Mutex
	requested bool
}

func (u *UpdateRequests) StartUpdates() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requested = true
	return nil
}

func (u *UpdateRequests) StopUpdates() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requested = false
	return nil
}

func (u *UpdateRequests) Requested() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requested
}

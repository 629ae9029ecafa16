package model

import (
	"time"
)

// Device type classifications assigned by the classifier or by the user.
const (
	DeviceTypeGateway        = "gateway"
	DeviceTypeInternet       = "internet"
	DeviceTypePrinter        = "printer"
	DeviceTypeTV             = "tv"
	DeviceTypeGaming         = "gaming"
	DeviceTypePhone          = "phone"
	DeviceTypeVirtualization = "virtualization"
	DeviceTypeSoundbar       = "soundbar"
	DeviceTypeAppliance      = "appliance"
	DeviceTypeLocal          = "local"
	DeviceTypeOther          = "other"
)

// Endpoint is a stable logical device identity on the monitored network.
// The id is never reused; merges reparent attribute and communication rows
// onto the surviving id. custom_* fields are user overrides and always win
// over the auto-detected values.
type Endpoint struct {
	ID               int64     `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Name             string    `json:"name"`
	CustomName       string    `json:"custom_name,omitempty"`
	AutoDeviceType   string    `json:"auto_device_type,omitempty"`
	ManualDeviceType string    `json:"manual_device_type,omitempty"`
	Vendor           string    `json:"vendor,omitempty"`
	CustomVendor     string    `json:"custom_vendor,omitempty"`
	SSDPModel        string    `json:"ssdp_model,omitempty"`
	SSDPFriendlyName string    `json:"ssdp_friendly_name,omitempty"`
	CustomModel      string    `json:"custom_model,omitempty"`
	NetBIOSName      string    `json:"netbios_name,omitempty"`
	FirstSeenAt      time.Time `json:"first_seen_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// DisplayName returns the user-assigned name when present, else the
// auto-derived name.
func (e *Endpoint) DisplayName() string {
	if e.CustomName != "" {
		return e.CustomName
	}
	return e.Name
}

// DeviceType returns the manual override when set, else the auto decision.
func (e *Endpoint) DeviceType() string {
	if e.ManualDeviceType != "" {
		return e.ManualDeviceType
	}
	if e.AutoDeviceType != "" {
		return e.AutoDeviceType
	}
	return DeviceTypeOther
}

// Model returns the user-assigned model when present, else the SSDP model.
func (e *Endpoint) Model() string {
	if e.CustomModel != "" {
		return e.CustomModel
	}
	return e.SSDPModel
}

// EndpointAttribute is one historical (mac, ip, hostname) observation attached
// to an endpoint. Multiple rows per endpoint are expected: multi-homed hosts,
// v4+v6 pairs, hostname changes over time.
type EndpointAttribute struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	EndpointID int64     `json:"endpoint_id"`
	MAC        string    `json:"mac"`
	IP         string    `json:"ip"`
	Hostname   string    `json:"hostname"`
}

// Communication is a deduplicated conversation between two endpoints on one
// (protocol, src_port, dst_port). A packet matching an existing row increments
// the counters and bumps last_seen_at, never inserting a second row. The
// endpoint references become NULL when an endpoint is deleted.
type Communication struct {
	ID            int64     `json:"id"`
	SrcEndpointID *int64    `json:"src_endpoint_id"`
	DstEndpointID *int64    `json:"dst_endpoint_id"`
	Protocol      string    `json:"protocol"`
	SrcPort       int       `json:"src_port"`
	DstPort       int       `json:"dst_port"`
	PacketCount   int64     `json:"packet_count"`
	Bytes         int64     `json:"bytes"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// MDNSEntry is one multicast DNS observation for the DNS tab. Entries live in
// a bounded ring buffer and are not referentially tied to endpoints.
type MDNSEntry struct {
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Hostname  string    `json:"hostname"`
	Services  []string  `json:"services"`
}

// InternetDestination tracks an external host reached from the local network.
// External hosts never become endpoints; they are keyed by hostname.
type InternetDestination struct {
	ID          int64     `json:"id"`
	Hostname    string    `json:"hostname"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	PacketCount int64     `json:"packet_count"`
	BytesIn     int64     `json:"bytes_in"`
	BytesOut    int64     `json:"bytes_out"`
}

// ScanRecord is one persisted result row produced by the active scanner.
type ScanRecord struct {
	ID           int64     `json:"id"`
	EndpointID   *int64    `json:"endpoint_id"`
	ScanType     string    `json:"scan_type"`
	IP           string    `json:"ip"`
	MAC          string    `json:"mac,omitempty"`
	Hostname     string    `json:"hostname,omitempty"`
	OpenPort     int       `json:"open_port,omitempty"`
	RTTMillis    int64     `json:"rtt_ms,omitempty"`
	Model        string    `json:"model,omitempty"`
	FriendlyName string    `json:"friendly_name,omitempty"`
	SysDescr     string    `json:"sys_descr,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

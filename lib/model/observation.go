package model

import (
	"time"
)

// Observation is one identity fact extracted from a frame or a scan result:
// some subset of (MAC, IP, hostname) seen on an interface at a point in time.
// The identity resolver maps observations to stable endpoint ids.
type Observation struct {
	MAC       string
	IP        string
	Hostname  string
	Interface string
	Timestamp time.Time
}

// FlowObservation is one packet's contribution to a conversation.
type FlowObservation struct {
	SrcMAC    string
	DstMAC    string
	SrcIP     string
	DstIP     string
	SrcPort   int
	DstPort   int
	Protocol  string
	Bytes     int
	Interface string
	Timestamp time.Time
}

// NameBinding is a hostname<->address association learned from DNS answers,
// mDNS announcements, TLS SNI, or the HTTP Host header.
type NameBinding struct {
	Hostname  string
	IP        string
	Source    string
	Timestamp time.Time
}

// Name binding sources, in rough order of trustworthiness.
const (
	BindingSourceDNS     = "dns"
	BindingSourceMDNS    = "mdns"
	BindingSourceSNI     = "sni"
	BindingSourceHTTP    = "http"
	BindingSourceReverse = "reverse"
	BindingSourceNetBIOS = "netbios"
	BindingSourceSSDP    = "ssdp"
)

// ServiceAnnouncement is a DNS-SD service type advertised by a host via mDNS.
type ServiceAnnouncement struct {
	IP          string
	Hostname    string
	ServiceType string
	Timestamp   time.Time
}

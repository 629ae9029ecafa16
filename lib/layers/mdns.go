// Copyright 2025 InfraSecConsult. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file in the root of the source
// tree.

package lib_layers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// MDNS represents a Multicast DNS packet (RFC 6762). mDNS reuses the DNS wire
// format over UDP 5353 with two extra flag bits: UNICAST-RESPONSE on
// questions and CACHE-FLUSH on resource records.
type MDNS struct {
	BaseLayer
	ID           uint16
	QR           bool
	OpCode       uint8
	AA           bool
	TC           bool
	RD           bool
	RA           bool
	Z            uint8
	ResponseCode uint8
	QDCount      uint16
	ANCount      uint16
	NSCount      uint16
	ARCount      uint16

	Questions   []MDNSQuestion
	Answers     []MDNSResourceRecord
	Authorities []MDNSResourceRecord
	Additionals []MDNSResourceRecord
}

// MDNSQuestion is an mDNS query with the UNICAST-RESPONSE bit.
type MDNSQuestion struct {
	Name            []byte
	Type            layers.DNSType
	Class           layers.DNSClass
	UnicastResponse bool
}

// MDNSResourceRecord is an mDNS resource record with the CACHE-FLUSH bit.
type MDNSResourceRecord struct {
	Name       []byte
	Type       layers.DNSType
	Class      layers.DNSClass
	CacheFlush bool
	TTL        uint32
	DataLength uint16
	Data       []byte

	IP             net.IP
	NS, CNAME, PTR []byte
	TXT            [][]byte
	SRV            layers.DNSSRV
}

// LayerType returns the layer type for mDNS
func (m *MDNS) LayerType() gopacket.LayerType {
	return LayerTypeMDNS
}

// CanDecode returns the set of layer types that this DecodingLayer can decode
func (m *MDNS) CanDecode() gopacket.LayerClass {
	return LayerTypeMDNS
}

// NextLayerType returns the layer type contained by this DecodingLayer
func (m *MDNS) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

// DecodeFromBytes decodes the given bytes into this layer
func (m *MDNS) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	_ = df
	if len(data) < 12 {
		return errors.New("mDNS packet too short for header")
	}

	m.BaseLayer = BaseLayer{Contents: data}

	m.ID = binary.BigEndian.Uint16(data[0:2])

	flags := binary.BigEndian.Uint16(data[2:4])
	m.QR = (flags & 0x8000) != 0
	m.OpCode = uint8((flags >> 11) & 0x0F)
	m.AA = (flags & 0x0400) != 0
	m.TC = (flags & 0x0200) != 0
	m.RD = (flags & 0x0100) != 0
	m.RA = (flags & 0x0080) != 0
	m.Z = uint8((flags >> 4) & 0x07)
	m.ResponseCode = uint8(flags & 0x0F)

	m.QDCount = binary.BigEndian.Uint16(data[4:6])
	m.ANCount = binary.BigEndian.Uint16(data[6:8])
	m.NSCount = binary.BigEndian.Uint16(data[8:10])
	m.ARCount = binary.BigEndian.Uint16(data[10:12])

	offset := 12

	m.Questions = make([]MDNSQuestion, m.QDCount)
	for i := 0; i < int(m.QDCount); i++ {
		var err error
		offset, err = m.parseQuestion(data, offset, &m.Questions[i])
		if err != nil {
			return err
		}
	}

	m.Answers = make([]MDNSResourceRecord, m.ANCount)
	for i := 0; i < int(m.ANCount); i++ {
		var err error
		offset, err = m.parseResourceRecord(data, offset, &m.Answers[i])
		if err != nil {
			return err
		}
	}

	m.Authorities = make([]MDNSResourceRecord, m.NSCount)
	for i := 0; i < int(m.NSCount); i++ {
		var err error
		offset, err = m.parseResourceRecord(data, offset, &m.Authorities[i])
		if err != nil {
			return err
		}
	}

	m.Additionals = make([]MDNSResourceRecord, m.ARCount)
	for i := 0; i < int(m.ARCount); i++ {
		var err error
		offset, err = m.parseResourceRecord(data, offset, &m.Additionals[i])
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *MDNS) parseQuestion(data []byte, offset int, q *MDNSQuestion) (int, error) {
	var err error

	q.Name, offset, err = m.parseName(data, offset)
	if err != nil {
		return offset, err
	}

	if len(data) < offset+4 {
		return offset, errors.New("insufficient data for question")
	}

	q.Type = layers.DNSType(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	classAndFlags := binary.BigEndian.Uint16(data[offset : offset+2])
	q.UnicastResponse = (classAndFlags & 0x8000) != 0
	q.Class = layers.DNSClass(classAndFlags & 0x7FFF)
	offset += 2

	return offset, nil
}

func (m *MDNS) parseResourceRecord(data []byte, offset int, rr *MDNSResourceRecord) (int, error) {
	var err error

	rr.Name, offset, err = m.parseName(data, offset)
	if err != nil {
		return offset, err
	}

	if len(data) < offset+10 {
		return offset, errors.New("insufficient data for resource record")
	}

	rr.Type = layers.DNSType(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	classAndFlags := binary.BigEndian.Uint16(data[offset : offset+2])
	rr.CacheFlush = (classAndFlags & 0x8000) != 0
	rr.Class = layers.DNSClass(classAndFlags & 0x7FFF)
	offset += 2

	rr.TTL = binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4

	rr.DataLength = binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 2

	if len(data) < offset+int(rr.DataLength) {
		return offset, errors.New("insufficient data for resource record data")
	}

	rr.Data = data[offset : offset+int(rr.DataLength)]

	if err := m.parseRecordData(data, offset, rr); err != nil {
		return offset, err
	}

	offset += int(rr.DataLength)
	return offset, nil
}

func (m *MDNS) parseRecordData(data []byte, offset int, rr *MDNSResourceRecord) error {
	switch rr.Type {
	case layers.DNSTypeA:
		if rr.DataLength == 4 {
			rr.IP = net.IP(rr.Data)
		}
	case layers.DNSTypeAAAA:
		if rr.DataLength == 16 {
			rr.IP = net.IP(rr.Data)
		}
	case layers.DNSTypeCNAME, layers.DNSTypeNS, layers.DNSTypePTR:
		var err error
		rr.CNAME, _, err = m.parseName(data, offset)
		if err != nil {
			return err
		}
		rr.NS = rr.CNAME
		rr.PTR = rr.CNAME
	case layers.DNSTypeTXT:
		rr.TXT = m.parseTXT(rr.Data)
	case layers.DNSTypeSRV:
		if rr.DataLength >= 6 {
			rr.SRV.Priority = binary.BigEndian.Uint16(rr.Data[0:2])
			rr.SRV.Weight = binary.BigEndian.Uint16(rr.Data[2:4])
			rr.SRV.Port = binary.BigEndian.Uint16(rr.Data[4:6])
			if len(rr.Data) > 6 {
				var err error
				rr.SRV.Name, _, err = m.parseName(data, offset+6)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// parseName parses a DNS name with compression support
func (m *MDNS) parseName(data []byte, offset int) ([]byte, int, error) {
	var name []byte
	originalOffset := offset
	jumped := false
	jumpCount := 0

	dataLen := len(data)
	for offset < dataLen {
		length := int(data[offset])

		// Compression pointer
		if length&0xC0 == 0xC0 {
			if !jumped {
				originalOffset = offset + 2
			}
			if dataLen < offset+2 {
				return nil, offset, errors.New("invalid compression pointer")
			}
			offset = int(binary.BigEndian.Uint16(data[offset:offset+2]) & 0x3FFF)
			jumped = true
			jumpCount++
			if jumpCount > 10 {
				return nil, offset, errors.New("too many compression jumps")
			}
			continue
		}

		offset++

		if length == 0 {
			break
		}

		if dataLen < offset+length {
			return nil, offset, errors.New("name extends beyond packet")
		}

		if len(name) > 0 {
			name = append(name, '.')
		}
		name = append(name, data[offset:offset+length]...)
		offset += length
	}

	if jumped {
		return name, originalOffset, nil
	}
	return name, offset, nil
}

func (m *MDNS) parseTXT(data []byte) [][]byte {
	var txt [][]byte
	offset := 0

	dataLen := len(data)
	for offset < dataLen {
		length := int(data[offset])
		offset++

		if offset+length > dataLen {
			break
		}

		txt = append(txt, data[offset:offset+length])
		offset += length
	}

	return txt
}

// String returns a string representation of the mDNS packet
func (m *MDNS) String() string {
	if m.QR {
		return fmt.Sprintf("mDNS Response ID:%d Questions:%d Answers:%d", m.ID, m.QDCount, m.ANCount)
	}
	return fmt.Sprintf("mDNS Query ID:%d Questions:%d", m.ID, m.QDCount)
}

// IsQuery returns true if this is an mDNS query
func (m *MDNS) IsQuery() bool {
	return !m.QR
}

// IsResponse returns true if this is an mDNS response
func (m *MDNS) IsResponse() bool {
	return m.QR
}

// HostnameBinding is one hostname -> IP pair carried by an A/AAAA answer.
type HostnameBinding struct {
	Hostname string
	IP       net.IP
}

// HostnameBindings extracts hostname -> IP pairs from the A and AAAA records
// of a response, across answers and additionals.
func (m *MDNS) HostnameBindings() []HostnameBinding {
	if !m.IsResponse() {
		return nil
	}
	var bindings []HostnameBinding
	for _, section := range [][]MDNSResourceRecord{m.Answers, m.Additionals} {
		for _, rr := range section {
			if (rr.Type == layers.DNSTypeA || rr.Type == layers.DNSTypeAAAA) && rr.IP != nil {
				bindings = append(bindings, HostnameBinding{
					Hostname: string(rr.Name),
					IP:       rr.IP,
				})
			}
		}
	}
	return bindings
}

// ServiceTypes extracts DNS-SD service types (e.g. "_ipp._tcp") advertised by
// a response. PTR record names like "_ipp._tcp.local" are normalized by
// dropping the ".local" suffix.
func (m *MDNS) ServiceTypes() []string {
	if !m.IsResponse() {
		return nil
	}
	seen := make(map[string]struct{})
	var services []string
	for _, section := range [][]MDNSResourceRecord{m.Answers, m.Additionals} {
		for _, rr := range section {
			if rr.Type != layers.DNSTypePTR {
				continue
			}
			name := string(rr.Name)
			if !strings.HasPrefix(name, "_") {
				continue
			}
			name = strings.TrimSuffix(name, ".local")
			if strings.HasPrefix(name, "_services._dns-sd") {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			services = append(services, name)
		}
	}
	return services
}

// InstanceHostname extracts the target hostname of the first SRV answer
// (e.g. "my-printer.local" from "Printer._ipp._tcp.local SRV my-printer.local").
func (m *MDNS) InstanceHostname() string {
	for _, section := range [][]MDNSResourceRecord{m.Answers, m.Additionals} {
		for _, rr := range section {
			if rr.Type == layers.DNSTypeSRV && len(rr.SRV.Name) > 0 {
				return string(rr.SRV.Name)
			}
		}
	}
	return ""
}

// GetServiceType extracts the service type from a PTR question
// (e.g. "_http._tcp.local").
func (q *MDNSQuestion) GetServiceType() string {
	name := string(q.Name)
	if strings.HasSuffix(name, ".local") && strings.HasPrefix(name, "_") {
		return name
	}
	return ""
}

// LayerTypeMDNS is the layer type for mDNS packets
var LayerTypeMDNS = gopacket.RegisterLayerType(
	1002, // high number to avoid conflicts with builtin layer types
	gopacket.LayerTypeMetadata{
		Name:    "MDNS",
		Decoder: gopacket.DecodeFunc(decodeMDNS),
	},
)

func decodeMDNS(data []byte, p gopacket.PacketBuilder) error {
	mdns := &MDNS{}
	if err := mdns.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(mdns)
	return p.NextDecoder(mdns.NextLayerType())
}

// InitLayerMDNS binds the mDNS layer to UDP port 5353.
func InitLayerMDNS() {
	layers.RegisterUDPPortLayerType(5353, LayerTypeMDNS)
}

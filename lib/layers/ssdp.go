// Copyright 2025 InfraSecConsult. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file in the root of the source
// tree.

package lib_layers

import (
	"bufio"
	"errors"
	"fmt"
	"net/textproto"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// SSDP represents a Simple Service Discovery Protocol packet: HTTP-like
// requests and responses carried over UDP 1900 for UPnP device discovery.
type SSDP struct {
	BaseLayer
	Method     string
	RequestURI string
	Version    string
	StatusCode int
	StatusMsg  string
	Headers    map[string]string
	IsResponse bool
}

// LayerType returns the layer type for SSDP
func (s *SSDP) LayerType() gopacket.LayerType {
	return LayerTypeSSDP
}

// CanDecode returns the set of layer types that this DecodingLayer can decode
func (s *SSDP) CanDecode() gopacket.LayerClass {
	return LayerTypeSSDP
}

// NextLayerType returns the layer type contained by this DecodingLayer
func (s *SSDP) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

// DecodeFromBytes decodes the given bytes into this layer
func (s *SSDP) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	_ = df

	if len(data) == 0 {
		return errors.New("SSDP packet is empty")
	}

	s.BaseLayer = BaseLayer{Contents: data}

	content := string(data)
	lines := strings.Split(content, "\r\n")
	if len(lines) < 1 {
		lines = strings.Split(content, "\n")
	}

	s.Headers = make(map[string]string)

	firstLine := strings.TrimSpace(lines[0])
	if firstLine == "" {
		return errors.New("SSDP packet has empty first line")
	}

	if strings.HasPrefix(firstLine, "HTTP/") {
		s.IsResponse = true
		parts := strings.SplitN(firstLine, " ", 3)
		if len(parts) >= 2 {
			s.Version = parts[0]
			if len(parts) >= 3 {
				s.StatusMsg = parts[2]
			}
			if _, err := fmt.Sscanf(parts[1], "%d", &s.StatusCode); err != nil {
				s.StatusCode = 0
			}
		}
	} else {
		s.IsResponse = false
		parts := strings.SplitN(firstLine, " ", 3)
		if len(parts) >= 1 {
			s.Method = parts[0]
		}
		if len(parts) >= 2 {
			s.RequestURI = parts[1]
		}
		if len(parts) >= 3 {
			s.Version = parts[2]
		}
		switch s.Method {
		case "NOTIFY", "M-SEARCH":
		default:
			return errors.New("not an SSDP request method")
		}
	}

	tp := textproto.NewReader(bufio.NewReader(strings.NewReader(strings.Join(lines[1:], "\r\n"))))
	for {
		line, err := tp.ReadLine()
		if err != nil || line == "" {
			break
		}
		key, value, found := strings.Cut(line, ":")
		if found {
			s.Headers[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
		}
	}

	return nil
}

// String returns a string representation of the SSDP packet
func (s *SSDP) String() string {
	if s.IsResponse {
		return fmt.Sprintf("SSDP Response %d %s", s.StatusCode, s.StatusMsg)
	}
	return fmt.Sprintf("SSDP Request %s %s", s.Method, s.RequestURI)
}

// GetHeader returns the value of a header (case-insensitive)
func (s *SSDP) GetHeader(name string) (string, bool) {
	value, exists := s.Headers[strings.ToUpper(name)]
	return value, exists
}

// Location returns the LOCATION header, pointing at the device description XML.
func (s *SSDP) Location() string {
	v, _ := s.GetHeader("LOCATION")
	return v
}

// USN returns the unique service name header.
func (s *SSDP) USN() string {
	v, _ := s.GetHeader("USN")
	return v
}

// Server returns the SERVER header, which responses and NOTIFY requests
// carry. Other requests without one (M-SEARCH) fall back to USER-AGENT.
func (s *SSDP) Server() string {
	if s.IsResponse {
		v, _ := s.GetHeader("SERVER")
		return v
	}
	if v, ok := s.GetHeader("SERVER"); ok {
		return v
	}
	v, _ := s.GetHeader("USER-AGENT")
	return v
}

// IsAlive returns true if this is a ssdp:alive notification
func (s *SSDP) IsAlive() bool {
	if nts, exists := s.GetHeader("NTS"); exists {
		return strings.EqualFold(nts, "ssdp:alive")
	}
	return false
}

// IsByeBye returns true if this is a ssdp:byebye notification
func (s *SSDP) IsByeBye() bool {
	if nts, exists := s.GetHeader("NTS"); exists {
		return strings.EqualFold(nts, "ssdp:byebye")
	}
	return false
}

// IsSearch returns true for M-SEARCH requests
func (s *SSDP) IsSearch() bool {
	return !s.IsResponse && s.Method == "M-SEARCH"
}

// IsNotify returns true for NOTIFY requests
func (s *SSDP) IsNotify() bool {
	return !s.IsResponse && s.Method == "NOTIFY"
}

// LayerTypeSSDP is the layer type for SSDP packets
var LayerTypeSSDP = gopacket.RegisterLayerType(
	1001, // high number to avoid conflicts with builtin layer types
	gopacket.LayerTypeMetadata{
		Name:    "SSDP",
		Decoder: gopacket.DecodeFunc(decodeSSDP),
	},
)

func decodeSSDP(data []byte, p gopacket.PacketBuilder) error {
	ssdp := &SSDP{}
	if err := ssdp.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(ssdp)
	return p.NextDecoder(ssdp.NextLayerType())
}

// InitLayerSSDP binds the SSDP layer to UDP port 1900.
func InitLayerSSDP() {
	layers.RegisterUDPPortLayerType(1900, LayerTypeSSDP)
}

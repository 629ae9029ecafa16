// Copyright 2025 InfraSecConsult. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file in the root of the source
// tree.

package lib_layers

import (
	"encoding/binary"
	"errors"
)

// TLSType defines the type of data after the TLS Record
type TLSType uint8

// TLSType known values.
const (
	TLSChangeCipherSpec TLSType = 20
	TLSAlert            TLSType = 21
	TLSHandshake        TLSType = 22
	TLSApplicationData  TLSType = 23
)

// String shows the record type nicely formatted
func (tt TLSType) String() string {
	switch tt {
	case TLSChangeCipherSpec:
		return "Change Cipher Spec"
	case TLSAlert:
		return "Alert"
	case TLSHandshake:
		return "Handshake"
	case TLSApplicationData:
		return "Application Data"
	default:
		return "Unknown"
	}
}

// TLSVersion represents the TLS version in numeric format
type TLSVersion uint16

// String shows the TLS version nicely formatted
func (tv TLSVersion) String() string {
	switch tv {
	case 0x0300:
		return "SSL 3.0"
	case 0x0301:
		return "TLS 1.0"
	case 0x0302:
		return "TLS 1.1"
	case 0x0303:
		return "TLS 1.2"
	case 0x0304:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}

const tlsHandshakeTypeClientHello = 0x01

// ClientHello carries the fields of a TLS ClientHello this tool cares about.
// Only the SNI and ALPN extensions are parsed; everything else is skipped
// without allocation.
type ClientHello struct {
	Version       TLSVersion
	SNI           string
	ALPNProtocols []string
}

// ParseClientHello parses the first TLS record of a TCP payload and, when it
// is a handshake record carrying a ClientHello, extracts the server name
// indication. Returns an error for anything that is not a ClientHello.
func ParseClientHello(data []byte) (*ClientHello, error) {
	// Record header: type(1) version(2) length(2)
	if len(data) < 5 {
		return nil, errors.New("TLS record too short")
	}
	if TLSType(data[0]) != TLSHandshake {
		return nil, errors.New("not a TLS handshake record")
	}
	if data[1] != 0x03 {
		return nil, errors.New("not a TLS record version")
	}
	recordLen := int(binary.BigEndian.Uint16(data[3:5]))
	body := data[5:]
	if len(body) > recordLen {
		body = body[:recordLen]
	}

	// Handshake header: type(1) length(3)
	if len(body) < 4 || body[0] != tlsHandshakeTypeClientHello {
		return nil, errors.New("not a ClientHello")
	}
	hello := &ClientHello{}
	offset := 4

	// client_version(2) random(32)
	if len(body) < offset+34 {
		return nil, errors.New("ClientHello truncated")
	}
	hello.Version = TLSVersion(binary.BigEndian.Uint16(body[offset : offset+2]))
	offset += 34

	// session_id
	if len(body) < offset+1 {
		return nil, errors.New("ClientHello truncated at session id")
	}
	offset += 1 + int(body[offset])

	// cipher_suites
	if len(body) < offset+2 {
		return nil, errors.New("ClientHello truncated at cipher suites")
	}
	offset += 2 + int(binary.BigEndian.Uint16(body[offset:offset+2]))

	// compression_methods
	if len(body) < offset+1 {
		return nil, errors.New("ClientHello truncated at compression methods")
	}
	offset += 1 + int(body[offset])

	// extensions
	if len(body) < offset+2 {
		// Legal: a ClientHello without extensions has no SNI
		return hello, nil
	}
	extensionsLen := int(binary.BigEndian.Uint16(body[offset : offset+2]))
	offset += 2
	end := offset + extensionsLen
	if end > len(body) {
		return nil, errors.New("extensions extend beyond record")
	}

	for offset+4 <= end {
		extType := binary.BigEndian.Uint16(body[offset : offset+2])
		extLen := int(binary.BigEndian.Uint16(body[offset+2 : offset+4]))
		offset += 4
		if offset+extLen > end {
			break
		}
		switch extType {
		case 0x0000: // server_name
			hello.SNI = parseSNIExtension(body[offset : offset+extLen])
		case 0x0010: // application_layer_protocol_negotiation
			hello.ALPNProtocols = parseALPNExtension(body[offset : offset+extLen])
		}
		offset += extLen
	}

	return hello, nil
}

func parseSNIExtension(ext []byte) string {
	// server_name_list length(2), then entries of type(1) length(2) name
	if len(ext) < 5 {
		return ""
	}
	offset := 2
	for offset+3 <= len(ext) {
		nameType := ext[offset]
		nameLen := int(binary.BigEndian.Uint16(ext[offset+1 : offset+3]))
		offset += 3
		if offset+nameLen > len(ext) {
			return ""
		}
		if nameType == 0x00 { // host_name
			return sanitizeHostname(string(ext[offset : offset+nameLen]))
		}
		offset += nameLen
	}
	return ""
}

func parseALPNExtension(ext []byte) []string {
	if len(ext) < 2 {
		return nil
	}
	var protocols []string
	offset := 2
	for offset < len(ext) {
		plen := int(ext[offset])
		offset++
		if plen == 0 || offset+plen > len(ext) {
			break
		}
		protocols = append(protocols, string(ext[offset:offset+plen]))
		offset += plen
	}
	return protocols
}

// sanitizeHostname keeps only characters legal in a DNS name. Anything else
// resets the accumulator so injected garbage cannot smuggle a partial name.
func sanitizeHostname(hostname string) string {
	out := make([]byte, 0, len(hostname))
	for i := 0; i < len(hostname); i++ {
		c := hostname[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '-' {
			out = append(out, c)
		} else {
			out = out[:0]
		}
	}
	return string(out)
}

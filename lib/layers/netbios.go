// Copyright 2025 InfraSecConsult. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file in the root of the source
// tree.

package lib_layers

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/rs/zerolog/log"
)

// NetBIOS name service constants (RFC 1002).
const (
	nbnsTypeNB     uint16 = 0x0020
	nbnsTypeNBSTAT uint16 = 0x0021
	nbnsClassIN    uint16 = 0x0001
)

// NetBIOSName is one entry of a node status response.
type NetBIOSName struct {
	Name   string
	Suffix uint8
	Flags  uint16
}

// IsGroup reports whether the name is a group (workgroup/domain) name.
func (n NetBIOSName) IsGroup() bool {
	return n.Flags&0x8000 != 0
}

// IsWorkstation reports whether the entry is the workstation service name,
// which is the machine's own name.
func (n NetBIOSName) IsWorkstation() bool {
	return n.Suffix == 0x00 && !n.IsGroup()
}

// NetBIOS represents a NetBIOS name service packet (UDP 137): queries and the
// node status responses the scanner and dissector care about.
type NetBIOS struct {
	BaseLayer
	TransactionID uint16
	Flags         uint16
	IsResponse    bool
	QDCount       uint16
	ANCount       uint16

	QueryName string
	QueryType uint16

	// Node status response data
	Names []NetBIOSName
	MAC   string
}

// LayerType returns the layer type for NetBIOS name service packets.
func (n *NetBIOS) LayerType() gopacket.LayerType {
	return LayerTypeNetBIOS
}

// CanDecode returns the set of layer types that this DecodingLayer can decode
func (n *NetBIOS) CanDecode() gopacket.LayerClass {
	return LayerTypeNetBIOS
}

// NextLayerType returns the layer type contained by this DecodingLayer
func (n *NetBIOS) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

// DecodeFromBytes decodes the given bytes into this layer
func (n *NetBIOS) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	_ = df
	if len(data) < 12 {
		return errors.New("NBNS packet too short for header")
	}

	n.BaseLayer = BaseLayer{Contents: data}
	n.TransactionID = binary.BigEndian.Uint16(data[0:2])
	n.Flags = binary.BigEndian.Uint16(data[2:4])
	n.IsResponse = n.Flags&0x8000 != 0
	n.QDCount = binary.BigEndian.Uint16(data[4:6])
	n.ANCount = binary.BigEndian.Uint16(data[6:8])

	offset := 12

	if n.QDCount > 0 {
		name, next, err := decodeNetBIOSName(data, offset)
		if err != nil {
			return err
		}
		n.QueryName = name
		offset = next
		if len(data) < offset+4 {
			return errors.New("NBNS question truncated")
		}
		n.QueryType = binary.BigEndian.Uint16(data[offset : offset+2])
		offset += 4
	}

	if n.IsResponse && n.ANCount > 0 {
		if err := n.decodeNodeStatusAnswer(data, offset); err != nil {
			// Not all answers are node status records; positive name
			// responses are fine to skip.
			log.Debug().Err(err).Msg("nbns answer not a node status record")
		}
	}

	return nil
}

func (n *NetBIOS) decodeNodeStatusAnswer(data []byte, offset int) error {
	_, next, err := decodeNetBIOSName(data, offset)
	if err != nil {
		return err
	}
	offset = next
	// type(2) class(2) ttl(4) rdlength(2)
	if len(data) < offset+10 {
		return errors.New("NBNS answer truncated")
	}
	rrType := binary.BigEndian.Uint16(data[offset : offset+2])
	offset += 10
	if rrType != nbnsTypeNBSTAT {
		return fmt.Errorf("answer type 0x%04x is not NBSTAT", rrType)
	}

	if len(data) < offset+1 {
		return errors.New("node status data truncated")
	}
	nameCount := int(data[offset])
	offset++

	for i := 0; i < nameCount; i++ {
		if len(data) < offset+18 {
			return errors.New("node status name entry truncated")
		}
		entry := NetBIOSName{
			Name:   strings.TrimRight(string(data[offset:offset+15]), " \x00"),
			Suffix: data[offset+15],
			Flags:  binary.BigEndian.Uint16(data[offset+16 : offset+18]),
		}
		n.Names = append(n.Names, entry)
		offset += 18
	}

	// Statistics block begins with the unit id, which is the adapter MAC.
	if len(data) >= offset+6 {
		mac := data[offset : offset+6]
		if mac[0]|mac[1]|mac[2]|mac[3]|mac[4]|mac[5] != 0 {
			n.MAC = fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
				mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
		}
	}

	return nil
}

// MachineName returns the unique workstation name from a node status
// response, or "".
func (n *NetBIOS) MachineName() string {
	for _, name := range n.Names {
		if name.IsWorkstation() && name.Name != "" {
			return name.Name
		}
	}
	return ""
}

// EncodeNetBIOSName applies RFC 1001 first-level encoding: the name is
// padded to 16 bytes and each byte split into two nibbles offset from 'A'.
func EncodeNetBIOSName(name string, suffix byte) []byte {
	padded := make([]byte, 16)
	copy(padded, strings.ToUpper(name))
	// The wildcard name is NUL-padded; regular names are space-padded.
	if name != "*" {
		for i := len(name); i < 15; i++ {
			padded[i] = ' '
		}
	}
	padded[15] = suffix

	out := make([]byte, 0, 34)
	out = append(out, 32)
	for _, b := range padded {
		out = append(out, 'A'+(b>>4), 'A'+(b&0x0F))
	}
	out = append(out, 0)
	return out
}

func decodeNetBIOSName(data []byte, offset int) (string, int, error) {
	if len(data) <= offset {
		return "", offset, errors.New("name offset beyond packet")
	}
	length := int(data[offset])
	offset++
	if length != 32 || len(data) < offset+length+1 {
		return "", offset, errors.New("malformed first-level encoded name")
	}

	decoded := make([]byte, 0, 16)
	for i := 0; i < length; i += 2 {
		hi := data[offset+i] - 'A'
		lo := data[offset+i+1] - 'A'
		decoded = append(decoded, hi<<4|lo)
	}
	offset += length + 1 // trailing root label

	name := strings.TrimRight(string(decoded[:15]), " \x00")
	return name, offset, nil
}

// NodeStatusRequest builds an NBSTAT query for the wildcard name "*", the
// probe used to learn a host's NetBIOS machine name.
func NodeStatusRequest(transactionID uint16) []byte {
	out := make([]byte, 12, 50)
	binary.BigEndian.PutUint16(out[0:2], transactionID)
	// flags zero, one question
	binary.BigEndian.PutUint16(out[4:6], 1)
	out = append(out, EncodeNetBIOSName("*", 0x00)...)
	out = binary.BigEndian.AppendUint16(out, nbnsTypeNBSTAT)
	out = binary.BigEndian.AppendUint16(out, nbnsClassIN)
	return out
}

// LayerTypeNetBIOS is the layer type for NetBIOS name service packets.
var LayerTypeNetBIOS = gopacket.RegisterLayerType(
	1004, // high number to avoid conflicts with builtin layer types
	gopacket.LayerTypeMetadata{
		Name:    "NetBIOS",
		Decoder: gopacket.DecodeFunc(decodeNetBIOS),
	},
)

func decodeNetBIOS(data []byte, p gopacket.PacketBuilder) error {
	nb := &NetBIOS{}
	if err := nb.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(nb)
	return p.NextDecoder(nb.NextLayerType())
}

// InitLayerNetBIOS binds the name service layer to UDP port 137.
func InitLayerNetBIOS() {
	layers.RegisterUDPPortLayerType(137, LayerTypeNetBIOS)
}

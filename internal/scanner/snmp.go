package scanner

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/InfraSecConsult/netwatch-go/lib/model"
)

const snmpConcurrency = 64

// sysDescrOID is 1.3.6.1.2.1.1.1.0 in BER object-identifier encoding.
var sysDescrOID = []byte{0x2b, 0x06, 0x01, 0x02, 0x01, 0x01, 0x01, 0x00}

// snmpSweep asks every host for its SNMPv2c sysDescr using the public
// community only. Devices that answer self-report their model and firmware.
func snmpSweep(ctx context.Context, subnets []*net.IPNet, record func(model.ScanRecord)) error {
	sem := make(chan struct{}, snmpConcurrency)
	var wg sync.WaitGroup

	for _, subnet := range subnets {
		for _, host := range hostsIn(subnet) {
			if ctx.Err() != nil {
				wg.Wait()
				return ctx.Err()
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				defer func() { <-sem }()
				if descr, ok := snmpSysDescr(ctx, ip); ok {
					record(model.ScanRecord{
						ScanType: ScanTypeSNMP,
						IP:       ip,
						SysDescr: descr,
					})
				}
			}(host.String())
		}
	}
	wg.Wait()
	return ctx.Err()
}

// snmpSysDescr performs one SNMPv2c GET for sysDescr.
func snmpSysDescr(ctx context.Context, ip string) (string, bool) {
	conn, err := net.Dial("udp4", net.JoinHostPort(ip, "161"))
	if err != nil {
		return "", false
	}
	defer conn.Close()
	_ = conn.SetDeadline(deadlineFor(ctx))

	if _, err := conn.Write(encodeSNMPGet(0x1337, "public")); err != nil {
		return "", false
	}

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		return "", false
	}

	descr, err := decodeSNMPResponse(buf[:n])
	if err != nil || descr == "" {
		return "", false
	}
	return descr, true
}

// encodeSNMPGet builds a minimal SNMPv2c GetRequest PDU for sysDescr.
// Message layout: SEQUENCE { version INTEGER, community OCTET STRING,
// GetRequest-PDU { request-id, error-status, error-index, varbind-list } }.
func encodeSNMPGet(requestID int32, community string) []byte {
	oid := berTLV(0x06, sysDescrOID)
	varbind := berTLV(0x30, append(oid, berTLV(0x05, nil)...)) // value NULL
	varbindList := berTLV(0x30, varbind)

	pdu := berInt(requestID)
	pdu = append(pdu, berInt(0)...) // error-status
	pdu = append(pdu, berInt(0)...) // error-index
	pdu = append(pdu, varbindList...)

	msg := berInt(1) // version: SNMPv2c
	msg = append(msg, berTLV(0x04, []byte(community))...)
	msg = append(msg, berTLV(0xa0, pdu)...) // GetRequest-PDU
	return berTLV(0x30, msg)
}

// decodeSNMPResponse walks the response far enough to pull the first
// varbind's OCTET STRING value.
func decodeSNMPResponse(data []byte) (string, error) {
	body, err := berEnter(data, 0x30) // message
	if err != nil {
		return "", err
	}
	body, err = berSkip(body) // version
	if err != nil {
		return "", err
	}
	body, err = berSkip(body) // community
	if err != nil {
		return "", err
	}
	pdu, err := berEnter(body, 0xa2) // GetResponse-PDU
	if err != nil {
		return "", err
	}
	for i := 0; i < 3; i++ { // request-id, error-status, error-index
		pdu, err = berSkip(pdu)
		if err != nil {
			return "", err
		}
	}
	varbindList, err := berEnter(pdu, 0x30)
	if err != nil {
		return "", err
	}
	varbind, err := berEnter(varbindList, 0x30)
	if err != nil {
		return "", err
	}
	value, err := berSkip(varbind) // OID
	if err != nil {
		return "", err
	}
	if len(value) < 2 || value[0] != 0x04 {
		return "", errors.New("sysDescr value is not an octet string")
	}
	content, _, err := berValue(value)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// berTLV encodes tag-length-value with definite lengths up to two bytes.
func berTLV(tag byte, value []byte) []byte {
	out := []byte{tag}
	n := len(value)
	switch {
	case n < 0x80:
		out = append(out, byte(n))
	case n < 0x100:
		out = append(out, 0x81, byte(n))
	default:
		out = append(out, 0x82, byte(n>>8), byte(n))
	}
	return append(out, value...)
}

func berInt(v int32) []byte {
	if v == 0 {
		return berTLV(0x02, []byte{0})
	}
	var content []byte
	for v > 0 {
		content = append([]byte{byte(v & 0xff)}, content...)
		v >>= 8
	}
	if content[0]&0x80 != 0 {
		content = append([]byte{0}, content...)
	}
	return berTLV(0x02, content)
}

// berValue splits one TLV, returning its content and the remainder.
func berValue(data []byte) (content, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, errors.New("truncated TLV")
	}
	length := int(data[1])
	offset := 2
	if length&0x80 != 0 {
		lenBytes := length & 0x7f
		if lenBytes == 0 || lenBytes > 2 || len(data) < 2+lenBytes {
			return nil, nil, errors.New("unsupported TLV length")
		}
		length = 0
		for i := 0; i < lenBytes; i++ {
			length = length<<8 | int(data[2+i])
		}
		offset = 2 + lenBytes
	}
	if len(data) < offset+length {
		return nil, nil, errors.New("TLV extends beyond packet")
	}
	return data[offset : offset+length], data[offset+length:], nil
}

// berEnter asserts the tag and returns the TLV content.
func berEnter(data []byte, tag byte) ([]byte, error) {
	if len(data) == 0 || data[0] != tag {
		return nil, errors.New("unexpected BER tag")
	}
	content, _, err := berValue(data)
	return content, err
}

// berSkip drops one TLV and returns what follows.
func berSkip(data []byte) ([]byte, error) {
	_, rest, err := berValue(data)
	return rest, err
}

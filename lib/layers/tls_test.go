package lib_layers

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildClientHello assembles a minimal TLS 1.2 ClientHello record with the
// given SNI hostname.
func buildClientHello(sni string, alpn []string) []byte {
	var extensions []byte

	if sni != "" {
		name := []byte(sni)
		entry := make([]byte, 0, len(name)+3)
		entry = append(entry, 0x00) // host_name
		entry = binary.BigEndian.AppendUint16(entry, uint16(len(name)))
		entry = append(entry, name...)

		ext := make([]byte, 0, len(entry)+2)
		ext = binary.BigEndian.AppendUint16(ext, uint16(len(entry)))
		ext = append(ext, entry...)

		extensions = binary.BigEndian.AppendUint16(extensions, 0x0000)
		extensions = binary.BigEndian.AppendUint16(extensions, uint16(len(ext)))
		extensions = append(extensions, ext...)
	}

	if len(alpn) > 0 {
		var list []byte
		for _, p := range alpn {
			list = append(list, byte(len(p)))
			list = append(list, p...)
		}
		ext := binary.BigEndian.AppendUint16(nil, uint16(len(list)))
		ext = append(ext, list...)

		extensions = binary.BigEndian.AppendUint16(extensions, 0x0010)
		extensions = binary.BigEndian.AppendUint16(extensions, uint16(len(ext)))
		extensions = append(extensions, ext...)
	}

	body := []byte{0x03, 0x03}             // client_version TLS 1.2
	body = append(body, make([]byte, 32)...) // random
	body = append(body, 0)                 // session_id length
	body = binary.BigEndian.AppendUint16(body, 2)
	body = append(body, 0xc0, 0x2f) // one cipher suite
	body = append(body, 1, 0)       // null compression
	body = binary.BigEndian.AppendUint16(body, uint16(len(extensions)))
	body = append(body, extensions...)

	handshake := []byte{tlsHandshakeTypeClientHello, 0, 0, 0}
	handshake[1] = byte(len(body) >> 16)
	handshake[2] = byte(len(body) >> 8)
	handshake[3] = byte(len(body))
	handshake = append(handshake, body...)

	record := []byte{byte(TLSHandshake), 0x03, 0x01}
	record = binary.BigEndian.AppendUint16(record, uint16(len(handshake)))
	return append(record, handshake...)
}

func TestParseClientHelloSNI(t *testing.T) {
	hello, err := ParseClientHello(buildClientHello("example.com", nil))
	require.NoError(t, err)
	assert.Equal(t, "example.com", hello.SNI)
	assert.Equal(t, "TLS 1.2", hello.Version.String())
}

func TestParseClientHelloALPN(t *testing.T) {
	hello, err := ParseClientHello(buildClientHello("api.example.com", []string{"h2", "http/1.1"}))
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", hello.SNI)
	assert.Equal(t, []string{"h2", "http/1.1"}, hello.ALPNProtocols)
}

func TestParseClientHelloNoExtensions(t *testing.T) {
	hello, err := ParseClientHello(buildClientHello("", nil))
	require.NoError(t, err)
	assert.Empty(t, hello.SNI)
}

func TestParseClientHelloRejectsNonTLS(t *testing.T) {
	_, err := ParseClientHello([]byte("GET / HTTP/1.1\r\n"))
	assert.Error(t, err)

	_, err = ParseClientHello([]byte{0x17, 0x03, 0x03, 0x00, 0x05, 1, 2, 3, 4, 5})
	assert.Error(t, err)

	_, err = ParseClientHello([]byte{0x16, 0x03})
	assert.Error(t, err)
}

func TestParseClientHelloTruncated(t *testing.T) {
	full := buildClientHello("example.com", nil)
	for _, cut := range []int{6, 20, 44} {
		_, err := ParseClientHello(full[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestSanitizeHostname(t *testing.T) {
	assert.Equal(t, "example.com", sanitizeHostname("example.com"))
	assert.Equal(t, "bad.com", sanitizeHostname("evil\x00bad.com"))
	assert.Equal(t, "", sanitizeHostname("a.com\x7f"))
}

package lib_layers

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeNetBIOSNameRoundTrip(t *testing.T) {
	encoded := EncodeNetBIOSName("WORKSTATION", 0x00)
	require.Len(t, encoded, 34)
	assert.Equal(t, byte(32), encoded[0])
	assert.Equal(t, byte(0), encoded[33])

	name, next, err := decodeNetBIOSName(encoded, 0)
	require.NoError(t, err)
	assert.Equal(t, "WORKSTATION", name)
	assert.Equal(t, 34, next)
}

func TestNodeStatusRequestShape(t *testing.T) {
	req := NodeStatusRequest(0xBEEF)
	require.Len(t, req, 50)
	assert.Equal(t, uint16(0xBEEF), binary.BigEndian.Uint16(req[0:2]))
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(req[4:6]))
	// Question type NBSTAT, class IN at the tail
	assert.Equal(t, uint16(0x0021), binary.BigEndian.Uint16(req[46:48]))
	assert.Equal(t, uint16(0x0001), binary.BigEndian.Uint16(req[48:50]))
}

// buildNodeStatusResponse assembles an NBSTAT response with the given names
// and unit id.
func buildNodeStatusResponse(names []NetBIOSName, mac [6]byte) []byte {
	out := make([]byte, 12)
	binary.BigEndian.PutUint16(out[0:2], 0xBEEF)
	binary.BigEndian.PutUint16(out[2:4], 0x8400)
	binary.BigEndian.PutUint16(out[6:8], 1)

	out = append(out, EncodeNetBIOSName("*", 0x00)...)
	out = binary.BigEndian.AppendUint16(out, 0x0021)
	out = binary.BigEndian.AppendUint16(out, 0x0001)
	out = append(out, 0, 0, 0, 0) // TTL

	rdata := []byte{byte(len(names))}
	for _, n := range names {
		entry := make([]byte, 18)
		copy(entry, n.Name)
		for i := len(n.Name); i < 15; i++ {
			entry[i] = ' '
		}
		entry[15] = n.Suffix
		binary.BigEndian.PutUint16(entry[16:18], n.Flags)
		rdata = append(rdata, entry...)
	}
	rdata = append(rdata, mac[:]...)

	out = binary.BigEndian.AppendUint16(out, uint16(len(rdata)))
	return append(out, rdata...)
}

func TestNetBIOSDecodeNodeStatusResponse(t *testing.T) {
	payload := buildNodeStatusResponse([]NetBIOSName{
		{Name: "WORKGROUP", Suffix: 0x00, Flags: 0x8400},
		{Name: "MIKESPC", Suffix: 0x00, Flags: 0x0400},
		{Name: "MIKESPC", Suffix: 0x20, Flags: 0x0400},
	}, [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55})

	nb := &NetBIOS{}
	require.NoError(t, nb.DecodeFromBytes(payload, nil))

	assert.True(t, nb.IsResponse)
	require.Len(t, nb.Names, 3)
	assert.True(t, nb.Names[0].IsGroup())
	assert.False(t, nb.Names[1].IsGroup())
	assert.Equal(t, "MIKESPC", nb.MachineName())
	assert.Equal(t, "00:11:22:33:44:55", nb.MAC)
}

func TestNetBIOSDecodeTruncated(t *testing.T) {
	nb := &NetBIOS{}
	assert.Error(t, nb.DecodeFromBytes([]byte{1, 2, 3}, nil))

	// Header claiming a question with nothing following
	short := make([]byte, 12)
	binary.BigEndian.PutUint16(short[4:6], 1)
	assert.Error(t, nb.DecodeFromBytes(short, nil))
}

func TestNetBIOSQueryDecode(t *testing.T) {
	query := NodeStatusRequest(0x0102)
	nb := &NetBIOS{}
	require.NoError(t, nb.DecodeFromBytes(query, nil))
	assert.False(t, nb.IsResponse)
	assert.Equal(t, "*", nb.QueryName)
	assert.Equal(t, uint16(0x0021), nb.QueryType)
	assert.Empty(t, nb.MachineName())
}

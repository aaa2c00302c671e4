package server

import (
	"net"
	"testing"

	"github.com/pires/go-proxyproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func proxyHeader(t *testing.T, version byte, src string) []byte {
	t.Helper()
	h := &proxyproto.Header{
		Version:           version,
		Command:           proxyproto.PROXY,
		TransportProtocol: proxyproto.TCPv4,
		SourceAddr:        &net.TCPAddr{IP: net.ParseIP(src), Port: 51000},
		DestinationAddr:   &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 25565},
	}
	b, err := h.Format()
	require.NoError(t, err)
	return b
}

func TestProxyHeaderLen(t *testing.T) {
	for _, version := range []byte{1, 2} {
		header := proxyHeader(t, version, "203.0.113.9")
		stream := append(append([]byte{}, header...), 0x10, 0x00)

		n, err := proxyHeaderLen(stream)
		require.NoError(t, err, "v%d", version)
		assert.Equal(t, len(header), n, "v%d", version)

		for i := 1; i < len(header); i++ {
			n, err := proxyHeaderLen(header[:i])
			require.NoError(t, err, "v%d prefix %d", version, i)
			assert.Zero(t, n, "v%d prefix %d", version, i)
		}

		h, err := parseProxyHeader(stream[:n])
		require.NoError(t, err)
		assert.Equal(t, "203.0.113.9:51000", h.SourceAddr.String())
	}
}

func TestProxyHeaderLen_NotProxy(t *testing.T) {
	_, err := proxyHeaderLen([]byte{0x10, 0x00, 0xFE})
	assert.ErrorIs(t, err, ErrNotProxyHeader)
}

func TestProxyHeaderLen_V1TooLong(t *testing.T) {
	line := append([]byte("PROXY TCP4 "), make([]byte, proxyV1MaxLen)...)
	_, err := proxyHeaderLen(line)
	assert.ErrorIs(t, err, ErrNotProxyHeader)
}

// Feature: proxy-protocol, Property 1: Arbitrary Prefix Rejection
// *For any* stream whose first byte can start neither header signature, the
// PROXY header check SHALL fail immediately.
func TestProxyHeaderRejectsGarbage_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		first := rapid.Byte().Filter(func(b byte) bool {
			return b != proxyproto.SIGV1[0] && b != proxyproto.SIGV2[0]
		}).Draw(t, "first")
		rest := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "rest")

		if _, err := proxyHeaderLen(append([]byte{first}, rest...)); err == nil {
			t.Fatalf("accepted stream starting with 0x%02X", first)
		}
	})
}

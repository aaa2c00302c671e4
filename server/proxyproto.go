package server

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pires/go-proxyproto"
)

const (
	proxyV1MaxLen    = 107
	proxyV2HeaderLen = 16
)

var ErrNotProxyHeader = errors.New("stream does not start with a PROXY header")

// proxyHeaderLen returns the size of the PROXY header at the start of buf, or
// zero when more bytes are needed to tell.
func proxyHeaderLen(buf []byte) (int, error) {
	switch {
	case hasPrefix(buf, proxyproto.SIGV2):
		if len(buf) < proxyV2HeaderLen {
			return 0, nil
		}
		n := proxyV2HeaderLen + int(binary.BigEndian.Uint16(buf[14:16]))
		if len(buf) < n {
			return 0, nil
		}
		return n, nil
	case hasPrefix(buf, proxyproto.SIGV1):
		window := buf
		if len(window) > proxyV1MaxLen {
			window = window[:proxyV1MaxLen]
		}
		if i := bytes.Index(window, []byte("\r\n")); i >= 0 {
			return i + 2, nil
		}
		if len(buf) >= proxyV1MaxLen {
			return 0, fmt.Errorf("%w: v1 line exceeds %d bytes", ErrNotProxyHeader, proxyV1MaxLen)
		}
		return 0, nil
	default:
		return 0, ErrNotProxyHeader
	}
}

// hasPrefix reports whether buf and sig agree on their common length, so a
// short buffer that could still become sig counts as a match.
func hasPrefix(buf, sig []byte) bool {
	n := min(len(buf), len(sig))
	return bytes.Equal(buf[:n], sig[:n])
}

// parseProxyHeader decodes one complete header as measured by proxyHeaderLen.
func parseProxyHeader(header []byte) (*proxyproto.Header, error) {
	h, err := proxyproto.Read(bufio.NewReader(bytes.NewReader(header)))
	if err != nil {
		return nil, fmt.Errorf("parse PROXY header: %w", err)
	}
	return h, nil
}

// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package transport wires the prompeg core to UDP sockets, optional
// per-datagram compression and encryption, and multicast TTL control.
package transport

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"github.com/xtaci/prompegtun/prompeg"
)

var baseAddrMatcher = regexp.MustCompile(`(.*):([0-9]{1,5})$`)

// TripleAddr is a parsed "host:baseport" endpoint plus the two derived
// ports the Pro-MPEG CoP#3-R2 wire layout fixes row-FEC and column-FEC
// to (base+2 for row, base+4 for column).
type TripleAddr struct {
	Host     string
	BasePort int
}

// MediaAddr, RowFECAddr, ColFECAddr format the three "host:port" strings
// for net.ResolveUDPAddr / net.DialUDP.
func (t TripleAddr) MediaAddr() string  { return joinHostPort(t.Host, t.BasePort) }
func (t TripleAddr) RowFECAddr() string { return joinHostPort(t.Host, t.BasePort+2) }
func (t TripleAddr) ColFECAddr() string { return joinHostPort(t.Host, t.BasePort+4) }

func joinHostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// ParseTripleAddr parses a "host:baseport" listener or dialer address,
// the transport-layer counterpart of prompeg's in-memory matrix
// configuration. The regexp-driven shape is narrowed from a port
// *range* parser to the single base port CoP#3-R2 needs (row/col live
// at fixed offsets, not a caller-chosen range).
func ParseTripleAddr(addr string) (TripleAddr, error) {
	matches := baseAddrMatcher.FindStringSubmatch(addr)
	if len(matches) != 3 {
		return TripleAddr{}, errors.Errorf("transport: malformed address %q", addr)
	}

	port, err := strconv.Atoi(matches[2])
	if err != nil {
		return TripleAddr{}, errors.Wrapf(err, "transport: invalid port in %q", addr)
	}
	if err := prompeg.ValidateBasePort(port); err != nil {
		return TripleAddr{}, errors.Errorf("transport: base port %d out of range", port)
	}

	return TripleAddr{Host: matches[1], BasePort: port}, nil
}

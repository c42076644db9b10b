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

package transport

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// CompressDatagram snappy-compresses a single UDP datagram. Like
// snappy.Encode, it reuses dst's backing array when len(dst) is large
// enough for the encoded block and allocates a fresh buffer
// otherwise; it does not append starting from len(dst). Adapted from
// std/comp.go's CompStream, which wraps a continuous net.Conn in a
// snappy.Writer/Reader pair; FEC packets arrive as independent
// datagrams rather than a byte stream, so this uses snappy's block API
// instead of the streaming one.
func CompressDatagram(dst, src []byte) []byte {
	return snappy.Encode(dst, src)
}

// DecompressDatagram reverses CompressDatagram, with the same
// reuse-if-big-enough semantics as snappy.Decode.
func DecompressDatagram(dst, src []byte) ([]byte, error) {
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, errors.Wrap(err, "transport: snappy decode")
	}
	return out, nil
}

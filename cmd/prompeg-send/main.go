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

package main

import (
	"io"
	"log"
	"os"

	"github.com/urfave/cli"
	"github.com/xtaci/prompegtun/prompeg"
	"github.com/xtaci/prompegtun/transport"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func checkError(err error) {
	if err != nil {
		log.Fatal("fatal: ", err)
	}
}

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "prompeg-send"
	myApp.Usage = "Pro-MPEG CoP#3-R2 FEC encoder for an MPEG-TS-over-RTP stream"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "source, s",
			Value: ":5004",
			Usage: "local \"host:port\" to receive already-packetized RTP media from an upstream source",
		},
		cli.StringFlag{
			Name:  "remoteaddr, r",
			Value: "239.1.1.1:5000",
			Usage: `destination "host:baseport"; row-FEC and col-FEC are sent to baseport+2 and baseport+4`,
		},
		cli.IntFlag{
			Name:  "l",
			Value: 5,
			Usage: "FEC matrix row width L (4-20)",
		},
		cli.IntFlag{
			Name:  "d",
			Value: 5,
			Usage: "FEC matrix column height D (4-20)",
		},
		cli.IntFlag{
			Name:  "ttl",
			Value: 16,
			Usage: "multicast time-to-live",
		},
		cli.BoolFlag{
			Name:  "bitexact",
			Usage: "force deterministic row/col FEC sequence numbers starting at 0",
		},
		cli.StringFlag{
			Name:  "key",
			Usage: "pre-shared secret for per-datagram encryption; empty disables encryption",
		},
		cli.StringFlag{
			Name:  "crypt",
			Value: "none",
			Usage: "none, xor, aes-gcm, sm4-ctr, blowfish, salsa20",
		},
		cli.BoolFlag{
			Name:  "comp",
			Usage: "enable snappy compression of FEC packets",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		l, d := c.Int("l"), c.Int("d")
		addr, err := transport.ParseTripleAddr(c.String("remoteaddr"))
		checkError(err)

		source, err := transport.ListenLocal(c.String("source"))
		checkError(err)
		defer source.Close()

		dest, err := transport.DialTriple(addr, c.Int("ttl"))
		checkError(err)
		defer dest.Close()

		rowSink, colSink := dest.RowSink(), dest.ColSink()

		if key := c.String("key"); key != "" {
			cipher, name := transport.SelectCipher(c.String("crypt"), transport.DeriveKey(key))
			log.Println("encryption:", name)
			rowSink = cipherSink{rowSink, cipher}
			colSink = cipherSink{colSink, cipher}
		}
		if c.Bool("comp") {
			rowSink = compSink{rowSink}
			colSink = compSink{colSink}
		}

		encoder, err := prompeg.NewEncoder(prompeg.EncoderConfig{
			L:        l,
			D:        d,
			TTL:      c.Int("ttl"),
			BitExact: c.Bool("bitexact"),
		}, rowSink, colSink)
		checkError(err)

		log.Println("version:", VERSION)
		log.Println("source:", source.LocalAddr())
		log.Println("destination:", addr.MediaAddr(), addr.RowFECAddr(), addr.ColFECAddr())
		log.Println("matrix:", l, "x", d)

		buf := make([]byte, 65536)
		for {
			n, err := source.Read(buf)
			if err == io.EOF {
				return nil
			}
			checkError(err)
			if _, err := dest.Media.Write(buf[:n]); err != nil {
				log.Println("media forward:", err)
			}
			if err := encoder.Absorb(buf, n); err != nil {
				log.Println("absorb:", err)
			}
		}
	}

	checkError(myApp.Run(os.Args))
}

// cipherSink and compSink adapt transport.Cipher / compression to
// prompeg.Sink, mirroring the write-side stacking client/main.go does
// around its kcp session (crypt, then compression).
type cipherSink struct {
	next   prompeg.Sink
	cipher transport.Cipher
}

func (s cipherSink) WriteFEC(buf []byte) error {
	sealed := s.cipher.Seal(nil, buf)
	return s.next.WriteFEC(sealed)
}

type compSink struct{ next prompeg.Sink }

func (s compSink) WriteFEC(buf []byte) error {
	compressed := transport.CompressDatagram(nil, buf)
	return s.next.WriteFEC(compressed)
}


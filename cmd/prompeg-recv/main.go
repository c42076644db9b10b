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
	"context"
	"encoding/binary"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"
	"github.com/xtaci/prompegtun/prompeg"
	"github.com/xtaci/prompegtun/snmp"
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
	myApp.Name = "prompeg-recv"
	myApp.Usage = "Pro-MPEG CoP#3-R2 FEC decoder for an MPEG-TS-over-RTP stream"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listenaddr, l",
			Value: "239.1.1.1:5000",
			Usage: `source "host:baseport"; row-FEC and col-FEC are expected on baseport+2 and baseport+4`,
		},
		cli.StringFlag{
			Name:  "out, o",
			Value: ":5006",
			Usage: `destination "host:port" to forward recovered media to`,
		},
		cli.IntFlag{
			Name:  "l",
			Value: 5,
			Usage: "FEC matrix row width L (4-20), must match the sender",
		},
		cli.IntFlag{
			Name:  "d",
			Value: 5,
			Usage: "FEC matrix column height D (4-20), must match the sender",
		},
		cli.IntFlag{
			Name:  "packetsize",
			Value: 1328,
			Usage: "media RTP packet size in bytes (12-byte header + N*188 TS payload)",
		},
		cli.StringFlag{
			Name:  "key",
			Usage: "pre-shared secret for per-datagram decryption; must match the sender",
		},
		cli.StringFlag{
			Name:  "crypt",
			Value: "none",
			Usage: "none, xor, aes-gcm, sm4-ctr, blowfish, salsa20; must match the sender",
		},
		cli.BoolFlag{
			Name:  "comp",
			Usage: "FEC packets are snappy-compressed; must match the sender",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "log restored-ratio summaries",
		},
		cli.StringFlag{
			Name:  "snmplog",
			Usage: "path to a CSV file to periodically log decoder stats to",
		},
		cli.IntFlag{
			Name:  "snmpperiod",
			Value: 60,
			Usage: "seconds between snmplog writes",
		},
	}

	myApp.Action = func(c *cli.Context) error {
		l, d := c.Int("l"), c.Int("d")
		addr, err := transport.ParseTripleAddr(c.String("listenaddr"))
		checkError(err)

		src, err := transport.ListenTriple(addr)
		checkError(err)
		defer src.Close()

		out, err := transport.ListenLocal(":0")
		checkError(err)
		defer out.Close()
		outAddr, err := net.ResolveUDPAddr("udp", c.String("out"))
		checkError(err)

		packetSize := c.Int("packetsize")
		fecPacketSize := 16 + 12 + (packetSize - 12)
		bitstringSize := 8 + (packetSize - 12)

		logger := prompeg.NewLogger(c.Bool("verbose"))
		decoder, err := prompeg.NewDecoder(prompeg.DefaultDecoderConfig(l, d), packetSize, fecPacketSize, bitstringSize, logger)
		checkError(err)

		var unwrap func(dst, src []byte) ([]byte, error)
		if key := c.String("key"); key != "" {
			cipher, name := transport.SelectCipher(c.String("crypt"), transport.DeriveKey(key))
			log.Println("decryption:", name)
			unwrap = func(dst, src []byte) ([]byte, error) { return cipher.Open(dst, src) }
		}
		if c.Bool("comp") {
			prev := unwrap
			unwrap = func(dst, src []byte) ([]byte, error) {
				if prev != nil {
					var err error
					src, err = prev(nil, src)
					if err != nil {
						return nil, err
					}
				}
				return transport.DecompressDatagram(dst, src)
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		go func() {
			<-sig
			cancel()
		}()

		var statsStop chan struct{}
		if path := c.String("snmplog"); path != "" {
			statsStop = make(chan struct{})
			go snmp.Logger(path, time.Duration(c.Int("snmpperiod"))*time.Second, decoder, statsStop)
			defer close(statsStop)
		}

		log.Println("version:", VERSION)
		log.Println("listening on:", addr.MediaAddr(), addr.RowFECAddr(), addr.ColFECAddr())
		log.Println("matrix:", l, "x", d)
		log.Println("packet size:", packetSize)

		mediaScratch := transport.NewBufferPool(packetSize + 64)
		fecScratch := transport.NewBufferPool(fecPacketSize + 64)
		go ingestLoop(ctx, src.Media, packetSize, prompeg.Media, decoder, nil, mediaScratch)
		go ingestLoop(ctx, src.RowFEC, fecPacketSize, prompeg.FECRowPacket, decoder, unwrap, fecScratch)
		go ingestLoop(ctx, src.ColFEC, fecPacketSize, prompeg.FECColPacket, decoder, unwrap, fecScratch)

		outBuf := make([]byte, packetSize)
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			n, err := decoder.ReadPacket(outBuf)
			if err == prompeg.ErrWouldBlock {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			checkError(err)
			if _, err := out.WriteToUDP(outBuf[:n], outAddr); err != nil {
				log.Println("media out:", err)
			}
		}
	}

	checkError(myApp.Run(os.Args))
}

// ingestLoop reads datagrams of the given wire size from conn, reverses
// any compression/encryption, and hands them to the decoder as typ
// packets, until ctx is cancelled. A nil unwrap passes datagrams through
// unchanged. scratch supplies the destination buffer handed to unwrap;
// the none and aes-gcm decrypt paths write into it, while the other
// ciphers and snappy decoding allocate their own output.
func ingestLoop(ctx context.Context, conn *net.UDPConn, size int, typ prompeg.PacketType, decoder *prompeg.Decoder, unwrap func(dst, src []byte) ([]byte, error), scratch *transport.BufferPool) {
	buf := make([]byte, size+64) // headroom for compression/encryption overhead
	for {
		n, err := transport.ReadPacket(ctx, conn, buf)
		if err != nil {
			return
		}
		payload := buf[:n]
		if unwrap != nil {
			dst := scratch.Get()
			payload, err = unwrap(dst[:0], payload)
			if err != nil {
				log.Println("unwrap:", err)
				scratch.Put(dst)
				continue
			}
			if err := decoder.AddPacket(typ, packetIndex(typ, payload), payload); err != nil {
				log.Println("add packet:", err)
			}
			scratch.Put(dst)
			continue
		}
		if err := decoder.AddPacket(typ, packetIndex(typ, payload), payload); err != nil {
			log.Println("add packet:", err)
		}
	}
}

// packetIndex extracts the store key for a packet: a media packet's
// own RTP sequence number, or a FEC packet's base media sequence
// number (the "SN Base" field, carried at byte offset 12 on the wire,
// distinct from the FEC packet's own sequence number at offset 2).
func packetIndex(typ prompeg.PacketType, payload []byte) uint16 {
	if typ == prompeg.Media {
		return binary.BigEndian.Uint16(payload[2:4])
	}
	return binary.BigEndian.Uint16(payload[12:14])
}

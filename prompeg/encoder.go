package prompeg

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Sink receives a fully-formed on-wire FEC packet. Implementations are
// expected to write buf to a transport (typically UDP) before
// returning; Encoder does not retain buf past the call.
type Sink interface {
	WriteFEC(buf []byte) error
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(buf []byte) error

// WriteFEC implements Sink.
func (f SinkFunc) WriteFEC(buf []byte) error { return f(buf) }

// Encoder absorbs a sequence of MPEG-TS-over-RTP media packets and
// emits row-FEC and column-FEC packets to two sinks per the CoP#3-R2
// L×D matrix scheme. It is single-threaded and cooperative: Absorb must
// not be called concurrently with itself.
type Encoder struct {
	cfg      EncoderConfig
	rowSink  Sink
	colSink  Sink

	packetSize     int
	bitstringSize  int
	fecPacketSize  int
	initialized    bool

	packetIdx int
	first     bool

	fecRow    *fecAccumulator
	fecCol    []*fecAccumulator // "ready to emit", released at block boundary
	fecColTmp []*fecAccumulator // in-progress for the current block

	rtpColSN uint16
	rtpRowSN uint16

	wire []byte // scratch on-wire FEC buffer, reused across emits
	bs   []byte // scratch bitstring, reused across absorb calls
}

// NewEncoder constructs an Encoder with the given matrix shape and
// output sinks. The engine does not observe packet_size until the first
// call to Absorb.
func NewEncoder(cfg EncoderConfig, rowSink, colSink Sink) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rowSink == nil || colSink == nil {
		return nil, errors.WithStack(ErrInvalidArgument)
	}
	return &Encoder{cfg: cfg, rowSink: rowSink, colSink: colSink, first: true}, nil
}

// init observes the packet size from the first absorbed packet and
// allocates the 1+2L accumulators.
func (e *Encoder) init(size int) error {
	if size < rtpHeaderSize || size > 0xffff+rtpHeaderSize {
		return errors.WithStack(ErrInvalidFormat)
	}

	e.packetSize = size
	e.bitstringSize = bitstringSize(size)
	e.fecPacketSize = fecPacketSize(size)

	e.fecRow = newFecAccumulator(e.bitstringSize)
	e.fecCol = make([]*fecAccumulator, e.cfg.L)
	e.fecColTmp = make([]*fecAccumulator, e.cfg.L)
	for i := range e.fecCol {
		e.fecCol[i] = newFecAccumulator(e.bitstringSize)
		e.fecColTmp[i] = newFecAccumulator(e.bitstringSize)
	}

	e.wire = make([]byte, e.fecPacketSize)
	e.bs = make([]byte, e.bitstringSize)

	if e.cfg.BitExact {
		e.rtpColSN, e.rtpRowSN = 0, 0
	} else if e.cfg.Seed != 0 {
		e.rtpColSN = uint16(e.cfg.Seed & 0x0fff)
		e.rtpRowSN = uint16((e.cfg.Seed >> 16) & 0x0fff)
	} else {
		var seedBuf [4]byte
		if _, err := rand.Read(seedBuf[:]); err != nil {
			return errors.WithStack(err)
		}
		seed := binary.BigEndian.Uint32(seedBuf[:])
		e.rtpColSN = uint16(seed & 0x0fff)
		e.rtpRowSN = uint16((seed >> 16) & 0x0fff)
	}

	e.packetIdx = 0
	e.initialized = true

	return nil
}

// Absorb feeds one media RTP packet into the matrix, emitting row-FEC
// and/or column-FEC packets to the configured sinks as dictated by the
// L×D block's emission schedule.
func (e *Encoder) Absorb(rtp []byte, size int) error {
	if !e.initialized {
		if err := e.init(size); err != nil {
			return err
		}
	}

	// Every packet, including the first, is checked against the
	// MPEG-TS-over-RTP header shape and the now-fixed packet size,
	// independently of and after the one-time init above.
	if err := validateMediaHeader(rtp[:size]); err != nil {
		return errors.WithStack(err)
	}
	if size != e.packetSize {
		return errors.WithStack(ErrInvalidFormat)
	}

	packMediaBitstring(e.bs, rtp, size)

	l, d := e.cfg.L, e.cfg.D
	c := e.packetIdx % l
	r := (e.packetIdx / l) % d

	sn := be16(rtp[2:4])
	ts := be32(rtp[4:8])

	// row update
	if c == 0 {
		if !e.first || e.packetIdx > 0 {
			if err := e.emit(e.fecRow, FecRow); err != nil {
				return err
			}
		}
		copy(e.fecRow.bitstring, e.bs)
		e.fecRow.sn = sn
		e.fecRow.ts = ts
	} else {
		xorBytes(e.fecRow.bitstring, e.fecRow.bitstring, e.bs)
	}

	// column update, into the in-progress ("tmp") slot
	if r == 0 {
		if !e.first {
			e.fecCol[c], e.fecColTmp[c] = e.fecColTmp[c], e.fecCol[c]
		}
		copy(e.fecColTmp[c].bitstring, e.bs)
		e.fecColTmp[c].sn = sn
		e.fecColTmp[c].ts = ts
	} else {
		xorBytes(e.fecColTmp[c].bitstring, e.fecColTmp[c].bitstring, e.bs)
	}

	// column emission: block-aligned, one per packet of the new block's
	// first row, spread across D media packets.
	if !e.first && e.packetIdx%d == 0 {
		colOutIdx := e.packetIdx / d
		if err := e.emit(e.fecCol[colOutIdx], FecCol); err != nil {
			return err
		}
	}

	e.packetIdx++
	if e.packetIdx >= l*d {
		e.packetIdx = 0
		e.first = false
	}

	return nil
}

// emit packs and writes a row or column FEC packet, advancing that
// stream's own monotonic RTP sequence number.
func (e *Encoder) emit(acc *fecAccumulator, typ FecType) error {
	var sn uint16
	if typ == FecCol {
		e.rtpColSN++
		sn = e.rtpColSN
	} else {
		e.rtpRowSN++
		sn = e.rtpRowSN
	}

	packFecPacket(e.wire, acc, sn, typ, e.cfg.L, e.cfg.D)

	sink := e.rowSink
	if typ == FecCol {
		sink = e.colSink
	}
	if err := sink.WriteFEC(e.wire); err != nil {
		return errors.Wrap(err, "prompeg: fec sink write")
	}
	return nil
}

// PacketSize reports the constant media RTP packet size observed from
// the first Absorb call, or 0 if no packet has been absorbed yet.
func (e *Encoder) PacketSize() int { return e.packetSize }

// BitstringSize reports the derived bitstring size, or 0 if
// uninitialized.
func (e *Encoder) BitstringSize() int { return e.bitstringSize }

// FECPacketSize reports the on-wire FEC packet size, or 0 if
// uninitialized.
func (e *Encoder) FECPacketSize() int { return e.fecPacketSize }

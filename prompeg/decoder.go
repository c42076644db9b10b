package prompeg

import "github.com/google/btree"

// PacketType distinguishes the three kinds of packet a Decoder ingests.
type PacketType int

const (
	// Media is a reconstructed or directly-received MPEG-TS-over-RTP
	// packet.
	Media PacketType = iota
	// FECRowPacket is an on-wire row-FEC packet.
	FECRowPacket
	// FECColPacket is an on-wire column-FEC packet.
	FECColPacket
)

// Decoder reconstructs a media stream from a mix of media, row-FEC and
// column-FEC packets using row-FEC, column-FEC, and iterative 2-D matrix
// recovery. It is single-threaded and cooperative. Sequence numbers are
// compared as plain uint16 values with no wraparound handling, so a
// session that runs past 2^16 media packets needs a fresh Decoder.
type Decoder struct {
	cfg DecoderConfig

	packetSize    int
	fecPacketSize int
	bitstringSize int

	media  *store
	fecRow *store
	fecCol *store

	nextIndex           uint16
	firstFecPacketIndex uint16
	nextFecRow          *storedPacket
	nextFecCol          *storedPacket

	// primed goes true on the first ingested media packet; ReadPacket
	// refuses to emit anything until then, since nextIndex is
	// meaningless before a media packet has set it.
	primed bool

	restoredPackets uint64
	failedPackets   uint64

	restoreBuffer []*storedPacket // sized max(L,D)
	scratch       []byte
	tmp           []byte

	log *Logger
}

// NewDecoder constructs a Decoder for the given matrix shape, wire
// sizes and buffering policy. packetSize, fecPacketSize and
// bitstringSize must agree with the producing Encoder's derivation.
func NewDecoder(cfg DecoderConfig, packetSize, fecPacketSize, bitstringSize int, logger *Logger) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if packetSize < rtpHeaderSize || fecPacketSize < fecHeaderSize+12 || bitstringSize < 8 {
		return nil, ErrInvalidArgument
	}
	if logger == nil {
		logger = nopLogger
	}

	restoreSlots := cfg.L
	if cfg.D > restoreSlots {
		restoreSlots = cfg.D
	}

	return &Decoder{
		cfg:           cfg,
		packetSize:    packetSize,
		fecPacketSize: fecPacketSize,
		bitstringSize: bitstringSize,
		media:         newStore(),
		fecRow:        newStore(),
		fecCol:        newStore(),
		restoreBuffer: make([]*storedPacket, restoreSlots),
		scratch:       make([]byte, bitstringSize),
		tmp:           make([]byte, bitstringSize),
		log:           logger,
	}, nil
}

// RestoredPackets returns the cumulative count of packets reconstructed
// via FEC.
func (d *Decoder) RestoredPackets() uint64 { return d.restoredPackets }

// FailedPackets returns the cumulative count of packets that could not
// be restored and were forcibly skipped.
func (d *Decoder) FailedPackets() uint64 { return d.failedPackets }

// RestoredRatio reports restored / (restored + failed) as a percentage
// (0-100), matching prompeg_restored_ratio, or -1 if nothing has been
// restored yet.
func (d *Decoder) RestoredRatio() float64 {
	total := d.restoredPackets + d.failedPackets
	if d.restoredPackets == 0 {
		return -1
	}
	return float64(d.restoredPackets) / float64(total) * 100
}

// MediaCount, FECRowCount, FECColCount report the three store sizes.
func (d *Decoder) MediaCount() int  { return d.media.count }
func (d *Decoder) FECRowCount() int { return d.fecRow.count }
func (d *Decoder) FECColCount() int { return d.fecCol.count }

// AddPacket ingests one packet of the given type at the given index. A
// nil return does not imply the packet was stored — it may have been
// silently dropped as out-of-window, at FEC capacity, or a duplicate of
// an already-stored index.
func (d *Decoder) AddPacket(typ PacketType, index uint16, bytes []byte) error {
	expected := d.packetSize
	if typ != Media {
		expected = d.fecPacketSize
	}
	if len(bytes) != expected {
		return ErrInvalidArgument
	}

	if index <= d.firstFecPacketIndex {
		return nil
	}

	buf := make([]byte, len(bytes))
	copy(buf, bytes)

	switch typ {
	case FECRowPacket:
		if d.fecRow.count >= d.cfg.MaxBufferedFECPackets {
			d.log.Error("reached maximum of FEC row packets, dropping new packet\n")
			return nil
		}
		if err := d.fecRow.insert(index, buf); err != nil {
			return nil // duplicate: idempotent no-op
		}
		return nil

	case FECColPacket:
		if d.fecCol.count >= d.cfg.MaxBufferedFECPackets {
			d.log.Error("reached maximum of FEC col packets, dropping new packet\n")
			return nil
		}
		if err := d.fecCol.insert(index, buf); err != nil {
			return nil
		}
		return nil

	default:
		d.primed = true
		if d.nextIndex == 0 ||
			(d.media.count < d.cfg.MinBufferedPackets && d.nextIndex <= index) {
			d.nextIndex = index
		}
		if err := d.media.insert(index, buf); err != nil {
			return nil
		}
		return nil
	}
}

// rowFecFor finds a row-FEC whose base index b satisfies
// b <= packetIndex < b+L. Ambiguity is resolved by the last match
// encountered during ascending traversal, an unconditional
// overwrite-on-match enumeration.
func (d *Decoder) rowFecFor(packetIndex uint16) *storedPacket {
	var found *storedPacket
	l := d.cfg.L
	pk := int(packetIndex)
	d.fecRow.tree.Ascend(func(it btree.Item) bool {
		p := it.(*storedPacket)
		idx := int(p.index)
		if idx <= pk && pk < idx+l {
			found = p
		}
		return true
	})
	return found
}

// colFecFor finds a column-FEC whose base index b satisfies
// b + c*L == packetIndex for some c in [0,D).
func (d *Decoder) colFecFor(packetIndex uint16) *storedPacket {
	var found *storedPacket
	l, dim := d.cfg.L, d.cfg.D
	pk := int(packetIndex)
	d.fecCol.tree.Ascend(func(it btree.Item) bool {
		p := it.(*storedPacket)
		idx := int(p.index)
		for c := 0; c < dim; c++ {
			if idx+c*l == pk {
				found = p
				break
			}
		}
		return true
	})
	return found
}

// restorePacketsBuffer reconstructs the single missing packet described
// by restoreBuffer[:bufLen] (all-but-one present) using fecPacket's
// bitstring, the shared restoration routine behind restoreRow/restoreCol.
func (d *Decoder) restorePacketsBuffer(index uint16, bufLen int, typ PacketType, fecPacket *storedPacket) uint16 {
	packFecBitstring(d.scratch, fecPacket.bytes, d.fecPacketSize)

	var m uint8
	var ssrc uint32
	first := true
	for i := 0; i < bufLen; i++ {
		sib := d.restoreBuffer[i]
		if sib == nil {
			continue
		}
		if first {
			m = sib.bytes[1] >> 7
			ssrc = be32(sib.bytes[8:12])
			first = false
		}
		packMediaBitstring(d.tmp, sib.bytes, d.packetSize)
		xorBytes(d.scratch, d.scratch, d.tmp)
	}

	restored := make([]byte, d.packetSize)
	restoreMedia(restored, d.scratch, m, ssrc, index)

	kind := "col"
	if typ == FECRowPacket {
		kind = "row"
	}
	d.restoredPackets++
	d.log.Info("Restored lost packet at index %d using FEC %s\n", index, kind)
	d.log.Verbose("Restored ratio: %.02f%%, packets count: %d, FEC row packets count: %d, FEC col packets count: %d\n",
		d.RestoredRatio(), d.media.count, d.fecRow.count, d.fecCol.count)

	// Insertion here cannot be a duplicate in normal flow: the gate in
	// restoreRow/restoreCol that calls this only fires when index was
	// absent from media.
	_ = d.media.insert(index, restored)

	return index
}

// restoreRow attempts single-erasure row recovery from fecRowPkt.
// Returns the restored index, or 0 if zero or >=2 of the L protected
// packets are missing.
func (d *Decoder) restoreRow(fecRowPkt *storedPacket) uint16 {
	present := 0
	var missing uint16
	base := fecRowPkt.index
	for i := 0; i < d.cfg.L; i++ {
		idx := base + uint16(i)
		p := d.media.find(idx)
		d.restoreBuffer[i] = p
		if p != nil {
			present++
		} else {
			missing = idx
		}
	}
	if present != d.cfg.L-1 {
		return 0
	}
	return d.restorePacketsBuffer(missing, d.cfg.L, FECRowPacket, fecRowPkt)
}

// restoreCol attempts single-erasure column recovery from fecColPkt.
func (d *Decoder) restoreCol(fecColPkt *storedPacket) uint16 {
	present := 0
	var missing uint16
	base := fecColPkt.index
	l := d.cfg.L
	for i := 0; i < d.cfg.D; i++ {
		idx := base + uint16(i*l)
		p := d.media.find(idx)
		d.restoreBuffer[i] = p
		if p != nil {
			present++
		} else {
			missing = idx
		}
	}
	if present != d.cfg.D-1 {
		return 0
	}
	return d.restorePacketsBuffer(missing, d.cfg.D, FECColPacket, fecColPkt)
}

// restoreMatrix runs the iterative row/column erasure decoder over the
// current block, returning true if nextIndex was restored.
func (d *Decoder) restoreMatrix() bool {
	for {
		restoredThisPass := 0

		for i := 0; i < d.cfg.D; i++ {
			base := d.firstFecPacketIndex + uint16(i*d.cfg.L)
			fec := d.fecRow.find(base)
			if fec == nil {
				continue
			}
			restored := d.restoreRow(fec)
			if restored == d.nextIndex && restored != 0 {
				return true
			}
			if restored != 0 {
				restoredThisPass++
			}
		}

		for i := 0; i < d.cfg.L; i++ {
			base := d.firstFecPacketIndex + uint16(i)
			fec := d.fecCol.find(base)
			if fec == nil {
				continue
			}
			restored := d.restoreCol(fec)
			if restored == d.nextIndex && restored != 0 {
				return true
			}
			if restored != 0 {
				restoredThisPass++
			}
		}

		if restoredThisPass == 0 {
			return false
		}
	}
}

// populateFecData refreshes the cached nextFecRow/nextFecCol candidates
// and recomputes firstFecPacketIndex.
func (d *Decoder) populateFecData() {
	if d.nextFecRow == nil {
		d.nextFecRow = d.rowFecFor(d.nextIndex)
	}
	if d.nextFecCol == nil {
		d.nextFecCol = d.colFecFor(d.nextIndex)
	}

	if d.nextFecRow != nil && d.nextFecCol != nil {
		d.firstFecPacketIndex = d.nextFecCol.index - d.nextIndex + d.nextFecRow.index
	} else if block := uint16(d.cfg.L * d.cfg.D); d.nextIndex >= block {
		d.firstFecPacketIndex = d.nextIndex - block
	} else {
		// Clamp instead of letting the uint16 subtraction wrap to near
		// 65535, which would prune every store and reject all input.
		d.firstFecPacketIndex = 0
	}
}

// getNextPacket attempts to produce the packet at nextIndex: direct
// lookup, then row-restore, then col-restore, then full matrix restore.
func (d *Decoder) getNextPacket() *storedPacket {
	if p := d.media.find(d.nextIndex); p != nil {
		return p
	}

	d.populateFecData()

	restored := uint16(0)
	if d.nextFecRow != nil {
		restored = d.restoreRow(d.nextFecRow)
	}
	if restored == 0 && d.nextFecCol != nil {
		restored = d.restoreCol(d.nextFecCol)
	}
	if restored == 0 && d.nextFecRow != nil && d.nextFecCol != nil {
		if d.restoreMatrix() {
			restored = d.nextIndex
		}
	}
	if restored == 0 {
		return nil
	}
	return d.media.find(d.nextIndex)
}

// returnPacket copies packet's bytes out, advances nextIndex, prunes
// all three stores up to the new window, and returns packetSize.
func (d *Decoder) returnPacket(packet *storedPacket, out []byte) int {
	copy(out, packet.bytes)
	d.nextIndex = packet.index + 1
	d.nextFecRow, d.nextFecCol = nil, nil
	d.populateFecData()

	d.media.pruneUpTo(d.firstFecPacketIndex)
	d.fecCol.pruneUpTo(d.firstFecPacketIndex)
	d.fecRow.pruneUpTo(d.firstFecPacketIndex)

	return d.packetSize
}

// ReadPacket implements the read-out policy: direct emission when
// nextIndex is already present or FEC-restorable, ErrWouldBlock while
// priming or waiting for more input, and a forced drop (skipping the
// unrecoverable gap) once MaxBufferedPackets is reached.
func (d *Decoder) ReadPacket(out []byte) (int, error) {
	if len(out) < d.packetSize {
		return 0, ErrInvalidArgument
	}
	if !d.primed || d.media.count < d.cfg.MinBufferedPackets {
		return 0, ErrWouldBlock
	}

	if packet := d.getNextPacket(); packet != nil {
		return d.returnPacket(packet, out), nil
	}

	if d.media.count < d.cfg.MaxBufferedPackets {
		return 0, ErrWouldBlock
	}

	packet := d.media.firstAtOrAfter(d.nextIndex)
	if packet == nil {
		return 0, ErrWouldBlock
	}

	d.failedPackets++
	d.log.Error("Could not restore lost packet at index %d\n", d.nextIndex)
	d.log.Verbose("Restored ratio: %.02f%%, packets count: %d, FEC row packets count: %d, FEC col packets count: %d\n",
		d.RestoredRatio(), d.media.count, d.fecRow.count, d.fecCol.count)

	return d.returnPacket(packet, out), nil
}

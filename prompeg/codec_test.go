package prompeg

import "testing"

func TestValidateMediaHeader(t *testing.T) {
	good := []byte{0x80, 0x21, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0}
	if err := validateMediaHeader(good); err != nil {
		t.Fatalf("expected valid header to pass, got %v", err)
	}

	cases := map[string][]byte{
		"too short":     {0x80, 0x21, 0, 1},
		"bad version":   {0x40, 0x21, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
		"wrong payload": {0x80, 0x60, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	for name, buf := range cases {
		if err := validateMediaHeader(buf); err == nil {
			t.Fatalf("%s: expected error, got nil", name)
		}
	}
}

func TestPackMediaBitstring(t *testing.T) {
	rtp := []byte{0x80, 0x21, 0x00, 0x07, 0x00, 0x00, 0x03, 0xe8, 0x12, 0x34, 0x56, 0x78, 0xaa, 0xbb}
	size := len(rtp)
	dst := make([]byte, bitstringSize(size))
	packMediaBitstring(dst, rtp, size)

	if dst[0] != rtp[0]&0x3f {
		t.Fatalf("byte 0: got %#x, want %#x", dst[0], rtp[0]&0x3f)
	}
	if dst[1] != rtp[1] {
		t.Fatalf("byte 1: got %#x, want %#x", dst[1], rtp[1])
	}
	for i := 0; i < 4; i++ {
		if dst[2+i] != rtp[4+i] {
			t.Fatalf("timestamp byte %d mismatch", i)
		}
	}
	if got := be16(dst[6:8]); got != uint16(size-rtpHeaderSize) {
		t.Fatalf("payload length field: got %d, want %d", got, size-rtpHeaderSize)
	}
	if dst[8] != 0xaa || dst[9] != 0xbb {
		t.Fatalf("payload bytes not copied correctly: %x", dst[8:])
	}
}

func TestPackFecPacketHeaderFields(t *testing.T) {
	packetSize := 20
	bsz := bitstringSize(packetSize)
	acc := newFecAccumulator(bsz)
	acc.sn = 42
	acc.ts = 0x01020304
	for i := range acc.bitstring {
		acc.bitstring[i] = byte(i + 1)
	}

	wire := make([]byte, fecPacketSize(packetSize))
	packFecPacket(wire, acc, 7, FecRow, 4, 5)

	if got := be16(wire[2:4]); got != 7 {
		t.Fatalf("wire SN: got %d, want 7", got)
	}
	if got := be32(wire[4:8]); got != acc.ts {
		t.Fatalf("wire TS: got %#x, want %#x", got, acc.ts)
	}
	if got := be16(wire[12:14]); got != acc.sn {
		t.Fatalf("wire SN base: got %d, want %d", got, acc.sn)
	}
	// row FEC: D bit (0x40) set in the extension byte, L stored at [26]
	if wire[24] != 0x40 {
		t.Fatalf("row FEC marker byte: got %#x, want 0x40", wire[24])
	}
	if wire[26] != 4 {
		t.Fatalf("L byte: got %d, want 4", wire[26])
	}

	wireCol := make([]byte, fecPacketSize(packetSize))
	packFecPacket(wireCol, acc, 7, FecCol, 4, 5)
	if wireCol[24] != 0x00 {
		t.Fatalf("col FEC marker byte: got %#x, want 0x00", wireCol[24])
	}
	if wireCol[25] != 4 || wireCol[26] != 5 {
		t.Fatalf("col L/D bytes: got %d/%d, want 4/5", wireCol[25], wireCol[26])
	}
}

func TestRestoreMediaRebuildsHeader(t *testing.T) {
	bsz := bitstringSize(20)
	bitstring := make([]byte, bsz)
	bitstring[0] = 0x00 // V/P/X/CC nibble, post &0x3f
	bitstring[1] = 0x21 // PT
	putBE32(bitstring[2:6], 0x0000beef)
	for i := 8; i < len(bitstring); i++ {
		bitstring[i] = byte(i)
	}

	out := make([]byte, 20)
	restoreMedia(out, bitstring, 1, 0xcafebabe, 99)

	if out[0] != 0x80 {
		t.Fatalf("V/P bits: got %#x, want 0x80", out[0])
	}
	if out[1] != 0xa1 { // 0x21 | (1<<7)
		t.Fatalf("PT/M byte: got %#x, want 0xa1", out[1])
	}
	if got := be16(out[2:4]); got != 99 {
		t.Fatalf("sequence number: got %d, want 99", got)
	}
	if got := be32(out[4:8]); got != 0xbeef {
		t.Fatalf("timestamp: got %#x, want 0xbeef", got)
	}
	if got := be32(out[8:12]); got != 0xcafebabe {
		t.Fatalf("ssrc: got %#x, want 0xcafebabe", got)
	}
	for i := 12; i < 20; i++ {
		if out[i] != bitstring[i-12+8] {
			t.Fatalf("payload byte %d mismatch", i)
		}
	}
}

func TestFecTypeString(t *testing.T) {
	if FecRow.String() != "row" {
		t.Fatalf("FecRow.String() = %q, want row", FecRow.String())
	}
	if FecCol.String() != "col" {
		t.Fatalf("FecCol.String() = %q, want col", FecCol.String())
	}
}

package prompeg

import "testing"

func TestNewEncoderValidation(t *testing.T) {
	row, col := &capturingSink{}, &capturingSink{}
	if _, err := NewEncoder(EncoderConfig{L: 2, D: 4}, row, col); err == nil {
		t.Fatal("expected error for out-of-range L")
	}
	if _, err := NewEncoder(EncoderConfig{L: 4, D: 4}, nil, col); err == nil {
		t.Fatal("expected error for nil row sink")
	}
	if _, err := NewEncoder(EncoderConfig{L: 4, D: 4}, row, nil); err == nil {
		t.Fatal("expected error for nil col sink")
	}
}

func TestEncoderAbsorbEmitSchedule(t *testing.T) {
	const l, d = 4, 4
	row, col := &capturingSink{}, &capturingSink{}
	enc, err := NewEncoder(EncoderConfig{L: l, D: d, BitExact: true}, row, col)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	const payloadLen = 8
	for i := 0; i < 2*l*d; i++ {
		sn := uint16(i + 1)
		pkt := buildRTP(sn, 1000+uint32(sn), 0xaabbccdd, payloadLen)
		if err := enc.Absorb(pkt, len(pkt)); err != nil {
			t.Fatalf("Absorb(%d): %v", sn, err)
		}
	}

	// First block's rows trickle out as each row completes (D-1 of them);
	// the final row of block one only flushes once block two starts,
	// giving 2D-1 row packets total after exactly two full blocks.
	if want := 2*d - 1; len(row.packets) != want {
		t.Fatalf("row packets emitted = %d, want %d", len(row.packets), want)
	}
	// No column accumulator is "ready" until the block it covers is
	// fully absorbed, so block one's L columns only flush during block
	// two.
	if want := l; len(col.packets) != want {
		t.Fatalf("col packets emitted = %d, want %d", len(col.packets), want)
	}

	if got := be16(row.packets[0][2:4]); got != 1 {
		t.Fatalf("first row packet's own SN = %d, want 1 (BitExact)", got)
	}
	if got := be16(col.packets[0][2:4]); got != 1 {
		t.Fatalf("first col packet's own SN = %d, want 1 (BitExact)", got)
	}

	if enc.PacketSize() != rtpHeaderSize+payloadLen {
		t.Fatalf("PacketSize() = %d, want %d", enc.PacketSize(), rtpHeaderSize+payloadLen)
	}
	if enc.FECPacketSize() != fecPacketSize(enc.PacketSize()) {
		t.Fatalf("FECPacketSize() mismatch")
	}
}

func TestEncoderRejectsSizeChange(t *testing.T) {
	row, col := &capturingSink{}, &capturingSink{}
	enc, err := NewEncoder(EncoderConfig{L: 4, D: 4}, row, col)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	first := buildRTP(1, 1000, 1, 8)
	if err := enc.Absorb(first, len(first)); err != nil {
		t.Fatalf("first Absorb: %v", err)
	}
	second := buildRTP(2, 1001, 1, 16)
	if err := enc.Absorb(second, len(second)); err == nil {
		t.Fatal("expected error when packet size changes mid-stream")
	}
}

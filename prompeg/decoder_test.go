package prompeg

import "testing"

func TestNewDecoderValidation(t *testing.T) {
	if _, err := NewDecoder(DecoderConfig{L: 2, D: 4}, 20, 36, 16, nil); err == nil {
		t.Fatal("expected error for out-of-range L")
	}
	if _, err := NewDecoder(DefaultDecoderConfig(4, 4), 4, 36, 16, nil); err == nil {
		t.Fatal("expected error for packetSize below rtpHeaderSize")
	}
}

func TestDecoderAddPacketRejectsWrongLength(t *testing.T) {
	dec, err := NewDecoder(DefaultDecoderConfig(4, 4), 20, 36, 16, nil)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if err := dec.AddPacket(Media, 1, make([]byte, 19)); err == nil {
		t.Fatal("expected error for undersized media packet")
	}
	if err := dec.AddPacket(FECRowPacket, 1, make([]byte, 35)); err == nil {
		t.Fatal("expected error for undersized FEC packet")
	}
}

func TestDecoderAddPacketDuplicateIsNoop(t *testing.T) {
	dec, err := NewDecoder(DefaultDecoderConfig(4, 4), 20, 36, 16, nil)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	pkt := buildRTP(5, 1000, 1, 8)
	if err := dec.AddPacket(Media, 5, pkt); err != nil {
		t.Fatalf("first AddPacket: %v", err)
	}
	if err := dec.AddPacket(Media, 5, pkt); err != nil {
		t.Fatalf("duplicate AddPacket should be a silent no-op, got %v", err)
	}
	if dec.MediaCount() != 1 {
		t.Fatalf("MediaCount() = %d, want 1", dec.MediaCount())
	}
}

// TestDecoderRestoresDroppedPacket drives an Encoder over two full
// matrix blocks, drops one media packet from block one (which by then
// has both row and column FEC available), and checks that ReadPacket
// reconstructs it byte-for-byte while advancing RestoredPackets.
func TestDecoderRestoresDroppedPacket(t *testing.T) {
	const l, d = 4, 4
	const payloadLen = 8
	const droppedSN = uint16(10)

	rowSink, colSink := &capturingSink{}, &capturingSink{}
	enc, err := NewEncoder(EncoderConfig{L: l, D: d, BitExact: true}, rowSink, colSink)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	originals := make(map[uint16][]byte)
	for i := 0; i < 2*l*d; i++ {
		sn := uint16(i + 1)
		pkt := buildRTP(sn, 2000+uint32(sn), 0xcafed00d, payloadLen)
		originals[sn] = pkt
		if err := enc.Absorb(pkt, len(pkt)); err != nil {
			t.Fatalf("Absorb(%d): %v", sn, err)
		}
	}

	dec, err := NewDecoder(DefaultDecoderConfig(l, d), enc.PacketSize(), enc.FECPacketSize(), enc.BitstringSize(), nil)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	// Feed every media packet from block one (sn 1..16) except the
	// dropped one, in order, so the decoder's startup fast-forward
	// settles on sn 8 (the 8th consecutive packet buffered) rather than
	// skating past the gap.
	for sn := uint16(1); sn <= 16; sn++ {
		if sn == droppedSN {
			continue
		}
		if err := dec.AddPacket(Media, sn, originals[sn]); err != nil {
			t.Fatalf("AddPacket media %d: %v", sn, err)
		}
	}

	for _, fec := range rowSink.packets {
		idx := be16(fec[12:14])
		if err := dec.AddPacket(FECRowPacket, idx, fec); err != nil {
			t.Fatalf("AddPacket row-fec %d: %v", idx, err)
		}
	}
	for _, fec := range colSink.packets {
		idx := be16(fec[12:14])
		if err := dec.AddPacket(FECColPacket, idx, fec); err != nil {
			t.Fatalf("AddPacket col-fec %d: %v", idx, err)
		}
	}

	out := make([]byte, enc.PacketSize())
	var gotSNs []uint16
	for i := 0; i < 3; i++ {
		n, err := dec.ReadPacket(out)
		if err != nil {
			t.Fatalf("ReadPacket() call %d: %v", i, err)
		}
		if n != enc.PacketSize() {
			t.Fatalf("ReadPacket() returned length %d, want %d", n, enc.PacketSize())
		}
		sn := be16(out[2:4])
		gotSNs = append(gotSNs, sn)

		want := originals[sn]
		for j := 0; j < n; j++ {
			if out[j] != want[j] {
				t.Fatalf("packet sn=%d byte %d: got %#x, want %#x", sn, j, out[j], want[j])
			}
		}
	}

	wantSNs := []uint16{8, 9, droppedSN}
	for i, want := range wantSNs {
		if gotSNs[i] != want {
			t.Fatalf("ReadPacket() order = %v, want %v", gotSNs, wantSNs)
		}
	}

	if dec.RestoredPackets() != 1 {
		t.Fatalf("RestoredPackets() = %d, want 1", dec.RestoredPackets())
	}
	if dec.FailedPackets() != 0 {
		t.Fatalf("FailedPackets() = %d, want 0", dec.FailedPackets())
	}
}

// TestDecoderRestoresRowViaIterativeMatrix drops every packet in one
// row plus one more packet sharing that row's first column. Neither the
// dropped row's own row-FEC (too many losses) nor the shared column's
// own column-FEC (two losses) can restore directly, so recovery only
// converges through restoreMatrix: the row's other three columns each
// have a single loss and restore directly, which fills in the row's
// last missing column down to a single loss, letting the row-FEC finish
// the job. sn=13 is the only loss in its own row, so that row's row-FEC
// restores it during the first matrix pass. This exercises both
// restoreCol and the iterative restoreMatrix loop, neither of which
// TestDecoderRestoresDroppedPacket reaches.
func TestDecoderRestoresRowViaIterativeMatrix(t *testing.T) {
	const l, d = 4, 4
	const payloadLen = 8

	rowSink, colSink := &capturingSink{}, &capturingSink{}
	enc, err := NewEncoder(EncoderConfig{L: l, D: d, BitExact: true}, rowSink, colSink)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	originals := make(map[uint16][]byte)
	for i := 0; i < 2*l*d; i++ {
		sn := uint16(i + 1)
		pkt := buildRTP(sn, 4000+uint32(sn), 0xfeedface, payloadLen)
		originals[sn] = pkt
		if err := enc.Absorb(pkt, len(pkt)); err != nil {
			t.Fatalf("Absorb(%d): %v", sn, err)
		}
	}

	dec, err := NewDecoder(DefaultDecoderConfig(l, d), enc.PacketSize(), enc.FECPacketSize(), enc.BitstringSize(), nil)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	// Drop row r2 (sn 9..12) whole, plus sn=13 (row r3, same first
	// column as sn=9). sn 1..8 stay intact so the decoder's startup
	// fast-forward settles on sn=8.
	dropped := map[uint16]bool{9: true, 10: true, 11: true, 12: true, 13: true}
	for sn := uint16(1); sn <= 16; sn++ {
		if dropped[sn] {
			continue
		}
		if err := dec.AddPacket(Media, sn, originals[sn]); err != nil {
			t.Fatalf("AddPacket media %d: %v", sn, err)
		}
	}

	for _, fec := range rowSink.packets {
		idx := be16(fec[12:14])
		if err := dec.AddPacket(FECRowPacket, idx, fec); err != nil {
			t.Fatalf("AddPacket row-fec %d: %v", idx, err)
		}
	}
	for _, fec := range colSink.packets {
		idx := be16(fec[12:14])
		if err := dec.AddPacket(FECColPacket, idx, fec); err != nil {
			t.Fatalf("AddPacket col-fec %d: %v", idx, err)
		}
	}

	out := make([]byte, enc.PacketSize())
	var gotSNs []uint16
	for i := 0; i < 6; i++ {
		n, err := dec.ReadPacket(out)
		if err != nil {
			t.Fatalf("ReadPacket() call %d: %v", i, err)
		}
		sn := be16(out[2:4])
		gotSNs = append(gotSNs, sn)

		want := originals[sn]
		for j := 0; j < n; j++ {
			if out[j] != want[j] {
				t.Fatalf("packet sn=%d byte %d: got %#x, want %#x", sn, j, out[j], want[j])
			}
		}
	}

	wantSNs := []uint16{8, 9, 10, 11, 12, 13}
	for i, want := range wantSNs {
		if gotSNs[i] != want {
			t.Fatalf("ReadPacket() order = %v, want %v", gotSNs, wantSNs)
		}
	}

	if dec.RestoredPackets() != 5 {
		t.Fatalf("RestoredPackets() = %d, want 5 (sn 9,10,11,12,13)", dec.RestoredPackets())
	}
	if dec.FailedPackets() != 0 {
		t.Fatalf("FailedPackets() = %d, want 0", dec.FailedPackets())
	}
}

func TestDecoderForcedDropOnUnrecoverableGap(t *testing.T) {
	cfg := DecoderConfig{
		L: 4, D: 4,
		MinBufferedPackets:    1,
		MaxBufferedPackets:    3,
		MaxPacketGap:          60,
		MaxBufferedFECPackets: 10,
	}
	dec, err := NewDecoder(cfg, 20, 36, 16, nil)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	// sn=100 establishes next_index; sn 102..104 arrive with no FEC at
	// all, so sn=101 can never be recovered and must eventually be
	// skipped once MaxBufferedPackets is reached.
	for _, sn := range []uint16{100, 102, 103, 104} {
		pkt := buildRTP(sn, 3000+uint32(sn), 1, 8)
		if err := dec.AddPacket(Media, sn, pkt); err != nil {
			t.Fatalf("AddPacket %d: %v", sn, err)
		}
	}

	out := make([]byte, 20)
	n, err := dec.ReadPacket(out) // sn=100, direct hit
	if err != nil {
		t.Fatalf("ReadPacket 1: %v", err)
	}
	if be16(out[2:4]) != 100 {
		t.Fatalf("first ReadPacket sn = %d, want 100", be16(out[:n][2:4]))
	}

	n, err = dec.ReadPacket(out) // sn=101 missing, forced drop over the gap
	if err != nil {
		t.Fatalf("ReadPacket 2: %v", err)
	}
	if be16(out[:n][2:4]) != 102 {
		t.Fatalf("second ReadPacket sn = %d, want 102 (forced drop past the gap)", be16(out[:n][2:4]))
	}
	if dec.FailedPackets() != 1 {
		t.Fatalf("FailedPackets() = %d, want 1", dec.FailedPackets())
	}
}

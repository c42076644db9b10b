package prompeg

// Matrix bounds enforced at open time.
const (
	MinMatrixDim   = 4
	MaxMatrixDim   = 20
	MaxMatrixCells = 100

	// MinBasePort and MaxBasePort bound the media UDP port; row-FEC and
	// column-FEC live at +2 and +4.
	MinBasePort = 1
	MaxBasePort = 65531
)

// Default decoder buffering knobs.
const (
	DefaultMinBufferedPackets    = 8
	DefaultMaxBufferedPackets    = 50
	DefaultMaxPacketGap          = 60
	DefaultMaxBufferedFECPackets = 60
)

// EncoderConfig parametrizes a new Encoder.
type EncoderConfig struct {
	// L is the row width (matrix columns), in [4,20].
	L int
	// D is the column height (matrix rows), in [4,20].
	D int
	// TTL is a multicast time-to-live hint, passed through to the
	// transport layer; the core never reads it itself.
	TTL int
	// BitExact forces deterministic row/column FEC sequence numbers
	// starting at 0, matching FFmpeg's AVFMT_FLAG_BITEXACT behaviour.
	// When false, Seed is used if non-zero, else a fresh random seed is
	// drawn.
	BitExact bool
	// Seed, when non-zero and BitExact is false, deterministically
	// derives the initial row/column FEC sequence numbers instead of
	// drawing from crypto/rand.
	Seed uint32
}

// Validate checks the matrix-shape bounds.
func (c EncoderConfig) Validate() error {
	if c.L < MinMatrixDim || c.L > MaxMatrixDim {
		return ErrInvalidArgument
	}
	if c.D < MinMatrixDim || c.D > MaxMatrixDim {
		return ErrInvalidArgument
	}
	if c.L*c.D > MaxMatrixCells {
		return ErrInvalidArgument
	}
	return nil
}

// DecoderConfig parametrizes a new Decoder.
type DecoderConfig struct {
	L, D int

	// MinBufferedPackets is the minimum media-packet buffering before
	// read_packet will emit anything.
	MinBufferedPackets int
	// MaxBufferedPackets is the capacity that triggers forced-drop
	// read-out when no restoration is possible.
	MaxBufferedPackets int
	// MaxPacketGap is accepted and validated but never consulted by the
	// restore/read-out path (see DESIGN.md Open Questions).
	MaxPacketGap int
	// MaxBufferedFECPackets caps each of the row/column FEC sets.
	MaxBufferedFECPackets int
}

// Validate checks the matrix-shape bounds and non-negativity of the
// buffering knobs.
func (c DecoderConfig) Validate() error {
	if c.L < MinMatrixDim || c.L > MaxMatrixDim {
		return ErrInvalidArgument
	}
	if c.D < MinMatrixDim || c.D > MaxMatrixDim {
		return ErrInvalidArgument
	}
	if c.L*c.D > MaxMatrixCells {
		return ErrInvalidArgument
	}
	if c.MinBufferedPackets < 0 || c.MaxBufferedPackets < 0 ||
		c.MaxPacketGap < 0 || c.MaxBufferedFECPackets < 0 {
		return ErrInvalidArgument
	}
	return nil
}

// DefaultDecoderConfig returns the default buffering knobs for the given
// matrix shape.
func DefaultDecoderConfig(l, d int) DecoderConfig {
	return DecoderConfig{
		L: l, D: d,
		MinBufferedPackets:    DefaultMinBufferedPackets,
		MaxBufferedPackets:    DefaultMaxBufferedPackets,
		MaxPacketGap:          DefaultMaxPacketGap,
		MaxBufferedFECPackets: DefaultMaxBufferedFECPackets,
	}
}

// ValidateBasePort checks the UDP base port bounds: row-FEC and
// column-FEC live at +2 and +4, so the base port must leave room for
// both.
func ValidateBasePort(port int) error {
	if port < MinBasePort || port > MaxBasePort {
		return ErrInvalidArgument
	}
	return nil
}

package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/prompegtun/prompeg"
	"golang.org/x/net/ipv4"
)

// pollInterval bounds how long a cancellable read blocks before
// re-checking ctx, the transport-layer stand-in for an interrupt
// callback.
const pollInterval = 200 * time.Millisecond

// Triple holds the three UDP sockets a CoP#3-R2 endpoint needs: media,
// row-FEC (base+2) and column-FEC (base+4).
type Triple struct {
	Media  *net.UDPConn
	RowFEC *net.UDPConn
	ColFEC *net.UDPConn
}

// DialTriple opens three UDP sockets connected to a destination's
// media/row-FEC/col-FEC ports, for the sender side to write to. When
// host is a multicast address, ttl sets the outgoing multicast
// time-to-live via golang.org/x/net/ipv4 — the TTL knob is honored by
// the transport, not the core; for a unicast destination ttl is
// ignored.
func DialTriple(addr TripleAddr, ttl int) (*Triple, error) {
	media, err := net.Dial("udp", addr.MediaAddr())
	if err != nil {
		return nil, errors.Wrap(err, "transport: dial media")
	}
	row, err := net.Dial("udp", addr.RowFECAddr())
	if err != nil {
		media.Close()
		return nil, errors.Wrap(err, "transport: dial row-fec")
	}
	col, err := net.Dial("udp", addr.ColFECAddr())
	if err != nil {
		media.Close()
		row.Close()
		return nil, errors.Wrap(err, "transport: dial col-fec")
	}

	t := &Triple{
		Media:  media.(*net.UDPConn),
		RowFEC: row.(*net.UDPConn),
		ColFEC: col.(*net.UDPConn),
	}

	if ttl > 0 && isMulticast(addr.Host) {
		for _, c := range []*net.UDPConn{t.Media, t.RowFEC, t.ColFEC} {
			ipv4.NewPacketConn(c).SetMulticastTTL(ttl)
		}
	}

	return t, nil
}

// ListenTriple opens three UDP sockets bound to the media/row-FEC/
// col-FEC ports for the receiver side to read from. When host is a
// multicast address, each socket joins that group on the default
// interface.
func ListenTriple(addr TripleAddr) (*Triple, error) {
	media, err := net.ListenUDP("udp", localPort(addr.BasePort))
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen media")
	}
	row, err := net.ListenUDP("udp", localPort(addr.BasePort+2))
	if err != nil {
		media.Close()
		return nil, errors.Wrap(err, "transport: listen row-fec")
	}
	col, err := net.ListenUDP("udp", localPort(addr.BasePort+4))
	if err != nil {
		media.Close()
		row.Close()
		return nil, errors.Wrap(err, "transport: listen col-fec")
	}

	t := &Triple{Media: media, RowFEC: row, ColFEC: col}

	if isMulticast(addr.Host) {
		group := &net.UDPAddr{IP: net.ParseIP(addr.Host)}
		for _, c := range []*net.UDPConn{t.Media, t.RowFEC, t.ColFEC} {
			if err := ipv4.NewPacketConn(c).JoinGroup(nil, group); err != nil {
				t.Close()
				return nil, errors.Wrapf(err, "transport: join multicast group %s", addr.Host)
			}
		}
	}

	return t, nil
}

// ListenLocal opens a single UDP socket bound to laddr, for a sender to
// receive already-packetized RTP media from an upstream source (e.g. an
// RTP muxer on the same host) before relaying it and its FEC onward.
func ListenLocal(laddr string) (*net.UDPConn, error) {
	a, err := net.ResolveUDPAddr("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "transport: resolve local address")
	}
	conn, err := net.ListenUDP("udp", a)
	if err != nil {
		return nil, errors.Wrap(err, "transport: listen local")
	}
	return conn, nil
}

func isMulticast(host string) bool {
	ip := net.ParseIP(host)
	return ip != nil && ip.IsMulticast()
}

func localPort(port int) *net.UDPAddr {
	return &net.UDPAddr{Port: port}
}

// Close closes all three sockets.
func (t *Triple) Close() error {
	t.Media.Close()
	t.RowFEC.Close()
	return t.ColFEC.Close()
}

// RowSink and ColSink adapt the row/column sockets to prompeg.Sink.
func (t *Triple) RowSink() prompeg.Sink { return udpSink{t.RowFEC} }
func (t *Triple) ColSink() prompeg.Sink { return udpSink{t.ColFEC} }

type udpSink struct{ conn *net.UDPConn }

func (s udpSink) WriteFEC(buf []byte) error {
	_, err := s.conn.Write(buf)
	return err
}

// ReadPacket reads one datagram from conn into buf, returning
// prompeg.ErrInterrupted if ctx is cancelled before one arrives. It
// polls with a bounded read deadline rather than spawning a reader
// goroutine per call, since UDP reads have no partial-message state to
// abandon on timeout.
func ReadPacket(ctx context.Context, conn *net.UDPConn, buf []byte) (int, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, prompeg.ErrInterrupted
		default:
		}

		conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, err := conn.Read(buf)
		if err == nil {
			return n, nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		return 0, errors.Wrap(err, "transport: read")
	}
}

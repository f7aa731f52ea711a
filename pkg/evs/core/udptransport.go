package core

import (
	"encoding/json"
	"net"
	"sync"

	"github.com/jabolina/go-evs/pkg/evs/types"
)

// wireMessage is the JSON-serializable projection of types.Message used on
// the wire. Spec 6 only requires the semantic fields be preserved and
// allows any bijective encoding when cross-implementation wire compatibility
// is not a goal (it is not, here) — so we keep the teacher's
// json.Marshal-over-the-socket approach (core/transport.go) rather than
// hand-rolling the byte layout.
type wireMessage struct {
	Source types.UUID   `json:"source"`
	Msg    types.Message `json:"msg"`
}

// UDPTransport is a datagram-broadcast Transport: every PassDown is sent to
// every configured peer address by individual unicast UDP writes (no IP
// multicast dependency, so it runs unmodified across container networks).
// This is a stdlib-only component: no dependency in the retrieved pack
// supplies a fetchable reliable group-transport primitive (the teacher's own
// `relt` is pinned to a local filesystem replace directive and is not a
// usable module), so DESIGN.md justifies net.UDPConn directly per spec 0.
type UDPTransport struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	peers   []*net.UDPAddr
	inbound chan InboundMessage
	log     types.Logger
	closed  bool
}

// NewUDPTransport binds listenAddr and will broadcast to peerAddrs.
func NewUDPTransport(listenAddr string, peerAddrs []string, log types.Logger) (*UDPTransport, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	var peers []*net.UDPAddr
	for _, p := range peerAddrs {
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		peers = append(peers, addr)
	}
	t := &UDPTransport{
		conn:    conn,
		peers:   peers,
		inbound: make(chan InboundMessage, 256),
		log:     log,
	}
	go t.poll()
	return t, nil
}

func (t *UDPTransport) poll() {
	buf := make([]byte, 64*1024)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		var wm wireMessage
		if err := json.Unmarshal(buf[:n], &wm); err != nil {
			t.log.Warnf("evs: dropping undecodable datagram: %v", err)
			continue
		}
		select {
		case t.inbound <- InboundMessage{Source: wm.Source, Message: wm.Msg}:
		default:
			t.log.Warnf("evs: inbound queue full, dropping datagram from %s", wm.Source)
		}
	}
}

// PassDown implements Transport.
func (t *UDPTransport) PassDown(msg types.Message) error {
	data, err := json.Marshal(wireMessage{Source: msg.Envelope().Source, Msg: msg})
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, peer := range t.peers {
		if _, err := t.conn.WriteToUDP(data, peer); err != nil {
			return ErrBackpressure
		}
	}
	return nil
}

// Listen implements Transport.
func (t *UDPTransport) Listen() <-chan InboundMessage {
	return t.inbound
}

// Close implements Transport.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

package modbus

import (
	"bytes"
	"net"
	"sync"
	"time"
)

const (
	udpPeerTTL           = 30 * time.Second
	udpPeerSweepInterval = 30 * time.Second
	udpPeerInboxDepth    = 4
)

// udpPeerTransport is a transport facade over a single remote master
// sharing the slave's one UDP socket. Server.handleTransport treats it
// exactly like a per-connection TCP/serial transport: ReadRequest blocks
// for the next frame from this peer, WriteResponse sends the reply back
// to the peer's address. The indirection lets a connectionless protocol
// reuse the same accept-a-connection/serve-it-forever dispatch loop as
// every other transport.
type udpPeerTransport struct {
	sock   *net.UDPConn
	addr   net.Addr
	txnID  uint16
	framer tcpFramer

	reqCh chan *pdu

	lock     sync.Mutex
	lastSeen time.Time

	closeOnce sync.Once
	closeCh   chan struct{}

	// done, if set, is called exactly once after this peer's single
	// in-flight transaction is answered (or abandoned), so the listener
	// can drop its tid->sender record per the "exactly one record per
	// in-flight tid" invariant.
	done func()
}

func newUDPPeerTransport(sock *net.UDPConn, addr net.Addr, txnID uint16) *udpPeerTransport {
	return &udpPeerTransport{
		sock:     sock,
		addr:     addr,
		txnID:    txnID,
		reqCh:    make(chan *pdu, udpPeerInboxDepth),
		lastSeen: time.Now(),
		closeCh:  make(chan struct{}),
	}
}

func (pt *udpPeerTransport) touch() {
	pt.lock.Lock()
	pt.lastSeen = time.Now()
	pt.lock.Unlock()
}

func (pt *udpPeerTransport) idleSince() time.Duration {
	pt.lock.Lock()
	defer pt.lock.Unlock()

	return time.Since(pt.lastSeen)
}

func (pt *udpPeerTransport) ReadRequest() (req *pdu, err error) {
	select {
	case req = <-pt.reqCh:
		return
	case <-pt.closeCh:
		err = ErrTransportIsAlreadyClosed
		return
	}
}

func (pt *udpPeerTransport) WriteResponse(res *pdu) (err error) {
	_, err = pt.sock.WriteTo(pt.framer.encode(pt.txnID, res), pt.addr)

	if pt.done != nil {
		pt.done()
	}

	return
}

// ExecuteRequest is never called: a udpPeerTransport only ever serves as
// the slave side of an exchange.
func (pt *udpPeerTransport) ExecuteRequest(*pdu) (*pdu, error) {
	return nil, ErrUnexpectedParameters
}

func (pt *udpPeerTransport) Close() (err error) {
	pt.closeOnce.Do(func() {
		close(pt.closeCh)
	})

	return
}

// udpSlaveListener fans a single unconnected UDP socket out into one
// udpPeerTransport per in-flight transaction id, invoking onPeer for each
// newly seen transaction id so the caller can serve it the same way it
// serves a freshly accepted TCP connection. Entries idle for longer than
// udpPeerTTL are dropped by a background sweep so a long-running slave
// doesn't accumulate entries for requests that were never answered.
type udpSlaveListener struct {
	logger *logger
	sock   *net.UDPConn
	framer tcpFramer
	onPeer func(*udpPeerTransport, string)

	lock  sync.Mutex
	peers map[uint16]*udpPeerTransport

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newUDPSlaveListener(sock *net.UDPConn, onPeer func(*udpPeerTransport, string)) *udpSlaveListener {
	ul := &udpSlaveListener{
		logger:  newLogger("udp-slave-listener", nil),
		sock:    sock,
		onPeer:  onPeer,
		peers:   make(map[uint16]*udpPeerTransport),
		closeCh: make(chan struct{}),
	}

	go ul.receiveLoop()
	go ul.sweepLoop()

	return ul
}

// receiveLoop frames every inbound datagram as MBAP, matching the udp://
// master (tcp_transport.go's tcpFramer over a udpSockWrapper), and
// correlates each request to its sender by the decoded transaction id
// rather than by source address, per the one-record-per-in-flight-tid
// invariant.
func (ul *udpSlaveListener) receiveLoop() {
	rxbuf := make([]byte, maxTCPFrameLength)

	for {
		n, addr, err := ul.sock.ReadFrom(rxbuf)
		if err != nil {
			return
		}

		p, txnID, derr := ul.framer.decode(bytes.NewReader(rxbuf[:n]))
		if derr != nil {
			ul.logger.Warningf("failed to decode request from %v: %v", addr, derr)
			continue
		}
		// the framer decode holds onto rxbuf's backing array in places
		// (payload slicing): copy it out before the buffer is reused.
		payload := append([]byte{}, p.payload...)
		p = &pdu{unitID: p.unitID, functionCode: p.functionCode, payload: payload}

		ul.lock.Lock()
		pt, found := ul.peers[txnID]
		if !found {
			pt = newUDPPeerTransport(ul.sock, addr, txnID)
			pt.done = func() {
				ul.lock.Lock()
				delete(ul.peers, txnID)
				ul.lock.Unlock()
				pt.Close()
			}
			ul.peers[txnID] = pt
		} else {
			// a retransmit of the same in-flight request: the sender
			// address may have changed (multihomed client), refresh it.
			pt.addr = addr
		}
		ul.lock.Unlock()

		pt.touch()

		if !found {
			go ul.onPeer(pt, addr.String())
		}

		select {
		case pt.reqCh <- p:
		default:
			ul.logger.Warningf("dropping request from %v: inbox full", addr)
		}
	}
}

func (ul *udpSlaveListener) sweepLoop() {
	t := time.NewTicker(udpPeerSweepInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			ul.lock.Lock()
			for key, pt := range ul.peers {
				if pt.idleSince() > udpPeerTTL {
					delete(ul.peers, key)
					pt.Close()
				}
			}
			ul.lock.Unlock()

		case <-ul.closeCh:
			return
		}
	}
}

func (ul *udpSlaveListener) Close() (err error) {
	ul.closeOnce.Do(func() {
		close(ul.closeCh)
		err = ul.sock.Close()

		ul.lock.Lock()
		for key, pt := range ul.peers {
			pt.Close()
			delete(ul.peers, key)
		}
		ul.lock.Unlock()
	})

	return
}

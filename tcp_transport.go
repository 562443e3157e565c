package modbus

import (
	"fmt"
	"log"
	"net"
	"time"
)

// tcpTransport runs MBAP framing (framer_tcp.go) over a net.Conn-like
// link, tracking the outstanding transaction id and skipping frames that
// don't belong to the current exchange rather than failing on them.
type tcpTransport struct {
	logger    *logger
	link      link
	framer    tcpFramer
	timeout   time.Duration
	lastTxnID uint16
}

func newTCPTransport(l link, timeout time.Duration, customLogger *log.Logger) *tcpTransport {
	addr := ""
	if nc, ok := l.(net.Conn); ok {
		addr = nc.RemoteAddr().String()
	}

	return &tcpTransport{
		link:    l,
		timeout: timeout,
		logger:  newLogger(fmt.Sprintf("tcp-transport(%s)", addr), customLogger),
	}
}

func (tt *tcpTransport) Close() (err error) {
	return tt.link.Close()
}

func (tt *tcpTransport) ExecuteRequest(req *pdu) (*pdu, error) {
	if err := tt.link.SetDeadline(time.Now().Add(tt.timeout)); err != nil {
		return nil, err
	}

	tt.lastTxnID++
	if tt.lastTxnID == 0 {
		// skip 0 on wraparound: 0 is a valid txId but indistinguishable
		// from the zero value of an unset counter.
		tt.lastTxnID++
	}

	if _, err := tt.link.Write(tt.framer.encode(tt.lastTxnID, req)); err != nil {
		return nil, err
	}

	return tt.readResponse()
}

func (tt *tcpTransport) ReadRequest() (*pdu, error) {
	if err := tt.link.SetDeadline(time.Now().Add(tt.timeout)); err != nil {
		return nil, err
	}

	req, txnID, err := tt.framer.decode(tt.link)
	if err != nil {
		return nil, err
	}

	tt.lastTxnID = txnID

	return req, nil
}

func (tt *tcpTransport) WriteResponse(res *pdu) (err error) {
	_, err = tt.link.Write(tt.framer.encode(tt.lastTxnID, res))
	return err
}

// readResponse reads frames until one matches tt.lastTxnID, silently
// discarding stray protocol identifiers and mismatched transaction ids
// left over from a previous, already-timed-out exchange.
func (tt *tcpTransport) readResponse() (res *pdu, err error) {
	for {
		var txnID uint16

		res, txnID, err = tt.framer.decode(tt.link)

		if err == ErrUnknownProtocolID {
			continue
		}
		if err != nil {
			return
		}

		if tt.lastTxnID != txnID {
			tt.logger.Warningf("received unexpected transaction id (expected 0x%04x, received 0x%04x)", tt.lastTxnID, txnID)
			continue
		}

		return
	}
}

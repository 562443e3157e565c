package modbus

import "io"

// framer turns a pdu into wire bytes and back, independently of how those
// bytes reach the link (stream socket, datagram wrapper, serial port).
// Each wire format (MBAP, RTU, ASCII) implements this once and is shared
// by every transport that speaks it.
type framer interface {
	// encode assembles a frame for transmission. txnID is only
	// meaningful to framers that carry one (MBAP); RTU/ASCII framers
	// ignore it.
	encode(txnID uint16, p *pdu) []byte

	// decode reads and validates exactly one frame from r, returning the
	// decoded pdu and the transaction id carried by the frame (0 for
	// framers that don't have one). r is an io.Reader rather than a
	// link so that ASCII framing can be handed a persistent bufio.Reader
	// that survives across calls instead of losing read-ahead bytes.
	decode(r io.Reader) (p *pdu, txnID uint16, err error)
}

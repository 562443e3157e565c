package modbus

import (
	"bufio"
	"fmt"
	"log"
	"time"
)

// asciiTransport runs Modbus ASCII framing over a serial link. Unlike
// RTU, there is no inter-character silence to observe: CRLF marks the
// frame boundary, so pacing is limited to the per-request i/o deadline.
type asciiTransport struct {
	logger *logger
	link   link
	br     *bufio.Reader
	framer asciiFramer
	timeout time.Duration
}

func newASCIITransport(l link, addr string, timeout time.Duration, customLogger *log.Logger) *asciiTransport {
	return &asciiTransport{
		logger:  newLogger(fmt.Sprintf("ascii-transport(%s)", addr), customLogger),
		link:    l,
		br:      bufio.NewReader(l),
		timeout: timeout,
	}
}

func (at *asciiTransport) Close() (err error) {
	return at.link.Close()
}

func (at *asciiTransport) ExecuteRequest(req *pdu) (res *pdu, err error) {
	if err = at.link.SetDeadline(time.Now().Add(at.timeout)); err != nil {
		return
	}

	if _, err = at.link.Write(at.framer.encode(0, req)); err != nil {
		return
	}

	res, _, err = at.framer.decode(at.br)

	return
}

func (at *asciiTransport) ReadRequest() (req *pdu, err error) {
	req, _, err = at.framer.decode(at.br)

	return
}

func (at *asciiTransport) WriteResponse(res *pdu) (err error) {
	_, err = at.link.Write(at.framer.encode(0, res))

	return
}

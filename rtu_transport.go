package modbus

import (
	"fmt"
	"io"
	"log"
	"time"
)

// rtuTransport paces an rtuFramer over a real serial link: it observes
// the t3.5 inter-frame silence before transmitting and after an error,
// and estimates transmit duration from the configured baud rate rather
// than blocking on the write call, which on most platforms is buffered
// and returns before the line is actually clear.
type rtuTransport struct {
	logger       *logger
	link         link
	framer       rtuFramer
	timeout      time.Duration
	lastActivity time.Time
	silence      silenceTimer
}

func newRTUTransport(l link, addr string, speedBps uint, timeout time.Duration, customLogger *log.Logger) (rt *rtuTransport) {
	rt = &rtuTransport{
		logger:  newLogger(fmt.Sprintf("rtu-transport(%s)", addr), customLogger),
		link:    l,
		timeout: timeout,
		silence: newSilenceTimer(speedBps),
	}

	return
}

func (rt *rtuTransport) Close() (err error) {
	return rt.link.Close()
}

func (rt *rtuTransport) ExecuteRequest(req *pdu) (res *pdu, err error) {
	if err = rt.link.SetDeadline(time.Now().Add(rt.timeout)); err != nil {
		return
	}

	// if the line was active less than t3.5 ago, let the silence expire
	// before transmitting
	if wait := time.Until(rt.lastActivity.Add(rt.silence.t35)); wait > 0 {
		time.Sleep(wait)
	}

	ts := time.Now()

	adu := rt.framer.encode(0, req)

	var n int
	n, err = rt.link.Write(adu)
	if err != nil {
		return
	}

	// estimate how long the line was busy for, since Write() typically
	// returns as soon as the data is buffered rather than transmitted
	rt.lastActivity = ts.Add(time.Duration(n) * rt.silence.t1)

	if wait := time.Until(rt.lastActivity.Add(rt.silence.t35)); wait > 0 {
		time.Sleep(wait)
	}

	res, _, err = rt.framer.decode(rt.link)

	if err == ErrBadCRC || err == ErrProtocolError || err == ErrShortFrame {
		// wait for and flush any trailing data to let devices re-sync
		time.Sleep(time.Duration(maxRTUFrameLength) * rt.silence.t1)
		discard(rt.link)
	}

	if err != ErrRequestTimedOut {
		rt.lastActivity = time.Now()
	}

	return
}

func (rt *rtuTransport) ReadRequest() (req *pdu, err error) {
	req, err = rt.framer.decodeRequest(rt.link)

	return
}

func (rt *rtuTransport) WriteResponse(res *pdu) (err error) {
	adu := rt.framer.encode(0, res)

	var n int
	n, err = rt.link.Write(adu)
	if err != nil {
		return
	}

	rt.lastActivity = time.Now().Add(rt.silence.t1 * time.Duration(n))

	return
}

// discard drains and throws away whatever is sitting on the link's
// receive buffer, up to 1kB, to let a confused slave device flush
// partial frames before the next request is sent.
func discard(l link) {
	rxbuf := make([]byte, 1024)

	l.SetDeadline(time.Now().Add(500 * time.Microsecond))
	io.ReadFull(l, rxbuf)
}

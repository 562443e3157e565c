package modbus

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// serialPortWrapper wraps a go.bug.st/serial Port to satisfy the link
// interface and add Read() deadline/timeout support on top of the
// library's fixed read timeout.
type serialPortWrapper struct {
	conf     *serialPortConfig
	port     serial.Port
	deadline time.Time
}

type serialPortConfig struct {
	Device   string
	Speed    uint
	DataBits uint
	Parity   serial.Parity
	StopBits serial.StopBits
}

func newSerialPortWrapper(conf *serialPortConfig) (spw *serialPortWrapper) {
	spw = &serialPortWrapper{
		conf: conf,
	}

	return
}

func (spw *serialPortWrapper) Open() (err error) {
	spw.port, err = serial.Open(spw.conf.Device, &serial.Mode{
		BaudRate: int(spw.conf.Speed),
		DataBits: int(spw.conf.DataBits),
		Parity:   spw.conf.Parity,
		StopBits: spw.conf.StopBits,
	})
	if err != nil {
		return
	}

	err = spw.port.SetReadTimeout(10 * time.Millisecond)

	return
}

// Close closes the serial port.
func (spw *serialPortWrapper) Close() (err error) {
	err = spw.port.Close()

	return
}

// Reset discards whatever is sitting in the port's receive buffer,
// giving a freshly opened link a clean slate before the first request.
func (spw *serialPortWrapper) Reset() (err error) {
	rxbuf := make([]byte, 1024)

	spw.port.SetReadTimeout(500 * time.Microsecond)
	io.ReadFull(spw.port, rxbuf)
	spw.port.SetReadTimeout(10 * time.Millisecond)

	return nil
}

// Read reads bytes from the underlying serial port.
//
// If Read() is called after the deadline, a timeout error is returned
// without attempting to read from the serial port. Otherwise, a read
// attempt is made: either the port's receive buffer has data and Read()
// returns immediately (partial or full read), or the buffer is empty and
// the call blocks for up to the configured read timeout before returning
// with no data. As callers use io.ReadFull(), Read() is invoked as many
// times as necessary until enough bytes have been read or an error
// (ErrRequestTimedOut or any other i/o error) is returned.
func (spw *serialPortWrapper) Read(rxbuf []byte) (cnt int, err error) {
	if time.Now().After(spw.deadline) {
		err = ErrRequestTimedOut
		return
	}

	cnt, err = spw.port.Read(rxbuf)

	return
}

// Write sends bytes over the wire.
func (spw *serialPortWrapper) Write(txbuf []byte) (cnt int, err error) {
	cnt, err = spw.port.Write(txbuf)

	return
}

// SetDeadline saves the i/o deadline (only used by Read).
func (spw *serialPortWrapper) SetDeadline(deadline time.Time) (err error) {
	spw.deadline = deadline

	return
}

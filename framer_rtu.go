package modbus

import "io"

const maxRTUFrameLength int = 256

// rtuFramer implements RTU framing driven by a per-function-code response
// length table rather than inter-character silence. rtuTransport uses it
// on every RTU link: real serial lines as well as RTU-over-TCP and
// RTU-over-UDP.
type rtuFramer struct{}

func (rtuFramer) encode(_ uint16, p *pdu) []byte {
	adu := make([]byte, 0, 4+len(p.payload))
	adu = append(adu, p.unitID)
	adu = append(adu, p.functionCode)
	adu = append(adu, p.payload...)

	var c crc
	c.init()
	c.add(adu)
	adu = append(adu, c.value()...)

	return adu
}

// readExactRTU reads exactly len(buf) bytes off l. A partial read (some
// bytes arrived, then the link died) is reported as ErrShortFrame; a
// clean close before any byte arrived is passed through unchanged so the
// caller can tell a truncated frame from a link with nothing to read.
func readExactRTU(l io.Reader, buf []byte) (err error) {
	n, rerr := io.ReadFull(l, buf)
	if (n > 0 || rerr == nil) && n != len(buf) {
		return ErrShortFrame
	}
	if rerr != nil && rerr != io.ErrUnexpectedEOF {
		return rerr
	}

	return nil
}

func (rtuFramer) decode(l io.Reader) (p *pdu, txnID uint16, err error) {
	rxbuf := make([]byte, maxRTUFrameLength)

	// unit id, function code, and the length/exception byte
	if err = readExactRTU(l, rxbuf[0:3]); err != nil {
		return
	}

	// the encapsulated interface (MEI/device identification) response has
	// no fixed or length-prefixed shape: it carries a variable number of
	// trailing objects. Rather than parse it here, read whatever is left
	// on the wire up to the max ADU size and let the CRC (not a byte
	// count) decide where the frame ends.
	if rxbuf[1] == fcEncapsulatedInterface || rxbuf[1] == (fcEncapsulatedInterface|0x80) {
		return decodeVariableLengthRTU(l, rxbuf, 3)
	}

	bytesNeeded, lerr := expectedResponseLength(rxbuf[1], rxbuf[2])
	if lerr != nil {
		err = lerr
		return
	}
	// 2 trailing bytes of CRC
	bytesNeeded += 2

	if 3+bytesNeeded > maxRTUFrameLength {
		err = ErrProtocolError
		return
	}

	if err = readExactRTU(l, rxbuf[3:3+bytesNeeded]); err != nil {
		return
	}

	var c crc
	c.init()
	c.add(rxbuf[0 : 3+bytesNeeded-2])
	if !c.isEqual(rxbuf[3+bytesNeeded-2], rxbuf[3+bytesNeeded-1]) {
		err = ErrBadCRC
		return
	}

	p = &pdu{
		unitID:       rxbuf[0],
		functionCode: rxbuf[1],
		payload:      rxbuf[2 : 3+bytesNeeded-2],
	}

	return
}

// expectedResponseLength computes how many payload bytes follow the
// 3-byte ADU header (unit id, function code, length/exception byte), not
// counting the trailing CRC.
func expectedResponseLength(functionCode uint8, lengthOrException uint8) (byteCount int, err error) {
	switch functionCode {
	case fcReadHoldingRegisters, fcReadInputRegisters, fcReadCoils, fcReadDiscreteInputs,
		fcReadFIFOQueue, fcReadFileRecord, fcReadWriteMultipleRegisters:
		byteCount = int(lengthOrException)
	case fcWriteSingleRegister, fcWriteMultipleRegisters, fcWriteSingleCoil, fcWriteMultipleCoils:
		byteCount = 3
	case fcMaskWriteRegister:
		byteCount = 5
	case fcWriteFileRecord:
		byteCount = int(lengthOrException)
	case fcReadHoldingRegisters | 0x80, fcReadInputRegisters | 0x80, fcReadCoils | 0x80,
		fcReadDiscreteInputs | 0x80, fcWriteSingleRegister | 0x80, fcWriteMultipleRegisters | 0x80,
		fcWriteSingleCoil | 0x80, fcWriteMultipleCoils | 0x80, fcMaskWriteRegister | 0x80,
		fcReadFIFOQueue | 0x80, fcReadFileRecord | 0x80, fcWriteFileRecord | 0x80,
		fcReadWriteMultipleRegisters | 0x80, fcEncapsulatedInterface | 0x80:
		byteCount = 0
	default:
		err = ErrProtocolError
	}

	return
}

// decodeRequest reads a request-side RTU frame off l. Unlike decode, which
// is driven by a response length table, a request's byte-count field (for
// the function codes that have one) sits at a different offset than the
// matching response's: FC 1/2/3/4 have no count field at all (a fixed
// 4-byte ref+quantity payload), FC 15/16/23 carry theirs after a longer
// fixed prefix than the 1-byte response header implies, and only FC
// 20/21 happen to place it where the response table expects.
func (rtuFramer) decodeRequest(l io.Reader) (p *pdu, err error) {
	rxbuf := make([]byte, maxRTUFrameLength)
	pos := 2

	if err = readExactRTU(l, rxbuf[0:pos]); err != nil {
		return
	}

	functionCode := rxbuf[1]
	var payloadLen int

	switch functionCode {
	case fcReadCoils, fcReadDiscreteInputs, fcReadHoldingRegisters, fcReadInputRegisters,
		fcWriteSingleCoil, fcWriteSingleRegister:
		// ref (2 bytes) + quantity/value (2 bytes), no byte count
		payloadLen = 4

	case fcMaskWriteRegister:
		// ref + andMask + orMask
		payloadLen = 6

	case fcReadFIFOQueue:
		// FIFO pointer address only
		payloadLen = 2

	case fcEncapsulatedInterface:
		// MEI type + read device id code + object id
		payloadLen = 3

	case fcReadFileRecord, fcWriteFileRecord:
		// byte count is the first payload byte, same offset as the
		// matching response
		if err = readExactRTU(l, rxbuf[pos:pos+1]); err != nil {
			return
		}
		payloadLen = 1 + int(rxbuf[pos])
		pos++

	case fcWriteMultipleCoils, fcWriteMultipleRegisters:
		// ref (2) + quantity (2) + byte count, then byte count bytes
		if err = readExactRTU(l, rxbuf[pos:pos+5]); err != nil {
			return
		}
		payloadLen = 5 + int(rxbuf[pos+4])
		pos += 5

	case fcReadWriteMultipleRegisters:
		// readRef (2) + readQty (2) + writeRef (2) + writeQty (2) +
		// byte count, then byte count bytes
		if err = readExactRTU(l, rxbuf[pos:pos+9]); err != nil {
			return
		}
		payloadLen = 9 + int(rxbuf[pos+8])
		pos += 9

	default:
		err = ErrProtocolError
		return
	}

	// bytes still needed: the rest of the payload plus the trailing CRC
	remaining := payloadLen - (pos - 2) + 2
	end := pos + remaining

	if remaining < 2 || end > maxRTUFrameLength {
		err = ErrProtocolError
		return
	}

	if err = readExactRTU(l, rxbuf[pos:end]); err != nil {
		return
	}

	var c crc
	c.init()
	c.add(rxbuf[0 : end-2])
	if !c.isEqual(rxbuf[end-2], rxbuf[end-1]) {
		err = ErrBadCRC
		return
	}

	p = &pdu{
		unitID:       rxbuf[0],
		functionCode: rxbuf[1],
		payload:      rxbuf[2 : end-2],
	}

	return
}

// decodeVariableLengthRTU handles encapsulated-interface (FC 0x2b) frames,
// whose length cannot be read off a fixed-position byte. It keeps reading
// single bytes (up to the max ADU size) until the last 2 bytes received
// form a valid CRC over everything read so far, which is the point at
// which a well-formed frame must end.
func decodeVariableLengthRTU(l io.Reader, rxbuf []byte, headerLen int) (p *pdu, txnID uint16, err error) {
	n := headerLen
	one := make([]byte, 1)

	for n < maxRTUFrameLength {
		// need at least 2 more bytes beyond the header before a CRC
		// check makes sense
		if n-headerLen >= 2 {
			var c crc
			c.init()
			c.add(rxbuf[0 : n-2])
			if c.isEqual(rxbuf[n-2], rxbuf[n-1]) {
				p = &pdu{
					unitID:       rxbuf[0],
					functionCode: rxbuf[1],
					payload:      rxbuf[2 : n-2],
				}
				return
			}
		}

		var cnt int
		cnt, err = io.ReadFull(l, one)
		if err != nil {
			return
		}
		if cnt != 1 {
			err = ErrShortFrame
			return
		}

		rxbuf[n] = one[0]
		n++
	}

	err = ErrProtocolError
	return
}

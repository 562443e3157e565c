package modbus

import (
	"encoding/binary"
	"io"
)

const (
	maxTCPFrameLength int = 260
	mbapHeaderLength  int = 7
)

// tcpFramer implements the MBAP (Modbus Application Protocol) framing used
// over TCP and UDP: a 7-byte header (transaction id, protocol id, length,
// unit id) followed by the PDU, with no checksum (the carrier is assumed
// to be reliable).
type tcpFramer struct{}

func (tcpFramer) encode(txnID uint16, p *pdu) []byte {
	out := make([]byte, 0, mbapHeaderLength+len(p.payload)+1)

	out = append(out, uint16ToBytes(BigEndian, txnID)...)
	// protocol identifier is always 0x0000
	out = append(out, 0x00, 0x00)
	// length covers unit id + function code + payload
	out = append(out, uint16ToBytes(BigEndian, uint16(2+len(p.payload)))...)
	out = append(out, p.unitID)
	out = append(out, p.functionCode)
	out = append(out, p.payload...)

	return out
}

func (tcpFramer) decode(l io.Reader) (p *pdu, txnID uint16, err error) {
	header := make([]byte, mbapHeaderLength)
	if _, err = io.ReadFull(l, header); err != nil {
		return
	}

	txnID = bytesToUint16(BigEndian, header[0:2])
	protocolID := bytesToUint16(BigEndian, header[2:4])
	unitID := header[6]

	bytesNeeded := int(bytesToUint16(BigEndian, header[4:6]))
	// the byte count field includes the unit id, which we already read
	bytesNeeded--

	if bytesNeeded <= 0 || bytesNeeded+mbapHeaderLength > maxTCPFrameLength {
		err = ErrProtocolError
		return
	}

	body := make([]byte, bytesNeeded)
	if _, err = io.ReadFull(l, body); err != nil {
		return
	}

	if protocolID != 0x0000 {
		err = ErrUnknownProtocolID
		return
	}

	p = &pdu{
		unitID:       unitID,
		functionCode: body[0],
		payload:      body[1:],
	}

	return
}

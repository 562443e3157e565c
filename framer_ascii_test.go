package modbus

import (
	"bytes"
	"testing"
)

func TestASCIIFramerEncode(t *testing.T) {
	var af asciiFramer
	var frame []byte

	frame = af.encode(0, &pdu{
		unitID:       0x11,
		functionCode: 0x03,
		payload:      []byte{0x00, 0x6b, 0x00, 0x03},
	})

	if frame[0] != ':' {
		t.Errorf("expected frame to start with ':', got 0x%02x", frame[0])
	}
	if frame[len(frame)-2] != '\r' || frame[len(frame)-1] != '\n' {
		t.Errorf("expected frame to end with CRLF, got %v", frame[len(frame)-2:])
	}
	// 1 (':') + 2 hex digits per byte of (unit id, func code, payload, lrc) + CRLF
	if len(frame) != 1+2*(2+4+1)+2 {
		t.Errorf("expected %v bytes, got %v", 1+2*(2+4+1)+2, len(frame))
	}

	return
}

func TestASCIIFramerDecode(t *testing.T) {
	var af asciiFramer
	var p *pdu
	var err error

	frame := af.encode(0, &pdu{
		unitID:       0x11,
		functionCode: 0x03,
		payload:      []byte{0x00, 0x6b, 0x00, 0x03},
	})

	p, _, err = af.decode(bytes.NewReader(frame))
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if p.unitID != 0x11 || p.functionCode != 0x03 {
		t.Errorf("expected {0x11, 0x03}, got {0x%02x, 0x%02x}", p.unitID, p.functionCode)
	}
	if !bytes.Equal(p.payload, []byte{0x00, 0x6b, 0x00, 0x03}) {
		t.Errorf("expected payload {0x00, 0x6b, 0x00, 0x03}, got %v", p.payload)
	}

	return
}

func TestASCIIFramerDecodeSkipsLeadingNoise(t *testing.T) {
	var af asciiFramer
	var p *pdu
	var err error

	frame := af.encode(0, &pdu{unitID: 0x01, functionCode: 0x04, payload: []byte{0xaa}})
	noisy := append([]byte{0x00, 0x00, 0x0d, 0x0a}, frame...)

	p, _, err = af.decode(bytes.NewReader(noisy))
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if p.unitID != 0x01 || p.functionCode != 0x04 {
		t.Errorf("expected {0x01, 0x04}, got {0x%02x, 0x%02x}", p.unitID, p.functionCode)
	}

	return
}

func TestASCIIFramerDecodeBadLRC(t *testing.T) {
	var af asciiFramer
	var err error

	// ":1103" + a deliberately wrong LRC byte + CRLF
	_, _, err = af.decode(bytes.NewReader([]byte(":110300\r\n")))
	if err != ErrBadLRC {
		t.Errorf("expected ErrBadLRC, got: %v", err)
	}

	return
}

func TestASCIIFramerDecodeShortFrame(t *testing.T) {
	var af asciiFramer
	var err error

	_, _, err = af.decode(bytes.NewReader([]byte(":11\r\n")))
	if err != ErrShortFrame {
		t.Errorf("expected ErrShortFrame, got: %v", err)
	}

	return
}

func TestASCIIFramerDecodeBadHex(t *testing.T) {
	var af asciiFramer
	var err error

	_, _, err = af.decode(bytes.NewReader([]byte(":zzzz\r\n")))
	if err != ErrProtocolError {
		t.Errorf("expected ErrProtocolError, got: %v", err)
	}

	return
}

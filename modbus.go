package modbus

import (
	"errors"
	"fmt"
)

// pdu is the decoded form of a modbus protocol data unit: a unit
// identifier (absent on plain serial RTU but carried through everywhere
// here for uniformity), a function code and its associated payload.
type pdu struct {
	unitID       uint8
	functionCode uint8
	payload      []byte
}

const (
	// coils
	fcReadCoils           uint8 = 0x01
	fcWriteSingleCoil     uint8 = 0x05
	fcWriteMultipleCoils  uint8 = 0x0f

	// discrete inputs
	fcReadDiscreteInputs uint8 = 0x02

	// 16-bit input/holding registers
	fcReadHoldingRegisters       uint8 = 0x03
	fcReadInputRegisters         uint8 = 0x04
	fcWriteSingleRegister        uint8 = 0x06
	fcWriteMultipleRegisters     uint8 = 0x10
	fcMaskWriteRegister          uint8 = 0x16
	fcReadWriteMultipleRegisters uint8 = 0x17
	fcReadFIFOQueue              uint8 = 0x18

	// file access
	fcReadFileRecord  uint8 = 0x14
	fcWriteFileRecord uint8 = 0x15

	// encapsulated interface (device identification/MEI)
	fcEncapsulatedInterface uint8 = 0x2b
	meiTypeDeviceIdentification uint8 = 0x0e

	// exception codes
	exIllegalFunction           uint8 = 0x01
	exIllegalDataAddress        uint8 = 0x02
	exIllegalDataValue          uint8 = 0x03
	exServerDeviceFailure       uint8 = 0x04
	exAcknowledge               uint8 = 0x05
	exServerDeviceBusy          uint8 = 0x06
	exMemoryParityError         uint8 = 0x08
	exGWPathUnavailable         uint8 = 0x0a
	exGWTargetFailedToRespond   uint8 = 0x0b
)

var (
	ErrConfigurationError       error = errors.New("configuration error")
	ErrRequestTimedOut          error = errors.New("request timed out")
	ErrIllegalFunction          error = errors.New("illegal function")
	ErrIllegalDataAddress       error = errors.New("illegal data address")
	ErrIllegalDataValue         error = errors.New("illegal data value")
	ErrServerDeviceFailure      error = errors.New("server device failure")
	ErrAcknowledge              error = errors.New("request acknowledged")
	ErrServerDeviceBusy         error = errors.New("server device busy")
	ErrMemoryParityError        error = errors.New("memory parity error")
	ErrGWPathUnavailable        error = errors.New("gateway path unavailable")
	ErrGWTargetFailedToRespond  error = errors.New("gateway target device failed to respond")
	ErrBadCRC                   error = errors.New("bad crc")
	ErrBadLRC                   error = errors.New("bad lrc")
	ErrShortFrame               error = errors.New("short frame")
	ErrProtocolError            error = errors.New("protocol error")
	ErrBadUnitID                error = errors.New("bad unit id")
	ErrBadTransactionID         error = errors.New("bad transaction id")
	ErrUnknownProtocolID        error = errors.New("unknown protocol identifier")
	ErrUnexpectedParameters     error = errors.New("unexpected parameters")
	ErrTransportIsAlreadyOpen   error = errors.New("transport is already open")
	ErrTransportIsAlreadyClosed error = errors.New("transport is already closed")
)

// mapExceptionCodeToError turns a wire exception code (as received by a
// client) into the matching sentinel error.
func mapExceptionCodeToError(exceptionCode uint8) (err error) {
	switch exceptionCode {
	case exIllegalFunction:
		err = ErrIllegalFunction
	case exIllegalDataAddress:
		err = ErrIllegalDataAddress
	case exIllegalDataValue:
		err = ErrIllegalDataValue
	case exServerDeviceFailure:
		err = ErrServerDeviceFailure
	case exAcknowledge:
		err = ErrAcknowledge
	case exMemoryParityError:
		err = ErrMemoryParityError
	case exServerDeviceBusy:
		err = ErrServerDeviceBusy
	case exGWPathUnavailable:
		err = ErrGWPathUnavailable
	case exGWTargetFailedToRespond:
		err = ErrGWTargetFailedToRespond
	default:
		err = fmt.Errorf("unsupported exception code (%v)", exceptionCode)
	}

	return
}

// mapErrorToExceptionCode turns a go error returned by a request handler
// into the wire exception code sent back to the client.
func mapErrorToExceptionCode(err error) (exceptionCode uint8) {
	switch err {
	case ErrIllegalFunction:
		exceptionCode = exIllegalFunction
	case ErrIllegalDataAddress:
		exceptionCode = exIllegalDataAddress
	case ErrIllegalDataValue:
		exceptionCode = exIllegalDataValue
	case ErrServerDeviceFailure:
		exceptionCode = exServerDeviceFailure
	case ErrAcknowledge:
		exceptionCode = exAcknowledge
	case ErrMemoryParityError:
		exceptionCode = exMemoryParityError
	case ErrServerDeviceBusy:
		exceptionCode = exServerDeviceBusy
	case ErrGWPathUnavailable:
		exceptionCode = exGWPathUnavailable
	case ErrGWTargetFailedToRespond:
		exceptionCode = exGWTargetFailedToRespond
	default:
		// any other error (including go-native errors returned by a
		// handler) is reported as a generic server device failure.
		exceptionCode = exServerDeviceFailure
	}

	return
}

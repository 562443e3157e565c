package modbus

// CoilsRequest is passed to HandleCoils for reads of coils (function
// code 1), writes of a single coil (function code 5) and writes of
// multiple coils (function code 15).
type CoilsRequest struct {
	WriteFuncCode uint8  // the function code of the write request
	ClientAddr    string // the source (client) address
	UnitID        uint8  // the requested unit id (slave id)
	Addr          uint16 // the base coil address requested
	Quantity      uint16 // the number of consecutive coils covered by this request
	// (first address: Addr, last address: Addr + Quantity - 1)
	IsWrite bool   // true if the request is a write, false if a read
	Args    []bool // values to be set, ordered from Addr (writes only)
}

// DiscreteInputsRequest is passed to HandleDiscreteInputs (function code 2).
type DiscreteInputsRequest struct {
	ClientAddr string
	UnitID     uint8
	Addr       uint16
	Quantity   uint16
}

// HoldingRegistersRequest is passed to HandleHoldingRegisters for reads
// (function code 3), writes of a single register (function code 6) and
// writes of multiple registers (function code 16).
type HoldingRegistersRequest struct {
	WriteFuncCode uint8
	ClientAddr    string
	UnitID        uint8
	Addr          uint16
	Quantity      uint16
	IsWrite       bool
	Args          []uint16
}

// InputRegistersRequest is passed to HandleInputRegisters (function code 4).
type InputRegistersRequest struct {
	ClientAddr string
	UnitID     uint8
	Addr       uint16
	Quantity   uint16
}

// MaskWriteRegisterRequest is passed to HandleMaskWriteRegister (function
// code 22). The handler is expected to apply
// new = (current & AndMask) | (OrMask &^ AndMask) to the addressed register.
type MaskWriteRegisterRequest struct {
	ClientAddr string
	UnitID     uint8
	Addr       uint16
	AndMask    uint16
	OrMask     uint16
}

// ReadWriteMultipleRegistersRequest is passed to
// HandleReadWriteMultipleRegisters (function code 23). Per the modbus
// spec, the write is applied before the read.
type ReadWriteMultipleRegistersRequest struct {
	ClientAddr  string
	UnitID      uint8
	ReadAddr    uint16
	ReadQty     uint16
	WriteAddr   uint16
	WriteValues []uint16
}

// FIFORequest is passed to HandleFIFOQueue (function code 24).
type FIFORequest struct {
	ClientAddr string
	UnitID     uint8
	FIFOAddr   uint16
}

// FileRecordsRequest is passed to HandleFileRecords for both reads
// (function code 20) and writes (function code 21).
type FileRecordsRequest struct {
	ClientAddr string
	UnitID     uint8
	IsWrite    bool
	Records    []FileRecord
}

// DeviceIdentificationRequest is passed to HandleDeviceIdentification
// (function code 43, MEI type 0x0e).
type DeviceIdentificationRequest struct {
	ClientAddr    string
	UnitID        uint8
	ReadDevIDCode uint8
	ObjectID      uint8
}

// RequestHandler is implemented by the handler object passed to
// NewServer. After decoding and validating an incoming request, the
// server invokes the method matching the request's function code.
//
// Returning a nil error sends a positive response back to the client
// along with the returned data (when applicable). Returning a non-nil
// error sends a negative (exception) response, with the exception code
// derived from the error via mapErrorToExceptionCode.
type RequestHandler interface {
	HandleCoils(*CoilsRequest) ([]bool, error)
	HandleDiscreteInputs(*DiscreteInputsRequest) ([]bool, error)
	HandleHoldingRegisters(*HoldingRegistersRequest) ([]uint16, error)
	HandleInputRegisters(*InputRegistersRequest) ([]uint16, error)
	HandleMaskWriteRegister(*MaskWriteRegisterRequest) error
	HandleReadWriteMultipleRegisters(*ReadWriteMultipleRegistersRequest) ([]uint16, error)
	HandleFIFOQueue(*FIFORequest) ([]uint16, error)
	HandleFileRecords(*FileRecordsRequest) ([][]uint16, error)
	HandleDeviceIdentification(*DeviceIdentificationRequest) ([]DeviceIdentificationObject, error)
}

// NullHandler rejects every request with ErrIllegalFunction. Embed it in
// a handler that only implements a subset of the interface to avoid
// having to stub out the rest by hand.
type NullHandler struct{}

func (NullHandler) HandleCoils(*CoilsRequest) ([]bool, error) {
	return nil, ErrIllegalFunction
}

func (NullHandler) HandleDiscreteInputs(*DiscreteInputsRequest) ([]bool, error) {
	return nil, ErrIllegalFunction
}

func (NullHandler) HandleHoldingRegisters(*HoldingRegistersRequest) ([]uint16, error) {
	return nil, ErrIllegalFunction
}

func (NullHandler) HandleInputRegisters(*InputRegistersRequest) ([]uint16, error) {
	return nil, ErrIllegalFunction
}

func (NullHandler) HandleMaskWriteRegister(*MaskWriteRegisterRequest) error {
	return ErrIllegalFunction
}

func (NullHandler) HandleReadWriteMultipleRegisters(*ReadWriteMultipleRegistersRequest) ([]uint16, error) {
	return nil, ErrIllegalFunction
}

func (NullHandler) HandleFIFOQueue(*FIFORequest) ([]uint16, error) {
	return nil, ErrIllegalFunction
}

func (NullHandler) HandleFileRecords(*FileRecordsRequest) ([][]uint16, error) {
	return nil, ErrIllegalFunction
}

func (NullHandler) HandleDeviceIdentification(*DeviceIdentificationRequest) ([]DeviceIdentificationObject, error) {
	return nil, ErrIllegalFunction
}

package modbus

import "sync"

const (
	defaultImageSize = 65536 // one bit/register per possible 16-bit address
	fifoCapacity     = 32    // entries kept per FIFO-backed register
)

// unitImage holds the register/coil/file-record storage for a single
// unit id, each guarded independently so that a busy unit doesn't
// serialize access to an unrelated one.
type unitImage struct {
	lock sync.RWMutex

	coils     *bitVector
	discretes *bitVector
	holdings  []uint16
	inputs    []uint16

	files map[uint16]map[uint16][]uint16
	fifos map[uint16][]uint16
}

func newUnitImage() *unitImage {
	return &unitImage{
		coils:     newBitVector(defaultImageSize, false),
		discretes: newBitVector(defaultImageSize, false),
		holdings:  make([]uint16, defaultImageSize),
		inputs:    make([]uint16, defaultImageSize),
		files:     make(map[uint16]map[uint16][]uint16),
		fifos:     make(map[uint16][]uint16),
	}
}

// Observation is passed to every registered observer after a write is
// applied, outside of the write lock.
type Observation struct {
	UnitID       uint8
	FunctionCode uint8
	Addr         uint16
	Values       any
}

// ProcessImage is an in-memory RequestHandler backed by flat bit/register
// tables, partitioned per unit id. It is meant as both a ready-to-run
// slave data store and as a worked example of the RequestHandler
// contract: Server never talks to a transport directly; every request
// flows through this interface, or one like it.
type ProcessImage struct {
	mu    sync.Mutex
	units map[uint8]*unitImage

	obsLock   sync.Mutex
	observers []func(Observation)
}

// NewProcessImage returns an empty process image. Unit ids are created
// on first access (read or write), each starting out fully zeroed.
func NewProcessImage() *ProcessImage {
	return &ProcessImage{
		units: make(map[uint8]*unitImage),
	}
}

// Observe registers fn to be called, outside of any write lock, after
// every successful write handled by this process image.
func (pi *ProcessImage) Observe(fn func(Observation)) {
	pi.obsLock.Lock()
	pi.observers = append(pi.observers, fn)
	pi.obsLock.Unlock()
}

func (pi *ProcessImage) notify(obs Observation) {
	pi.obsLock.Lock()
	observers := make([]func(Observation), len(pi.observers))
	copy(observers, pi.observers)
	pi.obsLock.Unlock()

	for _, fn := range observers {
		fn(obs)
	}
}

func (pi *ProcessImage) unit(id uint8) *unitImage {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	u, found := pi.units[id]
	if !found {
		u = newUnitImage()
		pi.units[id] = u
	}

	return u
}

func (pi *ProcessImage) HandleCoils(req *CoilsRequest) (res []bool, err error) {
	u := pi.unit(req.UnitID)

	if req.IsWrite {
		u.lock.Lock()
		for i := 0; i < int(req.Quantity); i++ {
			u.coils.set(int(req.Addr)+i, req.Args[i])
		}
		u.lock.Unlock()

		pi.notify(Observation{UnitID: req.UnitID, FunctionCode: req.WriteFuncCode, Addr: req.Addr, Values: req.Args})
		return
	}

	u.lock.RLock()
	defer u.lock.RUnlock()

	for i := 0; i < int(req.Quantity); i++ {
		v, gerr := u.coils.get(int(req.Addr) + i)
		if gerr != nil {
			err = ErrIllegalDataAddress
			return
		}
		res = append(res, v)
	}

	return
}

func (pi *ProcessImage) HandleDiscreteInputs(req *DiscreteInputsRequest) (res []bool, err error) {
	u := pi.unit(req.UnitID)

	u.lock.RLock()
	defer u.lock.RUnlock()

	for i := 0; i < int(req.Quantity); i++ {
		v, gerr := u.discretes.get(int(req.Addr) + i)
		if gerr != nil {
			err = ErrIllegalDataAddress
			return
		}
		res = append(res, v)
	}

	return
}

func (pi *ProcessImage) HandleHoldingRegisters(req *HoldingRegistersRequest) (res []uint16, err error) {
	u := pi.unit(req.UnitID)

	if req.IsWrite {
		if int(req.Addr)+int(req.Quantity) > len(u.holdings) {
			err = ErrIllegalDataAddress
			return
		}

		u.lock.Lock()
		for i, v := range req.Args {
			u.holdings[int(req.Addr)+i] = v
		}
		u.lock.Unlock()

		pi.notify(Observation{UnitID: req.UnitID, FunctionCode: req.WriteFuncCode, Addr: req.Addr, Values: req.Args})
		return
	}

	u.lock.RLock()
	defer u.lock.RUnlock()

	if int(req.Addr)+int(req.Quantity) > len(u.holdings) {
		err = ErrIllegalDataAddress
		return
	}
	res = append(res, u.holdings[req.Addr:int(req.Addr)+int(req.Quantity)]...)

	return
}

func (pi *ProcessImage) HandleInputRegisters(req *InputRegistersRequest) (res []uint16, err error) {
	u := pi.unit(req.UnitID)

	u.lock.RLock()
	defer u.lock.RUnlock()

	if int(req.Addr)+int(req.Quantity) > len(u.inputs) {
		err = ErrIllegalDataAddress
		return
	}
	res = append(res, u.inputs[req.Addr:int(req.Addr)+int(req.Quantity)]...)

	return
}

// HandleMaskWriteRegister applies new = (current & AndMask) | (OrMask
// &^ AndMask) to the addressed holding register.
func (pi *ProcessImage) HandleMaskWriteRegister(req *MaskWriteRegisterRequest) (err error) {
	u := pi.unit(req.UnitID)

	if int(req.Addr) >= len(u.holdings) {
		return ErrIllegalDataAddress
	}

	u.lock.Lock()
	newVal := applyMaskWrite(u.holdings[req.Addr], req.AndMask, req.OrMask)
	u.holdings[req.Addr] = newVal
	u.lock.Unlock()

	pi.notify(Observation{UnitID: req.UnitID, FunctionCode: fcMaskWriteRegister, Addr: req.Addr, Values: newVal})

	return
}

// HandleReadWriteMultipleRegisters applies the write half before reading
// back the requested range, per the function's wire semantics.
func (pi *ProcessImage) HandleReadWriteMultipleRegisters(req *ReadWriteMultipleRegistersRequest) (res []uint16, err error) {
	u := pi.unit(req.UnitID)

	if int(req.WriteAddr)+len(req.WriteValues) > len(u.holdings) ||
		int(req.ReadAddr)+int(req.ReadQty) > len(u.holdings) {
		err = ErrIllegalDataAddress
		return
	}

	u.lock.Lock()
	for i, v := range req.WriteValues {
		u.holdings[int(req.WriteAddr)+i] = v
	}
	res = append(res, u.holdings[req.ReadAddr:int(req.ReadAddr)+int(req.ReadQty)]...)
	u.lock.Unlock()

	pi.notify(Observation{UnitID: req.UnitID, FunctionCode: fcReadWriteMultipleRegisters, Addr: req.WriteAddr, Values: req.WriteValues})

	return
}

// HandleFIFOQueue returns the values queued at FIFOAddr (at most
// fifoCapacity), leaving the queue unchanged.
// PushFIFO feeds values into the queue from the application side (there
// is no standard write function code for it: devices fill FIFOs
// internally and expose them read-only over the wire).
func (pi *ProcessImage) HandleFIFOQueue(req *FIFORequest) (res []uint16, err error) {
	u := pi.unit(req.UnitID)

	u.lock.RLock()
	defer u.lock.RUnlock()

	res = append(res, u.fifos[req.FIFOAddr]...)

	return
}

// PushFIFO appends v to the FIFO exposed at fifoAddr for unit id,
// dropping the oldest entry once fifoCapacity is reached.
func (pi *ProcessImage) PushFIFO(unitID uint8, fifoAddr uint16, v uint16) {
	u := pi.unit(unitID)

	u.lock.Lock()
	q := append(u.fifos[fifoAddr], v)
	if len(q) > fifoCapacity {
		q = q[len(q)-fifoCapacity:]
	}
	u.fifos[fifoAddr] = q
	u.lock.Unlock()
}

func (pi *ProcessImage) HandleFileRecords(req *FileRecordsRequest) (res [][]uint16, err error) {
	u := pi.unit(req.UnitID)

	if req.IsWrite {
		u.lock.Lock()
		for _, rec := range req.Records {
			f, found := u.files[rec.FileNumber]
			if !found {
				f = make(map[uint16][]uint16)
				u.files[rec.FileNumber] = f
			}
			f[rec.RecordNumber] = rec.Data
		}
		u.lock.Unlock()

		pi.notify(Observation{UnitID: req.UnitID, FunctionCode: fcWriteFileRecord, Values: req.Records})
		return
	}

	u.lock.RLock()
	defer u.lock.RUnlock()

	for _, rec := range req.Records {
		f, found := u.files[rec.FileNumber]
		if !found {
			err = ErrIllegalDataAddress
			return
		}
		data, found := f[rec.RecordNumber]
		if !found {
			err = ErrIllegalDataAddress
			return
		}
		res = append(res, data)
	}

	return
}

// HandleDeviceIdentification rejects the request: a process image has no
// notion of vendor/product metadata on its own. Embed ProcessImage in a
// handler that overrides this method to advertise real identification
// objects.
func (pi *ProcessImage) HandleDeviceIdentification(*DeviceIdentificationRequest) ([]DeviceIdentificationObject, error) {
	return nil, ErrIllegalFunction
}

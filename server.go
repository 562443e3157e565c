package modbus

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sync/semaphore"
)

// serverState is the lifecycle of a ModbusServer, tracked as an atomic
// int32 so Status() never needs to take the server lock.
type serverState int32

const (
	serverNew serverState = iota
	serverListening
	serverStopping
	serverStopped
	serverFailed
)

// ServerConfiguration describes how to start a Modbus slave: the
// transport to listen on (driven by URL, exactly as ClientConfiguration
// drives Client), how long an idle client connection is tolerated, and
// how many concurrent clients to admit.
type ServerConfiguration struct {
	// URL sets the server mode and listen address in the form
	// <mode>://<host:port or serial device> e.g. tcp://0.0.0.0:502.
	URL string
	// Speed sets the serial link speed (in bps, rtu/ascii only).
	Speed uint
	// DataBits sets the number of bits per serial character (rtu/ascii only).
	DataBits uint
	// Parity sets the serial link parity mode (rtu/ascii only).
	Parity serial.Parity
	// StopBits sets the number of serial stop bits (rtu/ascii only).
	StopBits serial.StopBits
	// Timeout sets the idle connection timeout: a client connection with
	// no successful read or write for this long is closed.
	Timeout time.Duration
	// MaxClients sets the maximum number of concurrent client connections.
	// 0 means unlimited. Ignored for rtu/ascii (serial has a single peer)
	// and applied as a worker pool admission limit for udp.
	MaxClients uint
	// UnitIDs restricts which unit ids this server answers: a request
	// addressed to a unit id outside this set is silently dropped without
	// a response. Empty (the default) accepts every unit id.
	UnitIDs []uint8
	// Logger provides a custom sink for log messages.
	// If nil, messages will be written to stdout.
	Logger *log.Logger
}

// ModbusServer dispatches incoming requests from one or more connected
// clients to a RequestHandler.
type ModbusServer struct {
	conf    ServerConfiguration
	logger  *logger
	handler RequestHandler

	state atomic.Int32

	lock          sync.Mutex
	transportType transportType

	tcpListener net.Listener
	tcpClients  []net.Conn

	udpListener *udpSlaveListener
	udpSock     *net.UDPConn

	serialTransport transport
	serialPort      *serialPortWrapper

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server listening per conf, dispatching requests to
// reqHandler. Call Start to begin accepting connections.
func NewServer(conf *ServerConfiguration, reqHandler RequestHandler) (ms *ModbusServer, err error) {
	var serverType string
	var splitURL []string

	ms = &ModbusServer{
		conf:    *conf,
		handler: reqHandler,
	}

	splitURL = strings.SplitN(ms.conf.URL, "://", 2)
	if len(splitURL) == 2 {
		serverType = splitURL[0]
		ms.conf.URL = splitURL[1]
	}

	ms.logger = newLogger(fmt.Sprintf("modbus-server(%s)", ms.conf.URL), conf.Logger)

	switch serverType {
	case "tcp":
		if ms.conf.URL == "" {
			ms.logger.Errorf("missing host part in URL '%s'", conf.URL)
			err = ErrConfigurationError
			return
		}
		if ms.conf.Timeout == 0 {
			ms.conf.Timeout = 30 * time.Second
		}
		ms.transportType = modbusTCP

	case "udp":
		if ms.conf.Timeout == 0 {
			ms.conf.Timeout = 30 * time.Second
		}
		ms.transportType = modbusTCPOverUDP

	case "rtu":
		if ms.conf.Speed == 0 {
			ms.conf.Speed = 19200
		}
		if ms.conf.DataBits == 0 {
			ms.conf.DataBits = 8
		}
		if ms.conf.Parity == serial.NoParity {
			ms.conf.StopBits = serial.TwoStopBits
		} else {
			ms.conf.StopBits = serial.OneStopBit
		}
		if ms.conf.Timeout == 0 {
			ms.conf.Timeout = 300 * time.Millisecond
		}
		ms.transportType = modbusRTU

	case "ascii":
		if ms.conf.Speed == 0 {
			ms.conf.Speed = 19200
		}
		if ms.conf.DataBits == 0 {
			ms.conf.DataBits = 7
		}
		if ms.conf.Parity == serial.NoParity {
			ms.conf.StopBits = serial.TwoStopBits
		} else {
			ms.conf.StopBits = serial.OneStopBit
		}
		if ms.conf.Timeout == 0 {
			ms.conf.Timeout = 300 * time.Millisecond
		}
		ms.transportType = modbusASCII

	default:
		if len(splitURL) != 2 {
			ms.logger.Errorf("missing server type in URL '%s'", ms.conf.URL)
		} else {
			ms.logger.Errorf("unsupported server type '%s'", serverType)
		}
		err = ErrConfigurationError
		return
	}

	ms.state.Store(int32(serverNew))

	return
}

// Status returns the server's current lifecycle state.
func (ms *ModbusServer) Status() string {
	switch serverState(ms.state.Load()) {
	case serverNew:
		return "new"
	case serverListening:
		return "listening"
	case serverStopping:
		return "stopping"
	case serverStopped:
		return "stopped"
	case serverFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Start opens the configured transport and begins serving requests.
// It returns as soon as the listener is up; client connections are
// served from background goroutines.
func (ms *ModbusServer) Start() (err error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if serverState(ms.state.Load()) == serverListening {
		return ErrTransportIsAlreadyOpen
	}

	poolSize := int64(ms.conf.MaxClients)
	if poolSize <= 0 {
		poolSize = 1 << 20 // effectively unbounded
	}
	ms.sem = semaphore.NewWeighted(poolSize)
	ms.ctx, ms.cancel = context.WithCancel(context.Background())

	switch ms.transportType {
	case modbusTCP:
		ms.tcpListener, err = net.Listen("tcp", ms.conf.URL)
		if err != nil {
			ms.state.Store(int32(serverFailed))
			return
		}
		go ms.acceptTCPClients()

	case modbusTCPOverUDP:
		var addr *net.UDPAddr

		addr, err = net.ResolveUDPAddr("udp", ms.conf.URL)
		if err != nil {
			ms.state.Store(int32(serverFailed))
			return
		}

		ms.udpSock, err = net.ListenUDP("udp", addr)
		if err != nil {
			ms.state.Store(int32(serverFailed))
			return
		}

		ms.udpListener = newUDPSlaveListener(ms.udpSock, ms.servePeer)

	case modbusRTU, modbusASCII:
		ms.serialPort = newSerialPortWrapper(&serialPortConfig{
			Device:   ms.conf.URL,
			Speed:    ms.conf.Speed,
			DataBits: ms.conf.DataBits,
			Parity:   ms.conf.Parity,
			StopBits: ms.conf.StopBits,
		})

		if err = ms.serialPort.Open(); err != nil {
			ms.state.Store(int32(serverFailed))
			return
		}

		if ms.transportType == modbusRTU {
			ms.serialTransport = newRTUTransport(
				ms.serialPort, ms.conf.URL, ms.conf.Speed, ms.conf.Timeout, ms.conf.Logger)
		} else {
			ms.serialTransport = newASCIITransport(
				ms.serialPort, ms.conf.URL, ms.conf.Timeout, ms.conf.Logger)
		}

		go ms.handleTransport(ms.serialTransport, ms.conf.URL)

	default:
		err = ErrConfigurationError
		ms.state.Store(int32(serverFailed))
		return
	}

	ms.state.Store(int32(serverListening))

	return
}

// Stop stops accepting new client connections and closes every active
// session.
func (ms *ModbusServer) Stop() (err error) {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	if serverState(ms.state.Load()) != serverListening {
		return ErrTransportIsAlreadyClosed
	}

	ms.state.Store(int32(serverStopping))
	ms.cancel()

	switch ms.transportType {
	case modbusTCP:
		err = ms.tcpListener.Close()
		for _, sock := range ms.tcpClients {
			sock.Close()
		}
		ms.tcpClients = nil

	case modbusTCPOverUDP:
		err = ms.udpListener.Close()

	case modbusRTU, modbusASCII:
		err = ms.serialTransport.Close()
	}

	ms.state.Store(int32(serverStopped))

	return
}

// acceptTCPClients accepts new client connections as long as the
// configured connection limit allows it, serving each one from its own
// goroutine.
func (ms *ModbusServer) acceptTCPClients() {
	for {
		sock, err := ms.tcpListener.Accept()
		if err != nil {
			ms.lock.Lock()
			stopped := serverState(ms.state.Load()) != serverListening
			ms.lock.Unlock()
			if stopped {
				return
			}
			ms.logger.Warningf("failed to accept client connection: %v", err)
			continue
		}

		// Acquire blocks the accept loop itself once the pool is
		// saturated: this is the back-pressure mechanism against
		// connection floods, not an outright rejection. A pending
		// Stop() cancels ms.ctx so a blocked accept loop can exit.
		if err := ms.sem.Acquire(ms.ctx, 1); err != nil {
			sock.Close()
			return
		}

		ms.lock.Lock()
		ms.tcpClients = append(ms.tcpClients, sock)
		ms.lock.Unlock()

		go ms.handleTCPClient(sock)
	}
}

func (ms *ModbusServer) handleTCPClient(sock net.Conn) {
	defer ms.sem.Release(1)

	ms.handleTransport(newTCPTransport(sock, ms.conf.Timeout, ms.conf.Logger), sock.RemoteAddr().String())

	ms.lock.Lock()
	for i := range ms.tcpClients {
		if ms.tcpClients[i] == sock {
			ms.tcpClients[i] = ms.tcpClients[len(ms.tcpClients)-1]
			ms.tcpClients = ms.tcpClients[:len(ms.tcpClients)-1]
			break
		}
	}
	ms.lock.Unlock()

	sock.Close()
}

// servePeer is handed to the udp slave listener as its onPeer callback:
// a udp "connection" has no accept-time admission control (the listener
// must read the datagram to know who's knocking), so the pool is applied
// here instead: while the server is saturated, serving the peer's first
// request blocks until a slot frees (or the server stops).
func (ms *ModbusServer) servePeer(pt *udpPeerTransport, addr string) {
	if err := ms.sem.Acquire(ms.ctx, 1); err != nil {
		pt.Close()
		return
	}
	defer ms.sem.Release(1)

	ms.handleTransport(pt, addr)
}

// idleWatchdog closes t if no successful read or write happens within
// ms.conf.Timeout, unblocking a ReadRequest call stuck on a dead peer.
func (ms *ModbusServer) idleWatchdog(t transport) (reset func(), stop func()) {
	if ms.conf.Timeout <= 0 {
		return func() {}, func() {}
	}

	timer := time.AfterFunc(ms.conf.Timeout, func() {
		t.Close()
	})

	return func() { timer.Reset(ms.conf.Timeout) }, func() { timer.Stop() }
}

// handleTransport reads requests from t, dispatches each to the
// configured handler, and writes back the matching response, until
// ReadRequest returns an error (closed link, idle timeout, i/o error).
func (ms *ModbusServer) handleTransport(t transport, clientAddr string) {
	resetIdle, stopIdle := ms.idleWatchdog(t)
	defer stopIdle()

	for {
		req, err := t.ReadRequest()
		if err != nil {
			return
		}
		resetIdle()

		if !ms.acceptsUnitID(req.unitID) {
			continue
		}

		res := ms.dispatch(req, clientAddr)

		if err := t.WriteResponse(res); err != nil {
			ms.logger.Warningf("failed to write response: %v", err)
			return
		}
		resetIdle()
	}
}

// acceptsUnitID reports whether req.unitID is in the configured accepted
// set. An empty set accepts every unit id.
func (ms *ModbusServer) acceptsUnitID(unitID uint8) bool {
	if len(ms.conf.UnitIDs) == 0 {
		return true
	}

	for _, id := range ms.conf.UnitIDs {
		if id == unitID {
			return true
		}
	}

	return false
}

// dispatch decodes and validates req, invokes the matching RequestHandler
// method and builds the response (positive or exception) PDU.
func (ms *ModbusServer) dispatch(req *pdu, clientAddr string) (res *pdu) {
	var err error

	switch req.functionCode {
	case fcReadCoils, fcReadDiscreteInputs:
		res, err = ms.dispatchReadBits(req, clientAddr)

	case fcWriteSingleCoil, fcWriteMultipleCoils:
		res, err = ms.dispatchWriteCoils(req, clientAddr)

	case fcReadHoldingRegisters, fcReadInputRegisters:
		res, err = ms.dispatchReadRegisters(req, clientAddr)

	case fcWriteSingleRegister, fcWriteMultipleRegisters:
		res, err = ms.dispatchWriteRegisters(req, clientAddr)

	case fcMaskWriteRegister:
		res, err = ms.dispatchMaskWriteRegister(req, clientAddr)

	case fcReadWriteMultipleRegisters:
		res, err = ms.dispatchReadWriteMultipleRegisters(req, clientAddr)

	case fcReadFIFOQueue:
		res, err = ms.dispatchReadFIFOQueue(req, clientAddr)

	case fcReadFileRecord, fcWriteFileRecord:
		res, err = ms.dispatchFileRecords(req, clientAddr)

	case fcEncapsulatedInterface:
		res, err = ms.dispatchEncapsulatedInterface(req, clientAddr)

	default:
		err = ErrIllegalFunction
	}

	if err != nil {
		res = &pdu{
			unitID:       req.unitID,
			functionCode: 0x80 | req.functionCode,
			payload:      []byte{mapErrorToExceptionCode(err)},
		}
	}

	if res == nil {
		ms.logger.Errorf("internal server error: nil response for function code 0x%02x", req.functionCode)
		res = &pdu{
			unitID:       req.unitID,
			functionCode: 0x80 | req.functionCode,
			payload:      []byte{exServerDeviceFailure},
		}
	}

	return
}

func (ms *ModbusServer) dispatchReadBits(req *pdu, clientAddr string) (res *pdu, err error) {
	if len(req.payload) != 4 {
		return nil, ErrIllegalDataValue
	}

	addr, quantity, err := decodeReadRequest(req.payload)
	if err != nil {
		return nil, err
	}
	if quantity == 0 || quantity > 2000 {
		return nil, ErrIllegalDataValue
	}
	if uint32(addr)+uint32(quantity)-1 > 0xffff {
		return nil, ErrIllegalDataAddress
	}

	var bits []bool

	if req.functionCode == fcReadCoils {
		bits, err = ms.handler.HandleCoils(&CoilsRequest{
			ClientAddr: clientAddr, UnitID: req.unitID, Addr: addr, Quantity: quantity,
		})
	} else {
		bits, err = ms.handler.HandleDiscreteInputs(&DiscreteInputsRequest{
			ClientAddr: clientAddr, UnitID: req.unitID, Addr: addr, Quantity: quantity,
		})
	}
	if err != nil {
		return nil, err
	}
	if len(bits) != int(quantity) {
		ms.logger.Errorf("handler returned %v bools, expected %v", len(bits), quantity)
		return nil, ErrServerDeviceFailure
	}

	res = &pdu{
		unitID:       req.unitID,
		functionCode: req.functionCode,
		payload:      encodeBitsResponse(bits),
	}

	return
}

func (ms *ModbusServer) dispatchWriteCoils(req *pdu, clientAddr string) (res *pdu, err error) {
	if req.functionCode == fcWriteSingleCoil {
		addr, value, derr := decodeWriteSingleCoilRequest(req.payload)
		if derr != nil {
			return nil, derr
		}

		if _, err = ms.handler.HandleCoils(&CoilsRequest{
			WriteFuncCode: fcWriteSingleCoil, ClientAddr: clientAddr, UnitID: req.unitID,
			Addr: addr, Quantity: 1, IsWrite: true, Args: []bool{value},
		}); err != nil {
			return nil, err
		}

		return &pdu{unitID: req.unitID, functionCode: req.functionCode, payload: req.payload}, nil
	}

	addr, values, derr := decodeWriteMultipleCoilsRequest(req.payload)
	if derr != nil {
		return nil, derr
	}
	if len(values) == 0 || len(values) > 0x7b0 {
		return nil, ErrIllegalDataValue
	}
	if uint32(addr)+uint32(len(values))-1 > 0xffff {
		return nil, ErrIllegalDataAddress
	}

	if _, err = ms.handler.HandleCoils(&CoilsRequest{
		WriteFuncCode: fcWriteMultipleCoils, ClientAddr: clientAddr, UnitID: req.unitID,
		Addr: addr, Quantity: uint16(len(values)), IsWrite: true, Args: values,
	}); err != nil {
		return nil, err
	}

	res = &pdu{
		unitID:       req.unitID,
		functionCode: req.functionCode,
		payload:      encodeWriteMultipleResponse(addr, uint16(len(values))),
	}

	return
}

func (ms *ModbusServer) dispatchReadRegisters(req *pdu, clientAddr string) (res *pdu, err error) {
	if len(req.payload) != 4 {
		return nil, ErrIllegalDataValue
	}

	addr, quantity, err := decodeReadRequest(req.payload)
	if err != nil {
		return nil, err
	}
	if quantity == 0 || quantity > 125 {
		return nil, ErrIllegalDataValue
	}
	if uint32(addr)+uint32(quantity)-1 > 0xffff {
		return nil, ErrIllegalDataAddress
	}

	var regs []uint16

	if req.functionCode == fcReadHoldingRegisters {
		regs, err = ms.handler.HandleHoldingRegisters(&HoldingRegistersRequest{
			ClientAddr: clientAddr, UnitID: req.unitID, Addr: addr, Quantity: quantity,
		})
	} else {
		regs, err = ms.handler.HandleInputRegisters(&InputRegistersRequest{
			ClientAddr: clientAddr, UnitID: req.unitID, Addr: addr, Quantity: quantity,
		})
	}
	if err != nil {
		return nil, err
	}
	if len(regs) != int(quantity) {
		ms.logger.Errorf("handler returned %v registers, expected %v", len(regs), quantity)
		return nil, ErrServerDeviceFailure
	}

	res = &pdu{
		unitID:       req.unitID,
		functionCode: req.functionCode,
		payload:      encodeRegistersResponse(regs),
	}

	return
}

func (ms *ModbusServer) dispatchWriteRegisters(req *pdu, clientAddr string) (res *pdu, err error) {
	if req.functionCode == fcWriteSingleRegister {
		addr, value, derr := decodeWriteSingleRegisterRequest(req.payload)
		if derr != nil {
			return nil, derr
		}

		if _, err = ms.handler.HandleHoldingRegisters(&HoldingRegistersRequest{
			WriteFuncCode: fcWriteSingleRegister, ClientAddr: clientAddr, UnitID: req.unitID,
			Addr: addr, Quantity: 1, IsWrite: true, Args: []uint16{value},
		}); err != nil {
			return nil, err
		}

		return &pdu{unitID: req.unitID, functionCode: req.functionCode, payload: req.payload}, nil
	}

	addr, values, derr := decodeWriteMultipleRegistersRequest(req.payload)
	if derr != nil {
		return nil, derr
	}
	if len(values) == 0 || len(values) > 0x7b {
		return nil, ErrIllegalDataValue
	}
	if uint32(addr)+uint32(len(values))-1 > 0xffff {
		return nil, ErrIllegalDataAddress
	}

	if _, err = ms.handler.HandleHoldingRegisters(&HoldingRegistersRequest{
		WriteFuncCode: fcWriteMultipleRegisters, ClientAddr: clientAddr, UnitID: req.unitID,
		Addr: addr, Quantity: uint16(len(values)), IsWrite: true, Args: values,
	}); err != nil {
		return nil, err
	}

	res = &pdu{
		unitID:       req.unitID,
		functionCode: req.functionCode,
		payload:      encodeWriteMultipleResponse(addr, uint16(len(values))),
	}

	return
}

func (ms *ModbusServer) dispatchMaskWriteRegister(req *pdu, clientAddr string) (res *pdu, err error) {
	addr, andMask, orMask, derr := decodeMaskWriteRegisterRequest(req.payload)
	if derr != nil {
		return nil, derr
	}

	if err = ms.handler.HandleMaskWriteRegister(&MaskWriteRegisterRequest{
		ClientAddr: clientAddr, UnitID: req.unitID, Addr: addr, AndMask: andMask, OrMask: orMask,
	}); err != nil {
		return nil, err
	}

	return &pdu{unitID: req.unitID, functionCode: req.functionCode, payload: req.payload}, nil
}

func (ms *ModbusServer) dispatchReadWriteMultipleRegisters(req *pdu, clientAddr string) (res *pdu, err error) {
	readAddr, readQty, writeAddr, writeValues, derr := decodeReadWriteMultipleRegistersRequest(req.payload)
	if derr != nil {
		return nil, derr
	}
	if readQty == 0 || readQty > 125 || len(writeValues) == 0 || len(writeValues) > 121 {
		return nil, ErrIllegalDataValue
	}

	regs, err := ms.handler.HandleReadWriteMultipleRegisters(&ReadWriteMultipleRegistersRequest{
		ClientAddr: clientAddr, UnitID: req.unitID,
		ReadAddr: readAddr, ReadQty: readQty, WriteAddr: writeAddr, WriteValues: writeValues,
	})
	if err != nil {
		return nil, err
	}
	if len(regs) != int(readQty) {
		ms.logger.Errorf("handler returned %v registers, expected %v", len(regs), readQty)
		return nil, ErrServerDeviceFailure
	}

	res = &pdu{
		unitID:       req.unitID,
		functionCode: req.functionCode,
		payload:      encodeRegistersResponse(regs),
	}

	return
}

func (ms *ModbusServer) dispatchReadFIFOQueue(req *pdu, clientAddr string) (res *pdu, err error) {
	fifoAddr, derr := decodeFIFORequest(req.payload)
	if derr != nil {
		return nil, derr
	}

	values, err := ms.handler.HandleFIFOQueue(&FIFORequest{
		ClientAddr: clientAddr, UnitID: req.unitID, FIFOAddr: fifoAddr,
	})
	if err != nil {
		return nil, err
	}
	if len(values) > 31 {
		return nil, ErrServerDeviceFailure
	}

	res = &pdu{
		unitID:       req.unitID,
		functionCode: req.functionCode,
		payload:      encodeFIFOResponse(values),
	}

	return
}

func (ms *ModbusServer) dispatchFileRecords(req *pdu, clientAddr string) (res *pdu, err error) {
	if req.functionCode == fcReadFileRecord {
		reqs, derr := decodeReadFileRecordRequest(req.payload)
		if derr != nil {
			return nil, derr
		}

		records, err := ms.handler.HandleFileRecords(&FileRecordsRequest{
			ClientAddr: clientAddr, UnitID: req.unitID, Records: exportFileRecords(reqs),
		})
		if err != nil {
			return nil, err
		}

		resps := make([]fileRecordResponse, len(records))
		for i, d := range records {
			resps[i] = fileRecordResponse{data: d}
		}

		return &pdu{unitID: req.unitID, functionCode: req.functionCode, payload: encodeReadFileRecordResponse(resps)}, nil
	}

	reqs, derr := decodeWriteFileRecordRequest(req.payload)
	if derr != nil {
		return nil, derr
	}

	if _, err = ms.handler.HandleFileRecords(&FileRecordsRequest{
		ClientAddr: clientAddr, UnitID: req.unitID, IsWrite: true, Records: exportFileRecords(reqs),
	}); err != nil {
		return nil, err
	}

	return &pdu{unitID: req.unitID, functionCode: req.functionCode, payload: req.payload}, nil
}

func (ms *ModbusServer) dispatchEncapsulatedInterface(req *pdu, clientAddr string) (res *pdu, err error) {
	readDevIDCode, objectID, derr := decodeReadDeviceIdentificationRequest(req.payload)
	if derr != nil {
		return nil, derr
	}

	objects, err := ms.handler.HandleDeviceIdentification(&DeviceIdentificationRequest{
		ClientAddr: clientAddr, UnitID: req.unitID, ReadDevIDCode: readDevIDCode, ObjectID: objectID,
	})
	if err != nil {
		return nil, err
	}

	conformity := conformityLevelBasic
	switch readDevIDCode {
	case deviceIDCodeRegular:
		conformity = conformityLevelRegular
	case deviceIDCodeExtended:
		conformity = conformityLevelExtended
	}

	res = &pdu{
		unitID:       req.unitID,
		functionCode: req.functionCode,
		payload:      encodeReadDeviceIdentificationResponse(readDevIDCode, conformity, false, 0, importDeviceIdentificationObjects(objects)),
	}

	return
}

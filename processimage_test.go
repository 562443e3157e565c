package modbus

import (
	"testing"
)

func TestProcessImageCoils(t *testing.T) {
	var pi *ProcessImage
	var res []bool
	var err error

	pi = NewProcessImage()

	_, err = pi.HandleCoils(&CoilsRequest{
		UnitID: 1, Addr: 0, Quantity: 3,
		IsWrite: true, Args: []bool{true, false, true},
	})
	if err != nil {
		t.Errorf("write should have succeeded, got: %v", err)
	}

	res, err = pi.HandleCoils(&CoilsRequest{UnitID: 1, Addr: 0, Quantity: 3})
	if err != nil {
		t.Errorf("read should have succeeded, got: %v", err)
	}
	if len(res) != 3 || res[0] != true || res[1] != false || res[2] != true {
		t.Errorf("expected {true, false, true}, got %v", res)
	}

	// a second unit id starts out zeroed, independently of unit 1
	res, err = pi.HandleCoils(&CoilsRequest{UnitID: 2, Addr: 0, Quantity: 3})
	if err != nil {
		t.Errorf("read should have succeeded, got: %v", err)
	}
	if res[0] != false || res[1] != false || res[2] != false {
		t.Errorf("expected unit 2 to start out zeroed, got %v", res)
	}

	return
}

func TestProcessImageHoldingRegisters(t *testing.T) {
	var pi *ProcessImage
	var res []uint16
	var err error

	pi = NewProcessImage()

	_, err = pi.HandleHoldingRegisters(&HoldingRegistersRequest{
		UnitID: 1, Addr: 10, Quantity: 2,
		IsWrite: true, Args: []uint16{0x1234, 0x5678},
	})
	if err != nil {
		t.Errorf("write should have succeeded, got: %v", err)
	}

	res, err = pi.HandleHoldingRegisters(&HoldingRegistersRequest{UnitID: 1, Addr: 10, Quantity: 2})
	if err != nil {
		t.Errorf("read should have succeeded, got: %v", err)
	}
	if len(res) != 2 || res[0] != 0x1234 || res[1] != 0x5678 {
		t.Errorf("expected {0x1234, 0x5678}, got %v", res)
	}

	_, err = pi.HandleHoldingRegisters(&HoldingRegistersRequest{UnitID: 1, Addr: 65535, Quantity: 2})
	if err != ErrIllegalDataAddress {
		t.Errorf("expected ErrIllegalDataAddress for an out-of-range read, got: %v", err)
	}

	return
}

func TestProcessImageMaskWriteRegister(t *testing.T) {
	var pi *ProcessImage
	var res []uint16
	var err error

	pi = NewProcessImage()

	_, err = pi.HandleHoldingRegisters(&HoldingRegistersRequest{
		UnitID: 1, Addr: 5, Quantity: 1, IsWrite: true, Args: []uint16{0x0012},
	})
	if err != nil {
		t.Errorf("setup write should have succeeded, got: %v", err)
	}

	err = pi.HandleMaskWriteRegister(&MaskWriteRegisterRequest{
		UnitID: 1, Addr: 5, AndMask: 0xf2, OrMask: 0x25,
	})
	if err != nil {
		t.Errorf("mask write should have succeeded, got: %v", err)
	}

	res, err = pi.HandleHoldingRegisters(&HoldingRegistersRequest{UnitID: 1, Addr: 5, Quantity: 1})
	if err != nil {
		t.Errorf("read should have succeeded, got: %v", err)
	}
	if res[0] != 0x17 {
		t.Errorf("expected 0x17, got 0x%02x", res[0])
	}

	return
}

func TestProcessImageReadWriteMultipleRegisters(t *testing.T) {
	var pi *ProcessImage
	var res []uint16
	var err error

	pi = NewProcessImage()

	_, err = pi.HandleHoldingRegisters(&HoldingRegistersRequest{
		UnitID: 1, Addr: 0, Quantity: 4, IsWrite: true,
		Args: []uint16{1, 2, 3, 4},
	})
	if err != nil {
		t.Errorf("setup write should have succeeded, got: %v", err)
	}

	res, err = pi.HandleReadWriteMultipleRegisters(&ReadWriteMultipleRegistersRequest{
		UnitID: 1, ReadAddr: 0, ReadQty: 4,
		WriteAddr: 2, WriteValues: []uint16{0xaaaa, 0xbbbb},
	})
	if err != nil {
		t.Errorf("read/write should have succeeded, got: %v", err)
	}
	// the write touches addresses 2-3, and must be visible in the read
	// of 0-3 that follows it in the same call
	if len(res) != 4 || res[0] != 1 || res[1] != 2 || res[2] != 0xaaaa || res[3] != 0xbbbb {
		t.Errorf("expected {1, 2, 0xaaaa, 0xbbbb}, got %v", res)
	}

	return
}

func TestProcessImageFIFOQueue(t *testing.T) {
	var pi *ProcessImage
	var res []uint16
	var err error

	pi = NewProcessImage()

	pi.PushFIFO(1, 0x30, 0x0011)
	pi.PushFIFO(1, 0x30, 0x0022)
	pi.PushFIFO(1, 0x30, 0x0033)

	res, err = pi.HandleFIFOQueue(&FIFORequest{UnitID: 1, FIFOAddr: 0x30})
	if err != nil {
		t.Errorf("read should have succeeded, got: %v", err)
	}
	if len(res) != 3 || res[0] != 0x0011 || res[1] != 0x0022 || res[2] != 0x0033 {
		t.Errorf("expected {0x0011, 0x0022, 0x0033}, got %v", res)
	}

	for i := 0; i < fifoCapacity+5; i++ {
		pi.PushFIFO(1, 0x31, uint16(i))
	}
	res, err = pi.HandleFIFOQueue(&FIFORequest{UnitID: 1, FIFOAddr: 0x31})
	if err != nil {
		t.Errorf("read should have succeeded, got: %v", err)
	}
	if len(res) != fifoCapacity {
		t.Errorf("expected the queue to be capped at %v entries, got %v", fifoCapacity, len(res))
	}
	if res[0] != 5 {
		t.Errorf("expected the oldest entries to have been dropped, first value is %v", res[0])
	}

	return
}

func TestProcessImageFileRecords(t *testing.T) {
	var pi *ProcessImage
	var res [][]uint16
	var err error

	pi = NewProcessImage()

	_, err = pi.HandleFileRecords(&FileRecordsRequest{
		UnitID: 1, IsWrite: true,
		Records: []FileRecord{
			{FileNumber: 4, RecordNumber: 1, Data: []uint16{0xaaaa, 0xbbbb}},
		},
	})
	if err != nil {
		t.Errorf("write should have succeeded, got: %v", err)
	}

	res, err = pi.HandleFileRecords(&FileRecordsRequest{
		UnitID: 1,
		Records: []FileRecord{
			{FileNumber: 4, RecordNumber: 1},
		},
	})
	if err != nil {
		t.Errorf("read should have succeeded, got: %v", err)
	}
	if len(res) != 1 || len(res[0]) != 2 || res[0][0] != 0xaaaa || res[0][1] != 0xbbbb {
		t.Errorf("expected {{0xaaaa, 0xbbbb}}, got %v", res)
	}

	_, err = pi.HandleFileRecords(&FileRecordsRequest{
		UnitID: 1,
		Records: []FileRecord{
			{FileNumber: 9, RecordNumber: 1},
		},
	})
	if err != ErrIllegalDataAddress {
		t.Errorf("expected ErrIllegalDataAddress for an unknown file number, got: %v", err)
	}

	return
}

func TestProcessImageObserve(t *testing.T) {
	var pi *ProcessImage
	var seen []Observation
	var err error

	pi = NewProcessImage()
	pi.Observe(func(obs Observation) {
		seen = append(seen, obs)
	})

	_, err = pi.HandleHoldingRegisters(&HoldingRegistersRequest{
		UnitID: 3, Addr: 0, Quantity: 1, IsWrite: true, Args: []uint16{42},
	})
	if err != nil {
		t.Errorf("write should have succeeded, got: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("expected 1 observation, got %v", len(seen))
	}
	if seen[0].UnitID != 3 || seen[0].Addr != 0 {
		t.Errorf("unexpected observation: %+v", seen[0])
	}

	return
}

func TestProcessImageDeviceIdentificationDefaultsToIllegalFunction(t *testing.T) {
	var pi *ProcessImage
	var err error

	pi = NewProcessImage()

	_, err = pi.HandleDeviceIdentification(&DeviceIdentificationRequest{UnitID: 1})
	if err != ErrIllegalFunction {
		t.Errorf("expected ErrIllegalFunction, got: %v", err)
	}

	return
}

package modbus

import (
	"testing"
)

func TestEncodeDecodeMaskWriteRegisterRequest(t *testing.T) {
	var payload []byte
	var ref, andMask, orMask uint16
	var err error

	payload = encodeMaskWriteRegisterRequest(0x1234, 0xfffa, 0x0005)
	if len(payload) != 6 {
		t.Errorf("expected 6 bytes, got %v", len(payload))
	}

	ref, andMask, orMask, err = decodeMaskWriteRegisterRequest(payload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if ref != 0x1234 || andMask != 0xfffa || orMask != 0x0005 {
		t.Errorf("expected {0x1234, 0xfffa, 0x0005}, got {0x%04x, 0x%04x, 0x%04x}",
			ref, andMask, orMask)
	}

	return
}

func TestApplyMaskWrite(t *testing.T) {
	var result uint16

	result = applyMaskWrite(0x0012, 0xf2, 0x25)
	if result != 0x17 {
		t.Errorf("expected 0x17, got 0x%02x", result)
	}

	result = applyMaskWrite(0x1234, 0xffff, 0x0000)
	if result != 0x1234 {
		t.Errorf("expected 0x1234 (and mask leaves value untouched), got 0x%04x", result)
	}

	result = applyMaskWrite(0x1234, 0x0000, 0xabcd)
	if result != 0xabcd {
		t.Errorf("expected 0xabcd (or mask fully overrides), got 0x%04x", result)
	}

	return
}

func TestEncodeDecodeReadWriteMultipleRegistersRequest(t *testing.T) {
	var payload []byte
	var readRef, readQuantity, writeRef uint16
	var writeValues []uint16
	var err error

	payload = encodeReadWriteMultipleRegistersRequest(0x00, 4, 0x20, []uint16{0xaaaa, 0xbbbb})

	readRef, readQuantity, writeRef, writeValues, err = decodeReadWriteMultipleRegistersRequest(payload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if readRef != 0x00 || readQuantity != 4 || writeRef != 0x20 {
		t.Errorf("expected {0x00, 4, 0x20}, got {0x%04x, %v, 0x%04x}",
			readRef, readQuantity, writeRef)
	}
	if len(writeValues) != 2 || writeValues[0] != 0xaaaa || writeValues[1] != 0xbbbb {
		t.Errorf("expected {0xaaaa, 0xbbbb}, got %v", writeValues)
	}

	return
}

func TestEncodeDecodeFIFORequestResponse(t *testing.T) {
	var reqPayload []byte
	var resPayload []byte
	var ref uint16
	var values []uint16
	var err error

	reqPayload = encodeFIFORequest(0x30)
	ref, err = decodeFIFORequest(reqPayload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if ref != 0x30 {
		t.Errorf("expected 0x30, got 0x%04x", ref)
	}

	resPayload = encodeFIFOResponse([]uint16{0x0011, 0x0022, 0x0033})
	values, err = decodeFIFOResponse(resPayload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if len(values) != 3 || values[0] != 0x0011 || values[1] != 0x0022 || values[2] != 0x0033 {
		t.Errorf("expected {0x0011, 0x0022, 0x0033}, got %v", values)
	}

	return
}

func TestEncodeDecodeReadFileRecordRequest(t *testing.T) {
	var payload []byte
	var reqs []fileRecordRequest
	var err error

	reqs = importFileRecords([]FileRecord{
		{FileNumber: 4, RecordNumber: 1, RecordLength: 2},
		{FileNumber: 3, RecordNumber: 9, RecordLength: 1},
	})

	payload = encodeReadFileRecordRequest(reqs)

	reqs, err = decodeReadFileRecordRequest(payload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if len(reqs) != 2 {
		t.Errorf("expected 2 sub-requests, got %v", len(reqs))
	}
	if reqs[0].fileNumber != 4 || reqs[0].recordNumber != 1 || reqs[0].recordLength != 2 {
		t.Errorf("unexpected first sub-request: %+v", reqs[0])
	}
	if reqs[1].fileNumber != 3 || reqs[1].recordNumber != 9 || reqs[1].recordLength != 1 {
		t.Errorf("unexpected second sub-request: %+v", reqs[1])
	}

	return
}

func TestEncodeDecodeReadFileRecordResponse(t *testing.T) {
	var payload []byte
	var resps []fileRecordResponse
	var err error

	resps = []fileRecordResponse{
		{data: []uint16{0x1111, 0x2222}},
		{data: []uint16{0x3333}},
	}

	payload = encodeReadFileRecordResponse(resps)

	resps, err = decodeReadFileRecordResponse(payload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if len(resps) != 2 {
		t.Errorf("expected 2 sub-responses, got %v", len(resps))
	}
	if len(resps[0].data) != 2 || resps[0].data[0] != 0x1111 || resps[0].data[1] != 0x2222 {
		t.Errorf("unexpected first sub-response: %+v", resps[0])
	}
	if len(resps[1].data) != 1 || resps[1].data[0] != 0x3333 {
		t.Errorf("unexpected second sub-response: %+v", resps[1])
	}

	return
}

func TestEncodeDecodeWriteFileRecordRequest(t *testing.T) {
	var payload []byte
	var reqs []fileRecordRequest
	var err error

	reqs = importFileRecords([]FileRecord{
		{FileNumber: 4, RecordNumber: 7, Data: []uint16{0xaaaa, 0xbbbb}},
	})

	payload = encodeWriteFileRecordRequest(reqs)

	reqs, err = decodeWriteFileRecordRequest(payload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if len(reqs) != 1 {
		t.Errorf("expected 1 sub-request, got %v", len(reqs))
	}
	if reqs[0].fileNumber != 4 || reqs[0].recordNumber != 7 {
		t.Errorf("unexpected sub-request: %+v", reqs[0])
	}
	if len(reqs[0].data) != 2 || reqs[0].data[0] != 0xaaaa || reqs[0].data[1] != 0xbbbb {
		t.Errorf("unexpected sub-request data: %v", reqs[0].data)
	}

	return
}

func TestImportExportFileRecords(t *testing.T) {
	var exported []FileRecord

	exported = exportFileRecords(importFileRecords([]FileRecord{
		{FileNumber: 1, RecordNumber: 2, RecordLength: 3, Data: []uint16{0x01, 0x02}},
	}))

	if len(exported) != 1 {
		t.Errorf("expected 1 record, got %v", len(exported))
	}
	if exported[0].FileNumber != 1 || exported[0].RecordNumber != 2 || exported[0].RecordLength != 3 {
		t.Errorf("unexpected record: %+v", exported[0])
	}
	if len(exported[0].Data) != 2 || exported[0].Data[0] != 0x01 || exported[0].Data[1] != 0x02 {
		t.Errorf("unexpected record data: %v", exported[0].Data)
	}

	return
}

func TestEncodeDecodeReadDeviceIdentificationRequest(t *testing.T) {
	var payload []byte
	var readDevIDCode, objectID uint8
	var err error

	payload = encodeReadDeviceIdentificationRequest(deviceIDCodeBasic, objectIDVendorName)

	readDevIDCode, objectID, err = decodeReadDeviceIdentificationRequest(payload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if readDevIDCode != deviceIDCodeBasic || objectID != objectIDVendorName {
		t.Errorf("expected {0x%02x, 0x%02x}, got {0x%02x, 0x%02x}",
			deviceIDCodeBasic, objectIDVendorName, readDevIDCode, objectID)
	}

	_, _, err = decodeReadDeviceIdentificationRequest([]byte{0xff, 0x01, 0x00})
	if err != ErrIllegalDataValue {
		t.Errorf("expected ErrIllegalDataValue for a non-device-identification MEI type, got: %v", err)
	}

	return
}

func TestEncodeDecodeReadDeviceIdentificationResponse(t *testing.T) {
	var payload []byte
	var conformityLevel, nextObjectID uint8
	var moreFollows bool
	var objects []deviceIdentificationObject
	var err error

	objects = importDeviceIdentificationObjects([]DeviceIdentificationObject{
		{ID: objectIDVendorName, Value: []byte("Acme Corp")},
		{ID: objectIDProductCode, Value: []byte("PLC-1000")},
	})

	payload = encodeReadDeviceIdentificationResponse(deviceIDCodeBasic, conformityLevelBasic, false, 0x00, objects)

	conformityLevel, moreFollows, nextObjectID, objects, err = decodeReadDeviceIdentificationResponse(payload)
	if err != nil {
		t.Errorf("decode should have succeeded, got: %v", err)
	}
	if conformityLevel != conformityLevelBasic {
		t.Errorf("expected conformity level 0x%02x, got 0x%02x", conformityLevelBasic, conformityLevel)
	}
	if moreFollows {
		t.Errorf("expected moreFollows to be false")
	}
	if nextObjectID != 0x00 {
		t.Errorf("expected nextObjectID 0x00, got 0x%02x", nextObjectID)
	}
	if len(objects) != 2 {
		t.Errorf("expected 2 objects, got %v", len(objects))
	}
	if string(objects[0].value) != "Acme Corp" {
		t.Errorf("expected \"Acme Corp\", got %q", string(objects[0].value))
	}
	if string(objects[1].value) != "PLC-1000" {
		t.Errorf("expected \"PLC-1000\", got %q", string(objects[1].value))
	}

	exported := exportDeviceIdentificationObjects(objects)
	if exported[0].ID != objectIDVendorName || string(exported[0].Value) != "Acme Corp" {
		t.Errorf("unexpected exported object: %+v", exported[0])
	}

	return
}

package modbus

// This file holds request/response payload encoders and decoders for
// every function code, the decoders reading through byteCursor. The
// server and some client methods build and consume pdu.payload through
// these helpers; other client methods (readBools, readRegisters,
// writeRegisters, ...) build and slice payloads inline.

// encodeReadRequest builds the payload for FC 1/2/3/4: a reference address
// and a quantity.
func encodeReadRequest(ref uint16, quantity uint16) []byte {
	out := uint16ToBytes(BigEndian, ref)
	out = append(out, uint16ToBytes(BigEndian, quantity)...)

	return out
}

func decodeReadRequest(payload []byte) (ref uint16, quantity uint16, err error) {
	bc := newByteCursor(payload)

	if ref, err = bc.nextUint16(BigEndian); err != nil {
		return
	}
	quantity, err = bc.nextUint16(BigEndian)

	return
}

// encodeBitsResponse packs a bool slice (coils/discrete inputs) as
// byteCount + packed bits.
func encodeBitsResponse(values []bool) []byte {
	packed := encodeBools(values)

	out := make([]byte, 0, 1+len(packed))
	out = append(out, byte(len(packed)))
	out = append(out, packed...)

	return out
}

func decodeBitsResponse(payload []byte, quantity int) (values []bool, err error) {
	bc := newByteCursor(payload)

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	values = decodeBools(uint16(quantity), body)

	return
}

// encodeRegistersResponse packs a uint16 slice (holding/input registers) as
// byteCount + big-endian words.
func encodeRegistersResponse(values []uint16) []byte {
	body := uint16sToBytes(BigEndian, values)

	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(len(body)))
	out = append(out, body...)

	return out
}

func decodeRegistersResponse(payload []byte) (values []uint16, err error) {
	bc := newByteCursor(payload)

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	values = bytesToUint16s(BigEndian, body)

	return
}

// encodeWriteSingleCoilRequest builds the FC 5 request payload: a
// reference address and a 0x0000/0xff00 value.
func encodeWriteSingleCoilRequest(ref uint16, value bool) []byte {
	out := uint16ToBytes(BigEndian, ref)

	if value {
		out = append(out, 0xff, 0x00)
	} else {
		out = append(out, 0x00, 0x00)
	}

	return out
}

func decodeWriteSingleCoilRequest(payload []byte) (ref uint16, value bool, err error) {
	bc := newByteCursor(payload)

	if ref, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	var raw uint16
	if raw, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	switch raw {
	case 0x0000:
		value = false
	case 0xff00:
		value = true
	default:
		err = ErrIllegalDataValue
	}

	return
}

// encodeWriteSingleRegisterRequest builds the FC 6 request payload.
func encodeWriteSingleRegisterRequest(ref uint16, value uint16) []byte {
	out := uint16ToBytes(BigEndian, ref)
	out = append(out, uint16ToBytes(BigEndian, value)...)

	return out
}

func decodeWriteSingleRegisterRequest(payload []byte) (ref uint16, value uint16, err error) {
	bc := newByteCursor(payload)

	if ref, err = bc.nextUint16(BigEndian); err != nil {
		return
	}
	value, err = bc.nextUint16(BigEndian)

	return
}

// encodeWriteMultipleCoilsRequest builds the FC 15 request payload.
func encodeWriteMultipleCoilsRequest(ref uint16, values []bool) []byte {
	packed := encodeBools(values)

	out := uint16ToBytes(BigEndian, ref)
	out = append(out, uint16ToBytes(BigEndian, uint16(len(values)))...)
	out = append(out, byte(len(packed)))
	out = append(out, packed...)

	return out
}

func decodeWriteMultipleCoilsRequest(payload []byte) (ref uint16, values []bool, err error) {
	bc := newByteCursor(payload)

	if ref, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	var quantity uint16
	if quantity, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	values = decodeBools(quantity, body)

	return
}

// encodeWriteMultipleRegistersRequest builds the FC 16 request payload.
func encodeWriteMultipleRegistersRequest(ref uint16, values []uint16) []byte {
	body := uint16sToBytes(BigEndian, values)

	out := uint16ToBytes(BigEndian, ref)
	out = append(out, uint16ToBytes(BigEndian, uint16(len(values)))...)
	out = append(out, byte(len(body)))
	out = append(out, body...)

	return out
}

func decodeWriteMultipleRegistersRequest(payload []byte) (ref uint16, values []uint16, err error) {
	bc := newByteCursor(payload)

	if ref, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	var quantity uint16
	if quantity, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	values = bytesToUint16s(BigEndian, body)
	if uint16(len(values)) != quantity {
		err = ErrIllegalDataValue
	}

	return
}

// encodeWriteMultipleResponse builds the common FC 15/16 response shape:
// the reference address echoed back together with the accepted quantity.
func encodeWriteMultipleResponse(ref uint16, quantity uint16) []byte {
	out := uint16ToBytes(BigEndian, ref)
	out = append(out, uint16ToBytes(BigEndian, quantity)...)

	return out
}

func decodeWriteMultipleResponse(payload []byte) (ref uint16, quantity uint16, err error) {
	bc := newByteCursor(payload)

	if ref, err = bc.nextUint16(BigEndian); err != nil {
		return
	}
	quantity, err = bc.nextUint16(BigEndian)

	return
}

// encodeMaskWriteRegisterRequest builds the FC 22 request/response
// payload (the response is simply an echo of the request).
func encodeMaskWriteRegisterRequest(ref uint16, andMask uint16, orMask uint16) []byte {
	out := uint16ToBytes(BigEndian, ref)
	out = append(out, uint16ToBytes(BigEndian, andMask)...)
	out = append(out, uint16ToBytes(BigEndian, orMask)...)

	return out
}

func decodeMaskWriteRegisterRequest(payload []byte) (ref uint16, andMask uint16, orMask uint16, err error) {
	bc := newByteCursor(payload)

	if ref, err = bc.nextUint16(BigEndian); err != nil {
		return
	}
	if andMask, err = bc.nextUint16(BigEndian); err != nil {
		return
	}
	orMask, err = bc.nextUint16(BigEndian)

	return
}

// applyMaskWrite computes the new register value per the FC 22
// definition: (current & andMask) | (orMask &^ andMask).
func applyMaskWrite(current uint16, andMask uint16, orMask uint16) uint16 {
	return (current & andMask) | (orMask &^ andMask)
}

// encodeReadWriteMultipleRegistersRequest builds the FC 23 request
// payload: a read range followed by the registers to write.
func encodeReadWriteMultipleRegistersRequest(readRef uint16, readQuantity uint16, writeRef uint16, writeValues []uint16) []byte {
	body := uint16sToBytes(BigEndian, writeValues)

	out := uint16ToBytes(BigEndian, readRef)
	out = append(out, uint16ToBytes(BigEndian, readQuantity)...)
	out = append(out, uint16ToBytes(BigEndian, writeRef)...)
	out = append(out, uint16ToBytes(BigEndian, uint16(len(writeValues)))...)
	out = append(out, byte(len(body)))
	out = append(out, body...)

	return out
}

func decodeReadWriteMultipleRegistersRequest(payload []byte) (readRef uint16, readQuantity uint16, writeRef uint16, writeValues []uint16, err error) {
	bc := newByteCursor(payload)

	if readRef, err = bc.nextUint16(BigEndian); err != nil {
		return
	}
	if readQuantity, err = bc.nextUint16(BigEndian); err != nil {
		return
	}
	if writeRef, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	var writeQuantity uint16
	if writeQuantity, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	writeValues = bytesToUint16s(BigEndian, body)
	if uint16(len(writeValues)) != writeQuantity {
		err = ErrIllegalDataValue
	}

	return
}

// encodeFIFORequest builds the FC 24 request payload: the FIFO pointer
// address.
func encodeFIFORequest(ref uint16) []byte {
	return uint16ToBytes(BigEndian, ref)
}

func decodeFIFORequest(payload []byte) (ref uint16, err error) {
	bc := newByteCursor(payload)
	ref, err = bc.nextUint16(BigEndian)

	return
}

// encodeFIFOResponse builds the FC 24 response payload: byte count (2),
// the FIFO value count and the queued words themselves.
func encodeFIFOResponse(values []uint16) []byte {
	words := uint16sToBytes(BigEndian, values)

	out := uint16ToBytes(BigEndian, uint16(len(words)+2))
	out = append(out, uint16ToBytes(BigEndian, uint16(len(values)))...)
	out = append(out, words...)

	return out
}

func decodeFIFOResponse(payload []byte) (values []uint16, err error) {
	bc := newByteCursor(payload)

	if _, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	var count uint16
	if count, err = bc.nextUint16(BigEndian); err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(count) * 2); err != nil {
		return
	}

	values = bytesToUint16s(BigEndian, body)

	return
}

// fileRecordRequest is one sub-request of a FC 20/21 ADU: a record inside
// a file, addressed by file and record number.
type fileRecordRequest struct {
	fileNumber   uint16
	recordNumber uint16
	recordLength uint16
	// data carries the values to write for FC 21; unused for FC 20.
	data []uint16
}

const fileRecordReferenceType uint8 = 0x06

// FileRecord is the exported counterpart of fileRecordRequest, used by
// Client.ReadFileRecords/WriteFileRecords and RequestHandler.HandleFileRecords.
type FileRecord struct {
	FileNumber   uint16
	RecordNumber uint16
	// RecordLength is only meaningful for reads: it's the number of
	// 16-bit registers requested from (FileNumber, RecordNumber).
	RecordLength uint16
	// Data carries the values to write for FC 21, or the values read
	// back for FC 20.
	Data []uint16
}

func importFileRecords(recs []FileRecord) []fileRecordRequest {
	out := make([]fileRecordRequest, len(recs))
	for i, r := range recs {
		out[i] = fileRecordRequest{
			fileNumber: r.FileNumber, recordNumber: r.RecordNumber,
			recordLength: r.RecordLength, data: r.Data,
		}
	}
	return out
}

func exportFileRecords(recs []fileRecordRequest) []FileRecord {
	out := make([]FileRecord, len(recs))
	for i, r := range recs {
		out[i] = FileRecord{
			FileNumber: r.fileNumber, RecordNumber: r.recordNumber,
			RecordLength: r.recordLength, Data: r.data,
		}
	}
	return out
}

// encodeReadFileRecordRequest builds the FC 20 request payload.
func encodeReadFileRecordRequest(reqs []fileRecordRequest) []byte {
	body := make([]byte, 0, len(reqs)*7)

	for _, r := range reqs {
		body = append(body, fileRecordReferenceType)
		body = append(body, uint16ToBytes(BigEndian, r.fileNumber)...)
		body = append(body, uint16ToBytes(BigEndian, r.recordNumber)...)
		body = append(body, uint16ToBytes(BigEndian, r.recordLength)...)
	}

	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(len(body)))
	out = append(out, body...)

	return out
}

func decodeReadFileRecordRequest(payload []byte) (reqs []fileRecordRequest, err error) {
	bc := newByteCursor(payload)

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	sub := newByteCursor(body)
	for sub.remaining() > 0 {
		var r fileRecordRequest

		if _, err = sub.nextByte(); err != nil {
			return
		}
		if r.fileNumber, err = sub.nextUint16(BigEndian); err != nil {
			return
		}
		if r.recordNumber, err = sub.nextUint16(BigEndian); err != nil {
			return
		}
		if r.recordLength, err = sub.nextUint16(BigEndian); err != nil {
			return
		}

		reqs = append(reqs, r)
	}

	return
}

// fileRecordResponse is one sub-response of a FC 20 ADU.
type fileRecordResponse struct {
	data []uint16
}

// encodeReadFileRecordResponse builds the FC 20 response payload.
func encodeReadFileRecordResponse(resps []fileRecordResponse) []byte {
	body := make([]byte, 0)

	for _, r := range resps {
		words := uint16sToBytes(BigEndian, r.data)
		body = append(body, byte(len(words)+1))
		body = append(body, fileRecordReferenceType)
		body = append(body, words...)
	}

	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(len(body)))
	out = append(out, body...)

	return out
}

func decodeReadFileRecordResponse(payload []byte) (resps []fileRecordResponse, err error) {
	bc := newByteCursor(payload)

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	sub := newByteCursor(body)
	for sub.remaining() > 0 {
		var respLen uint8
		if respLen, err = sub.nextByte(); err != nil {
			return
		}
		if _, err = sub.nextByte(); err != nil {
			return
		}

		var data []byte
		if data, err = sub.next(int(respLen) - 1); err != nil {
			return
		}

		resps = append(resps, fileRecordResponse{data: bytesToUint16s(BigEndian, data)})
	}

	return
}

// encodeWriteFileRecordRequest builds the FC 21 request payload, also
// used verbatim as the FC 21 response (the write is echoed back).
func encodeWriteFileRecordRequest(reqs []fileRecordRequest) []byte {
	body := make([]byte, 0)

	for _, r := range reqs {
		words := uint16sToBytes(BigEndian, r.data)
		body = append(body, fileRecordReferenceType)
		body = append(body, uint16ToBytes(BigEndian, r.fileNumber)...)
		body = append(body, uint16ToBytes(BigEndian, r.recordNumber)...)
		body = append(body, uint16ToBytes(BigEndian, uint16(len(words)/2))...)
		body = append(body, words...)
	}

	out := make([]byte, 0, 1+len(body))
	out = append(out, byte(len(body)))
	out = append(out, body...)

	return out
}

func decodeWriteFileRecordRequest(payload []byte) (reqs []fileRecordRequest, err error) {
	bc := newByteCursor(payload)

	byteCount, err := bc.nextByte()
	if err != nil {
		return
	}

	var body []byte
	if body, err = bc.next(int(byteCount)); err != nil {
		return
	}

	sub := newByteCursor(body)
	for sub.remaining() > 0 {
		var r fileRecordRequest

		if _, err = sub.nextByte(); err != nil {
			return
		}
		if r.fileNumber, err = sub.nextUint16(BigEndian); err != nil {
			return
		}
		if r.recordNumber, err = sub.nextUint16(BigEndian); err != nil {
			return
		}
		if r.recordLength, err = sub.nextUint16(BigEndian); err != nil {
			return
		}

		var data []byte
		if data, err = sub.next(int(r.recordLength) * 2); err != nil {
			return
		}
		r.data = bytesToUint16s(BigEndian, data)

		reqs = append(reqs, r)
	}

	return
}

// deviceIdentificationObject is one (id, value) pair returned by FC 43
// (Read Device Identification).
type deviceIdentificationObject struct {
	id    uint8
	value []byte
}

// DeviceIdentificationObject is the exported counterpart of
// deviceIdentificationObject, handed back to Client callers and accepted
// from RequestHandler implementations.
type DeviceIdentificationObject struct {
	ID    uint8
	Value []byte
}

func (o deviceIdentificationObject) export() DeviceIdentificationObject {
	return DeviceIdentificationObject{ID: o.id, Value: o.value}
}

func exportDeviceIdentificationObjects(objs []deviceIdentificationObject) []DeviceIdentificationObject {
	out := make([]DeviceIdentificationObject, len(objs))
	for i, o := range objs {
		out[i] = o.export()
	}
	return out
}

func importDeviceIdentificationObjects(objs []DeviceIdentificationObject) []deviceIdentificationObject {
	out := make([]deviceIdentificationObject, len(objs))
	for i, o := range objs {
		out[i] = deviceIdentificationObject{id: o.ID, value: o.Value}
	}
	return out
}

const (
	deviceIDCodeBasic      uint8 = 0x01
	deviceIDCodeRegular    uint8 = 0x02
	deviceIDCodeExtended   uint8 = 0x03
	deviceIDCodeSpecific   uint8 = 0x04
	conformityLevelBasic   uint8 = 0x01
	conformityLevelRegular uint8 = 0x02
	conformityLevelExtended uint8 = 0x03

	objectIDVendorName          uint8 = 0x00
	objectIDProductCode         uint8 = 0x01
	objectIDMajorMinorRevision  uint8 = 0x02
)

// encodeReadDeviceIdentificationRequest builds the FC 43/0x0e request
// payload.
func encodeReadDeviceIdentificationRequest(readDevIDCode uint8, objectID uint8) []byte {
	return []byte{meiTypeDeviceIdentification, readDevIDCode, objectID}
}

func decodeReadDeviceIdentificationRequest(payload []byte) (readDevIDCode uint8, objectID uint8, err error) {
	bc := newByteCursor(payload)

	var meiType uint8
	if meiType, err = bc.nextByte(); err != nil {
		return
	}
	if meiType != meiTypeDeviceIdentification {
		err = ErrIllegalDataValue
		return
	}
	if readDevIDCode, err = bc.nextByte(); err != nil {
		return
	}
	objectID, err = bc.nextByte()

	return
}

// encodeReadDeviceIdentificationResponse builds the FC 43/0x0e response
// payload.
func encodeReadDeviceIdentificationResponse(readDevIDCode uint8, conformityLevel uint8, moreFollows bool, nextObjectID uint8, objects []deviceIdentificationObject) []byte {
	out := []byte{meiTypeDeviceIdentification, readDevIDCode, conformityLevel}

	if moreFollows {
		out = append(out, 0xff)
	} else {
		out = append(out, 0x00)
	}
	out = append(out, nextObjectID, byte(len(objects)))

	for _, obj := range objects {
		out = append(out, obj.id, byte(len(obj.value)))
		out = append(out, obj.value...)
	}

	return out
}

func decodeReadDeviceIdentificationResponse(payload []byte) (conformityLevel uint8, moreFollows bool, nextObjectID uint8, objects []deviceIdentificationObject, err error) {
	bc := newByteCursor(payload)

	var meiType uint8
	if meiType, err = bc.nextByte(); err != nil {
		return
	}
	if meiType != meiTypeDeviceIdentification {
		err = ErrIllegalDataValue
		return
	}
	// readDevIDCode is echoed but not needed by the caller
	if _, err = bc.nextByte(); err != nil {
		return
	}
	if conformityLevel, err = bc.nextByte(); err != nil {
		return
	}

	var moreFlag uint8
	if moreFlag, err = bc.nextByte(); err != nil {
		return
	}
	moreFollows = moreFlag != 0x00

	if nextObjectID, err = bc.nextByte(); err != nil {
		return
	}

	var objectCount uint8
	if objectCount, err = bc.nextByte(); err != nil {
		return
	}

	for i := 0; i < int(objectCount); i++ {
		var obj deviceIdentificationObject

		if obj.id, err = bc.nextByte(); err != nil {
			return
		}

		var length uint8
		if length, err = bc.nextByte(); err != nil {
			return
		}
		if obj.value, err = bc.next(int(length)); err != nil {
			return
		}

		objects = append(objects, obj)
	}

	return
}

package modbus

import (
	"encoding/binary"
	"math"
)

// byteOrder returns the stdlib ByteOrder matching the given wire
// endianness setting.
func byteOrder(endianness Endianness) binary.ByteOrder {
	if endianness == LittleEndian {
		return binary.LittleEndian
	}

	return binary.BigEndian
}

func uint16ToBytes(endianness Endianness, in uint16) []byte {
	out := make([]byte, 2)
	byteOrder(endianness).PutUint16(out, in)

	return out
}

func uint16sToBytes(endianness Endianness, in []uint16) (out []byte) {
	for _, v := range in {
		out = append(out, uint16ToBytes(endianness, v)...)
	}

	return
}

func bytesToUint16(endianness Endianness, in []byte) uint16 {
	return byteOrder(endianness).Uint16(in)
}

func bytesToUint16s(endianness Endianness, in []byte) (out []uint16) {
	for i := 0; i < len(in); i += 2 {
		out = append(out, bytesToUint16(endianness, in[i:i+2]))
	}

	return
}

// swap32 exchanges the 2 high-order and 2 low-order bytes of a 4-byte
// buffer whenever the requested word order differs from what the chosen
// byte order would naturally produce.
func swap32(endianness Endianness, wordOrder WordOrder, in []byte) []byte {
	naturallyHighFirst := endianness == BigEndian

	if (naturallyHighFirst && wordOrder == HighWordFirst) ||
		(!naturallyHighFirst && wordOrder == LowWordFirst) {
		return in
	}

	return []byte{in[2], in[3], in[0], in[1]}
}

func swap64(endianness Endianness, wordOrder WordOrder, in []byte) []byte {
	naturallyHighFirst := endianness == BigEndian

	if (naturallyHighFirst && wordOrder == HighWordFirst) ||
		(!naturallyHighFirst && wordOrder == LowWordFirst) {
		return in
	}

	return []byte{in[6], in[7], in[4], in[5], in[2], in[3], in[0], in[1]}
}

func uint32ToBytes(endianness Endianness, wordOrder WordOrder, in uint32) []byte {
	out := make([]byte, 4)
	byteOrder(endianness).PutUint32(out, in)

	return swap32(endianness, wordOrder, out)
}

func bytesToUint32s(endianness Endianness, wordOrder WordOrder, in []byte) (out []uint32) {
	for i := 0; i < len(in); i += 4 {
		ordered := swap32(endianness, wordOrder, in[i:i+4])
		out = append(out, byteOrder(endianness).Uint32(ordered))
	}

	return
}

func float32ToBytes(endianness Endianness, wordOrder WordOrder, in float32) []byte {
	return uint32ToBytes(endianness, wordOrder, math.Float32bits(in))
}

func bytesToFloat32s(endianness Endianness, wordOrder WordOrder, in []byte) (out []float32) {
	for _, u := range bytesToUint32s(endianness, wordOrder, in) {
		out = append(out, math.Float32frombits(u))
	}

	return
}

func uint64ToBytes(endianness Endianness, wordOrder WordOrder, in uint64) []byte {
	out := make([]byte, 8)
	byteOrder(endianness).PutUint64(out, in)

	return swap64(endianness, wordOrder, out)
}

func bytesToUint64s(endianness Endianness, wordOrder WordOrder, in []byte) (out []uint64) {
	for i := 0; i < len(in); i += 8 {
		ordered := swap64(endianness, wordOrder, in[i:i+8])
		out = append(out, byteOrder(endianness).Uint64(ordered))
	}

	return
}

func float64ToBytes(endianness Endianness, wordOrder WordOrder, in float64) []byte {
	return uint64ToBytes(endianness, wordOrder, math.Float64bits(in))
}

func bytesToFloat64s(endianness Endianness, wordOrder WordOrder, in []byte) (out []float64) {
	for _, u := range bytesToUint64s(endianness, wordOrder, in) {
		out = append(out, math.Float64frombits(u))
	}

	return
}

// encodeBools packs a slice of booleans into a byte slice, LSB-first,
// as required by the coil/discrete-input wire format.
func encodeBools(in []bool) []byte {
	bv := newBitVector(len(in), false)
	for i, b := range in {
		bv.set(i, b)
	}

	return bv.bytes
}

// decodeBools unpacks quantity booleans from a byte slice, LSB-first.
func decodeBools(quantity uint16, in []byte) []bool {
	bv := newBitVectorFromBytes(in, false)
	bv.forceSize(int(quantity))

	out, _ := bv.asBools(int(quantity))

	return out
}

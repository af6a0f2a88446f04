package protocol

import (
	"encoding/binary"
	"math/rand/v2"
)

// BuildCommand constructs a command packet with a fresh random tag.
//
// Packet structure:
//
//	[USBC][TAG(4)][0(4)][CODE(4)][0][OFFSET(4)][0][COUNT(2)][0(7)]
//
// A zero offset or count leaves its field untouched (all zero).
func BuildCommand(code CommandCode, offset uint32, count uint16) CommandBlock {
	var tag [4]byte
	PutUint32BE(tag[:], rand.Uint32())
	return BuildCommandWithTag(code, offset, count, tag)
}

// BuildCommandWithTag constructs a command packet with the given tag.
// The tag is not checked by the device; it only mirrors the vendor wire format.
func BuildCommandWithTag(code CommandCode, offset uint32, count uint16, tag [4]byte) CommandBlock {
	var cb CommandBlock

	copy(cb[offsetSignature:], CommandSignature[:])
	copy(cb[offsetTag:], tag[:])
	PutUint32BE(cb[offsetCode:], uint32(code))

	if offset != 0 {
		PutUint32BE(cb[offsetAddress:], offset)
	}
	if count != 0 {
		PutUint16BE(cb[offsetCount:], count)
	}

	return cb
}

// Signature returns the packet signature bytes.
func (cb CommandBlock) Signature() [4]byte {
	return [4]byte(cb[offsetSignature : offsetSignature+4])
}

// Tag returns the packet tag.
func (cb CommandBlock) Tag() [4]byte {
	return [4]byte(cb[offsetTag : offsetTag+4])
}

// Code returns the command code.
func (cb CommandBlock) Code() CommandCode {
	return CommandCode(Uint32BE(cb[offsetCode:]))
}

// Offset returns the device offset field.
func (cb CommandBlock) Offset() uint32 {
	return Uint32BE(cb[offsetAddress:])
}

// Count returns the sector count field.
func (cb CommandBlock) Count() uint16 {
	return Uint16BE(cb[offsetCount:])
}

// Bytes returns the packet as a slice backed by a copy.
func (cb CommandBlock) Bytes() []byte {
	return cb[:]
}

// SectorCount returns the count field for a write of payloadLen bytes.
func SectorCount(payloadLen int) uint16 {
	return uint16(payloadLen / SectorSize)
}

// NextSector advances a write cursor by one chunk.
//
// A cursor whose low byte is 0xF0 carries into the next 256-aligned block:
//
//	0x20E0 -> 0x20F0 -> 0x3000
func NextSector(sector uint32) uint32 {
	if sector&0xFF == sectorRollover {
		return ((sector >> 8) + SectorStride) << 8
	}
	return sector + SectorStride
}

// PutUint32BE writes v big-endian into the first 4 bytes of b.
func PutUint32BE(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

// PutUint16BE writes v big-endian into the first 2 bytes of b.
func PutUint16BE(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

// Uint32BE reads a big-endian uint32 from the first 4 bytes of b.
func Uint32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Uint16BE reads a big-endian uint16 from the first 2 bytes of b.
func Uint16BE(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

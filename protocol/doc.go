// Package protocol implements the wire format of the Rockchip USB flashing protocol.
//
// # Protocol Overview
//
// A device in BootROM mode accepts two loader images over vendor control
// transfers. Each image is sent in LoaderChunkSize chunks; the final chunk
// carries a CRC-16 of the whole image, high byte first:
//
//	bmRequestType=0x40 bRequest=12 wValue=0 wIndex=0x0471|0x0472 DATA[...][CRC_H][CRC_L]
//
// After the USB-plug loader runs, the device re-enumerates and accepts
// 31-byte command blocks on bulk OUT endpoint 0x02, answering each with a
// 13-byte response block on bulk IN endpoint 0x81:
//
//	Command:  [USBC][TAG(4)][0(4)][CODE(4)][0][OFFSET(4)][0][COUNT(2)][0(7)]
//	Response: [USBS][TAG(4)][RESIDUE(4)][STATUS]
//
// # Checksum
//
// The loader checksum is CRC-16-CCITT seeded with CRC16Seed and fed chunk by
// chunk:
//
//	crc := uint16(protocol.CRC16Seed)
//	crc = protocol.UpdateCRC16(crc, chunk)
//	if last {
//	    chunk = protocol.AppendCRC16(chunk, crc)
//	}
//
// # Command Builders
//
// BuildCommand creates a command block; zero offsets and counts are left
// unset:
//
//	cb := protocol.BuildCommand(protocol.CmdWriteSector, 0x2000, 16)
//
// # Sector Addressing
//
// NextSector implements the write cursor advance, carrying into the next
// 256-aligned block after a cursor ending in 0xF0.
package protocol

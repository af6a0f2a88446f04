package protocol

import "fmt"

// CommandCode identifies a block command.
type CommandCode uint32

// String returns the command name used in logs.
func (c CommandCode) String() string {
	switch c {
	case CmdTestUnitReady:
		return "TEST_UNIT_READY"
	case CmdReadFlashID:
		return "READ_FLASH_ID"
	case CmdTestBadBlock:
		return "TEST_BAD_BLOCK"
	case CmdReadSector:
		return "READ_SECTOR"
	case CmdWriteSector:
		return "WRITE_SECTOR"
	case CmdEraseSectors:
		return "ERASE_SECTORS"
	case CmdReadFlashInfo:
		return "READ_FLASH_INFO"
	case CmdReadChipInfo:
		return "READ_CHIP_INFO"
	case CmdResetDevice:
		return "RESET_DEVICE"
	default:
		return fmt.Sprintf("CMD(0x%08X)", uint32(c))
	}
}

// CommandBlock is a 31-byte command packet.
//
// Layout:
//
//	[SIGNATURE(4)][TAG(4)][0(4)][CODE(4) BE][0][OFFSET(4) BE][0][COUNT(2) BE][0(7)]
type CommandBlock [CommandBlockSize]byte

// Response is a decoded 13-byte response block.
type Response struct {
	// Signature should be ResponseSignature
	Signature [4]byte

	// Tag echoes the tag of the command it answers
	Tag [4]byte

	// Residue is the number of bytes the device did not process
	Residue uint32

	// Status is StatusPassed on success
	Status byte
}

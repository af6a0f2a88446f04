package protocol

// USB identification of a Rockchip device in BootROM and loader mode.
const (
	// VendorID is the Rockchip USB vendor ID
	VendorID = 0x2207

	// ProductID is the product ID reported by the SoC in both BootROM and loader mode
	ProductID = 0x300A

	// InterfaceNumber is the only interface used by the protocol
	InterfaceNumber = 0
)

// Endpoints used in command mode.
const (
	// EndpointBulkOut carries command blocks and sector payloads
	EndpointBulkOut = 0x02

	// EndpointBulkIn carries 13-byte response blocks
	EndpointBulkIn = 0x81
)

// Vendor control transfer parameters for the BootROM loader upload.
const (
	// LoaderRequestType is bmRequestType for loader chunks: host-to-device, vendor, device recipient
	LoaderRequestType = 0x40

	// LoaderRequest is bRequest for loader chunks
	LoaderRequest = 12

	// LoaderValue is wValue for loader chunks
	LoaderValue = 0

	// AddressDDR is the wIndex load address of the DDR-init loader image
	AddressDDR = 0x0471

	// AddressUSBPlug is the wIndex load address of the USB-plug loader image
	AddressUSBPlug = 0x0472
)

// LoaderChunkSize is the payload size of one loader control transfer.
// The final chunk of an image carries ChecksumSize extra bytes.
const LoaderChunkSize = 4096

// ChecksumSize is the size of the CRC appended to the final loader chunk.
const ChecksumSize = 2

// MaxLoaderTransferSize is the largest wLength of a loader control transfer.
const MaxLoaderTransferSize = LoaderChunkSize + ChecksumSize

// Command and response block sizes.
const (
	// CommandBlockSize is the size of a command packet
	CommandBlockSize = 31

	// ResponseBlockSize is the size of a response block
	ResponseBlockSize = 13
)

// Signatures of command and response blocks.
var (
	// CommandSignature is "USBC"
	CommandSignature = [4]byte{0x55, 0x53, 0x42, 0x43}

	// ResponseSignature is "USBS"
	ResponseSignature = [4]byte{0x55, 0x53, 0x42, 0x53}
)

// Byte offsets inside a command block.
const (
	offsetSignature = 0
	offsetTag       = 4
	offsetCode      = 12
	offsetAddress   = 17
	offsetCount     = 22
)

// Command codes. The 32-bit value spans the direction flags, LUN, command
// block length and opcode bytes of the packet and is written big-endian.
const (
	// CmdTestUnitReady checks that the loader is ready for block commands
	CmdTestUnitReady CommandCode = 0x80000600

	// CmdReadFlashID reads the 5-byte flash ID
	CmdReadFlashID CommandCode = 0x80000601

	// CmdTestBadBlock reads the bad-block bitmap
	CmdTestBadBlock CommandCode = 0x80000A03

	// CmdReadSector reads raw sectors
	CmdReadSector CommandCode = 0x80000A04

	// CmdWriteSector writes raw sectors
	CmdWriteSector CommandCode = 0x00000A05

	// CmdEraseSectors erases sectors
	CmdEraseSectors CommandCode = 0x00000A06

	// CmdReadFlashInfo reads the flash geometry block
	CmdReadFlashInfo CommandCode = 0x8000061A

	// CmdReadChipInfo reads the chip information block
	CmdReadChipInfo CommandCode = 0x8000061B

	// CmdResetDevice resets the SoC
	CmdResetDevice CommandCode = 0x000006FF
)

// SectorSize is the divisor used to turn a payload length into a sector count.
const SectorSize = 512

// MaxSectorPayload is the largest payload of a single write-sector transfer.
const MaxSectorPayload = 8448

// Sector addressing.
const (
	// SectorStride is the cursor advance after each written chunk
	SectorStride = 0x10

	// sectorRollover is the low byte that triggers a carry into the next block
	sectorRollover = 0xF0
)

// Status values of a response block.
const (
	// StatusPassed indicates the command succeeded
	StatusPassed = 0x00

	// StatusFailed indicates the command failed
	StatusFailed = 0x01

	// StatusPhaseError indicates the device lost sync with the host
	StatusPhaseError = 0x02
)

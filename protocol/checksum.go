package protocol

// Checksum algorithm constants.
const (
	// CRC16Seed is the CRC-16 value each loader image starts from
	CRC16Seed = 0xFFFF

	// CRC16Polynomial is the CRC-16-CCITT polynomial (0x1021)
	CRC16Polynomial = 0x1021

	// CRC16HighBitMask is the high bit mask for CRC-16 calculations
	CRC16HighBitMask = 0x8000

	// BitsPerByte is the number of bits per byte
	BitsPerByte = 8
)

// UpdateCRC16 feeds buf into a running CRC-16-CCITT and returns the new state.
// Start every loader image from CRC16Seed and feed its chunks in image order.
//
// CRC-16-CCITT parameters:
//   - Polynomial: CRC16Polynomial
//   - MSB first, no reflection
//   - No final XOR
func UpdateCRC16(crc uint16, buf []byte) uint16 {
	for _, b := range buf {
		crc ^= uint16(b) << BitsPerByte
		for i := 0; i < BitsPerByte; i++ {
			if crc&CRC16HighBitMask != 0 {
				crc = (crc << 1) ^ CRC16Polynomial
			} else {
				crc = crc << 1
			}
		}
	}

	return crc
}

// CRC16 computes the CRC of a whole buffer from CRC16Seed.
func CRC16(buf []byte) uint16 {
	return UpdateCRC16(CRC16Seed, buf)
}

// AppendCRC16 appends crc to chunk, high byte first.
// Only the final chunk of a loader image carries the checksum.
func AppendCRC16(chunk []byte, crc uint16) []byte {
	return append(chunk, byte(crc>>8), byte(crc))
}

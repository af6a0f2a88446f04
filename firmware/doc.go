// Package firmware holds the firmware sector table written during the
// WRITE_FIRMWARE stage.
//
// # Table Format
//
// A table is an ordered list of chunks captured from a known-good vendor
// tool run. Each chunk is the raw payload of one write-sector transfer.
// The list ends with a sentinel chunk whose length is -1.
//
// The binary (.rkt) encoding is a sequence of records:
//
//	[LENGTH(4) int32 LE][DATA(LENGTH)]
//	...
//	[0xFFFFFFFF]
//
// Non-sentinel lengths must be in (0, protocol.MaxSectorPayload].
//
// # Usage
//
// Parse a table from disk:
//
//	tbl, err := firmware.Parse("sectors.rkt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("chunks: %d, bytes: %d\n", tbl.Len(), tbl.Size())
//
// Use the compiled-in table:
//
//	tbl, err := firmware.Default()
//
// Build one in memory:
//
//	tbl := firmware.New(payload0, payload1)
//
// # Error Handling
//
// Parse returns detailed errors for invalid tables:
//   - Truncated records (with chunk index)
//   - Lengths out of range
//   - Missing sentinel
//   - Data after the sentinel
package firmware

package firmware

import (
	"fmt"

	"github.com/moffa90/go-rkflash/protocol"
)

// SentinelLength marks the end of a table.
const SentinelLength = -1

// Chunk is one write-sector payload.
type Chunk struct {
	// Length is len(Data), or SentinelLength for the terminating chunk
	Length int32

	// Data is the raw sector payload
	Data []byte
}

// IsSentinel reports whether c terminates its table.
func (c Chunk) IsSentinel() bool {
	return c.Length == SentinelLength
}

// Sentinel returns the terminating chunk.
func Sentinel() Chunk {
	return Chunk{Length: SentinelLength}
}

// Table is an ordered sequence of chunks ending with a sentinel.
// A Table is read-only once built.
type Table []Chunk

// New builds a table from payloads and appends the sentinel.
func New(payloads ...[]byte) Table {
	t := make(Table, 0, len(payloads)+1)
	for _, p := range payloads {
		t = append(t, Chunk{Length: int32(len(p)), Data: p})
	}
	return append(t, Sentinel())
}

// Len returns the number of chunks before the sentinel.
func (t Table) Len() int {
	for i, c := range t {
		if c.IsSentinel() {
			return i
		}
	}
	return len(t)
}

// Size returns the total payload size in bytes.
func (t Table) Size() int {
	n := 0
	for _, c := range t[:t.Len()] {
		n += len(c.Data)
	}
	return n
}

// Validate checks the table invariants: every chunk length matches its data
// and is in range, and exactly one sentinel terminates the table.
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("empty table: missing sentinel")
	}

	for i, c := range t {
		if c.IsSentinel() {
			if i != len(t)-1 {
				return fmt.Errorf("chunk %d: sentinel before end of table (%d chunks follow)", i, len(t)-1-i)
			}
			return nil
		}
		if err := checkLength(c.Length); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if int(c.Length) != len(c.Data) {
			return fmt.Errorf("chunk %d: length %d does not match data size %d", i, c.Length, len(c.Data))
		}
	}

	return fmt.Errorf("missing sentinel after %d chunks", len(t))
}

func checkLength(n int32) error {
	if n <= 0 || n > protocol.MaxSectorPayload {
		return fmt.Errorf("invalid chunk length %d: must be in (0, %d]", n, protocol.MaxSectorPayload)
	}
	return nil
}

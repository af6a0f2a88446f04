package firmware

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Constants for the binary table encoding.
const (
	// LengthFieldSize is the size of a record's length prefix
	LengthFieldSize = 4

	// DefaultChunkCapacity is the initial capacity of a parsed table
	DefaultChunkCapacity = 256
)

//go:embed default.rkt
var defaultTable []byte

// Default returns the compiled-in sector table.
// Regenerate default.rkt with `rkflash extract` from a capture of the vendor tool.
func Default() (Table, error) {
	t, err := ParseReader(bytes.NewReader(defaultTable))
	if err != nil {
		return nil, fmt.Errorf("compiled-in table: %w", err)
	}
	return t, nil
}

// Parse parses a binary table from the given file path.
//
// Example:
//
//	tbl, err := firmware.Parse("sectors.rkt")
//	if err != nil {
//	    log.Fatal(err)
//	}
func Parse(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader parses a binary table from any io.Reader.
// The returned table always ends with the sentinel.
func ParseReader(r io.Reader) (Table, error) {
	br := bufio.NewReader(r)
	t := make(Table, 0, DefaultChunkCapacity)

	var lenBuf [LengthFieldSize]byte
	for i := 0; ; i++ {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("missing sentinel after %d chunks", i)
			}
			return nil, fmt.Errorf("chunk %d: failed to read length: %w", i, err)
		}

		length := int32(binary.LittleEndian.Uint32(lenBuf[:]))
		if length == SentinelLength {
			t = append(t, Sentinel())
			break
		}
		if err := checkLength(length); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}

		data := make([]byte, length)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("chunk %d: truncated data (want %d bytes): %w", i, length, err)
		}
		t = append(t, Chunk{Length: length, Data: data})
	}

	if _, err := br.ReadByte(); err == nil {
		return nil, fmt.Errorf("data after sentinel")
	} else if !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return t, nil
}

// WriteTo encodes the table in the binary format.
// The table must pass Validate.
func (t Table) WriteTo(w io.Writer) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	var n int64
	var lenBuf [LengthFieldSize]byte
	for _, c := range t {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(c.Length))
		m, err := bw.Write(lenBuf[:])
		n += int64(m)
		if err != nil {
			return n, err
		}
		m, err = bw.Write(c.Data)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}

	return n, bw.Flush()
}

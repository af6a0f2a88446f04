package protocol

import (
	"encoding/binary"
	"fmt"
)

// ParseResponse decodes a 13-byte response block.
//
// Response structure:
//
//	[USBS][TAG(4)][RESIDUE(4) LE][STATUS]
//
// Only the length is checked here; use ValidateResponse to check content.
func ParseResponse(block []byte) (*Response, error) {
	if len(block) != ResponseBlockSize {
		return nil, fmt.Errorf("invalid response length: got %d bytes, expected %d", len(block), ResponseBlockSize)
	}

	resp := &Response{
		Signature: [4]byte(block[0:4]),
		Tag:       [4]byte(block[4:8]),
		Residue:   binary.LittleEndian.Uint32(block[8:12]),
		Status:    block[12],
	}

	return resp, nil
}

// ValidateResponse checks a response block against the command it answers.
// It returns a *ResponseError describing the first mismatch.
func ValidateResponse(cmd CommandBlock, block []byte) error {
	resp, err := ParseResponse(block)
	if err != nil {
		return &ResponseError{Command: cmd.Code(), Reason: err.Error()}
	}

	if resp.Signature != ResponseSignature {
		return &ResponseError{
			Command: cmd.Code(),
			Reason:  fmt.Sprintf("bad signature % X", resp.Signature[:]),
		}
	}

	tag := cmd.Tag()
	if resp.Tag != tag {
		return &ResponseError{
			Command: cmd.Code(),
			Reason:  fmt.Sprintf("tag mismatch: got % X, expected % X", resp.Tag[:], tag[:]),
		}
	}

	if resp.Status != StatusPassed {
		return &ResponseError{Command: cmd.Code(), Status: resp.Status}
	}

	return nil
}

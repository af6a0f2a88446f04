package flasher

import (
	"fmt"

	"github.com/moffa90/go-rkflash/transport"
)

// TransferError indicates that a transfer did not complete.
type TransferError struct {
	Stage  Stage
	Step   string
	Status transport.Status

	// Err is the underlying transport error, if any
	Err error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("%s: %s transfer failed: %s (status %d)", e.Stage, e.Step, e.Status, int(e.Status))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// SequenceError indicates an event that is not valid in the current stage,
// such as a completion from a closed handle.
type SequenceError struct {
	Stage  Stage
	Reason string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence violation in stage %s: %s", e.Stage, e.Reason)
}

// ImageReadError indicates that a loader image could not be read.
type ImageReadError struct {
	Name   string
	Offset int64
	Err    error
}

func (e *ImageReadError) Error() string {
	return fmt.Sprintf("failed to read loader %s at offset %d: %v", e.Name, e.Offset, e.Err)
}

func (e *ImageReadError) Unwrap() error {
	return e.Err
}

// DeviceOpenError indicates that an arrived device could not be opened.
// Runner logs it and waits for the device to be reported again.
type DeviceOpenError struct {
	ID  transport.DeviceID
	Err error
}

func (e *DeviceOpenError) Error() string {
	return fmt.Sprintf("failed to open device %s: %v", e.ID, e.Err)
}

func (e *DeviceOpenError) Unwrap() error {
	return e.Err
}

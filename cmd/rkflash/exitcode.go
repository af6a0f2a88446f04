package main

import (
	"context"
	"errors"

	"github.com/moffa90/go-rkflash/flasher"
	"github.com/moffa90/go-rkflash/protocol"
)

// Process exit codes.
const (
	exitOK          = 0
	exitUsage       = 1
	exitInput       = 2
	exitTransfer    = 3
	exitSequence    = 4
	exitInterrupted = 5
)

// inputError marks a missing or malformed input file.
type inputError struct {
	err error
}

func (e *inputError) Error() string { return e.err.Error() }

func (e *inputError) Unwrap() error { return e.err }

func badInput(err error) error {
	if err == nil {
		return nil
	}
	return &inputError{err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		seq   *flasher.SequenceError
		xfer  *flasher.TransferError
		image *flasher.ImageReadError
		input *inputError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.As(err, &seq):
		return exitSequence
	case errors.As(err, &xfer), protocol.IsResponseError(err):
		return exitTransfer
	case errors.As(err, &image), errors.As(err, &input):
		return exitInput
	default:
		return exitUsage
	}
}

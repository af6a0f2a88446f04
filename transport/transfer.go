package transport

import "fmt"

// Kind is the type of a USB transfer.
type Kind int

// Transfer kinds.
const (
	KindControl Kind = iota
	KindBulkOut
	KindBulkIn
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindBulkOut:
		return "bulk-out"
	case KindBulkIn:
		return "bulk-in"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Setup is the setup packet of a control transfer.
type Setup struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
}

// Transfer describes one USB transfer.
type Transfer struct {
	Kind Kind

	// Setup is used by control transfers only
	Setup Setup

	// Endpoint is the endpoint address of a bulk transfer (0x02, 0x81, ...)
	Endpoint uint8

	// Data is the payload of an OUT transfer or the receive buffer of an IN
	// transfer; its length is the requested transfer length
	Data []byte
}

// Status is the completion status of a transfer. Values match the libusb
// transfer status codes so the raw number can be reported as-is.
type Status int

// Transfer statuses.
const (
	StatusCompleted Status = iota
	StatusError
	StatusTimedOut
	StatusCancelled
	StatusStall
	StatusNoDevice
	StatusOverflow
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusTimedOut:
		return "timed out"
	case StatusCancelled:
		return "cancelled"
	case StatusStall:
		return "stall"
	case StatusNoDevice:
		return "no device"
	case StatusOverflow:
		return "overflow"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of a transfer.
type Result struct {
	// Generation identifies the device handle the transfer was submitted on
	Generation uint64

	// Transfer is the transfer that completed
	Transfer Transfer

	// Status is StatusCompleted on success
	Status Status

	// Actual is the number of bytes transferred
	Actual int

	// Err is the underlying error for a non-completed status, if any
	Err error
}

// Data returns the bytes actually transferred.
func (r Result) Data() []byte {
	if r.Actual > len(r.Transfer.Data) {
		return r.Transfer.Data
	}
	return r.Transfer.Data[:r.Actual]
}

// Callback receives the result of a submitted transfer.
type Callback func(Result)

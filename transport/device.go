package transport

import (
	"context"
	"fmt"
)

// DeviceID identifies one enumeration of a USB device. A re-enumerated
// device gets a new Address and therefore a new DeviceID.
type DeviceID struct {
	Bus     int
	Address int
	Vendor  uint16
	Product uint16
}

func (id DeviceID) String() string {
	return fmt.Sprintf("%03d:%03d (%04x:%04x)", id.Bus, id.Address, id.Vendor, id.Product)
}

// Device is an open device handle with its interface claimed.
type Device interface {
	// ID returns the enumeration the handle was opened on.
	ID() DeviceID

	// Generation returns the handle generation assigned at open time.
	Generation() uint64

	// Submit starts a transfer. done is posted to the event loop when the
	// transfer finishes, whatever its status. Submit never retries.
	Submit(t Transfer, done Callback) error

	// Close releases the interface and closes the handle. Transfers still in
	// flight complete with a non-completed status.
	Close() error
}

// Opener opens devices found by a presence scan.
type Opener interface {
	// Open opens id, claims its interface and tags the handle with gen.
	// Completions of the handle's transfers are posted to loop until ctx is done.
	Open(ctx context.Context, id DeviceID, gen uint64, loop *EventLoop) (Device, error)
}

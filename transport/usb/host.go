package usb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"

	"github.com/moffa90/go-rkflash/protocol"
	"github.com/moffa90/go-rkflash/transport"
)

// DefaultTimeout is the per-transfer timeout used when none is given.
const DefaultTimeout = 60 * time.Second

// Host is a libusb context restricted to one vendor/product pair.
type Host struct {
	ctx     *gousb.Context
	vendor  gousb.ID
	product gousb.ID
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewHost initializes libusb. A zero timeout selects DefaultTimeout.
func NewHost(vendor, product uint16, timeout time.Duration) *Host {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Host{
		ctx:     gousb.NewContext(),
		vendor:  gousb.ID(vendor),
		product: gousb.ID(product),
		timeout: timeout,
	}
}

func (h *Host) matches(desc *gousb.DeviceDesc) bool {
	return desc.Vendor == h.vendor && desc.Product == h.product
}

func idOf(desc *gousb.DeviceDesc) transport.DeviceID {
	return transport.DeviceID{
		Bus:     desc.Bus,
		Address: desc.Address,
		Vendor:  uint16(desc.Vendor),
		Product: uint16(desc.Product),
	}
}

// Scan lists the matching devices currently attached without opening them.
func (h *Host) Scan() ([]transport.DeviceID, error) {
	var ids []transport.DeviceID
	_, err := h.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if h.matches(desc) {
			ids = append(ids, idOf(desc))
		}
		return false
	})
	if err != nil {
		return ids, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	return ids, nil
}

// Open opens the device enumerated as id and claims interface 0.
func (h *Host) Open(ctx context.Context, id transport.DeviceID, gen uint64, loop *transport.EventLoop) (transport.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("host closed")
	}

	devs, err := h.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return h.matches(desc) && desc.Bus == id.Bus && desc.Address == id.Address
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", id, err)
		}
		return nil, fmt.Errorf("device %s not found", id)
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	dev := devs[0]

	if err := dev.SetAutoDetach(true); err != nil {
		glog.V(1).Infof("%s: auto detach not supported: %v", id, err)
	}
	dev.ControlTimeout = h.timeout

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("failed to claim interface %d on %s: %w", protocol.InterfaceNumber, id, err)
	}

	ioCtx, cancel := context.WithCancel(ctx)
	d := &Device{
		id:        id,
		gen:       gen,
		dev:       dev,
		intf:      intf,
		release:   done,
		loop:      loop,
		postCtx:   ctx,
		ioCtx:     ioCtx,
		cancel:    cancel,
		timeout:   h.timeout,
		endpoints: make(map[uint8]interface{}),
	}
	glog.V(1).Infof("%s: opened, generation %d", id, gen)
	return d, nil
}

// Close releases the libusb context. Devices opened from h must be closed first.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.ctx.Close()
}

// Package rksim simulates a Rockchip device on the bus for tests and demos.
//
// A Device implements transport.Opener and hotplug.Scanner. It starts in
// BootROM mode, accepts the two loader images over control transfers,
// re-enumerates at a new address once the USB-plug loader's checksum
// chunk arrives, and then answers command blocks with response blocks.
package rksim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-rkflash/protocol"
	"github.com/moffa90/go-rkflash/transport"
)

// Mode is the firmware currently running on the simulated device.
type Mode int

// Device modes.
const (
	ModeBootROM Mode = iota
	ModeUSBPlug
	ModeReset
)

// Write is one sector write received by the device.
type Write struct {
	Sector uint32
	Count  uint16
	Data   []byte
}

// FaultFunc decides the status of the n-th transfer (0-based). Returning
// anything but StatusCompleted fails the transfer.
type FaultFunc func(n int, t transport.Transfer) transport.Status

// Device is a simulated device. The zero value is not usable; call New.
type Device struct {
	// Latency delays every completion
	Latency time.Duration

	// ReenumerateDelay is how long the device stays off the bus after the
	// USB-plug loader is uploaded
	ReenumerateDelay time.Duration

	// Fault optionally fails transfers
	Fault FaultFunc

	// ResponseStatus is the status byte put in every response block
	ResponseStatus byte

	// OpenFailures is the number of Open calls that fail before one succeeds
	OpenFailures int

	mu        sync.Mutex
	bus       int
	address   int
	present   bool
	mode      Mode
	loads     map[uint16][]byte
	crcOK     map[uint16]bool
	commands  []protocol.CommandBlock
	last      protocol.CommandBlock
	pending   *Write
	erased    []uint32
	writes    []Write
	transfers int
	opens     int
	open      int
}

// New returns a device in BootROM mode attached at bus/address.
func New(bus, address int) *Device {
	return &Device{
		bus:              bus,
		address:          address,
		present:          true,
		ReenumerateDelay: 10 * time.Millisecond,
		loads:            make(map[uint16][]byte),
		crcOK:            make(map[uint16]bool),
	}
}

func (d *Device) id() transport.DeviceID {
	return transport.DeviceID{Bus: d.bus, Address: d.address, Vendor: protocol.VendorID, Product: protocol.ProductID}
}

// Scan reports the device while it is attached.
func (d *Device) Scan() ([]transport.DeviceID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present {
		return nil, nil
	}
	return []transport.DeviceID{d.id()}, nil
}

// Open opens the device if id names its current enumeration.
func (d *Device) Open(ctx context.Context, id transport.DeviceID, gen uint64, loop *transport.EventLoop) (transport.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.present || id != d.id() {
		return nil, fmt.Errorf("device %s not found", id)
	}
	if d.OpenFailures > 0 {
		d.OpenFailures--
		return nil, errors.New("access denied")
	}
	if d.open > 0 {
		return nil, errors.New("device busy")
	}

	d.opens++
	d.open++
	return &handle{dev: d, id: id, gen: gen, loop: loop, ctx: ctx}, nil
}

// Mode returns the firmware currently running.
func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Loader returns the bytes received at a loader address, checksum included.
func (d *Device) Loader(address uint16) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.loads[address]...)
}

// ChecksumOK reports whether the image loaded at address ended with a
// matching CRC.
func (d *Device) ChecksumOK(address uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.crcOK[address]
}

// Commands returns the command blocks received, in order.
func (d *Device) Commands() []protocol.CommandBlock {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]protocol.CommandBlock(nil), d.commands...)
}

// Erased returns the erased sectors, in order.
func (d *Device) Erased() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.erased...)
}

// Writes returns the sector writes received, in order.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// Opens returns the number of successful Open calls.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// OpenHandles returns the number of handles not yet closed.
func (d *Device) OpenHandles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Unplug removes the device from the bus.
func (d *Device) Unplug() {
	d.mu.Lock()
	d.present = false
	d.mu.Unlock()
}

// reenumerateLocked drops the device off the bus and brings it back at the
// next address. d.mu must be held.
func (d *Device) reenumerateLocked() {
	d.present = false

	time.AfterFunc(d.ReenumerateDelay, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.address++
		d.mode = ModeUSBPlug
		d.present = true
	})
}

// process applies t to the device state and returns its status and the
// number of bytes transferred.
func (d *Device) process(t transport.Transfer) (transport.Status, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.transfers
	d.transfers++
	if d.Fault != nil {
		if st := d.Fault(n, t); st != transport.StatusCompleted {
			return st, 0
		}
	}

	switch t.Kind {
	case transport.KindControl:
		return d.control(t)
	case transport.KindBulkOut:
		return d.bulkOut(t.Data)
	default:
		return d.bulkIn(t.Data)
	}
}

func (d *Device) control(t transport.Transfer) (transport.Status, int) {
	if d.mode != ModeBootROM {
		return transport.StatusStall, 0
	}
	s := t.Setup
	if s.RequestType != protocol.LoaderRequestType || s.Request != protocol.LoaderRequest {
		return transport.StatusStall, 0
	}
	if len(t.Data) > protocol.MaxLoaderTransferSize {
		return transport.StatusOverflow, 0
	}

	d.loads[s.Index] = append(d.loads[s.Index], t.Data...)
	if len(t.Data) == protocol.LoaderChunkSize {
		return transport.StatusCompleted, len(t.Data)
	}

	// final chunk: image followed by its CRC, high byte first
	img := d.loads[s.Index]
	if len(img) >= protocol.ChecksumSize {
		body := img[:len(img)-protocol.ChecksumSize]
		want := protocol.AppendCRC16(nil, protocol.CRC16(body))
		d.crcOK[s.Index] = string(want) == string(img[len(body):])
	}
	if s.Index == protocol.AddressUSBPlug {
		d.reenumerateLocked()
	}
	return transport.StatusCompleted, len(t.Data)
}

func (d *Device) bulkOut(data []byte) (transport.Status, int) {
	if d.mode != ModeUSBPlug {
		return transport.StatusStall, 0
	}

	if d.pending != nil {
		d.pending.Data = append([]byte(nil), data...)
		d.writes = append(d.writes, *d.pending)
		d.pending = nil
		return transport.StatusCompleted, len(data)
	}

	if len(data) != protocol.CommandBlockSize {
		return transport.StatusStall, 0
	}
	var cb protocol.CommandBlock
	copy(cb[:], data)
	if cb.Signature() != protocol.CommandSignature {
		return transport.StatusStall, 0
	}

	d.commands = append(d.commands, cb)
	d.last = cb
	switch cb.Code() {
	case protocol.CmdEraseSectors:
		d.erased = append(d.erased, cb.Offset())
	case protocol.CmdWriteSector:
		d.pending = &Write{Sector: cb.Offset(), Count: cb.Count()}
	case protocol.CmdResetDevice:
		d.mode = ModeReset
	}
	return transport.StatusCompleted, len(data)
}

func (d *Device) bulkIn(buf []byte) (transport.Status, int) {
	if d.mode == ModeBootROM {
		return transport.StatusStall, 0
	}

	block := make([]byte, 0, protocol.ResponseBlockSize)
	block = append(block, protocol.ResponseSignature[:]...)
	tag := d.last.Tag()
	block = append(block, tag[:]...)
	block = append(block, 0, 0, 0, 0, d.ResponseStatus)
	return transport.StatusCompleted, copy(buf, block)
}

type handle struct {
	dev  *Device
	id   transport.DeviceID
	gen  uint64
	loop *transport.EventLoop
	ctx  context.Context

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func (h *handle) ID() transport.DeviceID { return h.id }

func (h *handle) Generation() uint64 { return h.gen }

func (h *handle) Submit(t transport.Transfer, done transport.Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("handle closed")
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		if h.dev.Latency > 0 {
			time.Sleep(h.dev.Latency)
		}
		status, n := h.dev.process(t)
		res := transport.Result{Generation: h.gen, Transfer: t, Status: status, Actual: n}
		_ = h.loop.Post(h.ctx, func() { done(res) })
	}()
	return nil
}

func (h *handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.inflight.Wait()

	h.dev.mu.Lock()
	h.dev.open--
	h.dev.mu.Unlock()
	return nil
}

package rksim

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/moffa90/go-rkflash/protocol"
	"github.com/moffa90/go-rkflash/transport"
)

func submit(t *testing.T, dev transport.Device, loop *transport.EventLoop, xfer transport.Transfer) transport.Result {
	t.Helper()

	var got transport.Result
	if err := dev.Submit(xfer, func(r transport.Result) { got = r }); err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := loop.HandleEvents(ctx); err != nil {
		t.Fatalf("HandleEvents() = %v", err)
	}
	return got
}

func chunk(index uint16, data []byte) transport.Transfer {
	return transport.Transfer{
		Kind: transport.KindControl,
		Setup: transport.Setup{
			RequestType: protocol.LoaderRequestType,
			Request:     protocol.LoaderRequest,
			Index:       index,
		},
		Data: data,
	}
}

func bulkOut(data []byte) transport.Transfer {
	return transport.Transfer{Kind: transport.KindBulkOut, Endpoint: protocol.EndpointBulkOut, Data: data}
}

func bulkIn() transport.Transfer {
	return transport.Transfer{Kind: transport.KindBulkIn, Endpoint: protocol.EndpointBulkIn, Data: make([]byte, protocol.ResponseBlockSize)}
}

func open(t *testing.T, d *Device, loop *transport.EventLoop) transport.Device {
	t.Helper()

	ids, _ := d.Scan()
	if len(ids) != 1 {
		t.Fatalf("Scan() = %v, want one device", ids)
	}
	h, err := d.Open(context.Background(), ids[0], 1, loop)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	return h
}

func waitPresent(t *testing.T, d *Device) transport.DeviceID {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ids, _ := d.Scan(); len(ids) == 1 {
			return ids[0]
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("device did not come back")
	return transport.DeviceID{}
}

func TestOpen(t *testing.T) {
	loop := transport.NewEventLoop(0)
	d := New(2, 9)
	d.OpenFailures = 1

	ids, _ := d.Scan()
	if len(ids) != 1 || ids[0].Bus != 2 || ids[0].Address != 9 {
		t.Fatalf("Scan() = %v", ids)
	}
	if ids[0].Vendor != protocol.VendorID || ids[0].Product != protocol.ProductID {
		t.Errorf("vid/pid = %04x:%04x", ids[0].Vendor, ids[0].Product)
	}

	wrong := ids[0]
	wrong.Address++
	if _, err := d.Open(context.Background(), wrong, 1, loop); err == nil {
		t.Error("Open() of a stale address succeeded")
	}

	if _, err := d.Open(context.Background(), ids[0], 1, loop); err == nil {
		t.Error("first Open() should fail")
	}

	h, err := d.Open(context.Background(), ids[0], 1, loop)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	if h.ID() != ids[0] || h.Generation() != 1 {
		t.Errorf("handle = %s gen %d", h.ID(), h.Generation())
	}

	if _, err := d.Open(context.Background(), ids[0], 2, loop); err == nil {
		t.Error("Open() of a busy device succeeded")
	}

	h.Close()
	h.Close()
	if d.Opens() != 1 || d.OpenHandles() != 0 {
		t.Errorf("Opens() = %d, OpenHandles() = %d", d.Opens(), d.OpenHandles())
	}

	if err := h.Submit(bulkIn(), func(transport.Result) {}); err == nil {
		t.Error("Submit() on a closed handle succeeded")
	}
}

func TestLoaderUploadReenumerates(t *testing.T) {
	loop := transport.NewEventLoop(0)
	d := New(1, 4)
	d.ReenumerateDelay = time.Millisecond
	h := open(t, d, loop)

	ddr := bytes.Repeat([]byte{0x5A}, 100)
	final := protocol.AppendCRC16(append([]byte(nil), ddr...), protocol.CRC16(ddr))
	if r := submit(t, h, loop, chunk(protocol.AddressDDR, final)); r.Status != transport.StatusCompleted || r.Actual != len(final) {
		t.Fatalf("DDR chunk: status %s actual %d", r.Status, r.Actual)
	}
	if !d.ChecksumOK(protocol.AddressDDR) {
		t.Error("DDR checksum not accepted")
	}
	if d.Mode() != ModeBootROM {
		t.Errorf("Mode() = %d after DDR loader", d.Mode())
	}

	plug := make([]byte, protocol.LoaderChunkSize+10)
	for i := range plug {
		plug[i] = byte(i)
	}
	submit(t, h, loop, chunk(protocol.AddressUSBPlug, plug[:protocol.LoaderChunkSize]))
	last := protocol.AppendCRC16(append([]byte(nil), plug[protocol.LoaderChunkSize:]...), 0x0000)
	submit(t, h, loop, chunk(protocol.AddressUSBPlug, last))

	if d.ChecksumOK(protocol.AddressUSBPlug) {
		t.Error("bad USB-plug checksum accepted")
	}
	if got := d.Loader(protocol.AddressUSBPlug); len(got) != len(plug)+protocol.ChecksumSize {
		t.Errorf("Loader() length = %d", len(got))
	}
	h.Close()

	id := waitPresent(t, d)
	if id.Address != 5 {
		t.Errorf("re-enumerated at address %d, want 5", id.Address)
	}
	if d.Mode() != ModeUSBPlug {
		t.Errorf("Mode() = %d, want ModeUSBPlug", d.Mode())
	}
}

func TestCommands(t *testing.T) {
	loop := transport.NewEventLoop(0)
	d := New(1, 4)
	d.mode = ModeUSBPlug
	d.ResponseStatus = protocol.StatusFailed
	h := open(t, d, loop)

	tag := [4]byte{1, 2, 3, 4}
	erase := protocol.BuildCommandWithTag(protocol.CmdEraseSectors, 0x2000, 1, tag)
	submit(t, h, loop, bulkOut(erase.Bytes()))

	r := submit(t, h, loop, bulkIn())
	resp, err := protocol.ParseResponse(r.Data())
	if err != nil {
		t.Fatalf("ParseResponse() = %v", err)
	}
	if resp.Tag != tag || resp.Status != protocol.StatusFailed {
		t.Errorf("response tag % X status %d", resp.Tag, resp.Status)
	}

	write := protocol.BuildCommand(protocol.CmdWriteSector, 0x2010, 2)
	submit(t, h, loop, bulkOut(write.Bytes()))
	submit(t, h, loop, bulkOut(make([]byte, 1024)))

	if r := submit(t, h, loop, bulkOut([]byte("short"))); r.Status != transport.StatusStall {
		t.Errorf("malformed command status = %s, want stall", r.Status)
	}

	reset := protocol.BuildCommand(protocol.CmdResetDevice, 0, 0)
	submit(t, h, loop, bulkOut(reset.Bytes()))

	if got := d.Erased(); len(got) != 1 || got[0] != 0x2000 {
		t.Errorf("Erased() = %v", got)
	}
	w := d.Writes()
	if len(w) != 1 || w[0].Sector != 0x2010 || w[0].Count != 2 || len(w[0].Data) != 1024 {
		t.Errorf("Writes() = %+v", w)
	}
	if n := len(d.Commands()); n != 3 {
		t.Errorf("len(Commands()) = %d, want 3", n)
	}
	if d.Mode() != ModeReset {
		t.Errorf("Mode() = %d, want ModeReset", d.Mode())
	}
}

func TestModeChecks(t *testing.T) {
	loop := transport.NewEventLoop(0)
	d := New(1, 4)
	h := open(t, d, loop)

	if r := submit(t, h, loop, bulkOut(protocol.BuildCommand(protocol.CmdTestUnitReady, 0, 0).Bytes())); r.Status != transport.StatusStall {
		t.Errorf("command in BootROM mode: status %s", r.Status)
	}
	if r := submit(t, h, loop, chunk(protocol.AddressDDR, make([]byte, protocol.MaxLoaderTransferSize+1))); r.Status != transport.StatusOverflow {
		t.Errorf("oversized chunk: status %s", r.Status)
	}

	bad := chunk(protocol.AddressDDR, make([]byte, 4))
	bad.Setup.Request = 1
	if r := submit(t, h, loop, bad); r.Status != transport.StatusStall {
		t.Errorf("wrong bRequest: status %s", r.Status)
	}
}

func TestFault(t *testing.T) {
	loop := transport.NewEventLoop(0)
	d := New(1, 4)
	d.Fault = func(n int, _ transport.Transfer) transport.Status {
		if n == 1 {
			return transport.StatusTimedOut
		}
		return transport.StatusCompleted
	}
	h := open(t, d, loop)

	data := make([]byte, protocol.LoaderChunkSize)
	if r := submit(t, h, loop, chunk(protocol.AddressDDR, data)); r.Status != transport.StatusCompleted {
		t.Errorf("transfer 0: status %s", r.Status)
	}
	if r := submit(t, h, loop, chunk(protocol.AddressDDR, data)); r.Status != transport.StatusTimedOut || r.Actual != 0 {
		t.Errorf("transfer 1: status %s actual %d", r.Status, r.Actual)
	}
	if got := len(d.Loader(protocol.AddressDDR)); got != protocol.LoaderChunkSize {
		t.Errorf("loaded %d bytes, want %d", got, protocol.LoaderChunkSize)
	}
}

func TestUnplug(t *testing.T) {
	d := New(1, 4)
	d.Unplug()
	if ids, _ := d.Scan(); len(ids) != 0 {
		t.Errorf("Scan() after Unplug = %v", ids)
	}
}

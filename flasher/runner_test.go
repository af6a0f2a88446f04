package flasher

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/moffa90/go-rkflash/firmware"
	"github.com/moffa90/go-rkflash/hotplug"
	"github.com/moffa90/go-rkflash/internal/rksim"
	"github.com/moffa90/go-rkflash/protocol"
	"github.com/moffa90/go-rkflash/transport"
)

// lockedLogger is a MockLogger safe for use from the monitor goroutine
type lockedLogger struct {
	mu sync.Mutex
	MockLogger
}

func (l *lockedLogger) Debug(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MockLogger.Debug(msg, kv...)
}

func (l *lockedLogger) Info(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MockLogger.Info(msg, kv...)
}

func (l *lockedLogger) Error(msg string, kv ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.MockLogger.Error(msg, kv...)
}

func (l *lockedLogger) hasError(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.errorMsgs {
		if m == msg {
			return true
		}
	}
	return false
}

func runSim(t *testing.T, sim *rksim.Device, table firmware.Table, timeout time.Duration, opts ...Option) (*Runner, error) {
	t.Helper()
	opts = append([]Option{WithPollInterval(time.Millisecond)}, opts...)
	s, err := NewSession(NewImage("ddr.bin", pattern(5000)), NewImage("usbplug.bin", pattern(3000)), table, opts...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r := NewRunner(s, sim, sim)
	return r, r.Run(ctx)
}

func TestRunnerFlashesDevice(t *testing.T) {
	sim := rksim.New(1, 5)
	table := firmware.New(pattern(8448), pattern(6336))

	var stages []Stage
	progress := func(p Progress) { stages = append(stages, p.Stage) }

	r, err := runSim(t, sim, table, 10*time.Second, WithProgressCallback(progress), WithLogger(&lockedLogger{}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if r.Phase() != PhaseDone {
		t.Errorf("phase = %s, want done", r.Phase())
	}
	if sim.Mode() != rksim.ModeReset {
		t.Errorf("device mode = %d, want reset", sim.Mode())
	}

	for _, addr := range []uint16{protocol.AddressDDR, protocol.AddressUSBPlug} {
		if !sim.ChecksumOK(addr) {
			t.Errorf("loader 0x%04X checksum mismatch", addr)
		}
	}
	if got := sim.Loader(protocol.AddressDDR); !bytes.Equal(got[:5000], pattern(5000)) {
		t.Error("DDR loader content mismatch")
	}

	erased := sim.Erased()
	if len(erased) != 64 || erased[0] != 0x2000 || erased[63] != 0x203F {
		t.Errorf("erased %d sectors", len(erased))
	}

	writes := sim.Writes()
	if len(writes) != 2 {
		t.Fatalf("writes = %d, want 2", len(writes))
	}
	if writes[0].Sector != 0x2000 || writes[0].Count != 16 || !bytes.Equal(writes[0].Data, table[0].Data) {
		t.Errorf("write 0 = 0x%X/%d", writes[0].Sector, writes[0].Count)
	}
	if writes[1].Sector != 0x2010 || writes[1].Count != 12 || !bytes.Equal(writes[1].Data, table[1].Data) {
		t.Errorf("write 1 = 0x%X/%d", writes[1].Sector, writes[1].Count)
	}

	// one handle per device phase, both released
	if sim.Opens() != 2 {
		t.Errorf("opens = %d, want 2", sim.Opens())
	}
	if sim.OpenHandles() != 0 {
		t.Errorf("open handles = %d, want 0", sim.OpenHandles())
	}

	for i := 1; i < len(stages); i++ {
		if stages[i] < stages[i-1] {
			t.Fatalf("progress stage went from %s to %s", stages[i-1], stages[i])
		}
	}
}

func TestRunnerRetriesOpen(t *testing.T) {
	sim := rksim.New(2, 9)
	sim.OpenFailures = 2
	logger := &lockedLogger{}

	_, err := runSim(t, sim, firmware.New(pattern(512)), 10*time.Second, WithLogger(logger))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !logger.hasError("open failed, waiting for device") {
		t.Error("open failure was not logged")
	}
	if sim.Opens() != 2 {
		t.Errorf("opens = %d, want 2", sim.Opens())
	}
}

func TestRunnerTransferFailure(t *testing.T) {
	sim := rksim.New(1, 5)
	sim.Fault = func(n int, xfer transport.Transfer) transport.Status {
		if n == 2 {
			return transport.StatusStall
		}
		return transport.StatusCompleted
	}

	r, err := runSim(t, sim, firmware.New(pattern(512)), 10*time.Second)

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want *TransferError", err)
	}
	if te.Stage != StageLoadUSBPlug || te.Status != transport.StatusStall {
		t.Errorf("TransferError = %v", te)
	}
	if r.Phase() != PhaseLoading {
		t.Errorf("phase = %s, want loading", r.Phase())
	}
	if sim.OpenHandles() != 0 {
		t.Errorf("open handles = %d, want 0", sim.OpenHandles())
	}
}

func TestRunnerCommandFailure(t *testing.T) {
	sim := rksim.New(1, 5)
	sim.Fault = func(n int, xfer transport.Transfer) transport.Status {
		if xfer.Kind == transport.KindBulkIn {
			return transport.StatusTimedOut
		}
		return transport.StatusCompleted
	}

	_, err := runSim(t, sim, firmware.New(pattern(512)), 10*time.Second)

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want *TransferError", err)
	}
	if te.Stage != StageTestDevice || te.Step != "response" {
		t.Errorf("TransferError = %v, want TEST_DEVICE response", te)
	}
}

func TestRunnerInterrupted(t *testing.T) {
	sim := rksim.New(1, 5)
	sim.Unplug()

	r, err := runSim(t, sim, firmware.New(), 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if r.Phase() != PhaseBootROM {
		t.Errorf("phase = %s, want bootrom", r.Phase())
	}
	if sim.Opens() != 0 {
		t.Errorf("opens = %d, want 0", sim.Opens())
	}
}

// scriptedDevice holds each submitted transfer until the test completes it
type scriptedDevice struct {
	id      transport.DeviceID
	gen     uint64
	pending *transport.Transfer
	done    transport.Callback
	sent    []transport.Transfer
	closed  bool
}

func (d *scriptedDevice) ID() transport.DeviceID { return d.id }

func (d *scriptedDevice) Generation() uint64 { return d.gen }

func (d *scriptedDevice) Submit(xfer transport.Transfer, done transport.Callback) error {
	if d.closed {
		return errors.New("closed")
	}
	d.pending = &xfer
	d.done = done
	d.sent = append(d.sent, xfer)
	return nil
}

func (d *scriptedDevice) Close() error {
	d.closed = true
	return nil
}

// complete delivers a successful completion for the pending transfer.
func (d *scriptedDevice) complete(t *testing.T) {
	t.Helper()
	if d.pending == nil {
		t.Fatalf("%s: no transfer in flight", d.id)
	}
	xfer, done := *d.pending, d.done
	d.pending, d.done = nil, nil
	done(transport.Result{Generation: d.gen, Transfer: xfer, Status: transport.StatusCompleted, Actual: len(xfer.Data)})
}

type scriptedOpener struct {
	devices []*scriptedDevice
	opened  map[transport.DeviceID]int
}

func (o *scriptedOpener) Open(ctx context.Context, id transport.DeviceID, gen uint64, loop *transport.EventLoop) (transport.Device, error) {
	if o.opened == nil {
		o.opened = make(map[transport.DeviceID]int)
	}
	o.opened[id]++
	d := &scriptedDevice{id: id, gen: gen}
	o.devices = append(o.devices, d)
	return d, nil
}

type noScanner struct{}

func (noScanner) Scan() ([]transport.DeviceID, error) { return nil, nil }

// newScriptedRunner returns a runner whose events are fed by the test on
// its own goroutine. Both loaders fit in one chunk.
func newScriptedRunner(t *testing.T) (*Runner, *scriptedOpener) {
	t.Helper()
	s := newTestSession(t, 100, 100, firmware.New(pattern(512)))
	opener := &scriptedOpener{}
	return NewRunner(s, opener, noScanner{}), opener
}

func TestRunnerReplaysArrivalDuringFinalChunk(t *testing.T) {
	ctx := context.Background()
	bootROM := transport.DeviceID{Bus: 1, Address: 5, Vendor: protocol.VendorID, Product: protocol.ProductID}
	plugged := bootROM
	plugged.Address = 6

	r, opener := newScriptedRunner(t)

	r.handleEvent(ctx, hotplug.Event{Kind: hotplug.Arrived, ID: bootROM})
	if r.Phase() != PhaseLoading || len(opener.devices) != 1 {
		t.Fatalf("after BootROM arrival: phase %s, opens %d", r.Phase(), len(opener.devices))
	}
	first := opener.devices[0]

	// DDR loader, then the USB-plug loader's final chunk goes out
	first.complete(t)
	if r.session.Stage() != StageLoadUSBPlug || first.pending == nil {
		t.Fatalf("stage = %s, final chunk in flight = %v", r.session.Stage(), first.pending != nil)
	}

	// the re-enumerated device shows up before that chunk completes
	r.handleEvent(ctx, hotplug.Event{Kind: hotplug.Arrived, ID: plugged})
	if opener.opened[plugged] != 0 {
		t.Fatal("re-enumerated device opened while the loader was in flight")
	}
	if r.Phase() != PhaseLoading {
		t.Fatalf("phase = %s, want loading", r.Phase())
	}

	first.complete(t)

	if opener.opened[plugged] != 1 {
		t.Fatalf("re-enumerated device opened %d times, want 1", opener.opened[plugged])
	}
	if !first.closed {
		t.Error("BootROM handle not closed before reopening")
	}
	if r.Phase() != PhaseCommand || r.session.Stage() != StageTestDevice {
		t.Errorf("phase %s, stage %s; want command, TEST_DEVICE", r.Phase(), r.session.Stage())
	}
	if r.deferred != nil {
		t.Error("deferred arrival kept after replay")
	}

	second := opener.devices[1]
	if second.gen <= first.gen {
		t.Errorf("generation %d not above %d", second.gen, first.gen)
	}
	if len(second.sent) != 1 {
		t.Fatalf("transfers on new handle = %d, want 1", len(second.sent))
	}
	var cb protocol.CommandBlock
	copy(cb[:], second.sent[0].Data)
	if cb.Code() != protocol.CmdTestUnitReady {
		t.Errorf("first command = %s, want TEST_UNIT_READY", cb.Code())
	}

	// a repeated report in the command phase does not reopen
	r.handleEvent(ctx, hotplug.Event{Kind: hotplug.Arrived, ID: plugged})
	if opener.opened[plugged] != 1 || len(opener.devices) != 2 {
		t.Errorf("opens after repeated arrival = %d", len(opener.devices))
	}
}

func TestRunnerDropsDeferredArrivalOnRemoval(t *testing.T) {
	ctx := context.Background()
	bootROM := transport.DeviceID{Bus: 1, Address: 5, Vendor: protocol.VendorID, Product: protocol.ProductID}
	plugged := bootROM
	plugged.Address = 6

	r, opener := newScriptedRunner(t)

	r.handleEvent(ctx, hotplug.Event{Kind: hotplug.Arrived, ID: bootROM})
	first := opener.devices[0]
	first.complete(t)

	r.handleEvent(ctx, hotplug.Event{Kind: hotplug.Arrived, ID: plugged})
	r.handleEvent(ctx, hotplug.Event{Kind: hotplug.Removed, ID: plugged})
	first.complete(t)

	if r.Phase() != PhaseAwaitReenumeration {
		t.Errorf("phase = %s, want await-reenumeration", r.Phase())
	}
	if opener.opened[plugged] != 0 {
		t.Errorf("removed device opened %d times", opener.opened[plugged])
	}
	if !first.closed {
		t.Error("BootROM handle not closed")
	}

	r.handleEvent(ctx, hotplug.Event{Kind: hotplug.Arrived, ID: plugged})
	if opener.opened[plugged] != 1 || r.Phase() != PhaseCommand {
		t.Errorf("after arrival: opens %d, phase %s", opener.opened[plugged], r.Phase())
	}
}

func TestNewRunnerPanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewRunner(nil, ...) did not panic")
		}
	}()
	NewRunner(nil, nil, nil)
}

func TestPhaseString(t *testing.T) {
	tests := map[Phase]string{
		PhaseBootROM:            "bootrom",
		PhaseAwaitReenumeration: "await-reenumeration",
		PhaseDone:               "done",
		Phase(9):                "phase(9)",
	}
	for p, want := range tests {
		if p.String() != want {
			t.Errorf("String() = %q, want %q", p.String(), want)
		}
	}
}

package hotplug

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/moffa90/go-rkflash/transport"
)

type fakeScanner struct {
	mu    sync.Mutex
	scans [][]transport.DeviceID
	err   error
	calls int
}

func (s *fakeScanner) Scan() ([]transport.DeviceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.scans) == 0 {
		return nil, nil
	}
	ids := s.scans[0]
	if len(s.scans) > 1 {
		s.scans = s.scans[1:]
	}
	return ids, nil
}

type recordingLogger struct {
	msgs []string
}

func (l *recordingLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.msgs = append(l.msgs, msg)
}

func dev(addr int) transport.DeviceID {
	return transport.DeviceID{Bus: 1, Address: addr, Vendor: 0x2207, Product: 0x300A}
}

func collect(events *[]Event) func(Event) {
	return func(ev Event) { *events = append(*events, ev) }
}

func TestPollReportsChanges(t *testing.T) {
	scanner := &fakeScanner{scans: [][]transport.DeviceID{
		{dev(5)},
		{dev(5)},
		{},
		{dev(6)},
	}}
	m := NewMonitor(scanner, time.Millisecond, nil)

	var events []Event
	for i := 0; i < 4; i++ {
		m.Poll(collect(&events))
	}

	want := []Event{
		{Kind: Arrived, ID: dev(5)},
		{Kind: Removed, ID: dev(5)},
		{Kind: Arrived, ID: dev(6)},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, events[i], want[i])
		}
	}
}

func TestPollReenumerationInOneScan(t *testing.T) {
	scanner := &fakeScanner{scans: [][]transport.DeviceID{
		{dev(5)},
		{dev(7)},
	}}
	m := NewMonitor(scanner, time.Millisecond, nil)

	var events []Event
	m.Poll(collect(&events))
	m.Poll(collect(&events))

	if len(events) != 3 {
		t.Fatalf("events = %v, want 3 events", events)
	}
	if events[1] != (Event{Kind: Removed, ID: dev(5)}) {
		t.Errorf("second event = %v, want removal of old address", events[1])
	}
	if events[2] != (Event{Kind: Arrived, ID: dev(7)}) {
		t.Errorf("third event = %v, want arrival of new address", events[2])
	}
}

func TestPollOrdersByAddress(t *testing.T) {
	scanner := &fakeScanner{scans: [][]transport.DeviceID{{dev(9), dev(3), dev(4)}}}
	m := NewMonitor(scanner, time.Millisecond, nil)

	var events []Event
	m.Poll(collect(&events))

	for i, addr := range []int{3, 4, 9} {
		if events[i].ID.Address != addr {
			t.Errorf("event %d address = %d, want %d", i, events[i].ID.Address, addr)
		}
	}
}

func TestForgetReportsAgain(t *testing.T) {
	scanner := &fakeScanner{scans: [][]transport.DeviceID{{dev(5)}}}
	m := NewMonitor(scanner, time.Millisecond, nil)

	var events []Event
	m.Poll(collect(&events))
	m.Poll(collect(&events))
	if len(events) != 1 {
		t.Fatalf("events = %v, want a single arrival", events)
	}

	m.Forget(dev(5))
	m.Poll(collect(&events))
	if len(events) != 2 || events[1] != (Event{Kind: Arrived, ID: dev(5)}) {
		t.Errorf("events = %v, want second arrival after Forget", events)
	}
}

func TestPollScanErrorKeepsView(t *testing.T) {
	scanner := &fakeScanner{scans: [][]transport.DeviceID{{dev(5)}}}
	logger := &recordingLogger{}
	m := NewMonitor(scanner, time.Millisecond, logger)

	var events []Event
	m.Poll(collect(&events))

	scanner.err = errors.New("libusb busy")
	m.Poll(collect(&events))

	if len(events) != 1 {
		t.Errorf("events = %v, want no removal on scan error", events)
	}

	found := false
	for _, msg := range logger.msgs {
		if msg == "scan failed" {
			found = true
		}
	}
	if !found {
		t.Errorf("logger messages = %v, want scan failure", logger.msgs)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	scanner := &fakeScanner{scans: [][]transport.DeviceID{{dev(5)}}}
	m := NewMonitor(scanner, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	arrived := make(chan Event, 1)

	errc := make(chan error, 1)
	go func() {
		errc <- m.Run(ctx, func(ev Event) { arrived <- ev })
	}()

	select {
	case ev := <-arrived:
		if ev.Kind != Arrived {
			t.Errorf("event = %v, want arrival", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no arrival reported")
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewMonitorDefaultInterval(t *testing.T) {
	m := NewMonitor(&fakeScanner{}, 0, nil)
	if m.interval != DefaultPollInterval {
		t.Errorf("interval = %v, want %v", m.interval, DefaultPollInterval)
	}
}

func TestEventKindString(t *testing.T) {
	if Arrived.String() != "arrived" || Removed.String() != "removed" {
		t.Errorf("String() = %q, %q", Arrived.String(), Removed.String())
	}
}

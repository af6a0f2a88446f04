// Package hotplug reports arrival and removal of USB devices by polling.
//
// libusb hotplug callbacks are not available through gousb, so Monitor
// rescans the bus every PollInterval and diffs the result against the
// previous scan. A device that re-enumerates gets a new bus address and is
// therefore reported as a removal followed by an arrival.
package hotplug

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moffa90/go-rkflash/transport"
)

// DefaultPollInterval is the scan period used when none is given.
const DefaultPollInterval = 250 * time.Millisecond

// EventKind tells whether a device appeared or disappeared.
type EventKind int

// Event kinds.
const (
	Arrived EventKind = iota
	Removed
)

func (k EventKind) String() string {
	if k == Arrived {
		return "arrived"
	}
	return "removed"
}

// Event is a presence change of one device.
type Event struct {
	Kind EventKind
	ID   transport.DeviceID
}

// Scanner lists the devices of interest currently attached.
type Scanner interface {
	Scan() ([]transport.DeviceID, error)
}

// Logger receives debug output from the monitor.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
}

// Monitor turns periodic scans into presence events.
type Monitor struct {
	scanner  Scanner
	interval time.Duration
	logger   Logger

	mu    sync.Mutex
	known map[transport.DeviceID]bool
}

// NewMonitor creates a monitor. logger may be nil.
func NewMonitor(scanner Scanner, interval time.Duration, logger Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{
		scanner:  scanner,
		interval: interval,
		logger:   logger,
		known:    make(map[transport.DeviceID]bool),
	}
}

// Run scans immediately and then every poll interval until ctx is done,
// calling notify for each change. Devices already attached are reported as
// arrivals on the first scan.
func (m *Monitor) Run(ctx context.Context, notify func(Event)) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Poll(notify)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll performs a single scan. Scan errors are logged and the previous view
// is kept.
func (m *Monitor) Poll(notify func(Event)) {
	ids, err := m.scanner.Scan()
	if err != nil {
		m.debug("scan failed", "error", err)
		return
	}

	current := make(map[transport.DeviceID]bool, len(ids))
	for _, id := range ids {
		current[id] = true
	}

	m.mu.Lock()
	var removed, arrived []transport.DeviceID
	for id := range m.known {
		if !current[id] {
			removed = append(removed, id)
		}
	}
	for id := range current {
		if !m.known[id] {
			arrived = append(arrived, id)
		}
	}
	m.known = current
	m.mu.Unlock()

	sortIDs(removed)
	sortIDs(arrived)

	for _, id := range removed {
		m.debug("device removed", "device", id.String())
		notify(Event{Kind: Removed, ID: id})
	}
	for _, id := range arrived {
		m.debug("device arrived", "device", id.String())
		notify(Event{Kind: Arrived, ID: id})
	}
}

// Forget drops id from the current view so the next scan reports it again
// if it is still attached.
func (m *Monitor) Forget(id transport.DeviceID) {
	m.mu.Lock()
	delete(m.known, id)
	m.mu.Unlock()
}

func (m *Monitor) debug(msg string, keysAndValues ...interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, keysAndValues...)
	}
}

func sortIDs(ids []transport.DeviceID) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Bus != ids[j].Bus {
			return ids[i].Bus < ids[j].Bus
		}
		return ids[i].Address < ids[j].Address
	})
}

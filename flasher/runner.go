package flasher

import (
	"context"
	"fmt"
	"sync"

	"github.com/moffa90/go-rkflash/hotplug"
	"github.com/moffa90/go-rkflash/transport"
)

// Phase is the device-level phase of a Runner. It decides what a device
// arrival means.
type Phase int

// Runner phases.
const (
	PhaseBootROM Phase = iota
	PhaseLoading
	PhaseAwaitReenumeration
	PhaseCommand
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseBootROM:
		return "bootrom"
	case PhaseLoading:
		return "loading"
	case PhaseAwaitReenumeration:
		return "await-reenumeration"
	case PhaseCommand:
		return "command"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// arrivalFunc handles a device arrival in one phase.
type arrivalFunc func(ctx context.Context, id transport.DeviceID)

// Runner drives a Session against real devices. It owns the event loop,
// the presence monitor and at most one open device handle.
type Runner struct {
	session *Session
	opener  transport.Opener
	monitor *hotplug.Monitor
	loop    *transport.EventLoop
	config  Config

	arrivals map[Phase]arrivalFunc

	phase      Phase
	device     transport.Device
	generation uint64

	// deferred is an arrival seen while the loader was still uploading
	deferred *transport.DeviceID

	finished bool
	err      error
}

// NewRunner creates a runner for session. Devices are discovered with
// scanner and opened with opener.
//
// Example:
//
//	host := usb.NewHost(protocol.VendorID, protocol.ProductID, 0)
//	defer host.Close()
//	r := flasher.NewRunner(session, host, host)
//	err := r.Run(ctx)
func NewRunner(session *Session, opener transport.Opener, scanner hotplug.Scanner) *Runner {
	if session == nil || opener == nil || scanner == nil {
		panic("session, opener and scanner cannot be nil")
	}

	r := &Runner{
		session: session,
		opener:  opener,
		loop:    transport.NewEventLoop(transport.DefaultQueueDepth),
		config:  session.config,
		phase:   PhaseBootROM,
	}

	var logger hotplug.Logger
	if session.config.Logger != nil {
		logger = session.config.Logger
	}
	r.monitor = hotplug.NewMonitor(scanner, r.config.PollInterval, logger)

	r.arrivals = map[Phase]arrivalFunc{
		PhaseBootROM: func(ctx context.Context, id transport.DeviceID) {
			r.start(ctx, id, PhaseLoading, r.session.StartLoader)
		},
		PhaseLoading: func(ctx context.Context, id transport.DeviceID) {
			if r.device == nil || r.device.ID() != id {
				r.deferred = &id
			}
		},
		PhaseAwaitReenumeration: func(ctx context.Context, id transport.DeviceID) {
			r.deferred = nil
			r.start(ctx, id, PhaseCommand, r.session.StartCommands)
		},
	}
	return r
}

// Phase returns the current phase. Only valid on the goroutine running Run
// or after Run returns.
func (r *Runner) Phase() Phase {
	return r.phase
}

// Run flashes the device. It returns nil once the device acknowledged the
// reset, the first fatal error, or ctx.Err() when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.monitor.Run(ctx, func(ev hotplug.Event) {
			_ = r.loop.Post(ctx, func() { r.handleEvent(ctx, ev) })
		})
	}()

	defer func() {
		cancel()
		r.closeDevice()
		wg.Wait()
	}()

	r.logInfo("waiting for device", "phase", r.phase.String())
	for !r.finished {
		if err := r.loop.HandleEvents(ctx); err != nil {
			r.logError("interrupted", "stage", r.session.Stage().String(), "error", err)
			return err
		}
	}
	return r.err
}

func (r *Runner) handleEvent(ctx context.Context, ev hotplug.Event) {
	if r.finished {
		return
	}

	if ev.Kind == hotplug.Removed {
		if r.device != nil && r.device.ID() == ev.ID {
			r.logInfo("device removed", "device", ev.ID.String(), "phase", r.phase.String())
			r.closeDevice()
		}
		if r.deferred != nil && *r.deferred == ev.ID {
			r.deferred = nil
		}
		return
	}

	arrive, ok := r.arrivals[r.phase]
	if !ok {
		r.logDebug("ignoring arrival", "device", ev.ID.String(), "phase", r.phase.String())
		return
	}
	arrive(ctx, ev.ID)
}

// start opens id with a fresh generation and hands it to entry.
func (r *Runner) start(ctx context.Context, id transport.DeviceID, next Phase, entry func(gen uint64) (Op, error)) {
	r.closeDevice()

	r.generation++
	dev, err := r.opener.Open(ctx, id, r.generation, r.loop)
	if err != nil {
		r.logError("open failed, waiting for device", "error", &DeviceOpenError{ID: id, Err: err})
		r.monitor.Forget(id)
		return
	}

	r.logInfo("device opened", "device", id.String(), "generation", r.generation)
	r.device = dev
	r.phase = next
	op, err := entry(r.generation)
	r.apply(ctx, op, err)
}

// apply submits op or handles the session reaching a resting stage.
func (r *Runner) apply(ctx context.Context, op Op, err error) {
	if err != nil {
		r.finish(err)
		return
	}

	if op.None() {
		switch r.session.Stage() {
		case StageAwaitReenumeration:
			r.closeDevice()
			r.phase = PhaseAwaitReenumeration
			if id := r.deferred; id != nil {
				r.arrivals[r.phase](ctx, *id)
			}
		case StageDone:
			r.closeDevice()
			r.phase = PhaseDone
			r.finish(nil)
		}
		return
	}

	if r.device == nil {
		r.finish(r.session.Abort(transport.StatusNoDevice, fmt.Errorf("device handle closed")))
		return
	}

	done := func(res transport.Result) { r.onComplete(ctx, res) }
	if err := r.device.Submit(*op.Transfer, done); err != nil {
		r.finish(r.session.Abort(transport.StatusError, err))
	}
}

func (r *Runner) onComplete(ctx context.Context, res transport.Result) {
	if r.finished {
		return
	}
	op, err := r.session.OnComplete(res)
	r.apply(ctx, op, err)
}

func (r *Runner) closeDevice() {
	if r.device == nil {
		return
	}
	if err := r.device.Close(); err != nil {
		r.logDebug("close failed", "device", r.device.ID().String(), "error", err)
	}
	r.device = nil
}

func (r *Runner) finish(err error) {
	r.finished = true
	r.err = err
}

// logDebug logs a debug message if a logger is configured.
func (r *Runner) logDebug(msg string, keysAndValues ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (r *Runner) logInfo(msg string, keysAndValues ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (r *Runner) logError(msg string, keysAndValues ...interface{}) {
	if r.config.Logger != nil {
		r.config.Logger.Error(msg, keysAndValues...)
	}
}

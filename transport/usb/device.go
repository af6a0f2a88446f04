package usb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"

	"github.com/moffa90/go-rkflash/transport"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("device closed")

// Device is an open libusb handle with interface 0 claimed.
type Device struct {
	id      transport.DeviceID
	gen     uint64
	dev     *gousb.Device
	intf    *gousb.Interface
	release func()

	loop    *transport.EventLoop
	postCtx context.Context
	ioCtx   context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu        sync.Mutex
	closed    bool
	endpoints map[uint8]interface{}
	inflight  sync.WaitGroup
}

func (d *Device) ID() transport.DeviceID { return d.id }

func (d *Device) Generation() uint64 { return d.gen }

// endpoint returns the cached *gousb.OutEndpoint or *gousb.InEndpoint for addr.
func (d *Device) endpoint(addr uint8) (interface{}, error) {
	if ep, ok := d.endpoints[addr]; ok {
		return ep, nil
	}

	num := int(addr & 0x0F)
	var (
		ep  interface{}
		err error
	)
	if addr&0x80 != 0 {
		ep, err = d.intf.InEndpoint(num)
	} else {
		ep, err = d.intf.OutEndpoint(num)
	}
	if err != nil {
		return nil, fmt.Errorf("endpoint 0x%02x: %w", addr, err)
	}
	d.endpoints[addr] = ep
	return ep, nil
}

// Submit starts t on a new goroutine and posts done to the event loop when
// it finishes.
func (d *Device) Submit(t transport.Transfer, done transport.Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	var ep interface{}
	if t.Kind != transport.KindControl {
		var err error
		if ep, err = d.endpoint(t.Endpoint); err != nil {
			return err
		}
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()

		n, err := d.transfer(t, ep)
		res := transport.Result{
			Generation: d.gen,
			Transfer:   t,
			Status:     statusOf(err),
			Actual:     n,
			Err:        err,
		}
		glog.V(3).Infof("%s: %s transfer of %d bytes: %s (%d)", d.id, t.Kind, len(t.Data), res.Status, n)

		if err := d.loop.Post(d.postCtx, func() { done(res) }); err != nil {
			glog.V(2).Infof("%s: dropped %s completion: %v", d.id, t.Kind, err)
		}
	}()
	return nil
}

func (d *Device) transfer(t transport.Transfer, ep interface{}) (int, error) {
	switch t.Kind {
	case transport.KindControl:
		s := t.Setup
		return d.dev.Control(s.RequestType, s.Request, s.Value, s.Index, t.Data)
	case transport.KindBulkOut:
		out, ok := ep.(*gousb.OutEndpoint)
		if !ok {
			return 0, fmt.Errorf("endpoint 0x%02x is not an OUT endpoint", t.Endpoint)
		}
		ctx, cancel := context.WithTimeout(d.ioCtx, d.timeout)
		defer cancel()
		return out.WriteContext(ctx, t.Data)
	case transport.KindBulkIn:
		in, ok := ep.(*gousb.InEndpoint)
		if !ok {
			return 0, fmt.Errorf("endpoint 0x%02x is not an IN endpoint", t.Endpoint)
		}
		ctx, cancel := context.WithTimeout(d.ioCtx, d.timeout)
		defer cancel()
		return in.ReadContext(ctx, t.Data)
	default:
		return 0, fmt.Errorf("unsupported transfer kind %s", t.Kind)
	}
}

// Close cancels pending bulk transfers, waits for them to post their
// completion, then releases the interface and the handle.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.inflight.Wait()

	d.release()
	err := d.dev.Close()
	glog.V(1).Infof("%s: closed, generation %d", d.id, d.gen)
	return err
}

// statusOf maps a gousb error to a transfer status.
func statusOf(err error) transport.Status {
	if err == nil {
		return transport.StatusCompleted
	}

	var ts gousb.TransferStatus
	if errors.As(err, &ts) {
		switch ts {
		case gousb.TransferCompleted:
			return transport.StatusCompleted
		case gousb.TransferTimedOut:
			return transport.StatusTimedOut
		case gousb.TransferCancelled:
			return transport.StatusCancelled
		case gousb.TransferStall:
			return transport.StatusStall
		case gousb.TransferNoDevice:
			return transport.StatusNoDevice
		case gousb.TransferOverflow:
			return transport.StatusOverflow
		default:
			return transport.StatusError
		}
	}

	var ue gousb.Error
	if errors.As(err, &ue) {
		switch ue {
		case gousb.ErrorTimeout:
			return transport.StatusTimedOut
		case gousb.ErrorNoDevice:
			return transport.StatusNoDevice
		case gousb.ErrorPipe:
			return transport.StatusStall
		case gousb.ErrorOverflow:
			return transport.StatusOverflow
		case gousb.ErrorInterrupted:
			return transport.StatusCancelled
		default:
			return transport.StatusError
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return transport.StatusTimedOut
	case errors.Is(err, context.Canceled):
		return transport.StatusCancelled
	}
	return transport.StatusError
}

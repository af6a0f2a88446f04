// Package transport defines the asynchronous USB transfer model used by the
// flashing session.
//
// A Device submits one Transfer at a time and reports its outcome through a
// Callback. Callbacks never run on the goroutine that performed the I/O:
// completions are posted to an EventLoop and run when the owner of the loop
// calls HandleEvents. All protocol state therefore lives on a single
// goroutine and needs no locking.
//
//	loop := transport.NewEventLoop(transport.DefaultQueueDepth)
//	dev, err := opener.Open(ctx, id, gen, loop)
//	...
//	err = dev.Submit(xfer, func(res transport.Result) {
//	    // runs inside loop.HandleEvents
//	})
//	for {
//	    if err := loop.HandleEvents(ctx); err != nil {
//	        return err
//	    }
//	}
//
// Package transport/usb provides the libusb-backed implementation.
package transport

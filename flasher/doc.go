// Package flasher flashes Rockchip devices over USB.
//
// # Overview
//
// Flashing runs in two device phases separated by a re-enumeration:
//   - The BootROM receives a DDR-init loader and a USB-plug loader over
//     vendor control transfers.
//   - The USB-plug loader re-enumerates the device, which then accepts
//     command blocks: the device is tested, a sector range is erased,
//     the firmware table is written and the device is reset.
//
// # Session
//
// Session is the protocol state machine. It performs no I/O: StartLoader,
// StartCommands and OnComplete each return the one transfer to submit next.
// This keeps exactly one transfer in flight and lets tests drive the
// protocol without a device:
//
//	s, err := flasher.NewSession(ddr, usbPlug, table)
//	op, err := s.StartLoader(gen)
//	for !op.None() {
//	    res := submit(op.Transfer)
//	    op, err = s.OnComplete(res)
//	}
//
// # Runner
//
// Runner binds a Session to real devices. It watches the bus with a
// hotplug.Monitor, opens the device when it appears, drops the handle
// when the loader is done and reopens the device at its new address:
//
//	host := usb.NewHost(protocol.VendorID, protocol.ProductID, 0)
//	defer host.Close()
//
//	r := flasher.NewRunner(s, host, host)
//	if err := r.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Every completion, presence event and progress callback runs on the
// goroutine that called Run.
//
// # Configuration Options
//
//	s, err := flasher.NewSession(ddr, usbPlug, table,
//	    flasher.WithProgressCallback(progressFunc),
//	    flasher.WithLogger(myLogger),
//	    flasher.WithEraseRange(0x2000, 0x2040),
//	    flasher.WithWriteStart(0x2000),
//	    flasher.WithStrictResponses(true),
//	    flasher.WithPollInterval(100*time.Millisecond),
//	)
//
// # Error Handling
//
// A failed session returns one of:
//   - *TransferError: a transfer completed with a status other than completed
//   - *SequenceError: a completion or arrival not valid in the current stage
//   - *ImageReadError: a loader image could not be read
//   - *protocol.ResponseError: a bad response block in strict mode
//
// After the first error the session is in StageFailed and returns no
// further transfers.
package flasher

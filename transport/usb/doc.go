// Package usb implements transport.Opener and presence scanning on top of
// libusb through github.com/google/gousb.
//
// A Host owns one libusb context for the lifetime of the program:
//
//	host := usb.NewHost(protocol.VendorID, protocol.ProductID, 60*time.Second)
//	defer host.Close()
//
//	ids, err := host.Scan()
//	dev, err := host.Open(ctx, ids[0], 1, loop)
//
// Each submitted transfer runs on its own goroutine; its completion is posted
// to the event loop given at open time. This package requires cgo.
package usb

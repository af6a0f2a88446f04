// Command rkflash flashes Rockchip devices over USB.
//
// Usage:
//
//	rkflash flash --ddr ddr.bin --usbplug usbplug.bin [--table firmware.rkt]
//	rkflash extract capture.pcap -o firmware.rkt
//	rkflash convert rom.bin --package rom --name data --words -o rom.go
//
// Logging goes through glog; use -v=2 for per-command tracing and -v=3 for
// per-transfer tracing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	glog.Flush()

	if err != nil {
		fmt.Fprintf(os.Stderr, "rkflash: %v\n", err)
	}
	return exitCode(err)
}

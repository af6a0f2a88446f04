package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/moffa90/go-rkflash/firmware"
	"github.com/moffa90/go-rkflash/flasher"
	"github.com/moffa90/go-rkflash/hotplug"
	"github.com/moffa90/go-rkflash/protocol"
	"github.com/moffa90/go-rkflash/transport/usb"
)

type flashOptions struct {
	ddr        string
	usbPlug    string
	table      string
	eraseStart uint32
	eraseEnd   uint32
	writeStart uint32
	strict     bool
	timeout    time.Duration
	poll       time.Duration
	noProgress bool
}

func addFlashFlags(f *pflag.FlagSet, opts *flashOptions) {
	f.StringVar(&opts.ddr, "ddr", "", "DDR-init loader image")
	f.StringVar(&opts.usbPlug, "usbplug", "", "USB-plug loader image")
	f.StringVar(&opts.table, "table", "", "firmware table file (default: built-in table)")
	f.Uint32Var(&opts.eraseStart, "erase-start", flasher.DefaultEraseStart, "first sector to erase")
	f.Uint32Var(&opts.eraseEnd, "erase-end", flasher.DefaultEraseEnd, "end of the erase range (exclusive)")
	f.Uint32Var(&opts.writeStart, "write-start", flasher.DefaultWriteStart, "sector of the first firmware chunk")
	f.BoolVar(&opts.strict, "strict", false, "fail on bad response blocks")
	f.DurationVar(&opts.timeout, "timeout", usb.DefaultTimeout, "per-transfer timeout")
	f.DurationVar(&opts.poll, "poll", hotplug.DefaultPollInterval, "device presence poll interval")
	f.BoolVar(&opts.noProgress, "no-progress", false, "disable progress bars")
}

func newFlashCmd() *cobra.Command {
	var opts flashOptions

	cmd := &cobra.Command{
		Use:   "flash --ddr FILE --usbplug FILE [--table FILE]",
		Short: "Upload the loaders and write the firmware table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlash(cmd.Context(), opts)
		},
	}

	addFlashFlags(cmd.Flags(), &opts)
	_ = cmd.MarkFlagRequired("ddr")
	_ = cmd.MarkFlagRequired("usbplug")
	return cmd
}

// loadTable reads the table at path, or the built-in one when path is
// empty. A table without chunks would erase the boot sectors and write
// nothing, so it is rejected.
func loadTable(path string) (firmware.Table, error) {
	var (
		table firmware.Table
		err   error
	)
	if path == "" {
		table, err = firmware.Default()
	} else {
		table, err = firmware.Parse(path)
	}
	if err != nil {
		return nil, err
	}

	if table.Len() == 0 {
		if path == "" {
			return nil, errors.New("no firmware table: pass --table or rebuild with `rkflash extract`")
		}
		return nil, fmt.Errorf("firmware table %s has no chunks", path)
	}
	return table, nil
}

func runFlash(ctx context.Context, opts flashOptions) error {
	if opts.eraseEnd < opts.eraseStart {
		return fmt.Errorf("erase end 0x%X is below erase start 0x%X", opts.eraseEnd, opts.eraseStart)
	}

	ddr, err := flasher.OpenImage(opts.ddr)
	if err != nil {
		return badInput(err)
	}
	defer ddr.Close()

	usbPlug, err := flasher.OpenImage(opts.usbPlug)
	if err != nil {
		return badInput(err)
	}
	defer usbPlug.Close()

	table, err := loadTable(opts.table)
	if err != nil {
		return badInput(err)
	}

	progress, finish := newProgress(opts.noProgress)
	defer finish()

	session, err := flasher.NewSession(ddr, usbPlug, table,
		flasher.WithLogger(glogLogger{}),
		flasher.WithProgressCallback(progress),
		flasher.WithEraseRange(opts.eraseStart, opts.eraseEnd),
		flasher.WithWriteStart(opts.writeStart),
		flasher.WithStrictResponses(opts.strict),
		flasher.WithPollInterval(opts.poll),
	)
	if err != nil {
		return badInput(err)
	}

	host := usb.NewHost(protocol.VendorID, protocol.ProductID, opts.timeout)
	defer host.Close()

	glog.Infof("firmware table: %d chunks, %d bytes; waiting for %04x:%04x",
		table.Len(), table.Size(), protocol.VendorID, protocol.ProductID)

	return flasher.NewRunner(session, host, host).Run(ctx)
}

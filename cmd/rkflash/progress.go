package main

import (
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/moffa90/go-rkflash/flasher"
)

// progressReporter renders one progress bar per stage.
type progressReporter struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	stage flasher.Stage
	done  int
}

var stageDescriptions = map[flasher.Stage]string{
	flasher.StageLoadDDR:       "DDR loader",
	flasher.StageLoadUSBPlug:   "USB-plug loader",
	flasher.StageEraseSectors:  "Erasing",
	flasher.StageWriteFirmware: "Writing",
	flasher.StageResetDevice:   "Resetting",
}

// newProgress returns a progress callback drawing bars on a terminal, or
// logging stage changes otherwise.
func newProgress(disabled bool) (flasher.ProgressCallback, func()) {
	if disabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		var last flasher.Stage
		return func(p flasher.Progress) {
			if p.Stage != last || p.Done == p.Total {
				glog.V(1).Infof("%s: %d/%d", p.Stage, p.Done, p.Total)
				last = p.Stage
			}
		}, func() {}
	}

	r := &progressReporter{out: os.Stderr}
	return r.update, r.finish
}

func (r *progressReporter) update(p flasher.Progress) {
	if r.bar == nil || p.Stage != r.stage {
		r.finish()
		loader := p.Stage == flasher.StageLoadDDR || p.Stage == flasher.StageLoadUSBPlug
		r.bar = progressbar.NewOptions(p.Total,
			progressbar.OptionSetWriter(r.out),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(stageDescriptions[p.Stage]),
			progressbar.OptionShowBytes(loader),
			progressbar.OptionShowCount(),
		)
		r.stage = p.Stage
		r.done = 0
	}

	_ = r.bar.Add(p.Done - r.done)
	r.done = p.Done
}

func (r *progressReporter) finish() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	fmt.Fprintln(r.out)
	r.bar = nil
}

package flasher

import "time"

// Progress contains information about the flashing progress.
// Passed to ProgressCallback after every completed unit of work.
type Progress struct {
	// Stage is the stage the unit of work belongs to:
	//   StageLoadDDR, StageLoadUSBPlug - Done/Total count loader bytes
	//   StageEraseSectors              - Done/Total count erased sectors
	//   StageWriteFirmware             - Done/Total count firmware chunks
	//   StageResetDevice               - reported once when the reset is acknowledged
	Stage Stage

	// Done is the number of units completed in this stage
	Done int

	// Total is the number of units in this stage
	Total int

	// Sector is the device sector cursor after this unit (erase and write stages)
	Sector uint32

	// Elapsed is the time since the loader upload started
	Elapsed time.Duration
}

// Percentage returns Done as a percentage of Total.
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Done) * 100 / float64(p.Total)
}

// ProgressCallback is called on the event goroutine to report progress.
// Implementations should return quickly; no transfer is in flight while
// the callback runs.
//
// Example:
//
//	s, _ := flasher.NewSession(ddr, usbPlug, table,
//	    flasher.WithProgressCallback(func(p flasher.Progress) {
//	        fmt.Printf("[%s] %d/%d\n", p.Stage, p.Done, p.Total)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the session.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

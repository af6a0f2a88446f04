package flasher

import (
	"fmt"
	"time"

	"github.com/moffa90/go-rkflash/firmware"
	"github.com/moffa90/go-rkflash/protocol"
	"github.com/moffa90/go-rkflash/transport"
)

// Op is the next action requested by a Session.
type Op struct {
	// Transfer is the transfer to submit; nil when the session is waiting
	// for the device to re-enumerate or has finished.
	Transfer *transport.Transfer
}

// None reports whether the op carries no transfer.
func (o Op) None() bool {
	return o.Transfer == nil
}

// Session is the flashing state machine. It never performs I/O: every entry
// point returns the single transfer to submit next, and OnComplete consumes
// its result. A Session is owned by one goroutine and is not safe for
// concurrent use.
type Session struct {
	config Config

	ddr     *Image
	usbPlug *Image
	table   firmware.Table

	stage      Stage
	step       step
	generation uint64

	// loader upload state
	checksum      uint16
	ddrCursor     int64
	usbPlugCursor int64
	pending       int

	// command state
	sector        uint32
	firmwareIndex int
	lastCommand   protocol.CommandBlock

	started time.Time
}

// NewSession creates a session that uploads ddr and usbPlug and then writes
// table.
//
// Example:
//
//	ddr, _ := flasher.OpenImage("ddr.bin")
//	usbPlug, _ := flasher.OpenImage("usbplug.bin")
//	table, _ := firmware.Default()
//	s, err := flasher.NewSession(ddr, usbPlug, table,
//	    flasher.WithEraseRange(0x2000, 0x2040),
//	)
func NewSession(ddr, usbPlug *Image, table firmware.Table, opts ...Option) (*Session, error) {
	if ddr == nil || usbPlug == nil {
		return nil, fmt.Errorf("both loader images are required")
	}
	for _, img := range []*Image{ddr, usbPlug} {
		if img.Size() <= 0 {
			return nil, fmt.Errorf("loader %s is empty", img.Name)
		}
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid firmware table: %w", err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Session{
		config:  cfg,
		ddr:     ddr,
		usbPlug: usbPlug,
		table:   table,
		stage:   StageIdle,
	}, nil
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	return s.stage
}

// Generation returns the handle generation the current stage expects.
func (s *Session) Generation() uint64 {
	return s.generation
}

// FirmwareIndex returns the index of the firmware chunk being written.
func (s *Session) FirmwareIndex() int {
	return s.firmwareIndex
}

// Sector returns the current erase or write sector.
func (s *Session) Sector() uint32 {
	return s.sector
}

// StartLoader begins the loader upload on a BootROM device opened with
// handle generation gen.
func (s *Session) StartLoader(gen uint64) (Op, error) {
	if s.stage != StageIdle {
		return s.fail(&SequenceError{Stage: s.stage, Reason: "BootROM device arrived"})
	}

	s.generation = gen
	s.started = time.Now()
	s.enter(StageLoadDDR)
	s.checksum = protocol.CRC16Seed
	s.ddrCursor = 0
	s.logInfo("uploading DDR loader", "image", s.ddr.Name, "size", s.ddr.Size())

	return s.nextChunk()
}

// StartCommands begins the command phase on the re-enumerated device
// opened with handle generation gen.
func (s *Session) StartCommands(gen uint64) (Op, error) {
	if s.stage != StageAwaitReenumeration {
		return s.fail(&SequenceError{Stage: s.stage, Reason: "command device arrived"})
	}

	s.generation = gen
	s.enter(StageTestDevice)
	s.logInfo("testing device")

	return s.command(protocol.CmdTestUnitReady, 0, 0)
}

// Abort fails the session after a transfer could not be submitted.
func (s *Session) Abort(status transport.Status, err error) error {
	_, ferr := s.fail(&TransferError{Stage: s.stage, Step: s.step.String(), Status: status, Err: err})
	return ferr
}

// OnComplete consumes the result of the last submitted transfer and returns
// the next op.
func (s *Session) OnComplete(res transport.Result) (Op, error) {
	switch s.stage {
	case StageIdle, StageAwaitReenumeration, StageDone, StageFailed:
		return s.fail(&SequenceError{Stage: s.stage, Reason: fmt.Sprintf("unexpected %s completion", res.Transfer.Kind)})
	}

	if res.Generation != s.generation {
		return s.fail(&SequenceError{
			Stage:  s.stage,
			Reason: fmt.Sprintf("completion from handle generation %d, expected %d", res.Generation, s.generation),
		})
	}

	if want := s.expectedKind(); res.Transfer.Kind != want {
		return s.fail(&SequenceError{
			Stage:  s.stage,
			Reason: fmt.Sprintf("%s completion while awaiting %s (%s)", res.Transfer.Kind, s.step, want),
		})
	}

	if res.Status != transport.StatusCompleted {
		return s.fail(&TransferError{Stage: s.stage, Step: s.step.String(), Status: res.Status, Err: res.Err})
	}

	if s.step == stepChunk {
		return s.onChunk(res)
	}
	return s.onCommand(res)
}

func (s *Session) expectedKind() transport.Kind {
	switch s.step {
	case stepChunk:
		return transport.KindControl
	case stepCommand, stepPayload:
		return transport.KindBulkOut
	default:
		return transport.KindBulkIn
	}
}

// loader returns the image, cursor and address of the current loader stage.
func (s *Session) loader() (*Image, *int64, uint16) {
	if s.stage == StageLoadDDR {
		return s.ddr, &s.ddrCursor, protocol.AddressDDR
	}
	return s.usbPlug, &s.usbPlugCursor, protocol.AddressUSBPlug
}

func (s *Session) nextChunk() (Op, error) {
	img, cursor, address := s.loader()

	chunk, err := img.readChunk(*cursor, protocol.LoaderChunkSize, protocol.ChecksumSize)
	if err != nil {
		return s.fail(err)
	}

	s.checksum = protocol.UpdateCRC16(s.checksum, chunk)
	s.pending = len(chunk)
	if *cursor+int64(len(chunk)) == img.Size() {
		chunk = protocol.AppendCRC16(chunk, s.checksum)
		s.logDebug("final loader chunk", "image", img.Name, "crc", fmt.Sprintf("0x%04X", s.checksum))
	}

	s.step = stepChunk
	return Op{Transfer: &transport.Transfer{
		Kind: transport.KindControl,
		Setup: transport.Setup{
			RequestType: protocol.LoaderRequestType,
			Request:     protocol.LoaderRequest,
			Value:       protocol.LoaderValue,
			Index:       address,
		},
		Data: chunk,
	}}, nil
}

func (s *Session) onChunk(res transport.Result) (Op, error) {
	img, cursor, _ := s.loader()
	if res.Actual != len(res.Transfer.Data) {
		s.logDebug("short loader chunk", "sent", res.Actual, "want", len(res.Transfer.Data))
	}

	*cursor += int64(s.pending)
	s.report(int(*cursor), int(img.Size()))

	if *cursor < img.Size() {
		return s.nextChunk()
	}

	if s.stage == StageLoadDDR {
		s.enter(StageLoadUSBPlug)
		s.checksum = protocol.CRC16Seed
		s.usbPlugCursor = 0
		s.logInfo("uploading USB-plug loader", "image", s.usbPlug.Name, "size", s.usbPlug.Size())
		return s.nextChunk()
	}

	s.enter(StageAwaitReenumeration)
	s.step = stepNone
	s.logInfo("loader uploaded, waiting for device to re-enumerate")
	return Op{}, nil
}

func (s *Session) command(code protocol.CommandCode, offset uint32, count uint16) (Op, error) {
	s.lastCommand = protocol.BuildCommand(code, offset, count)
	s.step = stepCommand
	s.logDebug("sending command", "command", code.String(), "offset", fmt.Sprintf("0x%X", offset), "count", count)

	return Op{Transfer: &transport.Transfer{
		Kind:     transport.KindBulkOut,
		Endpoint: protocol.EndpointBulkOut,
		Data:     s.lastCommand.Bytes(),
	}}, nil
}

func (s *Session) response(next step) (Op, error) {
	s.step = next
	return Op{Transfer: &transport.Transfer{
		Kind:     transport.KindBulkIn,
		Endpoint: protocol.EndpointBulkIn,
		Data:     make([]byte, protocol.ResponseBlockSize),
	}}, nil
}

func (s *Session) onCommand(res transport.Result) (Op, error) {
	switch s.step {
	case stepCommand:
		return s.response(stepResponse)
	case stepPayload:
		return s.response(stepPayloadResponse)
	}

	if err := s.checkResponse(res.Data()); err != nil {
		return s.fail(err)
	}

	switch s.stage {
	case StageTestDevice:
		s.enter(StageEraseSectors)
		s.sector = s.config.EraseStart
		return s.nextErase()

	case StageEraseSectors:
		s.sector++
		s.report(int(s.sector-s.config.EraseStart), int(s.config.EraseEnd-s.config.EraseStart))
		return s.nextErase()

	case StageWriteFirmware:
		if s.step == stepResponse {
			s.step = stepPayload
			chunk := s.table[s.firmwareIndex]
			return Op{Transfer: &transport.Transfer{
				Kind:     transport.KindBulkOut,
				Endpoint: protocol.EndpointBulkOut,
				Data:     chunk.Data,
			}}, nil
		}
		s.firmwareIndex++
		s.sector = protocol.NextSector(s.sector)
		s.report(s.firmwareIndex, s.table.Len())
		return s.nextWrite()

	case StageResetDevice:
		s.report(1, 1)
		s.enter(StageDone)
		s.step = stepNone
		s.logInfo("flashing complete", "elapsed", time.Since(s.started).String())
		return Op{}, nil
	}

	return s.fail(&SequenceError{Stage: s.stage, Reason: "response in unexpected stage"})
}

func (s *Session) nextErase() (Op, error) {
	if s.sector >= s.config.EraseEnd {
		s.enter(StageWriteFirmware)
		s.sector = s.config.WriteStart
		s.firmwareIndex = 0
		s.logInfo("writing firmware", "chunks", s.table.Len(), "bytes", s.table.Size())
		return s.nextWrite()
	}
	return s.command(protocol.CmdEraseSectors, s.sector, 1)
}

func (s *Session) nextWrite() (Op, error) {
	chunk := s.table[s.firmwareIndex]
	if chunk.IsSentinel() {
		s.enter(StageResetDevice)
		s.logInfo("resetting device")
		return s.command(protocol.CmdResetDevice, 0, 0)
	}
	return s.command(protocol.CmdWriteSector, s.sector, protocol.SectorCount(len(chunk.Data)))
}

func (s *Session) checkResponse(block []byte) error {
	if s.config.StrictResponses {
		return protocol.ValidateResponse(s.lastCommand, block)
	}

	resp, err := protocol.ParseResponse(block)
	if err != nil {
		s.logDebug("unparsed response", "command", s.lastCommand.Code().String(), "error", err)
		return nil
	}
	s.logDebug("response", "command", s.lastCommand.Code().String(), "status", resp.Status, "residue", resp.Residue)
	return nil
}

// enter moves to stage. Stages never move backwards.
func (s *Session) enter(stage Stage) {
	if stage < s.stage {
		panic(fmt.Sprintf("flasher: stage %s after %s", stage, s.stage))
	}
	s.logDebug("stage", "from", s.stage.String(), "to", stage.String())
	s.stage = stage
}

func (s *Session) fail(err error) (Op, error) {
	s.logError("flashing failed", "stage", s.stage.String(), "error", err)
	s.stage = StageFailed
	s.step = stepNone
	return Op{}, err
}

// report calls the progress callback if configured.
func (s *Session) report(done, total int) {
	if s.config.ProgressCallback != nil {
		s.config.ProgressCallback(Progress{
			Stage:   s.stage,
			Done:    done,
			Total:   total,
			Sector:  s.sector,
			Elapsed: time.Since(s.started),
		})
	}
}

// logDebug logs a debug message if a logger is configured.
func (s *Session) logDebug(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (s *Session) logInfo(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (s *Session) logError(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, keysAndValues...)
	}
}

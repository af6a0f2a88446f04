package flasher

import "fmt"

// Stage is a stage of the flashing sequence. Stages only move forward.
type Stage int

// Flashing stages, in order.
const (
	StageIdle Stage = iota
	StageLoadDDR
	StageLoadUSBPlug
	StageAwaitReenumeration
	StageTestDevice
	StageEraseSectors
	StageWriteFirmware
	StageResetDevice
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageIdle:               "IDLE",
	StageLoadDDR:            "LOAD_DDR",
	StageLoadUSBPlug:        "LOAD_USBPLUG",
	StageAwaitReenumeration: "AWAIT_REENUMERATION",
	StageTestDevice:         "TEST_DEVICE",
	StageEraseSectors:       "ERASE_SECTORS",
	StageWriteFirmware:      "WRITE_FIRMWARE",
	StageResetDevice:        "RESET_DEVICE",
	StageDone:               "DONE",
	StageFailed:             "FAILED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// step is the transfer awaited inside a stage.
type step int

const (
	stepNone step = iota
	stepChunk
	stepCommand
	stepResponse
	stepPayload
	stepPayloadResponse
)

var stepNames = map[step]string{
	stepNone:            "none",
	stepChunk:           "loader chunk",
	stepCommand:         "command",
	stepResponse:        "response",
	stepPayload:         "payload",
	stepPayloadResponse: "payload response",
}

func (s step) String() string {
	return stepNames[s]
}

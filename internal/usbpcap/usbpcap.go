// Package usbpcap reads USBPcap captures and recovers the sector payloads a
// vendor flashing tool sent to the device.
//
// Every USBPcap record starts with a packed little-endian header:
//
//	headerLen(2) irpId(8) status(4) function(2) info(1)
//	bus(2) device(2) endpoint(1) transfer(1) dataLength(4)
//
// followed by headerLen-27 bytes of transfer-specific header and then
// dataLength bytes of transfer data.
package usbpcap

import (
	"encoding/binary"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/moffa90/go-rkflash/firmware"
	"github.com/moffa90/go-rkflash/protocol"
)

// LinkTypeUSBPcap is the pcap link type of USBPcap captures.
const LinkTypeUSBPcap layers.LinkType = 249

// HeaderSize is the size of the common record header.
const HeaderSize = 27

// Transfer types.
const (
	TransferIsochronous = 0
	TransferInterrupt   = 1
	TransferControl     = 2
	TransferBulk        = 3
)

// InfoCompletion is set in Header.Info on records captured on the way back
// from the host controller.
const InfoCompletion = 0x01

// Header is the common USBPcap record header.
type Header struct {
	HeaderLen  uint16
	IRPID      uint64
	Status     uint32
	Function   uint16
	Info       uint8
	Bus        uint16
	Device     uint16
	Endpoint   uint8
	Transfer   uint8
	DataLength uint32
}

// Packet is a decoded USBPcap record.
type Packet struct {
	Header
	Data []byte
}

// DecodeHeader decodes the common header at the start of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Errorf("record too short: %d bytes", len(b))
	}

	le := binary.LittleEndian
	h := Header{
		HeaderLen:  le.Uint16(b[0:2]),
		IRPID:      le.Uint64(b[2:10]),
		Status:     le.Uint32(b[10:14]),
		Function:   le.Uint16(b[14:16]),
		Info:       b[16],
		Bus:        le.Uint16(b[17:19]),
		Device:     le.Uint16(b[19:21]),
		Endpoint:   b[21],
		Transfer:   b[22],
		DataLength: le.Uint32(b[23:27]),
	}
	if h.HeaderLen < HeaderSize {
		return Header{}, errors.Errorf("invalid header length %d", h.HeaderLen)
	}
	return h, nil
}

// Reader reads USBPcap records from a pcap stream.
type Reader struct {
	r     *pcapgo.Reader
	index int
}

// NewReader reads the pcap file header from r and checks the link type.
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read capture header")
	}
	if lt := pr.LinkType(); lt != LinkTypeUSBPcap {
		return nil, errors.Errorf("capture link type is %d, want USBPcap (%d)", lt, LinkTypeUSBPcap)
	}
	return &Reader{r: pr}, nil
}

// Next returns the next record, or io.EOF at the end of the capture.
func (r *Reader) Next() (*Packet, error) {
	data, _, err := r.r.ReadPacketData()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read record %d", r.index)
	}
	r.index++

	h, err := DecodeHeader(data)
	if err != nil {
		return nil, errors.Wrapf(err, "record %d", r.index-1)
	}

	start := int(h.HeaderLen)
	end := start + int(h.DataLength)
	if end > len(data) {
		return nil, errors.Errorf("record %d truncated: need %d bytes, have %d", r.index-1, end, len(data))
	}
	return &Packet{Header: h, Data: data[start:end]}, nil
}

// IsSectorPayload reports whether p carries a firmware sector payload: a
// bulk transfer to the command endpoint longer than a command block.
func (p *Packet) IsSectorPayload() bool {
	return p.Endpoint == protocol.EndpointBulkOut &&
		p.Transfer == TransferBulk &&
		p.DataLength > protocol.CommandBlockSize &&
		p.DataLength <= protocol.MaxSectorPayload
}

// ExtractFirmware collects the sector payloads of a capture into a
// firmware table, in capture order.
func ExtractFirmware(r io.Reader) (firmware.Table, error) {
	pr, err := NewReader(r)
	if err != nil {
		return nil, err
	}

	var payloads [][]byte
	for {
		p, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if p.IsSectorPayload() {
			payloads = append(payloads, append([]byte(nil), p.Data...))
		}
	}

	if len(payloads) == 0 {
		return nil, errors.New("no sector payloads found in capture")
	}
	return firmware.New(payloads...), nil
}

// Package wire defines the framing and message bodies exchanged between a
// federate process and a broker over a stream connection.
//
// Every message is a fixed 20-byte big-endian header followed by a msgpack
// payload:
//
//	magic(4) version(2) type(2) message_id(8) payload_len(4)
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic     uint32 = 0xC051_0001
	Version   uint16 = 1
	HeaderLen        = 20

	DefaultMaxPayload uint32 = 1 << 20
)

var (
	ErrShortHeader     = errors.New("wire: short header")
	ErrBadMagic        = errors.New("wire: bad magic")
	ErrVersion         = errors.New("wire: unsupported version")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
)

type Header struct {
	Magic      uint32
	Version    uint16
	Type       MsgType
	MessageID  uint64
	PayloadLen uint32
}

type Frame struct {
	Header  Header
	Payload []byte
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderLen {
		return Header{}, fmt.Errorf("wire: invalid header length: %d", len(b))
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       MsgType(binary.BigEndian.Uint16(b[6:8])),
		MessageID:  binary.BigEndian.Uint64(b[8:16]),
		PayloadLen: binary.BigEndian.Uint32(b[16:20]),
	}
	if h.Magic != Magic {
		return Header{}, ErrBadMagic
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}

// ReadFrame reads one frame. A clean EOF before any header byte is returned
// as io.EOF so callers can tell a closed connection from a torn frame.
func ReadFrame(r io.Reader, maxPayload uint32) (Frame, error) {
	var hb [HeaderLen]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(hb[:])
	if err != nil {
		return Frame{}, err
	}
	if h.PayloadLen > maxPayload {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, maxPayload uint32) error {
	if uint64(len(f.Payload)) > uint64(maxPayload) {
		return ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))
	buf := append(EncodeHeader(h), f.Payload...)
	_, err := w.Write(buf)
	return err
}

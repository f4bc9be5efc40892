package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic identifies a pollctl wire frame ("PKT1" big-endian).
	Magic   uint32 = 0x504B5431
	Version uint16 = 1

	FixedHeaderLen = 12
)

var (
	ErrShortHeader     = errors.New("frame: short fixed header")
	ErrBadMagic        = errors.New("frame: bad magic")
	ErrVersionMismatch = errors.New("frame: unsupported version")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed wire header carried before every payload.
type Header struct {
	Magic      uint32
	Version    uint16
	Flags      uint16
	PayloadLen uint32
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

// WriteFrame writes one complete message: fixed header plus payload.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if uint64(len(payload)) > uint64(limits.MaxPayloadBytes) {
		return ErrPayloadTooLarge
	}
	hb := EncodeHeader(Header{
		Magic:      Magic,
		Version:    Version,
		PayloadLen: uint32(len(payload)),
	})
	if _, err := w.Write(hb); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one complete message and returns an owned copy of the
// payload. The returned slice never aliases reader-internal buffers, so the
// underlying connection may be closed immediately afterwards.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return nil, err
	}
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersionMismatch, h.Version)
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint32(buf[8:12], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Flags:      binary.BigEndian.Uint16(b[6:8]),
		PayloadLen: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

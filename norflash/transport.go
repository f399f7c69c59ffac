package norflash

import (
	"encoding/binary"
	"fmt"
)

const (
	// Maximum payload of a single vendor control transfer. Reads may use the
	// full wMaxPacketSize staging window of the bridge, writes are bounded by
	// the device-side staging buffer.
	MaxReadChunk  = 4096
	MaxWriteChunk = 1024
)

// Link is the raw vendor control-transfer surface of the debug bridge. The
// 32-bit target address is split across wValue/wIndex by the implementation;
// a transfer moving fewer bytes than requested must be reported as an error,
// never as a short result.
type Link interface {
	ControlIn(addr uint32, p []byte) error
	ControlOut(addr uint32, p []byte) error
}

// Target provides word and burst access to the register file and memory of
// the device behind a Link.
type Target struct {
	link Link
}

func NewTarget(link Link) *Target {
	return &Target{link: link}
}

// Peek reads one little-endian 32-bit word.
func (t *Target) Peek(addr uint32) (uint32, error) {
	var buf [4]byte
	if err := t.link.ControlIn(addr, buf[:]); err != nil {
		return 0, fmt.Errorf("peek %#010x: %w", addr, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Poke writes one little-endian 32-bit word. Callers that need confirmation
// re-read explicitly; Poke itself does not.
func (t *Target) Poke(addr uint32, val uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	if err := t.link.ControlOut(addr, buf[:]); err != nil {
		return fmt.Errorf("poke %#010x: %w", addr, err)
	}
	return nil
}

// BurstRead reads length bytes starting at addr, one control transfer per
// chunk of at most MaxReadChunk bytes, addresses strictly increasing.
func (t *Target) BurstRead(addr uint32, length int) ([]byte, error) {
	data := make([]byte, length)
	for n := 0; n < length; {
		chunk := length - n
		if chunk > MaxReadChunk {
			chunk = MaxReadChunk
		}
		if err := t.link.ControlIn(addr, data[n:n+chunk]); err != nil {
			return nil, fmt.Errorf("burst read %d bytes at %#010x: %w", chunk, addr, err)
		}
		n += chunk
		addr += uint32(chunk)
	}
	return data, nil
}

// BurstWrite mirrors BurstRead with the write chunk bound. Empty input is a
// no-op.
func (t *Target) BurstWrite(addr uint32, data []byte) error {
	for n := 0; n < len(data); {
		chunk := len(data) - n
		if chunk > MaxWriteChunk {
			chunk = MaxWriteChunk
		}
		if err := t.link.ControlOut(addr, data[n:n+chunk]); err != nil {
			return fmt.Errorf("burst write %d bytes at %#010x: %w", chunk, addr, err)
		}
		n += chunk
		addr += uint32(chunk)
	}
	return nil
}

package norflash

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// The register descriptor lives at a protocol-fixed flash offset. Its
	// last 64 bytes are a SHA-512 digest over the rest of the window.
	DescriptorAddr = 0x20277000
	DescriptorLen  = 0x8000

	descriptorDigestLen = sha512.Size
)

var (
	ErrBadDescriptorDigest = errors.New("register descriptor digest mismatch, device register map can not be trusted")
	ErrBadDescriptorSize   = errors.New("register descriptor window has wrong size")
)

// Region is a named memory window of the target.
type Region struct {
	Base   uint32
	Length uint32
}

func (r Region) Contains(addr uint32, length int) bool {
	if length < 0 {
		return false
	}
	end := uint64(addr) + uint64(length)
	return addr >= r.Base && end <= uint64(r.Base)+uint64(r.Length)
}

// RegisterMap holds the named register addresses and memory regions decoded
// from the on-device descriptor, plus the gateware revision tag. Populated
// once per session and read-only afterwards; lookups hand out addresses by
// value.
type RegisterMap struct {
	registers map[string]uint32
	regions   map[string]Region
	Revision  string
}

// LoadRegisterMap burst-reads the descriptor window from the device and
// decodes it.
func LoadRegisterMap(t *Target) (*RegisterMap, error) {
	window, err := t.BurstRead(DescriptorAddr, DescriptorLen)
	if err != nil {
		return nil, fmt.Errorf("reading register descriptor: %w", err)
	}
	return ParseDescriptor(window)
}

// ParseDescriptor verifies and decodes a descriptor window, either freshly
// read from a device or pre-captured. The digest check is mandatory: every
// later register access depends on these offsets being correct.
func ParseDescriptor(window []byte) (*RegisterMap, error) {
	if len(window) != DescriptorLen {
		return nil, ErrBadDescriptorSize
	}
	body := window[:DescriptorLen-descriptorDigestLen]
	digest := sha512.Sum512(body)
	if !bytes.Equal(digest[:], window[DescriptorLen-descriptorDigestLen:]) {
		return nil, ErrBadDescriptorDigest
	}

	// First word of the verified body is the length of the CSV text, the
	// rest of the body is pad.
	textLen := binary.LittleEndian.Uint32(body[:4])
	if uint64(textLen) > uint64(len(body)-4) {
		return nil, fmt.Errorf("descriptor text length %d exceeds window", textLen)
	}

	m := &RegisterMap{
		registers: make(map[string]uint32),
		regions:   make(map[string]Region),
	}

	for _, line := range strings.Split(string(body[4:4+textLen]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		// Unknown or malformed records are skipped, newer gateware may add
		// record kinds.
		switch fields[0] {
		case "register":
			if len(fields) < 3 {
				continue
			}
			addr, err := strconv.ParseUint(fields[2], 0, 32)
			if err != nil {
				continue
			}
			m.registers[fields[1]] = uint32(addr)
		case "memory_region":
			if len(fields) < 4 {
				continue
			}
			base, err := strconv.ParseUint(fields[2], 0, 32)
			if err != nil {
				continue
			}
			length, err := strconv.ParseUint(fields[3], 0, 32)
			if err != nil {
				continue
			}
			m.regions[fields[1]] = Region{Base: uint32(base), Length: uint32(length)}
		case "revision":
			if len(fields) < 2 {
				continue
			}
			m.Revision = fields[1]
		}
	}

	return m, nil
}

// Register returns the address of a named register. A miss means the tool
// and the identified gateware disagree about the protocol.
func (m *RegisterMap) Register(name string) (uint32, error) {
	addr, ok := m.registers[name]
	if !ok {
		return 0, fmt.Errorf("register %q not present in descriptor (gateware mismatch?)", name)
	}
	return addr, nil
}

func (m *RegisterMap) Region(name string) (Region, error) {
	region, ok := m.regions[name]
	if !ok {
		return Region{}, fmt.Errorf("memory region %q not present in descriptor (gateware mismatch?)", name)
	}
	return region, nil
}

// Registers returns the register names for listing purposes.
func (m *RegisterMap) Registers() []string {
	names := make([]string, 0, len(m.registers))
	for name := range m.registers {
		names = append(names, name)
	}
	return names
}

func (m *RegisterMap) Regions() map[string]Region {
	out := make(map[string]Region, len(m.regions))
	for name, region := range m.regions {
		out[name] = region
	}
	return out
}

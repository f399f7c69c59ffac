package norflash

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

// Register file layout served by the simulated device. The addresses only
// have to match what its descriptor advertises.
const (
	simArgReg    = 0xf0000000
	simCmdReg    = 0xf0000004
	simRbkReg    = 0xf0000008
	simWdataReg  = 0xf000000c
	simWdogReg   = 0xf0000010
	simRebootReg = 0xf0000014

	simFlashBase = 0x20000000
	simFlashLen  = 0x20000
)

const simDescriptorText = "# auto-generated register dump, do not edit\n" +
	"register,spinor_cmd_arg,0xf0000000\n" +
	"register,spinor_command,0xf0000004\n" +
	"register,spinor_cmd_rbk_data,0xf0000008\n" +
	"register,spinor_wdata,0xf000000c\n" +
	"register,wdt_watchdog,0xf0000010\n" +
	"register,reboot_soc,0xf0000014\n" +
	"memory_region,spiflash,0x20000000,0x20000\n" +
	"constant,config_clock_frequency,100000000\n" +
	"revision,v0.9.8-761-g1f2e3d4\n"

// buildDescriptorWindow assembles a descriptor window the way the gateware
// build system does: 4-byte LE text length, CSV text, pad, SHA-512 suffix.
func buildDescriptorWindow(text string) []byte {
	window := make([]byte, DescriptorLen)
	binary.LittleEndian.PutUint32(window[:4], uint32(len(text)))
	copy(window[4:], text)
	sum := sha512.Sum512(window[:DescriptorLen-sha512.Size])
	copy(window[DescriptorLen-sha512.Size:], sum[:])
	return window
}

// simDevice models the register file and SPI NOR flash of a target behind
// the control-transfer bridge. Erase blanks cells to 0xff, programming can
// only clear bits, WREN gates every state change, all operations complete
// instantly (busy never observed set).
type simDevice struct {
	descriptor []byte
	flash      []byte
	staging    []byte

	arg      uint32
	rbk      uint32
	wel      bool
	security uint32
	idBytes  []byte

	// brokenWEL makes WREN a no-op to exercise the latch timeout path.
	brokenWEL bool

	sectorErases int
	blockErases  int
	programOps   int
	wdogPings    int
	reboots      int
}

func newSimDevice(fill byte) *simDevice {
	d := &simDevice{
		descriptor: buildDescriptorWindow(simDescriptorText),
		flash:      make([]byte, simFlashLen),
		idBytes:    []byte{expectedManufacturerID, expectedDeviceID, 0x39, 0x00},
	}
	for i := range d.flash {
		d.flash[i] = fill
	}
	return d
}

func (d *simDevice) ControlIn(addr uint32, p []byte) error {
	switch {
	case addr == simRbkReg && len(p) == 4:
		binary.LittleEndian.PutUint32(p, d.rbk)
		return nil
	case addr >= DescriptorAddr && int(addr-DescriptorAddr)+len(p) <= len(d.descriptor):
		copy(p, d.descriptor[addr-DescriptorAddr:])
		return nil
	case addr >= simFlashBase && int(addr-simFlashBase)+len(p) <= len(d.flash):
		copy(p, d.flash[addr-simFlashBase:])
		return nil
	}
	return fmt.Errorf("sim: read of unmapped address %#010x (%d bytes)", addr, len(p))
}

func (d *simDevice) ControlOut(addr uint32, p []byte) error {
	switch {
	case addr == simArgReg && len(p) == 4:
		d.arg = binary.LittleEndian.Uint32(p)
		return nil
	case addr == simCmdReg && len(p) == 4:
		return d.exec(DecodeFlashCommand(binary.LittleEndian.Uint32(p)))
	case addr == simWdataReg:
		d.staging = append(d.staging, p...)
		return nil
	case addr == simWdogReg && len(p) == 4:
		d.wdogPings++
		return nil
	case addr == simRebootReg && len(p) == 4:
		d.reboots++
		return nil
	}
	return fmt.Errorf("sim: write to unmapped address %#010x (%d bytes)", addr, len(p))
}

func (d *simDevice) exec(cmd FlashCommand) error {
	switch cmd.Opcode {
	case OpReadStatus:
		d.rbk = 0
		if d.wel {
			d.rbk |= StatusWEL
		}
	case OpReadSecurity:
		d.rbk = d.security
	case OpReadID:
		if int(d.arg) >= len(d.idBytes) {
			return fmt.Errorf("sim: RDID offset %d out of range", d.arg)
		}
		d.rbk = uint32(d.idBytes[d.arg])
	case OpWriteEnable:
		if !d.brokenWEL {
			d.wel = true
		}
	case OpWriteDisable:
		d.wel = false
	case OpSectorErase4B:
		d.sectorErases++
		return d.erase(d.arg, SectorSize)
	case OpBlockErase4B:
		d.blockErases++
		return d.erase(d.arg, BlockSize)
	case OpPageProgram4B:
		return d.program(d.arg, int(cmd.DataWords)*4)
	default:
		return fmt.Errorf("sim: unknown opcode %#02x", uint8(cmd.Opcode))
	}
	return nil
}

func (d *simDevice) erase(addr uint32, granule int) error {
	if !d.wel {
		return fmt.Errorf("sim: erase at %#010x without write-enable latch", addr)
	}
	d.wel = false
	off := int(addr-simFlashBase) / granule * granule
	if off < 0 || off+granule > len(d.flash) {
		return fmt.Errorf("sim: erase at %#010x outside flash array", addr)
	}
	for i := 0; i < granule; i++ {
		d.flash[off+i] = 0xff
	}
	return nil
}

func (d *simDevice) program(addr uint32, length int) error {
	if !d.wel {
		return fmt.Errorf("sim: program at %#010x without write-enable latch", addr)
	}
	d.wel = false
	d.programOps++
	if length > len(d.staging) {
		return fmt.Errorf("sim: program of %d bytes but only %d staged", length, len(d.staging))
	}
	off := int(addr - simFlashBase)
	if off < 0 || off+length > len(d.flash) {
		return fmt.Errorf("sim: program at %#010x outside flash array", addr)
	}
	// NOR cells only clear bits until the next erase.
	for i := 0; i < length; i++ {
		d.flash[off+i] &= d.staging[i]
	}
	d.staging = d.staging[:0]
	return nil
}

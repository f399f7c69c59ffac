package norflash

import (
	"fmt"
)

// SPI NOR operations understood by the bootloader's flash controller. These
// are controller-internal indices, not the industry opcodes of the flash
// part itself.
type FlashOp uint8

const (
	OpReadStatus    FlashOp = 0x01 // RDSR
	OpReadSecurity  FlashOp = 0x02 // RDSCUR
	OpReadID        FlashOp = 0x03 // RDID
	OpWriteEnable   FlashOp = 0x04 // WREN
	OpWriteDisable  FlashOp = 0x05 // WRDI
	OpSectorErase4B FlashOp = 0x06 // SE4B
	OpBlockErase4B  FlashOp = 0x07 // BE4B
	OpPageProgram4B FlashOp = 0x08 // PP4B
)

// Status register bits (minimum verified set, see the flash datasheet for
// the full picture).
const (
	StatusBusy uint32 = 1 << 0 // write in progress
	StatusWEL  uint32 = 1 << 1 // write-enable latch
)

// Security register fail flags.
const (
	SecurityProgramFail uint32 = 1 << 5
	SecurityEraseFail   uint32 = 1 << 6
)

// Fixed bit layout of the 32-bit command word.
const (
	cmdBitExecute     = 0
	cmdBitLockReads   = 1
	cmdShiftOpcode    = 8
	cmdShiftDummy     = 16
	cmdShiftDataWords = 20
	cmdBitHasArg      = 28

	cmdMaskDummy     = 0xf
	cmdMaskDataWords = 0xff
)

// FlashCommand is the transient value encoded into the command register for
// one dispatch. Over-wide DummyCycles/DataWords values are truncated by the
// field masks, matching what the register itself would latch.
type FlashCommand struct {
	Execute     bool
	LockReads   bool
	Opcode      FlashOp
	DummyCycles uint8
	DataWords   uint8
	HasArg      bool
}

func (c FlashCommand) Encode() (word uint32) {
	if c.Execute {
		word |= 1 << cmdBitExecute
	}
	if c.LockReads {
		word |= 1 << cmdBitLockReads
	}
	word |= uint32(c.Opcode) << cmdShiftOpcode
	word |= (uint32(c.DummyCycles) & cmdMaskDummy) << cmdShiftDummy
	word |= (uint32(c.DataWords) & cmdMaskDataWords) << cmdShiftDataWords
	if c.HasArg {
		word |= 1 << cmdBitHasArg
	}
	return word
}

func DecodeFlashCommand(word uint32) FlashCommand {
	return FlashCommand{
		Execute:     word&(1<<cmdBitExecute) != 0,
		LockReads:   word&(1<<cmdBitLockReads) != 0,
		Opcode:      FlashOp(word >> cmdShiftOpcode),
		DummyCycles: uint8((word >> cmdShiftDummy) & cmdMaskDummy),
		DataWords:   uint8((word >> cmdShiftDataWords) & cmdMaskDataWords),
		HasArg:      word&(1<<cmdBitHasArg) != 0,
	}
}

// Controller drives the flash control registers of the target. Register
// addresses are resolved once from the register map; the staging buffer and
// command register are singular unbuffered resources, so all dispatches are
// strictly sequential.
type Controller struct {
	target *Target

	cmdReg   uint32
	argReg   uint32
	rbkReg   uint32
	wdataReg uint32
	wdogReg  uint32

	flash Region
}

func NewController(t *Target, m *RegisterMap) (ctl *Controller, err error) {
	ctl = &Controller{target: t}
	if ctl.cmdReg, err = m.Register("spinor_command"); err != nil {
		return nil, err
	}
	if ctl.argReg, err = m.Register("spinor_cmd_arg"); err != nil {
		return nil, err
	}
	if ctl.rbkReg, err = m.Register("spinor_cmd_rbk_data"); err != nil {
		return nil, err
	}
	if ctl.wdataReg, err = m.Register("spinor_wdata"); err != nil {
		return nil, err
	}
	if ctl.wdogReg, err = m.Register("wdt_watchdog"); err != nil {
		return nil, err
	}
	if ctl.flash, err = m.Region("spiflash"); err != nil {
		return nil, err
	}
	return ctl, nil
}

// Flash returns the programmable flash window declared by the device.
func (c *Controller) Flash() Region {
	return c.flash
}

func (c *Controller) dispatch(cmd FlashCommand, arg uint32) error {
	if err := c.target.Poke(c.argReg, arg); err != nil {
		return err
	}
	return c.target.Poke(c.cmdReg, cmd.Encode())
}

func (c *Controller) readback() (uint32, error) {
	return c.target.Peek(c.rbkReg)
}

// ReadStatus reads the flash status register (RDSR).
func (c *Controller) ReadStatus(lockReads bool) (uint32, error) {
	cmd := FlashCommand{LockReads: lockReads, Opcode: OpReadStatus, DataWords: 1}
	if err := c.dispatch(cmd, 0); err != nil {
		return 0, fmt.Errorf("RDSR: %w", err)
	}
	return c.readback()
}

// ReadSecurity reads the flash security register (RDSCUR).
func (c *Controller) ReadSecurity() (uint32, error) {
	cmd := FlashCommand{Opcode: OpReadSecurity, DataWords: 1}
	if err := c.dispatch(cmd, 0); err != nil {
		return 0, fmt.Errorf("RDSCUR: %w", err)
	}
	return c.readback()
}

// ReadID reads one word of the flash identification response (RDID). The
// argument selects the byte offset into the response.
func (c *Controller) ReadID(offset uint32) (uint32, error) {
	cmd := FlashCommand{Opcode: OpReadID, DataWords: 1, HasArg: true}
	if err := c.dispatch(cmd, offset); err != nil {
		return 0, fmt.Errorf("RDID: %w", err)
	}
	return c.readback()
}

// WriteEnable sets the flash write-enable latch (WREN). The latch is
// self-clearing after the next erase/program completes.
func (c *Controller) WriteEnable() error {
	cmd := FlashCommand{Execute: true, Opcode: OpWriteEnable}
	if err := c.dispatch(cmd, 0); err != nil {
		return fmt.Errorf("WREN: %w", err)
	}
	return nil
}

func (c *Controller) WriteDisable() error {
	cmd := FlashCommand{Execute: true, Opcode: OpWriteDisable}
	if err := c.dispatch(cmd, 0); err != nil {
		return fmt.Errorf("WRDI: %w", err)
	}
	return nil
}

// SectorErase erases the 4 KiB sector containing addr (SE4B).
func (c *Controller) SectorErase(addr uint32) error {
	cmd := FlashCommand{Execute: true, Opcode: OpSectorErase4B, HasArg: true}
	if err := c.dispatch(cmd, addr); err != nil {
		return fmt.Errorf("SE4B %#010x: %w", addr, err)
	}
	return nil
}

// BlockErase erases the 64 KiB block containing addr (BE4B).
func (c *Controller) BlockErase(addr uint32) error {
	cmd := FlashCommand{Execute: true, Opcode: OpBlockErase4B, HasArg: true}
	if err := c.dispatch(cmd, addr); err != nil {
		return fmt.Errorf("BE4B %#010x: %w", addr, err)
	}
	return nil
}

// StagePage burst-writes a page payload into the controller's staging
// buffer. Must precede PageProgram for the same page.
func (c *Controller) StagePage(data []byte) error {
	if err := c.target.BurstWrite(c.wdataReg, data); err != nil {
		return fmt.Errorf("staging page payload: %w", err)
	}
	return nil
}

// PageProgram triggers programming of the previously staged payload at addr
// (PP4B). length is the payload size in bytes and must be word-aligned.
func (c *Controller) PageProgram(addr uint32, length int) error {
	cmd := FlashCommand{
		Execute:   true,
		Opcode:    OpPageProgram4B,
		DataWords: uint8(length / 4),
		HasArg:    true,
	}
	if err := c.dispatch(cmd, addr); err != nil {
		return fmt.Errorf("PP4B %#010x: %w", addr, err)
	}
	return nil
}

// PingWatchdog services the device-side watchdog so it does not reset the
// target during a long erase or program run.
func (c *Controller) PingWatchdog() error {
	return c.target.Poke(c.wdogReg, 1)
}

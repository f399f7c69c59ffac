package norflash

import (
	"testing"
)

func TestEncodeIsPure(t *testing.T) {
	cmd := FlashCommand{
		Execute:     true,
		LockReads:   true,
		Opcode:      OpPageProgram4B,
		DummyCycles: 3,
		DataWords:   64,
		HasArg:      true,
	}
	if cmd.Encode() != cmd.Encode() {
		t.Fatal("encoding the same command twice gave different words")
	}
}

func TestEncodeKnownWord(t *testing.T) {
	cmd := FlashCommand{Execute: true, Opcode: OpSectorErase4B, HasArg: true}
	if got := cmd.Encode(); got != 0x10000601 {
		t.Fatalf("SE4B word %#010x, want 0x10000601", got)
	}
}

func TestOpcodeRoundTrip(t *testing.T) {
	for op := 0; op < 256; op++ {
		word := FlashCommand{Opcode: FlashOp(op)}.Encode()
		if got := DecodeFlashCommand(word).Opcode; got != FlashOp(op) {
			t.Fatalf("opcode %#02x decoded as %#02x", op, uint8(got))
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	cmds := []FlashCommand{
		{},
		{Execute: true, Opcode: OpWriteEnable},
		{LockReads: true, Opcode: OpReadStatus, DataWords: 1},
		{Opcode: OpReadID, DataWords: 1, HasArg: true},
		{Execute: true, Opcode: OpPageProgram4B, DummyCycles: 15, DataWords: 64, HasArg: true},
	}
	for _, cmd := range cmds {
		if got := DecodeFlashCommand(cmd.Encode()); got != cmd {
			t.Errorf("round trip of %+v gave %+v", cmd, got)
		}
	}
}

func TestEncodeTruncatesWideFields(t *testing.T) {
	cmd := FlashCommand{DummyCycles: 0xff}
	if got := DecodeFlashCommand(cmd.Encode()).DummyCycles; got != 0x0f {
		t.Errorf("dummy cycles truncated to %#x, want 0x0f", got)
	}
}

func TestControllerSequences(t *testing.T) {
	dev := newSimDevice(0xff)
	target := NewTarget(dev)
	m, err := LoadRegisterMap(target)
	if err != nil {
		t.Fatal(err)
	}
	ctl, err := NewController(target, m)
	if err != nil {
		t.Fatal(err)
	}

	// Latch toggling is visible through the status register.
	status, err := ctl.ReadStatus(false)
	if err != nil {
		t.Fatal(err)
	}
	if status&StatusWEL != 0 {
		t.Fatal("write-enable latch set before WREN")
	}
	if err := ctl.WriteEnable(); err != nil {
		t.Fatal(err)
	}
	if status, err = ctl.ReadStatus(false); err != nil {
		t.Fatal(err)
	}
	if status&StatusWEL == 0 {
		t.Fatal("write-enable latch not set after WREN")
	}
	if err := ctl.WriteDisable(); err != nil {
		t.Fatal(err)
	}
	if status, err = ctl.ReadStatus(false); err != nil {
		t.Fatal(err)
	}
	if status&StatusWEL != 0 {
		t.Fatal("write-enable latch still set after WRDI")
	}

	// ID reads are byte-offset addressed.
	mfg, err := ctl.ReadID(0)
	if err != nil {
		t.Fatal(err)
	}
	if byte(mfg) != expectedManufacturerID {
		t.Errorf("manufacturer ID %#02x", byte(mfg))
	}
	dev2, err := ctl.ReadID(1)
	if err != nil {
		t.Fatal(err)
	}
	if byte(dev2) != expectedDeviceID {
		t.Errorf("device ID %#02x", byte(dev2))
	}

	// Stage-then-program writes exactly the staged page.
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte(i)
	}
	if err := ctl.StagePage(page); err != nil {
		t.Fatal(err)
	}
	if err := ctl.WriteEnable(); err != nil {
		t.Fatal(err)
	}
	if err := ctl.PageProgram(simFlashBase, PageSize); err != nil {
		t.Fatal(err)
	}
	got, err := target.BurstRead(simFlashBase, PageSize)
	if err != nil {
		t.Fatal(err)
	}
	for i := range page {
		if got[i] != page[i] {
			t.Fatalf("programmed byte %d is %#02x, want %#02x", i, got[i], page[i])
		}
	}
}

func TestMissingRegisterFailsControllerSetup(t *testing.T) {
	text := "register,spinor_command,0xf0000004\n" // everything else missing
	m, err := ParseDescriptor(buildDescriptorWindow(text))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewController(NewTarget(newSimDevice(0xff)), m); err == nil {
		t.Fatal("controller setup succeeded with incomplete register map")
	}
}

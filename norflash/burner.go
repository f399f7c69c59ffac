package norflash

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const (
	SectorSize = 4 * 1024
	BlockSize  = 64 * 1024
	PageSize   = 256

	// Erased state of NOR flash; also the fill byte for partial pages.
	erasedByte = 0xff

	// The write-enable latch settles within microseconds, so the wait is a
	// tight spin bounded by iteration count rather than wall clock.
	welSpinBound = 100000

	// Cap on individually reported verify mismatches.
	maxReportedMismatches = 64
)

// Expected RDID bytes: manufacturer and device ID of the one flash part this
// bootloader protocol is built around.
const (
	expectedManufacturerID = 0xc2
	expectedDeviceID       = 0x25
)

var ErrLatchTimeout = errors.New("write-enable latch never observed set")

// State of the update workflow.
type State int

const (
	StateIdentify State = iota
	StateErase
	StateProgram
	StateVerify
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdentify:
		return "IDENTIFY"
	case StateErase:
		return "ERASE"
	case StateProgram:
		return "PROGRAM"
	case StateVerify:
		return "VERIFY"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ProgressFunc receives per-chunk progress of long-running stages.
type ProgressFunc func(stage string, done, total int)

// Mismatch is one differing byte found during verification.
type Mismatch struct {
	Addr uint32
	Want byte
	Got  byte
}

// VerifyReport is the outcome of the verification pass. Count may exceed
// len(First); only the first mismatches are reported individually.
type VerifyReport struct {
	Count int
	First []Mismatch
}

func (r *VerifyReport) OK() bool {
	return r.Count == 0
}

// Burner drives the erase/program/verify workflow against one flash part.
// It is strictly single threaded: every step is a blocking round trip over
// the control channel and the device's command register and staging buffer
// admit no overlap.
type Burner struct {
	ctl      *Controller
	progress ProgressFunc

	state State
}

func NewBurner(ctl *Controller, progress ProgressFunc) *Burner {
	return &Burner{ctl: ctl, progress: progress, state: StateIdentify}
}

func (b *Burner) State() State {
	return b.state
}

func (b *Burner) report(stage string, done, total int) {
	if b.progress != nil {
		b.progress(stage, done, total)
	}
}

func (b *Burner) fail(err error) error {
	b.state = StateFailed
	return err
}

// Identify reads the flash ID and checks it against the expected part. A
// mismatch means the wrong or an unresponsive flash and is fatal.
func (b *Burner) Identify() error {
	mfg, err := b.ctl.ReadID(0)
	if err != nil {
		return b.fail(err)
	}
	dev, err := b.ctl.ReadID(1)
	if err != nil {
		return b.fail(err)
	}
	if byte(mfg) != expectedManufacturerID || byte(dev) != expectedDeviceID {
		return b.fail(fmt.Errorf("flash ID mismatch: got %02x/%02x, want %02x/%02x",
			byte(mfg), byte(dev), expectedManufacturerID, expectedDeviceID))
	}
	log.Infof("Flash part identified: %02x/%02x", byte(mfg), byte(dev))
	b.state = StateErase
	return nil
}

// waitWEL spins until the write-enable latch is observed set. The bound
// exists only to turn a dead flash into an error instead of a hang.
func (b *Burner) waitWEL() error {
	for i := 0; i < welSpinBound; i++ {
		status, err := b.ctl.ReadStatus(false)
		if err != nil {
			return err
		}
		if status&StatusWEL != 0 {
			return nil
		}
	}
	return ErrLatchTimeout
}

// waitIdle spins until the busy bit clears. Completion latency of the flash
// itself is the only bound; liveness of the rest of the device is kept up by
// the per-block watchdog pings of the callers.
func (b *Burner) waitIdle() error {
	for {
		status, err := b.ctl.ReadStatus(false)
		if err != nil {
			return err
		}
		if status&StatusBusy == 0 {
			return nil
		}
	}
}

func (b *Burner) checkBounds(addr uint32, length int) error {
	flash := b.ctl.Flash()
	if !flash.Contains(addr, length) {
		return fmt.Errorf("range [%#010x, %#010x) outside flash region [%#010x, %#010x)",
			addr, uint64(addr)+uint64(length), flash.Base, uint64(flash.Base)+uint64(flash.Length))
	}
	return nil
}

// Erase wipes [addr, addr+length) using 64 KiB blocks where alignment and
// remaining length permit, 4 KiB sectors otherwise. Fail flags in the
// security register are reported but not fatal; an erase retried by the part
// can raise them and still leave the array blank.
func (b *Burner) Erase(addr uint32, length int) error {
	if err := b.checkBounds(addr, length); err != nil {
		return b.fail(err)
	}

	total := length
	erased := 0
	b.report("erase", 0, total)
	for erased < total {
		cur := addr + uint32(erased)
		step := SectorSize
		if cur%BlockSize == 0 && total-erased >= BlockSize {
			step = BlockSize
		}

		if err := b.ctl.WriteEnable(); err != nil {
			return b.fail(err)
		}
		if err := b.waitWEL(); err != nil {
			return b.fail(fmt.Errorf("before erase at %#010x: %w", cur, err))
		}

		var err error
		if step == BlockSize {
			err = b.ctl.BlockErase(cur)
		} else {
			err = b.ctl.SectorErase(cur)
		}
		if err != nil {
			return b.fail(err)
		}
		if err := b.waitIdle(); err != nil {
			return b.fail(err)
		}
		if err := b.ctl.PingWatchdog(); err != nil {
			return b.fail(err)
		}

		erased += step
		done := erased
		if done > total {
			done = total
		}
		b.report("erase", done, total)
	}

	security, err := b.ctl.ReadSecurity()
	if err != nil {
		return b.fail(err)
	}
	if security&(SecurityEraseFail|SecurityProgramFail) != 0 {
		log.Warnf("Security register reports fail flags after erase: %#02x (continuing)", security)
	}

	b.state = StateProgram
	return nil
}

// Program writes data at addr in staging-page-sized chunks. The target range
// must have been erased; the engine does not infer or re-check that. The
// final partial page is padded with the erased byte, pad bytes never count
// against the caller's data.
func (b *Burner) Program(addr uint32, data []byte) error {
	if err := b.checkBounds(addr, len(data)); err != nil {
		return b.fail(err)
	}

	total := len(data)
	b.report("program", 0, total)
	for written := 0; written < total; written += PageSize {
		chunk := data[written:]
		if len(chunk) > PageSize {
			chunk = chunk[:PageSize]
		}
		if len(chunk) < PageSize {
			page := make([]byte, PageSize)
			for i := range page {
				page[i] = erasedByte
			}
			copy(page, chunk)
			chunk = page
		}

		if err := b.ctl.StagePage(chunk); err != nil {
			return b.fail(err)
		}
		if err := b.ctl.WriteEnable(); err != nil {
			return b.fail(err)
		}
		if err := b.waitWEL(); err != nil {
			return b.fail(fmt.Errorf("before program at %#010x: %w", addr+uint32(written), err))
		}
		if err := b.ctl.PageProgram(addr+uint32(written), PageSize); err != nil {
			return b.fail(err)
		}
		if err := b.waitIdle(); err != nil {
			return b.fail(err)
		}
		if err := b.ctl.PingWatchdog(); err != nil {
			return b.fail(err)
		}

		done := written + len(chunk)
		if done > total {
			done = total
		}
		b.report("program", done, total)
	}

	b.state = StateVerify
	return nil
}

// Verify reads back [addr, addr+len(data)) and compares byte for byte. The
// report is terminal: no repair is attempted, retrying PROGRAM is the
// caller's decision.
func (b *Burner) Verify(addr uint32, data []byte) (*VerifyReport, error) {
	if err := b.checkBounds(addr, len(data)); err != nil {
		return nil, b.fail(err)
	}

	readback, err := b.ctl.target.BurstRead(addr, len(data))
	if err != nil {
		return nil, b.fail(err)
	}

	report := &VerifyReport{}
	for i := range data {
		if readback[i] != data[i] {
			if report.Count < maxReportedMismatches {
				report.First = append(report.First, Mismatch{
					Addr: addr + uint32(i),
					Want: data[i],
					Got:  readback[i],
				})
			}
			report.Count++
		}
	}

	if report.Count > 0 {
		log.Warnf("Verification found %d mismatching bytes", report.Count)
		b.state = StateFailed
	} else {
		b.state = StateDone
	}
	return report, nil
}

// Run drives the complete workflow over one image. Erase covers the padded
// extent of the image so programming never touches unerased cells.
func (b *Burner) Run(addr uint32, data []byte, verify bool) error {
	if b.state != StateIdentify {
		return fmt.Errorf("burner already ran (state %s)", b.state)
	}
	if err := b.Identify(); err != nil {
		return err
	}

	eraseLen := len(data)
	if r := eraseLen % SectorSize; r != 0 {
		eraseLen += SectorSize - r
	}
	if err := b.Erase(addr, eraseLen); err != nil {
		return err
	}
	if err := b.Program(addr, data); err != nil {
		return err
	}
	if !verify {
		b.state = StateDone
		return nil
	}
	report, err := b.Verify(addr, data)
	if err != nil {
		return err
	}
	if !report.OK() {
		for _, m := range report.First {
			log.Warnf("  %#010x: want %02x, got %02x", m.Addr, m.Want, m.Got)
		}
		return fmt.Errorf("verification failed with %d mismatches", report.Count)
	}
	return nil
}

package norflash

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

var eNoDevice = errors.New("no target device in update mode found")

const (
	VID gousb.ID = 0x1209
	PID gousb.ID = 0x5bf0
)

// Vendor control transfer encoding of the debug bridge: bRequest 0, target
// address split into wValue (low 16 bits) and wIndex (high 16 bits).
const (
	reqTypeOut uint8 = 0x43
	reqTypeIn  uint8 = 0xc3
	reqMemory  uint8 = 0x00
)

// USBTarget owns the gousb handle of the debug bridge and implements Link.
// The whole update workflow assumes exclusive ownership of the handle.
type USBTarget struct {
	UsbCtx *gousb.Context
	Dev    *gousb.Device
}

func OpenUSBTarget() (res *USBTarget, err error) {
	res = &USBTarget{}
	res.UsbCtx = gousb.NewContext()

	if res.Dev, err = res.UsbCtx.OpenDeviceWithVIDPID(VID, PID); err == nil && res.Dev != nil {
		log.Infof("Found target debug bridge %v:%v", VID, PID)
	} else {
		res.Close()
		return nil, eNoDevice
	}

	// Detach from kernel to avoid interference from other software while
	// flash state is in flight.
	res.Dev.SetAutoDetach(true)

	return res, nil
}

func (u *USBTarget) Close() {
	if u.Dev != nil {
		u.Dev.SetAutoDetach(false)
		u.Dev.Close()
	}
	if u.UsbCtx != nil {
		u.UsbCtx.Close()
	}
}

func (u *USBTarget) ControlIn(addr uint32, p []byte) error {
	n, err := u.Dev.Control(
		reqTypeIn,           //bit7: Device to host, bit6..5: Vendor, bit4..0: Other
		reqMemory,           //request: memory access
		uint16(addr&0xffff), //address low half
		uint16(addr>>16),    //address high half
		p,                   //payload
	)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short control read at %#010x: %d of %d bytes", addr, n, len(p))
	}
	return nil
}

func (u *USBTarget) ControlOut(addr uint32, p []byte) error {
	n, err := u.Dev.Control(
		reqTypeOut,          //bit7: Host to device, bit6..5: Vendor, bit4..0: Other
		reqMemory,           //request: memory access
		uint16(addr&0xffff), //address low half
		uint16(addr>>16),    //address high half
		p,                   //payload
	)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short control write at %#010x: %d of %d bytes", addr, n, len(p))
	}
	return nil
}

package norflash

import (
	log "github.com/sirupsen/logrus"
)

// Session ties one opened device to its verified register map and flash
// controller. The map is loaded once and read-only for the lifetime of the
// session; the session assumes exclusive ownership of the device handle.
type Session struct {
	Target *Target
	Map    *RegisterMap
	Ctl    *Controller
}

// NewSession loads and verifies the register descriptor from a device and
// resolves the flash control registers.
func NewSession(link Link) (*Session, error) {
	target := NewTarget(link)
	m, err := LoadRegisterMap(target)
	if err != nil {
		return nil, err
	}
	log.Infof("Loaded register map, gateware revision %s", m.Revision)

	ctl, err := NewController(target, m)
	if err != nil {
		return nil, err
	}

	return &Session{Target: target, Map: m, Ctl: ctl}, nil
}

// NewBurner starts a fresh update workflow on this session.
func (s *Session) NewBurner(progress ProgressFunc) *Burner {
	return NewBurner(s.Ctl, progress)
}

// Reboot restarts the target, e.g. to boot freshly written firmware. The
// device drops off the bus, so no confirmation read is possible.
func (s *Session) Reboot() error {
	addr, err := s.Map.Register("reboot_soc")
	if err != nil {
		return err
	}
	return s.Target.Poke(addr, 1)
}

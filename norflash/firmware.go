package norflash

import (
	"errors"
	"fmt"
	"os"

	"github.com/sigurn/crc16"
)

// Image is a flat firmware blob destined for a flash address. Container
// formats are out of scope here; callers hand over raw bytes.
type Image struct {
	Data []byte
	CRC  uint16
}

func (i *Image) String() string {
	return fmt.Sprintf("image: %#x (%d) bytes, CRC-16 %#04x", len(i.Data), len(i.Data), i.CRC)
}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the CRC-16/CCITT-FALSE of a blob, the same checksum the
// update logs carry for cross-checking images between host and field.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// LoadImage reads a raw firmware blob from disk.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading firmware file: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("firmware file is empty")
	}
	return &Image{Data: data, CRC: Checksum(data)}, nil
}

// Package smartport implements the host-side half of a SmartPort block
// device: a flat ProDOS-formatted image file exposing a block-device
// interface. The SmartPort command protocol itself lives with the rest of
// the MMIO emulation; this package only backs it with storage.
package smartport

import (
	"github.com/samkusin/clemens-iigs-sub002/diskerr"
)

const (
	blockSize = 512
	// MaxUnits is the number of daisy-chained SmartPort slots.
	MaxUnits = 2
	// MaxBlockCount caps an image at 32 MB.
	MaxBlockCount = (32 << 20) / blockSize
)

// ProDOSDisk is a flat ProDOS block image, up to 32 MB, backing one
// SmartPort slot.
type ProDOSDisk struct {
	Data       []byte
	IsReadOnly bool
}

// New wraps an existing flat image. len(data) must be a whole number of
// 512-byte blocks, at most MaxBlockCount of them.
func New(data []byte, readOnly bool) (*ProDOSDisk, error) {
	if len(data)%blockSize != 0 {
		return nil, diskerr.Newf(diskerr.InvalidImage, "smartport: image length %d is not block-aligned", len(data))
	}
	if len(data)/blockSize > MaxBlockCount {
		return nil, diskerr.Newf(diskerr.InvalidImage, "smartport: image exceeds %d MB cap", MaxBlockCount*blockSize/(1<<20))
	}
	return &ProDOSDisk{Data: data, IsReadOnly: readOnly}, nil
}

// NewBlank allocates a zero-filled image of blockCount blocks.
func NewBlank(blockCount int) (*ProDOSDisk, error) {
	if blockCount <= 0 || blockCount > MaxBlockCount {
		return nil, diskerr.Newf(diskerr.InvalidImage, "smartport: invalid block count %d", blockCount)
	}
	return &ProDOSDisk{Data: make([]byte, blockCount*blockSize)}, nil
}

// BlockCount returns the number of addressable 512-byte blocks.
func (d *ProDOSDisk) BlockCount() int { return len(d.Data) / blockSize }

// ReadBlock copies block index into dst, which must be at least 512 bytes.
func (d *ProDOSDisk) ReadBlock(index int, dst []byte) error {
	if index < 0 || index >= d.BlockCount() {
		return diskerr.Newf(diskerr.InvalidImage, "smartport: block %d out of range (have %d)", index, d.BlockCount())
	}
	copy(dst, d.Data[index*blockSize:(index+1)*blockSize])
	return nil
}

// WriteBlock writes 512 bytes of src into block index.
func (d *ProDOSDisk) WriteBlock(index int, src []byte) error {
	if d.IsReadOnly {
		return diskerr.New(diskerr.MountFailed, "smartport: disk is write-protected")
	}
	if index < 0 || index >= d.BlockCount() {
		return diskerr.Newf(diskerr.InvalidImage, "smartport: block %d out of range (have %d)", index, d.BlockCount())
	}
	copy(d.Data[index*blockSize:(index+1)*blockSize], src)
	return nil
}

// Save returns the complete flat image suitable for writing to disk.
func (d *ProDOSDisk) Save() []byte {
	return append([]byte{}, d.Data...)
}

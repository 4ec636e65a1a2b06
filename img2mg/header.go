// Package img2mg implements the 2IMG container format: header parse and
// generation, nibblization of a 2IMG-described sector image into a nib.Disk,
// and the reverse decode back to raw sector bytes.
package img2mg

import (
	"encoding/binary"

	"github.com/samkusin/clemens-iigs-sub002/diskerr"
)

// Format is the sector ordering convention of a 2IMG's data section.
type Format uint32

const (
	FormatDOS    Format = 0
	FormatProDOS Format = 1
	FormatRaw    Format = 2
)

const (
	headerSize       = 64
	headerSizeField  = 0x0040
	maxImageDataSize = 0x000c8000 // ~800 KB, the largest floppy geometry

	magicTag = "2IMG"
)

// Container is the parsed 2MG header plus the byte ranges it points at.
type Container struct {
	Creator           [4]byte
	Version           uint16
	Format            Format
	DOSVolume         uint32
	BlockCount        uint32
	IsWriteProtected  bool
	ImageDataOffset   uint32
	ImageDataLength   uint32
	CommentOffset     uint32
	CommentLength     uint32
	CreatorDataOffset uint32
	CreatorDataLength uint32

	// Data is the decoded sector image (the bytes at [ImageDataOffset,
	// ImageDataOffset+ImageDataLength) of the source file).
	Data []byte
	// CreatorData and Comment are preserved verbatim for round-trip output.
	CreatorData []byte
	Comment     []byte
}

// ParseHeader reads a 2MG header from raw, validating field by field in
// file order: any mismatch returns an InvalidImage error and parsing stops
// at that step.
func ParseHeader(raw []byte) (*Container, error) {
	if len(raw) < headerSize {
		return nil, diskerr.Newf(diskerr.InvalidImage, "2img header truncated: got %d bytes, want %d", len(raw), headerSize)
	}

	c := &Container{}

	// Step 1: magic
	if string(raw[0:4]) != magicTag {
		return nil, diskerr.Newf(diskerr.InvalidImage, "2img: bad magic %q", raw[0:4])
	}

	// Step 2: creator, preserved verbatim
	copy(c.Creator[:], raw[4:8])

	// Step 3: header size must equal 0x0040
	if hdrSize := binary.LittleEndian.Uint16(raw[8:10]); hdrSize != headerSizeField {
		return nil, diskerr.Newf(diskerr.InvalidImage, "2img: bad header size 0x%04x", hdrSize)
	}

	// Step 4: version
	c.Version = binary.LittleEndian.Uint16(raw[10:12])

	// Step 5: format
	c.Format = Format(binary.LittleEndian.Uint32(raw[12:16]))

	// Step 6: flags
	flags := binary.LittleEndian.Uint32(raw[16:20])
	if flags&0x80000000 != 0 {
		c.IsWriteProtected = true
	}
	if flags&0x100 != 0 {
		c.DOSVolume = flags & 0xff
	}

	// Step 7: block count
	c.BlockCount = binary.LittleEndian.Uint32(raw[20:24])

	// Step 8: data offset
	c.ImageDataOffset = binary.LittleEndian.Uint32(raw[24:28])

	// Step 9: data length (0 => infer from block count)
	c.ImageDataLength = binary.LittleEndian.Uint32(raw[28:32])
	if c.ImageDataLength == 0 {
		c.ImageDataLength = c.BlockCount * 512
	}
	if c.ImageDataLength > maxImageDataSize {
		return nil, diskerr.Newf(diskerr.InvalidImage, "2img: data length %d exceeds maximum %d", c.ImageDataLength, maxImageDataSize)
	}

	// Step 10/11: comment offset/length
	c.CommentOffset = binary.LittleEndian.Uint32(raw[32:36])
	c.CommentLength = binary.LittleEndian.Uint32(raw[36:40])

	// Step 12/13: creator data offset/length
	c.CreatorDataOffset = binary.LittleEndian.Uint32(raw[40:44])
	c.CreatorDataLength = binary.LittleEndian.Uint32(raw[44:48])

	// Step 14: 16 bytes of reserved padding, skipped (raw[48:64])

	dataEnd := uint64(c.ImageDataOffset) + uint64(c.ImageDataLength)
	if dataEnd > uint64(len(raw)) {
		return nil, diskerr.Newf(diskerr.InvalidImage, "2img: data section [%d,%d) exceeds file length %d", c.ImageDataOffset, dataEnd, len(raw))
	}
	c.Data = raw[c.ImageDataOffset:dataEnd]

	if c.CreatorDataLength > 0 {
		end := uint64(c.CreatorDataOffset) + uint64(c.CreatorDataLength)
		if end > uint64(len(raw)) {
			return nil, diskerr.Newf(diskerr.InvalidImage, "2img: creator data range out of bounds")
		}
		c.CreatorData = raw[c.CreatorDataOffset:end]
	}
	if c.CommentLength > 0 {
		end := uint64(c.CommentOffset) + uint64(c.CommentLength)
		if end > uint64(len(raw)) {
			return nil, diskerr.Newf(diskerr.InvalidImage, "2img: comment range out of bounds")
		}
		c.Comment = raw[c.CommentOffset:end]
	}

	return c, nil
}

// creatorTag is the 4-byte creator identifier stamped on synthesized
// headers.
var creatorTag = [4]byte{'C', 'L', 'E', 'M'}

// GenerateHeader synthesizes an in-memory 2IMG header for a raw
// DSK/DO/PO image that carries no container of its own, so the mount path
// can treat every sector image uniformly.
func GenerateHeader(format Format, data []byte) *Container {
	c := &Container{
		Creator: creatorTag,
		Version: 1,
		Format:  format,
		Data:    data,
	}
	// The block count is only meaningful for ProDOS ordering; DOS images
	// keep it zero so 140 KB geometry detection works unchanged.
	if format == FormatProDOS && len(data)%512 == 0 {
		c.BlockCount = uint32(len(data) / 512)
	}
	c.ImageDataLength = uint32(len(data))
	return c
}

// WriteHeader serializes c's header fields into the canonical 64-byte 2MG
// layout, with Data/CreatorData/Comment placed immediately after the
// header in that order.
func WriteHeader(c *Container) []byte {
	creatorDataOffset := uint32(headerSize + len(c.Data))
	commentOffset := creatorDataOffset + uint32(len(c.CreatorData))
	total := int(commentOffset) + len(c.Comment)

	out := make([]byte, total)
	copy(out[0:4], magicTag)
	copy(out[4:8], c.Creator[:])
	binary.LittleEndian.PutUint16(out[8:10], headerSizeField)
	binary.LittleEndian.PutUint16(out[10:12], c.Version)
	binary.LittleEndian.PutUint32(out[12:16], uint32(c.Format))

	flags := uint32(0)
	if c.IsWriteProtected {
		flags |= 0x80000000
	}
	if c.DOSVolume != 0 {
		flags |= 0x100 | (c.DOSVolume & 0xff)
	}
	binary.LittleEndian.PutUint32(out[16:20], flags)
	binary.LittleEndian.PutUint32(out[20:24], c.BlockCount)
	binary.LittleEndian.PutUint32(out[24:28], headerSize)
	binary.LittleEndian.PutUint32(out[28:32], uint32(len(c.Data)))
	binary.LittleEndian.PutUint32(out[32:36], commentOffset)
	binary.LittleEndian.PutUint32(out[36:40], uint32(len(c.Comment)))
	binary.LittleEndian.PutUint32(out[40:44], creatorDataOffset)
	binary.LittleEndian.PutUint32(out[44:48], uint32(len(c.CreatorData)))
	// bytes [48:64] are reserved, left zero.

	copy(out[headerSize:], c.Data)
	copy(out[creatorDataOffset:], c.CreatorData)
	copy(out[commentOffset:], c.Comment)
	return out
}

// IsDOS525 reports whether c describes a 140 KB DOS 3.3 image. Plenty of
// real 140 KB images carry a ProDOS format field with a zero block count,
// so the geometry is identified from the data length alone.
func (c *Container) IsDOS525() bool {
	const dos525Size = 140 * 1024
	return c.BlockCount == 0 && len(c.Data) == dos525Size
}

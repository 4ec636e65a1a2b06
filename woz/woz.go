// Package woz implements the WOZ2 chunked disk container: parsing and
// serializing the INFO/TMAP/TRKS/META/WRIT chunk stream into and out of a
// nib.Disk, without lossy reinterpretation of the bit streams it carries
// (the format is already nibble-native, unlike img2mg).
package woz

import (
	"github.com/samkusin/clemens-iigs-sub002/diskerr"
	"github.com/samkusin/clemens-iigs-sub002/internal/bstream"
	"github.com/samkusin/clemens-iigs-sub002/nib"
)

const (
	magic       = "WOZ2"
	maxVersion  = 2
	infoSize    = 60
	tmapSize    = 160
	trksEntries = 160
)

var magicTrailer = [4]byte{0xff, 0x0a, 0x0d, 0x0a}

// DiskType is the INFO chunk's disk-type field.
type DiskType uint8

const (
	DiskTypeNone DiskType = 0
	DiskType525  DiskType = 1
	DiskType35   DiskType = 2
)

// BootType is INFO's boot-sector-format field, preserved but not
// interpreted by this package (boot ROM behavior is a CPU concern).
type BootType uint8

// Info mirrors the WOZ2 INFO chunk. The raw 60-byte payload is retained so
// fields this package does not interpret (FLUX bookkeeping, reserved tail
// bytes) survive a parse/serialize round trip untouched.
type Info struct {
	Version               uint8
	DiskType              DiskType
	IsWriteProtected      bool
	IsSynchronized        bool
	IsCleaned             bool
	Creator               [32]byte
	Sides                 uint8
	BootType              BootType
	BitTimingNs           uint32
	HardwareCompatibility uint16
	RequiredRAMKB         uint16
	LargestTrackBytes     uint32

	// Raw is the verbatim INFO payload this Info was parsed from, or nil
	// for a synthesized Info.
	Raw []byte
}

// Chunk is a raw, type-tagged chunk payload preserved opaquely for chunks
// this package does not interpret (WRIT, META, and anything unrecognized).
type Chunk struct {
	Type [4]byte
	Data []byte
}

// Disk is the parsed WOZ2 container: the INFO header, any preserved chunks,
// and the nib.Disk its TMAP/TRKS chunks describe.
type Disk struct {
	Info  Info
	Nib   *nib.Disk
	Extra []Chunk // chunks besides INFO/TMAP/TRKS, in file order (WRIT/META/unknown)
}

func chunkType(s string) [4]byte {
	var t [4]byte
	copy(t[:], s)
	return t
}

var (
	chunkINFO = chunkType("INFO")
	chunkTMAP = chunkType("TMAP")
	chunkTRKS = chunkType("TRKS")
)

// Parse reads a complete WOZ2 file: INFO must be the first chunk, TMAP
// copies 160 bytes verbatim into the disk's meta-track map, and TRKS
// populates each initialized track's bit buffer. Unknown/META/WRIT chunks
// are preserved in Extra for faithful re-serialization.
func Parse(raw []byte) (*Disk, error) {
	r := bstream.NewReaderFromBytes(raw)

	header, err := r.ReadBytes(8)
	if err != nil {
		return nil, diskerr.Wrap(diskerr.InvalidImage, err, "woz: truncated header")
	}
	if string(header[0:4]) != magic {
		return nil, diskerr.Newf(diskerr.InvalidImage, "woz: bad magic %q", header[0:4])
	}
	for i, b := range magicTrailer {
		if header[4+i] != b {
			return nil, diskerr.New(diskerr.InvalidImage, "woz: bad magic trailer")
		}
	}
	if _, err := r.ReadUint32LE(); err != nil { // CRC32, verified by caller via VerifyCRC
		return nil, diskerr.Wrap(diskerr.InvalidImage, err, "woz: truncated CRC")
	}

	d := &Disk{}
	seenInfo := false
	var tmap [tmapSize]byte
	haveTMAP := false
	var trksPayload []byte

	for {
		typeBytes, err := r.ReadBytes(4)
		if err != nil {
			break // EOF: end of chunk stream
		}
		size, err := r.ReadUint32LE()
		if err != nil {
			return nil, diskerr.Wrap(diskerr.InvalidImage, err, "woz: truncated chunk size")
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, diskerr.Wrapf(diskerr.InvalidImage, err, "woz: truncated %q chunk payload", typeBytes)
		}

		var ct [4]byte
		copy(ct[:], typeBytes)

		if !seenInfo && ct != chunkINFO {
			return nil, diskerr.New(diskerr.InvalidImage, "woz: INFO must be the first chunk")
		}

		switch ct {
		case chunkINFO:
			if seenInfo {
				return nil, diskerr.New(diskerr.InvalidImage, "woz: duplicate INFO chunk")
			}
			info, err := parseInfo(payload)
			if err != nil {
				return nil, err
			}
			d.Info = info
			seenInfo = true
		case chunkTMAP:
			if len(payload) != tmapSize {
				return nil, diskerr.Newf(diskerr.InvalidImage, "woz: TMAP wrong size %d", len(payload))
			}
			copy(tmap[:], payload)
			haveTMAP = true
		case chunkTRKS:
			trksPayload = payload
		default:
			d.Extra = append(d.Extra, Chunk{Type: ct, Data: payload})
		}
	}

	if !seenInfo {
		return nil, diskerr.New(diskerr.InvalidImage, "woz: missing INFO chunk")
	}
	if d.Info.Version > maxVersion {
		return nil, diskerr.Newf(diskerr.VersionNotSupported, "woz: version %d not supported", d.Info.Version)
	}
	if !haveTMAP {
		return nil, diskerr.New(diskerr.InvalidImage, "woz: missing TMAP chunk")
	}

	diskType := nib.TypeNone
	switch d.Info.DiskType {
	case DiskType525:
		diskType = nib.Type525
	case DiskType35:
		diskType = nib.Type35
	}
	nd := nib.New(diskType, 0)
	nd.IsWriteProtected = d.Info.IsWriteProtected
	nd.BitTimingNs = d.Info.BitTimingNs
	nd.IsDoubleSided = d.Info.DiskType == DiskType35 && d.Info.Sides == 2

	if err := populateTracks(nd, tmap, trksPayload, raw); err != nil {
		return nil, err
	}
	d.Nib = nd

	return d, nil
}

func parseInfo(payload []byte) (Info, error) {
	if len(payload) < infoSize {
		return Info{}, diskerr.Newf(diskerr.InvalidImage, "woz: INFO chunk too short: %d", len(payload))
	}
	var info Info
	info.Version = payload[0]
	info.DiskType = DiskType(payload[1])
	info.IsWriteProtected = payload[2] != 0
	info.IsSynchronized = payload[3] != 0
	info.IsCleaned = payload[4] != 0
	copy(info.Creator[:], payload[5:37])
	info.Sides = payload[37]
	info.BootType = BootType(payload[38])
	info.BitTimingNs = uint32(payload[39]) * 125
	info.HardwareCompatibility = uint16(payload[40]) | uint16(payload[41])<<8
	info.RequiredRAMKB = uint16(payload[42]) | uint16(payload[43])<<8
	info.LargestTrackBytes = uint32(payload[44]) | uint32(payload[45])<<8
	info.Raw = append([]byte{}, payload[:infoSize]...)
	return info, nil
}

// populateTracks walks the 160 TRKS descriptors (starting-block,
// block-count, bit-count triplets) and copies each initialized track's
// blocks into nd.BitsData. Starting blocks address 512-byte blocks from
// the beginning of the file, so the copy reads from raw, not from the
// chunk payload.
func populateTracks(nd *nib.Disk, tmap [tmapSize]byte, trks, raw []byte) error {
	const descSize = 8

	copy(nd.MetaTrackMap[:], tmap[:])

	if len(trks) == 0 {
		// No TRKS chunk at all is fine for a fully unformatted disk.
		for q, m := range tmap {
			if m != nib.UninitializedTrack {
				return diskerr.Newf(diskerr.InvalidImage, "woz: TMAP entry %d set but no TRKS chunk present", q)
			}
		}
		return nil
	}
	if len(trks) < trksEntries*descSize {
		return diskerr.New(diskerr.InvalidImage, "woz: TRKS descriptor table truncated")
	}

	type desc struct {
		startBlock, blockCount uint16
		bitCount               uint32
	}
	descs := make([]desc, trksEntries)
	total := 0
	for i := 0; i < trksEntries; i++ {
		off := i * descSize
		descs[i] = desc{
			startBlock: leUint16(trks[off : off+2]),
			blockCount: leUint16(trks[off+2 : off+4]),
			bitCount:   leUint32(trks[off+4 : off+8]),
		}
		total += int(descs[i].blockCount) * 512
	}

	nd.BitsData = make([]byte, total)
	nd.TrackCount = 0
	offset := uint32(0)
	physicalWritten := make(map[int]bool)

	for q := 0; q < tmapSize; q++ {
		phys := int(tmap[q])
		if phys == int(nib.UninitializedTrack) {
			continue
		}
		if physicalWritten[phys] {
			continue
		}
		if phys >= trksEntries {
			return diskerr.Newf(diskerr.InvalidImage, "woz: TMAP entry %d references out-of-range track %d", q, phys)
		}
		dsc := descs[phys]
		if dsc.blockCount == 0 {
			return diskerr.Newf(diskerr.InvalidImage, "woz: track %d has zero blocks but is referenced by TMAP", phys)
		}
		srcStart := int(dsc.startBlock) * 512
		srcEnd := srcStart + int(dsc.blockCount)*512
		if srcEnd > len(raw) {
			return diskerr.Newf(diskerr.InvalidImage, "woz: track %d block range out of bounds", phys)
		}

		byteLen := uint32(dsc.blockCount) * 512
		copy(nd.BitsData[offset:offset+byteLen], raw[srcStart:srcEnd])
		nd.TrackByteOffset[phys] = offset
		nd.TrackByteCount[phys] = byteLen
		nd.TrackBitsCount[phys] = dsc.bitCount
		nd.TrackInitialized[phys] = 1
		nd.TrackCount++
		offset += byteLen
		physicalWritten[phys] = true
	}
	return nil
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

package woz

import (
	"hash/crc32"

	"github.com/samkusin/clemens-iigs-sub002/internal/bstream"
	"github.com/samkusin/clemens-iigs-sub002/nib"
)

// firstTRKSBlock is the 512-byte file block where the first track's bits
// land when the chunks are written in canonical order: 12 header bytes +
// 68 (INFO) + 168 (TMAP) + 8 (TRKS chunk header) + 1280 (descriptor
// table) = 1536 = block 3.
const firstTRKSBlock = 3

// Serialize regenerates a complete WOZ2 file from d: header, INFO, TMAP,
// TRKS (tracks deduplicated by physical index, written in TMAP order),
// followed by any preserved WRIT/META/unknown chunks, with the header
// CRC32 recomputed over everything after the CRC field.
func Serialize(d *Disk) []byte {
	body := serializeBody(d)
	crc := crc32.ChecksumIEEE(body)

	out := make([]byte, 12+len(body))
	copy(out[0:4], magic)
	copy(out[4:8], magicTrailer[:])
	bstream.PutUint32LE(out[8:12], crc)
	copy(out[12:], body)
	return out
}

func serializeBody(d *Disk) []byte {
	var out []byte

	out = append(out, writeChunk(chunkINFO, serializeInfo(d.Info, d.Nib))...)
	out = append(out, writeChunk(chunkTMAP, d.Nib.MetaTrackMap[:])...)
	out = append(out, writeChunk(chunkTRKS, serializeTRKS(d.Nib))...)
	for _, c := range d.Extra {
		out = append(out, writeChunk(c.Type, c.Data)...)
	}
	return out
}

func writeChunk(t [4]byte, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	copy(out[0:4], t[:])
	bstream.PutUint32LE(out[4:8], uint32(len(payload)))
	copy(out[8:], payload)
	return out
}

// serializeInfo rebuilds the 60-byte INFO payload. When info carries the
// raw payload it was parsed from, uninterpreted bytes (FLUX bookkeeping,
// reserved tail) are copied through verbatim and only the interpreted
// fields are overwritten.
func serializeInfo(info Info, nd *nib.Disk) []byte {
	out := make([]byte, infoSize)
	if len(info.Raw) == infoSize {
		copy(out, info.Raw)
	}
	out[0] = info.Version
	out[1] = byte(info.DiskType)
	out[2] = boolByte(info.IsWriteProtected)
	out[3] = boolByte(info.IsSynchronized)
	out[4] = boolByte(info.IsCleaned)
	copy(out[5:37], info.Creator[:])
	out[37] = sidesByte(info, nd)
	out[38] = byte(info.BootType)
	out[39] = byte(info.BitTimingNs / 125)
	out[40] = byte(info.HardwareCompatibility)
	out[41] = byte(info.HardwareCompatibility >> 8)
	out[42] = byte(info.RequiredRAMKB)
	out[43] = byte(info.RequiredRAMKB >> 8)
	out[44] = byte(info.LargestTrackBytes)
	out[45] = byte(info.LargestTrackBytes >> 8)
	return out
}

func sidesByte(info Info, nd *nib.Disk) byte {
	if info.Sides != 0 {
		return info.Sides
	}
	if nd != nil && nd.IsDoubleSided {
		return 2
	}
	return 1
}

// CRC32 computes the WOZ2 header CRC (IEEE polynomial) over a raw file's
// chunk stream, the bytes following the 12-byte header.
func CRC32(raw []byte) uint32 {
	if len(raw) < 12 {
		return 0
	}
	return crc32.ChecksumIEEE(raw[12:])
}

// VerifyCRC reports whether raw's stored CRC32 (bytes [8:12]) matches the
// CRC32 of its chunk stream.
func VerifyCRC(raw []byte) bool {
	if len(raw) < 12 {
		return false
	}
	stored := uint32(raw[8]) | uint32(raw[9])<<8 | uint32(raw[10])<<16 | uint32(raw[11])<<24
	return stored == CRC32(raw)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// serializeTRKS rebuilds the 160-entry descriptor table plus the
// concatenated 512-byte-block-aligned track payloads, visiting physical
// tracks in the order they first appear in the TMAP, deduplicated so an
// aliased quarter track does not re-emit its track. Starting blocks are
// file-absolute, so the cursor begins at the block where the canonical
// chunk layout puts the first track's bits.
func serializeTRKS(nd *nib.Disk) []byte {
	const descSize = 8
	descs := make([]byte, trksEntries*descSize)
	var payload []byte

	written := make(map[int]bool)
	blockCursor := uint16(firstTRKSBlock)
	for q := 0; q < tmapSize; q++ {
		phys := int(nd.MetaTrackMap[q])
		if phys == int(nib.UninitializedTrack) || written[phys] {
			continue
		}
		written[phys] = true
		if nd.TrackInitialized[phys] == 0 {
			continue
		}

		byteCount := nd.TrackByteCount[phys]
		blockCount := uint16((byteCount + 511) / 512)
		padded := int(blockCount) * 512
		trackBytes := make([]byte, padded)
		off := nd.TrackByteOffset[phys]
		copy(trackBytes, nd.BitsData[off:off+byteCount])
		payload = append(payload, trackBytes...)

		descOff := phys * descSize
		bstream.PutUint16LE(descs[descOff:descOff+2], blockCursor)
		bstream.PutUint16LE(descs[descOff+2:descOff+4], blockCount)
		bstream.PutUint32LE(descs[descOff+4:descOff+8], nd.TrackBitsCount[phys])

		blockCursor += blockCount
	}

	return append(descs, payload...)
}

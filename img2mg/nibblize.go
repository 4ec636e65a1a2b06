package img2mg

import (
	"github.com/samkusin/clemens-iigs-sub002/diskerr"
	"github.com/samkusin/clemens-iigs-sub002/gcr"
	"github.com/samkusin/clemens-iigs-sub002/nib"
)

// interleaveProDOS525 maps the position of a sector on a 5.25" track to the
// logical ProDOS sector stored there.
var interleaveProDOS525 = [16]int{0, 8, 1, 9, 2, 10, 3, 11, 4, 12, 5, 13, 6, 14, 7, 15}

// interleaveDOS525 is an identity placeholder for DOS 3.3 sector skew.
// Structural nibblization succeeds and decode round-trips it, but the
// on-track physical ordering is not a faithful DOS 3.3 skew.
// TODO: replace with the real DOS 3.3 reverse-interleave table once
// DOS-ordered fixture images are available to validate against.
var interleaveDOS525 = [16]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

// interleaveProDOS35 holds the per-zone ProDOS 3.5" interleave tables,
// one per sectors-per-track region.
var interleaveProDOS35 = [5][]int{
	{0, 6, 1, 7, 2, 8, 3, 9, 4, 10, 5, 11},
	{0, 6, 1, 7, 2, 8, 3, 9, 4, 10, 5},
	{0, 5, 1, 6, 2, 7, 3, 8, 4, 9},
	{0, 5, 1, 6, 2, 7, 3, 8, 4},
	{0, 4, 1, 5, 2, 6, 3, 7},
}

// format35 is the address-field format byte for 524-byte sectors (512 data
// bytes plus the 12-byte tag). 0x22 would indicate bare 512-byte sectors;
// IIgs-created images use 0x24.
const format35 = 0x24

// Nibblize converts c's sector image into a nib.Disk for diskType.
// isDoubleSided is a hint for 3.5" images whose block count is zero and
// whose data length alone cannot settle the side count; when the block
// count (or data length) identifies the geometry, that wins.
func Nibblize(c *Container, diskType nib.Type, isDoubleSided bool) (*nib.Disk, error) {
	switch diskType {
	case nib.Type525:
		return nibblize525(c)
	case nib.Type35:
		return nibblize35(c, isDoubleSided)
	default:
		return nil, diskerr.New(diskerr.InvalidImage, "nibblize: unknown disk type")
	}
}

func interleaveFor525(c *Container) ([16]int, error) {
	switch c.Format {
	case FormatProDOS, FormatRaw:
		return interleaveProDOS525, nil
	case FormatDOS:
		return interleaveDOS525, nil
	default:
		return [16]int{}, diskerr.Newf(diskerr.InvalidImage, "nibblize: unsupported 5.25\" format %d", c.Format)
	}
}

func nibblize525(c *Container) (*nib.Disk, error) {
	const sectorsPerTrack = 16
	const trackCount = 35
	const sectorSize = 256

	interleave, err := interleaveFor525(c)
	if err != nil {
		return nil, err
	}

	needed := trackCount * sectorsPerTrack * sectorSize
	if len(c.Data) < needed {
		return nil, diskerr.Newf(diskerr.InvalidImage, "nibblize: 5.25\" image too short: got %d bytes, want %d", len(c.Data), needed)
	}

	trackBytes := nib.BytesFromSectors525(sectorsPerTrack)
	d := nib.New(nib.Type525, trackBytes*trackCount)
	d.TrackCount = trackCount

	offset := uint32(0)
	qtr := 0
	for track := 0; track < trackCount; track++ {
		bitLen := uint32(trackBytes) * 8
		buf := d.BitsData[offset : offset+uint32(trackBytes)]
		w := gcr.Init(buf, bitLen)
		w.WriteByte(0xff)

		logicalBase := track * sectorsPerTrack
		for sectorIndex := 0; sectorIndex < sectorsPerTrack; sectorIndex++ {
			if sectorIndex == 0 {
				w.WriteSync(uint32(nib.Gap1Count525))
			} else {
				w.WriteSync(uint32(nib.Gap2Count525))
			}

			physicalSector := interleave[sectorIndex]
			sectorData := c.Data[(logicalBase+physicalSector)*sectorSize : (logicalBase+physicalSector)*sectorSize+sectorSize]

			writeAddrField525(w, byte(c.DOSVolume), byte(track), byte(physicalSector))

			w.WriteByte(0xd5)
			w.WriteByte(0xaa)
			w.WriteByte(0xad)
			encodeSectorPayload525(w, sectorData)
			w.WriteByte(0xde)
			w.WriteByte(0xaa)
			w.WriteByte(0xeb)
			if sectorIndex < sectorsPerTrack-1 {
				w.WriteByte(0xff)
				w.WriteByte(0xff)
				w.WriteByte(0xff)
			}

			w.WriteSync(uint32(nib.Gap3Count525))
		}

		d.TrackByteOffset[qtr] = offset
		d.TrackByteCount[qtr] = uint32(trackBytes)
		d.TrackBitsCount[qtr] = bitLen
		d.TrackInitialized[qtr] = 1
		d.MetaTrackMap[qtr] = uint8(qtr)
		for alias := qtr + 1; alias < qtr+4 && alias < nib.LimitQuarterTracks; alias++ {
			d.MetaTrackMap[alias] = nib.UninitializedTrack
		}

		offset += uint32(trackBytes)
		qtr += 4
	}

	return d, nil
}

func writeAddrField525(w *gcr.Writer, volume, track, sector byte) {
	checksum := volume ^ track ^ sector
	w.WriteByte(0xff)
	w.WriteByte(0xd5)
	w.WriteByte(0xaa)
	w.WriteByte(0x96)
	write44(w, volume)
	write44(w, track)
	write44(w, sector)
	write44(w, checksum)
	w.WriteByte(0xde)
	w.WriteByte(0xaa)
	w.WriteByte(0xff)
	w.WriteSync(4)
	w.WriteByte(0xff)
}

// write44 emits value using the 4-and-4 address-field encoding: the odd and
// even bits of value are each packed into their own byte with the
// interleaved filler bits forced to 1, so neither byte can be zero.
func write44(w *gcr.Writer, value byte) {
	w.WriteByte((value >> 1) | 0xaa)
	w.WriteByte(value | 0xaa)
}

func read44(hi, lo byte) byte {
	return ((hi << 1) | 0x01) & lo
}

func nibblize35(c *Container, isDoubleSided bool) (*nib.Disk, error) {
	blockCount := c.BlockCount
	if blockCount == 0 && len(c.Data) > 0 && len(c.Data)%512 == 0 {
		blockCount = uint32(len(c.Data) / 512)
	}

	// 400 KB (800 blocks) is the single-sided geometry, 800 KB (1600
	// blocks) the double-sided one; 280 blocks is a 5.25" image that has
	// no business on a 3.5" drive.
	switch blockCount {
	case 800:
		isDoubleSided = false
	case 1600:
		isDoubleSided = true
	case 280:
		return nil, diskerr.New(diskerr.InvalidImage, "nibblize: 280-block image is not a valid 3.5\" geometry")
	default:
		if blockCount != 0 {
			return nil, diskerr.Newf(diskerr.InvalidImage, "nibblize: unsupported 3.5\" block count %d", blockCount)
		}
	}

	totalTracks := 160
	increment := 2
	if isDoubleSided {
		increment = 1
	}

	totalSectors := 0
	for _, z := range nib.Zones35 {
		trackSpan := z.LastTrack - z.FirstTrack + 1
		if !isDoubleSided {
			trackSpan /= 2
		}
		totalSectors += trackSpan * z.SectorsPerTrack
	}
	needed := totalSectors * 512
	if len(c.Data) < needed {
		return nil, diskerr.Newf(diskerr.InvalidImage, "nibblize: 3.5\" image too short: got %d bytes, want %d", len(c.Data), needed)
	}

	sizes := make([]uint32, totalTracks)
	total := 0
	for t := 0; t < totalTracks; t += increment {
		sizes[t] = uint32(nib.BytesFromSectors35(nib.SectorsPerTrack35(t)))
		total += int(sizes[t])
	}

	d := nib.New(nib.Type35, total)
	d.IsDoubleSided = isDoubleSided
	d.TrackCount = uint32(totalTracks / increment)

	sectorSize35 := 512
	offset := uint32(0)
	for t := 0; t < totalTracks; t += increment {
		sectorCount := nib.SectorsPerTrack35(t)
		region := nib.RegionFor35(t)
		interleave := interleaveProDOS35[region]

		trackBytes := sizes[t]
		bitLen := trackBytes * 8
		buf := d.BitsData[offset : offset+trackBytes]
		w := gcr.Init(buf, bitLen)
		w.WriteByte(0xff)

		// The flat data section is addressed by realized track, so a
		// single-sided disk (which realizes every other track slot) packs
		// its sectors at half the slot density.
		realTrackIndex := (t - nib.Zones35[region].FirstTrack) / increment
		logicalBase := 0
		for _, z := range nib.Zones35[:region] {
			trackSpan := z.LastTrack - z.FirstTrack + 1
			if !isDoubleSided {
				trackSpan /= 2
			}
			logicalBase += trackSpan * z.SectorsPerTrack
		}
		logicalBase += realTrackIndex * sectorCount

		// Track slot t holds cylinder t/2, side t&1. The cylinder's bit 6
		// overflows into the side byte since the track field carries only
		// six bits.
		cylinder := t / 2
		side := byte(((t & 1) << 5) | (cylinder >> 6))
		trackField := byte(cylinder & 0x3f)

		for sectorIndex := 0; sectorIndex < sectorCount; sectorIndex++ {
			if sectorIndex == 0 {
				w.WriteSync(uint32(nib.Gap1Count35))
			} else {
				w.WriteSync(uint32(nib.Gap2Count35))
			}

			physicalSector := interleave[sectorIndex]
			dataOffset := (logicalBase + physicalSector) * sectorSize35
			sectorData := c.Data[dataOffset : dataOffset+sectorSize35]

			checksum := trackField ^ byte(physicalSector) ^ side ^ byte(format35)

			w.WriteByte(0xff)
			w.WriteByte(0xd5)
			w.WriteByte(0xaa)
			w.WriteByte(0x96)
			w.Encode6And2(trackField)
			w.Encode6And2(byte(physicalSector))
			w.Encode6And2(side)
			w.Encode6And2(byte(format35))
			w.Encode6And2(checksum)
			w.WriteByte(0xde)
			w.WriteByte(0xaa)
			w.WriteByte(0xff)
			w.WriteSync(4)
			w.WriteByte(0xff)

			w.WriteByte(0xd5)
			w.WriteByte(0xaa)
			w.WriteByte(0xad)
			w.Encode6And2(byte(physicalSector))
			encodeSectorPayload35(w, sectorData)
			w.WriteByte(0xde)
			w.WriteByte(0xaa)
			if sectorIndex < sectorCount-1 {
				w.WriteByte(0xff)
				w.WriteByte(0xff)
				w.WriteByte(0xff)
			}
		}

		d.TrackByteOffset[t] = offset
		d.TrackByteCount[t] = trackBytes
		d.TrackBitsCount[t] = bitLen
		d.TrackInitialized[t] = 1
		d.MetaTrackMap[t] = uint8(t)
		for alias := t + 1; alias < t+increment && alias < totalTracks; alias++ {
			d.MetaTrackMap[alias] = nib.UninitializedTrack
		}

		offset += trackBytes
	}

	return d, nil
}

// threeWaySums holds the three rolling checksum accumulators of the sector
// payload pipeline. Each is kept wider than a byte: an accumulator's ninth
// bit is the carry its neighbor consumes (and folds) one step later, so
// the carries must survive between steps.
type threeWaySums struct {
	c0, c1, c2 uint16
}

// rotate advances c0 one step: rotate left by one with the outgoing high
// bit wrapping into bit 0. The high bit is additionally left set so the
// following c2 accumulation sees it as a pending carry.
func (s *threeWaySums) rotate() {
	s.c0 = (s.c0 & 0xff) << 1
	if s.c0&0x100 != 0 {
		s.c0++
	}
}

// threeWayEncode runs the rolling-checksum pipeline over input, returning
// the three scratch arrays (length ceil(len(input)/3)) and the final
// accumulator state. Per input triple (d0, d1, d2): c0 rotates, then each
// accumulator absorbs one byte while consuming (and folding) the pending
// carry of the accumulator before it, and each scratch byte is the input
// XORed with the accumulator that did not just absorb it.
//
// The 524-byte 3.5" sector is the natural input; the same pipeline also
// serves 256-byte 5.25" sectors, where the final triple is short by two
// bytes rather than one.
func threeWayEncode(input []byte) (s0, s1, s2 []byte, sums threeWaySums) {
	n := (len(input) + 2) / 3
	s0 = make([]byte, n)
	s1 = make([]byte, n)
	s2 = make([]byte, n)

	idx := 0
	for i := 0; i < n; i++ {
		sums.rotate()
		d0 := input[idx]
		idx++
		sums.c2 += uint16(d0)
		if sums.c0 > 0xff {
			sums.c2++
			sums.c0 &= 0xff
		}
		s0[i] = d0 ^ byte(sums.c0)

		if idx >= len(input) {
			continue
		}
		d1 := input[idx]
		idx++
		sums.c1 += uint16(d1)
		if sums.c2 > 0xff {
			sums.c1++
			sums.c2 &= 0xff
		}
		s1[i] = d1 ^ byte(sums.c2)

		if idx >= len(input) {
			continue
		}
		d2 := input[idx]
		idx++
		sums.c0 += uint16(d2)
		if sums.c1 > 0xff {
			sums.c0++
			sums.c1 &= 0xff
		}
		s2[i] = d2 ^ byte(sums.c1)
	}
	return s0, s1, s2, sums
}

// writeThreeWayPayload encodes input through threeWayEncode and writes the
// packed GCR stream: per entry, a pack byte carrying the three scratch
// values' high two bits followed by each scratch value's low six bits,
// then the four trailing checksum bytes. The checksum pack byte carries
// the accumulators' high bits in the opposite order from the data packs
// (c2 high, c0 low).
func writeThreeWayPayload(w *gcr.Writer, input []byte) {
	s0, s1, s2, sums := threeWayEncode(input)
	n := len(s0)
	full := len(input) / 3 // triples that have all of d0,d1,d2
	for i := 0; i < n; i++ {
		hasS1 := i < full || (i == full && len(input)%3 >= 2)
		hasS2 := i < full
		pack := (s0[i] >> 6 & 0x3) << 4
		if hasS1 {
			pack |= (s1[i] >> 6 & 0x3) << 2
		}
		if hasS2 {
			pack |= s2[i] >> 6 & 0x3
		}
		w.Encode6And2(pack)
		w.Encode6And2(s0[i])
		if hasS1 {
			w.Encode6And2(s1[i])
		}
		if hasS2 {
			w.Encode6And2(s2[i])
		}
	}
	c0, c1, c2 := byte(sums.c0), byte(sums.c1), byte(sums.c2)
	pack := (c2>>6&0x3)<<4 | (c1>>6&0x3)<<2 | c0>>6&0x3
	w.Encode6And2(pack)
	w.Encode6And2(c2)
	w.Encode6And2(c1)
	w.Encode6And2(c0)
}

// encodeSectorPayload35 writes the 703-byte encoded payload for a 512-byte
// sector. The 12-byte tag prefix is zero-filled, so the pipeline runs over
// the full 524-byte sector.
func encodeSectorPayload35(w *gcr.Writer, sector []byte) {
	var buf [524]byte
	copy(buf[12:], sector)
	writeThreeWayPayload(w, buf[:])
}

// encodeSectorPayload525 writes the encoded payload for a 256-byte sector
// using the same pipeline (see threeWayEncode).
func encodeSectorPayload525(w *gcr.Writer, sector []byte) {
	writeThreeWayPayload(w, sector)
}

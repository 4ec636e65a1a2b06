package img2mg

import (
	"github.com/samkusin/clemens-iigs-sub002/diskerr"
	"github.com/samkusin/clemens-iigs-sub002/gcr"
	"github.com/samkusin/clemens-iigs-sub002/nib"
)

// Decode reverses Nibblize: for every initialized track in d, it locates
// each sector's address and data fields, verifies their checksums, and
// writes the recovered bytes to their logical position in the returned
// sector image.
func Decode(d *nib.Disk) ([]byte, error) {
	switch d.DiskType {
	case nib.Type525:
		return decode525(d)
	case nib.Type35:
		return decode35(d)
	default:
		return nil, diskerr.New(diskerr.InvalidImage, "decode: unknown disk type")
	}
}

var addrMarker = [3]byte{0xd5, 0xaa, 0x96}
var dataMarker = [3]byte{0xd5, 0xaa, 0xad}

// findMarker scans every bit alignment of r's stream for marker, starting
// at the current cursor, and leaves the cursor immediately after marker on
// success. Nibble streams written through the IWM are not byte-aligned to
// their gap boundaries, so a byte-stepped scan would miss genuine markers.
func findMarker(r *gcr.Reader, marker [3]byte) bool {
	if r.BitLen() == 0 {
		return false
	}
	start := r.BitIndex()
	for i := uint32(0); i < r.BitLen(); i++ {
		r.SetBitIndex((start + i) % r.BitLen())
		b := r.PeekBytes(3)
		if b[0] == marker[0] && b[1] == marker[1] && b[2] == marker[2] {
			r.Read(8)
			r.Read(8)
			r.Read(8)
			return true
		}
	}
	return false
}

func readGCR6(r *gcr.Reader) (byte, error) {
	v, ok := gcr.Decode6And2(r.ReadByte())
	if !ok {
		return 0, diskerr.New(diskerr.InvalidImage, "decode: invalid GCR nibble")
	}
	return v, nil
}

func decode525(d *nib.Disk) ([]byte, error) {
	const sectorsPerTrack = 16
	const trackCount = 35
	const sectorSize = 256

	out := make([]byte, trackCount*sectorsPerTrack*sectorSize)

	for track := 0; track < trackCount; track++ {
		qtr := track * 4
		bits, bitCount, ok := d.GetTrackBits(qtr)
		if !ok {
			continue
		}
		r := gcr.NewReader(bits, bitCount)
		logicalBase := track * sectorsPerTrack

		for s := 0; s < sectorsPerTrack; s++ {
			if !findMarker(r, addrMarker) {
				return nil, diskerr.Newf(diskerr.InvalidImage, "decode: address field not found on track %d sector %d", track, s)
			}
			volHi, volLo := r.ReadByte(), r.ReadByte()
			trkHi, trkLo := r.ReadByte(), r.ReadByte()
			secHi, secLo := r.ReadByte(), r.ReadByte()
			chkHi, chkLo := r.ReadByte(), r.ReadByte()
			volume := read44(volHi, volLo)
			trackField := read44(trkHi, trkLo)
			sectorField := read44(secHi, secLo)
			checksum := read44(chkHi, chkLo)
			if volume^trackField^sectorField != checksum {
				return nil, diskerr.Newf(diskerr.InvalidImage, "decode: address checksum mismatch on track %d", track)
			}

			if !findMarker(r, dataMarker) {
				return nil, diskerr.Newf(diskerr.InvalidImage, "decode: data field not found on track %d sector %d", track, s)
			}
			payload, err := readThreeWayPayload(r, sectorSize)
			if err != nil {
				return nil, err
			}
			dst := (logicalBase + int(sectorField)) * sectorSize
			if dst+sectorSize > len(out) {
				return nil, diskerr.New(diskerr.InvalidImage, "decode: sector address out of range")
			}
			copy(out[dst:dst+sectorSize], payload)
		}
	}
	return out, nil
}

func decode35(d *nib.Disk) ([]byte, error) {
	const sectorSize = 512
	totalTracks := 160
	increment := 2
	if d.IsDoubleSided {
		increment = 1
	}

	total := 0
	for _, z := range nib.Zones35 {
		trackSpan := z.LastTrack - z.FirstTrack + 1
		if !d.IsDoubleSided {
			trackSpan /= 2
		}
		total += trackSpan * z.SectorsPerTrack
	}
	out := make([]byte, total*sectorSize)

	for t := 0; t < totalTracks; t += increment {
		bits, bitCount, ok := d.GetTrackBits(t)
		if !ok {
			continue
		}
		sectorCount := nib.SectorsPerTrack35(t)
		region := nib.RegionFor35(t)

		realTrackIndex := (t - nib.Zones35[region].FirstTrack) / increment
		logicalBase := 0
		for _, z := range nib.Zones35[:region] {
			trackSpan := z.LastTrack - z.FirstTrack + 1
			if !d.IsDoubleSided {
				trackSpan /= 2
			}
			logicalBase += trackSpan * z.SectorsPerTrack
		}
		logicalBase += realTrackIndex * sectorCount

		r := gcr.NewReader(bits, bitCount)
		for s := 0; s < sectorCount; s++ {
			if !findMarker(r, addrMarker) {
				return nil, diskerr.Newf(diskerr.InvalidImage, "decode: address field not found on track %d sector %d", t, s)
			}
			trackField, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			sectorField, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			side, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			format, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			checksum, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			if (trackField^sectorField^side^format)&0x3f != checksum {
				return nil, diskerr.Newf(diskerr.InvalidImage, "decode: address checksum mismatch on track %d", t)
			}

			if !findMarker(r, dataMarker) {
				return nil, diskerr.Newf(diskerr.InvalidImage, "decode: data field not found on track %d sector %d", t, s)
			}
			decodedSector, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			payload524, err := readThreeWayPayload(r, 524)
			if err != nil {
				return nil, err
			}
			payload := payload524[12:] // discard the zero tag prefix

			dst := (logicalBase + int(decodedSector)) * sectorSize
			if dst+sectorSize > len(out) {
				return nil, diskerr.New(diskerr.InvalidImage, "decode: sector address out of range")
			}
			copy(out[dst:dst+sectorSize], payload)
		}
	}
	return out, nil
}

// readThreeWayPayload is threeWayEncode's inverse: it reads the packed GCR
// stream produced by writeThreeWayPayload, recovers outputLen original
// bytes, and verifies the four trailing checksum bytes. The carry folds
// run before each XOR here (instead of interleaved with the additions, as
// on the encode side) because the data byte isn't known until after the
// XOR; the resulting accumulator states are identical.
func readThreeWayPayload(r *gcr.Reader, outputLen int) ([]byte, error) {
	n := (outputLen + 2) / 3
	full := outputLen / 3
	remainder := outputLen % 3

	out := make([]byte, outputLen)
	var sums threeWaySums
	idx := 0

	for i := 0; i < n; i++ {
		hasS1 := i < full || (i == full && remainder >= 2)
		hasS2 := i < full

		pack, err := readGCR6(r)
		if err != nil {
			return nil, err
		}
		s0low, err := readGCR6(r)
		if err != nil {
			return nil, err
		}
		s0full := ((pack>>4)&0x3)<<6 | s0low

		var s1full, s2full byte
		if hasS1 {
			s1low, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			s1full = ((pack>>2)&0x3)<<6 | s1low
		}
		if hasS2 {
			s2low, err := readGCR6(r)
			if err != nil {
				return nil, err
			}
			s2full = (pack&0x3)<<6 | s2low
		}

		sums.rotate()
		if sums.c0 > 0xff {
			sums.c2++
			sums.c0 &= 0xff
		}
		d0 := s0full ^ byte(sums.c0)
		out[idx] = d0
		idx++
		sums.c2 += uint16(d0)

		if hasS1 {
			if sums.c2 > 0xff {
				sums.c1++
				sums.c2 &= 0xff
			}
			d1 := s1full ^ byte(sums.c2)
			out[idx] = d1
			idx++
			sums.c1 += uint16(d1)
		}
		if hasS2 {
			if sums.c1 > 0xff {
				sums.c0++
				sums.c1 &= 0xff
			}
			d2 := s2full ^ byte(sums.c1)
			out[idx] = d2
			idx++
			sums.c0 += uint16(d2)
		}
	}

	pack, err := readGCR6(r)
	if err != nil {
		return nil, err
	}
	c2low, err := readGCR6(r)
	if err != nil {
		return nil, err
	}
	c1low, err := readGCR6(r)
	if err != nil {
		return nil, err
	}
	c0low, err := readGCR6(r)
	if err != nil {
		return nil, err
	}
	c2full := ((pack>>4)&0x3)<<6 | c2low
	c1full := ((pack>>2)&0x3)<<6 | c1low
	c0full := (pack&0x3)<<6 | c0low
	if c0full != byte(sums.c0) || c1full != byte(sums.c1) || c2full != byte(sums.c2) {
		return nil, diskerr.New(diskerr.InvalidImage, "decode: sector payload checksum mismatch")
	}
	return out, nil
}

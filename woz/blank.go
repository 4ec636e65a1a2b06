package woz

import "github.com/samkusin/clemens-iigs-sub002/nib"

// creatorTag is the 32-byte space-padded creator string written into
// synthesized INFO chunks.
var creatorTag = func() [32]byte {
	var c [32]byte
	copy(c[:], "clemdisk")
	for i := len("clemdisk"); i < len(c); i++ {
		c[i] = ' '
	}
	return c
}()

// NewBlank synthesizes an unformatted WOZ2 disk: an INFO chunk with default
// bit timing for diskType and a TMAP with every quarter track
// uninitialized. The caller nibblizes real content into d.Nib afterward;
// this only establishes the header and an empty track map.
func NewBlank(diskType nib.Type, doubleSided bool) *Disk {
	nd := nib.New(diskType, 0)
	nd.IsDoubleSided = doubleSided

	info := Info{
		Version:        maxVersion,
		IsSynchronized: false,
		IsCleaned:      true,
		Creator:        creatorTag,
		Sides:          1,
		RequiredRAMKB:  128,
	}
	switch diskType {
	case nib.Type525:
		info.DiskType = DiskType525
		info.BitTimingNs = nib.BitTimingNs525
	case nib.Type35:
		info.DiskType = DiskType35
		info.BitTimingNs = nib.BitTimingNs35
		if doubleSided {
			info.Sides = 2
		}
	}

	return &Disk{Info: info, Nib: nd}
}

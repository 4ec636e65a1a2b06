package woz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samkusin/clemens-iigs-sub002/nib"
)

func buildSample525() *Disk {
	nd := nib.InitBlank525(nib.DefaultTrackBitLength525)
	return &Disk{
		Info: Info{
			Version:       2,
			DiskType:      DiskType525,
			Creator:       creatorTag,
			Sides:         1,
			BitTimingNs:   nib.BitTimingNs525,
			RequiredRAMKB: 128,
		},
		Nib: nd,
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	d := buildSample525()
	raw := Serialize(d)

	require.True(t, VerifyCRC(raw), "serialized file must carry a valid CRC32")

	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, d.Info.Version, parsed.Info.Version)
	require.Equal(t, d.Info.DiskType, parsed.Info.DiskType)
	require.Equal(t, d.Info.Sides, parsed.Info.Sides)
	require.Equal(t, d.Info.BootType, parsed.Info.BootType)
	require.Equal(t, d.Info.BitTimingNs, parsed.Info.BitTimingNs)
	require.Equal(t, d.Nib.MetaTrackMap, parsed.Nib.MetaTrackMap)
	require.Equal(t, d.Nib.TrackCount, parsed.Nib.TrackCount)
	for i := range d.Nib.MetaTrackMap {
		if d.Nib.MetaTrackMap[i] == nib.UninitializedTrack {
			continue
		}
		wantBits, wantCount, ok := d.Nib.GetTrackBits(i)
		require.True(t, ok)
		gotBits, gotCount, ok := parsed.Nib.GetTrackBits(i)
		require.True(t, ok)
		require.Equal(t, wantCount, gotCount)
		// Parsed buffers are padded out to whole 512-byte blocks.
		require.Equal(t, wantBits, gotBits[:len(wantBits)])
	}
}

// A parse followed by a serialize of an unmodified disk must reproduce
// the file byte for byte, CRC included.
func TestParseSerializeIsByteStable(t *testing.T) {
	d := buildSample525()
	raw1 := Serialize(d)
	parsed, err := Parse(raw1)
	require.NoError(t, err)
	raw2 := Serialize(parsed)
	require.Equal(t, raw1, raw2)
}

func TestSerializePreservesExtraChunks(t *testing.T) {
	d := buildSample525()
	meta := []byte("language=English\tside=Disk 1\n")
	d.Extra = append(d.Extra, Chunk{Type: chunkType("META"), Data: meta})

	raw := Serialize(d)
	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Extra, 1)
	require.Equal(t, chunkType("META"), parsed.Extra[0].Type)
	require.Equal(t, meta, parsed.Extra[0].Data)

	require.Equal(t, raw, Serialize(parsed))
}

func TestParseSetsDoubleSidedFromInfo(t *testing.T) {
	nd := nib.InitBlank35(true)
	d := &Disk{
		Info: Info{
			Version:     2,
			DiskType:    DiskType35,
			Creator:     creatorTag,
			Sides:       2,
			BitTimingNs: nib.BitTimingNs35,
		},
		Nib: nd,
	}
	parsed, err := Parse(Serialize(d))
	require.NoError(t, err)
	require.True(t, parsed.Nib.IsDoubleSided)
	require.Equal(t, uint8(2), parsed.Info.Sides)
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := []byte("NOTW2xxxxxxxxxxxxxxx")
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	d := buildSample525()
	d.Info.Version = maxVersion + 1
	raw := Serialize(d)
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseRequiresINFOFirst(t *testing.T) {
	// TMAP chunk with no preceding INFO.
	raw := make([]byte, 0)
	body := writeChunk(chunkTMAP, make([]byte, tmapSize))
	raw = append(raw, magic...)
	raw = append(raw, magicTrailer[:]...)
	var crcBuf [4]byte
	raw = append(raw, crcBuf[:]...)
	raw = append(raw, body...)

	_, err := Parse(raw)
	require.Error(t, err)
}

func TestNewBlankProducesEmptyTMAP(t *testing.T) {
	d := NewBlank(nib.Type525, false)
	for _, v := range d.Nib.MetaTrackMap {
		require.Equal(t, uint8(nib.UninitializedTrack), v)
	}
}

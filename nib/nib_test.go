package nib

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitBlank525Layout(t *testing.T) {
	d := InitBlank525(DefaultTrackBitLength525)
	require.Equal(t, uint32(35), d.TrackCount)

	for q := 0; q < LimitQuarterTracks; q += 4 {
		track := q / 4
		if track >= 35 {
			require.Equal(t, uint8(UninitializedTrack), d.MetaTrackMap[q])
			continue
		}
		require.Equal(t, uint8(q), d.MetaTrackMap[q])
		bits, bitCount, ok := d.GetTrackBits(q)
		require.True(t, ok)
		require.EqualValues(t, DefaultTrackBitLength525, bitCount)
		require.Len(t, bits, int((DefaultTrackBitLength525+7)/8))
	}

	// Intermediate quarter tracks (not multiples of 4) are uninitialized.
	for q := 1; q < 4; q++ {
		_, _, ok := d.GetTrackBits(q)
		require.False(t, ok)
	}
}

// TestMetaTrackMapInvariant: every mapped quarter track must resolve to
// an initialized physical track with a nonzero bit count.
func TestMetaTrackMapInvariant(t *testing.T) {
	d := InitBlank35(true)
	for i := 0; i < LimitQuarterTracks; i++ {
		phys := d.MetaTrackMap[i]
		if phys == UninitializedTrack {
			continue
		}
		require.Equal(t, uint8(1), d.TrackInitialized[phys])
		require.Greater(t, d.TrackBitsCount[phys], uint32(0))
	}
}

func TestInitBlank35DoubleSidedHas160RealTracks(t *testing.T) {
	d := InitBlank35(true)
	count := 0
	for i := 0; i < LimitQuarterTracks; i++ {
		if d.MetaTrackMap[i] != UninitializedTrack {
			count++
		}
	}
	require.Equal(t, 160, count)
}

func TestInitBlank35SingleSidedAliasesEveryOtherTrack(t *testing.T) {
	d := InitBlank35(false)
	for i := 0; i < 160; i += 2 {
		require.Equal(t, uint8(i), d.MetaTrackMap[i])
	}
	for i := 1; i < 160; i += 2 {
		require.Equal(t, uint8(UninitializedTrack), d.MetaTrackMap[i])
	}
}

func TestZones35Coverage(t *testing.T) {
	require.Equal(t, 12, SectorsPerTrack35(0))
	require.Equal(t, 12, SectorsPerTrack35(31))
	require.Equal(t, 11, SectorsPerTrack35(32))
	require.Equal(t, 8, SectorsPerTrack35(159))
}

func TestTrackByteOffsetsDoNotOverlap(t *testing.T) {
	d := InitBlank35(true)
	type span struct{ start, end uint32 }
	var spans []span
	for i := 0; i < LimitQuarterTracks; i++ {
		if d.TrackInitialized[i] == 0 {
			continue
		}
		start := d.TrackByteOffset[i]
		end := start + d.TrackByteCount[i]
		require.LessOrEqual(t, int(end), len(d.BitsData))
		spans = append(spans, span{start, end})
	}
	for i := range spans {
		for j := range spans {
			if i == j {
				continue
			}
			overlap := spans[i].start < spans[j].end && spans[j].start < spans[i].end
			require.False(t, overlap, "track spans overlap: %+v %+v", spans[i], spans[j])
		}
	}
}

func TestGetTrackBitsRejectsOutOfRange(t *testing.T) {
	d := InitBlank525(DefaultTrackBitLength525)
	_, _, ok := d.GetTrackBits(-1)
	require.False(t, ok)
	_, _, ok = d.GetTrackBits(LimitQuarterTracks)
	require.False(t, ok)
}

package img2mg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samkusin/clemens-iigs-sub002/gcr"
	"github.com/samkusin/clemens-iigs-sub002/nib"
)

func fillPattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}
	return data
}

func TestParseHeaderRoundTripsFields(t *testing.T) {
	data := fillPattern(35 * 16 * 256)
	c := GenerateHeader(FormatProDOS, data)
	c.CreatorData = []byte("hello")
	c.Comment = []byte("a test comment")
	raw := WriteHeader(c)

	parsed, err := ParseHeader(raw)
	require.NoError(t, err)
	require.Equal(t, FormatProDOS, parsed.Format)
	require.Equal(t, data, parsed.Data)
	require.Equal(t, []byte("hello"), parsed.CreatorData)
	require.Equal(t, []byte("a test comment"), parsed.Comment)
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	raw := make([]byte, 64)
	copy(raw[0:4], "XXXX")
	_, err := ParseHeader(raw)
	require.Error(t, err)
}

func TestParseHeaderZeroLengthInfersFromBlockCount(t *testing.T) {
	raw := make([]byte, 64+512*10)
	copy(raw[0:4], "2IMG")
	raw[8] = 0x40 // header size LE
	// format = ProDOS
	raw[12] = 1
	// block count = 10
	raw[20] = 10
	// data offset = 64
	raw[24] = 64
	// data length left as 0
	parsed, err := ParseHeader(raw)
	require.NoError(t, err)
	require.EqualValues(t, 10*512, parsed.ImageDataLength)
}

func TestIsDOS525(t *testing.T) {
	c := &Container{BlockCount: 0, Data: make([]byte, 140*1024)}
	require.True(t, c.IsDOS525())
	c2 := &Container{BlockCount: 280, Data: make([]byte, 140*1024)}
	require.False(t, c2.IsDOS525())
}

// A ProDOS 5.25" image nibblizes into 35 initialized tracks at
// quarter-track indices 0, 4, ..., 136, and decodes back byte-identical.
func TestNibblizeDecode525RoundTrip(t *testing.T) {
	data := fillPattern(35 * 16 * 256)
	c := GenerateHeader(FormatProDOS, data)

	d, err := Nibblize(c, nib.Type525, false)
	require.NoError(t, err)
	require.EqualValues(t, 35, d.TrackCount)
	for track := 0; track < 35; track++ {
		qtr := track * 4
		require.Equal(t, uint8(1), d.TrackInitialized[qtr])
		require.Equal(t, uint8(qtr), d.MetaTrackMap[qtr])
		require.Greater(t, d.TrackBitsCount[qtr], uint32(0))
	}

	out, err := Decode(d)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestNibblizeDecodeDOS525RoundTrip(t *testing.T) {
	data := fillPattern(35 * 16 * 256)
	c := GenerateHeader(FormatDOS, data)
	c.DOSVolume = 254

	d, err := Nibblize(c, nib.Type525, false)
	require.NoError(t, err)

	out, err := Decode(d)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

// An 800-block (400 KB) image is the single-sided 3.5" geometry.
func TestNibblizeDecode35SingleSidedRoundTrip(t *testing.T) {
	data := fillPattern(800 * 512)
	c := GenerateHeader(FormatProDOS, data)

	d, err := Nibblize(c, nib.Type35, false)
	require.NoError(t, err)
	require.False(t, d.IsDoubleSided)

	out, err := Decode(d)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

// A 1600-block (800 KB) image is the double-sided 3.5" geometry; the side
// count comes from the block count even when the caller hints otherwise.
func TestNibblizeDecode35DoubleSidedRoundTrip(t *testing.T) {
	data := fillPattern(1600 * 512)
	c := GenerateHeader(FormatProDOS, data)

	d, err := Nibblize(c, nib.Type35, false)
	require.NoError(t, err)
	require.True(t, d.IsDoubleSided)

	out, err := Decode(d)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestDecodeDetectsCorruptedTrack(t *testing.T) {
	data := fillPattern(35 * 16 * 256)
	c := GenerateHeader(FormatProDOS, data)
	d, err := Nibblize(c, nib.Type525, false)
	require.NoError(t, err)

	// Stomp a stretch of track 3's bit buffer: whichever field the damage
	// lands in, decode must fail rather than return silently wrong bytes.
	off := d.TrackByteOffset[12]
	for i := uint32(200); i < 600; i++ {
		d.BitsData[off+i] = 0x00
	}
	_, err = Decode(d)
	require.Error(t, err)
}

func TestNibblizeRejectsShortImage(t *testing.T) {
	c := GenerateHeader(FormatProDOS, make([]byte, 100))
	_, err := Nibblize(c, nib.Type525, false)
	require.Error(t, err)
}

func TestNibblizeRejects280BlockImageAs35(t *testing.T) {
	c := &Container{Format: FormatProDOS, BlockCount: 280, Data: fillPattern(280 * 512)}
	_, err := Nibblize(c, nib.Type35, false)
	require.Error(t, err)
}

// The rolling-checksum payload pipeline must invert exactly, including
// the carry interplay between the three accumulators, for both sector
// widths.
func TestThreeWayPipelineRoundTrip(t *testing.T) {
	for _, n := range []int{256, 524} {
		input := make([]byte, n)
		for i := range input {
			input[i] = byte(i*211 + 93)
		}
		// 0xFF runs force the accumulators through their carry paths.
		for i := 32; i < 64 && i < n; i++ {
			input[i] = 0xff
		}

		trackBytes := make([]byte, 2048)
		w := gcr.Init(trackBytes, uint32(len(trackBytes))*8)
		writeThreeWayPayload(w, input)

		r := gcr.NewReader(trackBytes, uint32(len(trackBytes))*8)
		out, err := readThreeWayPayload(r, n)
		require.NoError(t, err)
		require.Equal(t, input, out)
	}
}

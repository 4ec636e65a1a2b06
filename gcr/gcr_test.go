package gcr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTable6And2Bijection checks the table is a bijection on [0,64) and
// that every entry has its high bit set and at most one pair of adjacent
// zero bits, the property the drive's read circuitry depends on.
func TestTable6And2Bijection(t *testing.T) {
	seen := make(map[byte]bool, 64)
	for _, v := range Table6And2 {
		require.False(t, seen[v], "duplicate nibble 0x%02x", v)
		seen[v] = true
	}
	require.Len(t, seen, 64)

	for i, v := range Table6And2 {
		require.NotZero(t, v&0x80, "table[%d]=0x%02x has its high bit clear", i, v)
		zeroPairs := 0
		for bit := 0; bit < 7; bit++ {
			if v&(1<<bit) == 0 && v&(1<<(bit+1)) == 0 {
				zeroPairs++
			}
		}
		if zeroPairs > 1 {
			t.Fatalf("table[%d]=0x%02x has %d adjacent zero-bit pairs", i, v, zeroPairs)
		}
	}
}

func TestEncodeDecode6And2RoundTrip(t *testing.T) {
	for v := 0; v < 64; v++ {
		nibble := Table6And2[v]
		got, ok := Decode6And2(nibble)
		require.True(t, ok)
		require.Equal(t, byte(v), got)
	}
}

func TestDecode6And2RejectsInvalidNibble(t *testing.T) {
	_, ok := Decode6And2(0x00)
	require.False(t, ok)
}

func TestWriterWriteByteThenReaderReadByte(t *testing.T) {
	buf := make([]byte, 4)
	w := Init(buf, 32)
	w.WriteByte(0xAB)
	w.WriteByte(0xCD)

	r := NewReader(buf, 32)
	require.Equal(t, byte(0xAB), r.ReadByte())
	require.Equal(t, byte(0xCD), r.ReadByte())
}

func TestWriteSyncProducesTenBitPattern(t *testing.T) {
	// "write(0xFF, 10, N)": the low 8 bits are the 0xFF value, the high 2
	// bits are zero, so two consecutive sync bytes read back at bit
	// granularity as 0xFF followed by two zero bits, then the next 0xFF.
	buf := make([]byte, 4)
	w := Init(buf, 20)
	w.WriteSync(2)

	r := NewReader(buf, 20)
	require.Equal(t, byte(0xff), r.Read(8))
	require.Equal(t, byte(0), r.Read(2))
	require.Equal(t, byte(0xff), r.Read(8))
	require.Equal(t, byte(0), r.Read(2))
}

func TestWriterWrapsAtBitLen(t *testing.T) {
	buf := make([]byte, 1)
	w := Init(buf, 8)
	w.Write(0x0f, 4, 1) // bits 0-3
	w.Write(0x03, 4, 1) // bits 4-7
	require.Equal(t, byte(0xf3), buf[0])

	// One more nibble wraps the cursor back to bit 0, overwriting it.
	w.Write(0x0a, 4, 1)
	require.Equal(t, byte(0xa3), buf[0])
}

func TestPeekBytesDoesNotAdvanceCursor(t *testing.T) {
	buf := []byte{0xd5, 0xaa, 0x96, 0x00}
	r := NewReader(buf, 32)
	peeked := r.PeekBytes(3)
	require.Equal(t, []byte{0xd5, 0xaa, 0x96}, peeked)
	require.Equal(t, uint32(0), r.BitIndex())
	require.Equal(t, byte(0xd5), r.ReadByte())
}

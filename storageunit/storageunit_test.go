package storageunit

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samkusin/clemens-iigs-sub002/img2mg"
)

// fakeFileIO is an in-memory FileIO for tests, avoiding any real disk I/O.
type fakeFileIO struct {
	files    map[string][]byte
	writeErr error
}

func newFakeFileIO() *fakeFileIO { return &fakeFileIO{files: map[string][]byte{}} }

func (f *fakeFileIO) ReadFile(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, errNotFound(path)
	}
	return append([]byte{}, data...), nil
}

func (f *fakeFileIO) WriteFile(path string, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.files[path] = append([]byte{}, data...)
	return nil
}

type errNotFound string

func (e errNotFound) Error() string { return "no such file: " + string(e) }

func sampleProDOS525() []byte {
	data := make([]byte, 35*16*256)
	for i := range data {
		data[i] = byte(i * 7)
	}
	c := img2mg.GenerateHeader(img2mg.FormatProDOS, data)
	return img2mg.WriteHeader(c)
}

func sampleProDOS35() []byte {
	data := make([]byte, 1600*512)
	c := img2mg.GenerateHeader(img2mg.FormatProDOS, data)
	return img2mg.WriteHeader(c)
}

func TestInsertEjectSavesOnEject(t *testing.T) {
	io := newFakeFileIO()
	io.files["master.2mg"] = sampleProDOS525()

	u := NewWithFileIO(io)
	require.NoError(t, u.Insert(Drive525D1, "master.2mg"))
	require.True(t, u.Status(Drive525D1).IsMounted)
	require.NotNil(t, u.NibbleDisk(Drive525D1))

	require.NoError(t, u.Eject(Drive525D1, false))
	require.False(t, u.Status(Drive525D1).IsMounted)

	out, ok := io.files["master.2mg"]
	require.True(t, ok)
	back, err := img2mg.ParseHeader(out)
	require.NoError(t, err)
	require.Len(t, back.Data, 35*16*256)
}

func TestInsertMissingFileFails(t *testing.T) {
	u := NewWithFileIO(newFakeFileIO())
	err := u.Insert(Drive525D1, "missing.2mg")
	require.Error(t, err)
	require.False(t, u.Status(Drive525D1).IsMounted)
}

func TestInsertRejectsGeometryMismatch(t *testing.T) {
	io := newFakeFileIO()
	io.files["master.2mg"] = sampleProDOS525()

	u := NewWithFileIO(io)
	err := u.Insert(Drive35D1, "master.2mg")
	require.Error(t, err)
	require.False(t, u.Status(Drive35D1).IsMounted)
}

func TestDoubleMountImplicitEject(t *testing.T) {
	io := newFakeFileIO()
	io.files["a.2mg"] = sampleProDOS525()
	io.files["b.2mg"] = sampleProDOS525()

	u := NewWithFileIO(io)
	require.NoError(t, u.Insert(Drive525D1, "a.2mg"))
	require.NoError(t, u.Insert(Drive525D1, "b.2mg"))
	require.Equal(t, "b.2mg", u.Status(Drive525D1).AssetPath)
}

// When the implicit save of the prior mount fails, the new insert is
// rejected and the prior mount stays in the drive.
func TestDoubleMountKeepsPriorMountOnFailedSave(t *testing.T) {
	io := newFakeFileIO()
	io.files["a.2mg"] = sampleProDOS525()
	io.files["b.2mg"] = sampleProDOS525()

	u := NewWithFileIO(io)
	require.NoError(t, u.Insert(Drive525D1, "a.2mg"))

	io.writeErr = errNotFound("disk full")
	err := u.Insert(Drive525D1, "b.2mg")
	require.Error(t, err)
	require.Equal(t, "a.2mg", u.Status(Drive525D1).AssetPath)
	require.True(t, u.Status(Drive525D1).IsMounted)
}

func TestAsync35Eject(t *testing.T) {
	io := newFakeFileIO()
	io.files["disk.2mg"] = sampleProDOS35()

	u := NewWithFileIO(io)
	require.NoError(t, u.Insert(Drive35D1, "disk.2mg"))

	require.NoError(t, u.Eject(Drive35D1, true))
	require.True(t, u.Status(Drive35D1).IsEjecting)

	var motor [DriveCount]bool
	motor[Drive35D1] = false
	u.Update(motor)
	require.False(t, u.Status(Drive35D1).IsEjecting)
	require.False(t, u.Status(Drive35D1).IsMounted)
}

func TestInsertRejectedWhileEjecting(t *testing.T) {
	io := newFakeFileIO()
	io.files["disk.2mg"] = sampleProDOS35()
	u := NewWithFileIO(io)
	require.NoError(t, u.Insert(Drive35D1, "disk.2mg"))
	require.NoError(t, u.Eject(Drive35D1, true))
	require.Error(t, u.Insert(Drive35D1, "disk.2mg"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	io := newFakeFileIO()
	io.files["a.2mg"] = sampleProDOS525()
	u := NewWithFileIO(io)
	require.NoError(t, u.Insert(Drive525D1, "a.2mg"))

	var buf bytes.Buffer
	require.NoError(t, u.Serialize(&buf))

	u2 := NewWithFileIO(io)
	require.NoError(t, u2.Unserialize(&buf))
	require.Equal(t, "a.2mg", u2.Status(Drive525D1).AssetPath)
}

func TestSmartPortAssignAndSave(t *testing.T) {
	io := newFakeFileIO()
	io.files["hdd.po"] = make([]byte, 512*2000)
	u := NewWithFileIO(io)
	require.NoError(t, u.AssignSmartPort(0, "hdd.po"))
	require.NotNil(t, u.SmartPort(0))

	payload := make([]byte, 512)
	payload[0] = 0xAB
	require.NoError(t, u.SmartPort(0).WriteBlock(3, payload))
	require.NoError(t, u.SaveSmartPort(0))

	out := io.files["hdd.po"]
	require.Equal(t, byte(0xAB), out[3*512])
}

func TestSnapshotCarriesSmartPortImage(t *testing.T) {
	io := newFakeFileIO()
	io.files["hdd.po"] = make([]byte, 512*100)
	u := NewWithFileIO(io)
	require.NoError(t, u.AssignSmartPort(1, "hdd.po"))

	payload := make([]byte, 512)
	payload[7] = 0x5A
	require.NoError(t, u.SmartPort(1).WriteBlock(9, payload))

	var buf bytes.Buffer
	require.NoError(t, u.Serialize(&buf))

	u2 := NewWithFileIO(newFakeFileIO())
	require.NoError(t, u2.Unserialize(&buf))
	require.NotNil(t, u2.SmartPort(1))

	block := make([]byte, 512)
	require.NoError(t, u2.SmartPort(1).ReadBlock(9, block))
	require.Equal(t, byte(0x5A), block[7])
}

// Package storageunit implements the storage unit: the fleet of assets
// mounted across the four floppy drives and the SmartPort hard-disk slots,
// their mount/eject/save lifecycle, per-drive status reporting, and
// machine-snapshot participation.
package storageunit

import (
	"os"

	"github.com/pkg/errors"

	"github.com/samkusin/clemens-iigs-sub002/diskasset"
	"github.com/samkusin/clemens-iigs-sub002/diskerr"
	"github.com/samkusin/clemens-iigs-sub002/nib"
	"github.com/samkusin/clemens-iigs-sub002/smartport"
)

// DriveID names the four floppy drive slots.
type DriveID int

const (
	Drive525D1 DriveID = iota
	Drive525D2
	Drive35D1
	Drive35D2
	// DriveCount is the number of floppy drive slots.
	DriveCount
)

// DriveName returns the display name the UI/CLI uses for a drive.
func DriveName(d DriveID) string {
	switch d {
	case Drive525D1:
		return "Slot 6 Disk 1 (5.25\")"
	case Drive525D2:
		return "Slot 6 Disk 2 (5.25\")"
	case Drive35D1:
		return "Slot 5 Disk 1 (3.5\")"
	case Drive35D2:
		return "Slot 5 Disk 2 (3.5\")"
	default:
		return "Unknown Drive"
	}
}

func (d DriveID) is35() bool { return d == Drive35D1 || d == Drive35D2 }

// driveAcceptsGeometry reports whether an image of the given geometry can
// sit in drive d.
func driveAcceptsGeometry(d DriveID, t diskasset.DiskType) bool {
	if d.is35() {
		return t == diskasset.DiskType35
	}
	return t == diskasset.DiskType525
}

// DriveStatus surfaces a mounted drive's state to the UI.
type DriveStatus struct {
	AssetPath        string
	IsMounted        bool
	IsWriteProtected bool
	IsSpinning       bool
	IsEjecting       bool
	IsSaved          bool
	Error            diskerr.Kind
}

// scratchBufferSize sizes the unit's owned decode scratch buffer: large
// enough for the biggest floppy decode with room to spare.
const scratchBufferSize = 4 << 20

// FileIO abstracts the host filesystem so the unit can be driven with an
// in-memory fake under test, the way a caller-owned command queue would
// sit in front of it in the embedding emulator.
type FileIO interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// osFileIO is the default FileIO backed by the real filesystem.
type osFileIO struct{}

func (osFileIO) ReadFile(path string) ([]byte, error)     { return os.ReadFile(path) }
func (osFileIO) WriteFile(path string, data []byte) error { return os.WriteFile(path, data, 0o644) }

// drive holds one floppy slot's mounted state.
type drive struct {
	asset  *diskasset.Asset
	nib    *nib.Disk
	status DriveStatus
}

// smartSlot holds one SmartPort slot's mounted state.
type smartSlot struct {
	disk *smartport.ProDOSDisk
	path string
}

// Unit is the storage unit: drives, SmartPort slots, and the shared
// scratch decode buffer.
type Unit struct {
	drives  [DriveCount]drive
	smart   [smartport.MaxUnits]smartSlot
	scratch []byte
	io      FileIO
}

// New allocates a Unit with all drives unmounted and an empty SmartPort
// fleet.
func New() *Unit {
	return &Unit{scratch: make([]byte, scratchBufferSize), io: osFileIO{}}
}

// NewWithFileIO is New, but with a caller-supplied FileIO (for tests).
func NewWithFileIO(io FileIO) *Unit {
	return &Unit{scratch: make([]byte, scratchBufferSize), io: io}
}

// Status returns drive's current status snapshot.
func (u *Unit) Status(d DriveID) DriveStatus {
	return u.drives[d].status
}

// NibbleDisk returns the nib.Disk currently backing drive, or nil if
// unmounted. The IWM borrows this reference for the mount's duration; the
// unit retains ownership.
func (u *Unit) NibbleDisk(d DriveID) *nib.Disk {
	return u.drives[d].nib
}

var (
	// ErrMountFailed is returned by Insert on I/O error, geometry mismatch,
	// or an implicit eject+save that failed.
	ErrMountFailed = errors.New("storageunit: mount failed")
	// ErrSaveFailed is returned by Save/eject-triggered save on decode or
	// write failure.
	ErrSaveFailed = errors.New("storageunit: save failed")
	// ErrAlreadyEjecting is returned by Insert/Eject on a drive mid
	// async-eject; an eject cannot be cancelled once the mechanism owns it.
	ErrAlreadyEjecting = errors.New("storageunit: drive is mid-eject")
)

// Insert reads path and mounts it onto drive. If drive already holds a
// mount, Insert performs an implicit eject+save first; if that save
// fails, Insert is rejected and the prior mount is left in place for the
// user to deal with.
func (u *Unit) Insert(d DriveID, path string) error {
	dr := &u.drives[d]
	if dr.status.IsEjecting {
		return ErrAlreadyEjecting
	}
	if dr.status.IsMounted {
		if err := u.saveLocked(d); err != nil {
			dr.status.Error = diskerr.SaveFailed
			dr.status.IsSaved = false
			return errors.Wrap(ErrMountFailed, err.Error())
		}
		dr.asset = nil
		dr.nib = nil
		dr.status = DriveStatus{}
	}

	raw, err := u.io.ReadFile(path)
	if err != nil {
		dr.status = DriveStatus{Error: diskerr.MountFailed}
		return errors.Wrap(ErrMountFailed, err.Error())
	}

	asset, nd, err := diskasset.Encode(path, raw, d.is35())
	if err != nil {
		dr.status = DriveStatus{Error: diskerr.KindOf(err)}
		return errors.Wrap(ErrMountFailed, err.Error())
	}
	if !driveAcceptsGeometry(d, asset.DiskType) {
		dr.status = DriveStatus{Error: diskerr.MountFailed}
		return errors.Wrapf(ErrMountFailed, "%s cannot mount a %v image", DriveName(d), asset.DiskType)
	}

	dr.asset = asset
	dr.nib = nd
	dr.status = DriveStatus{
		AssetPath:        path,
		IsMounted:        true,
		IsWriteProtected: nd.IsWriteProtected,
		IsSaved:          true,
	}
	return nil
}

// Eject begins ejecting drive. For a 3.5" drive whose motor is spinning
// (motorOn), the eject is asynchronous: status flips to IsEjecting and
// Update must later observe the motor stopping to complete it. Otherwise
// the eject (and its save) completes synchronously.
func (u *Unit) Eject(d DriveID, motorOn bool) error {
	dr := &u.drives[d]
	if !dr.status.IsMounted {
		return nil
	}
	if dr.status.IsEjecting {
		return ErrAlreadyEjecting
	}
	if d.is35() && motorOn {
		dr.status.IsEjecting = true
		return nil
	}
	return u.ejectSync(d)
}

// ejectSync performs the save-then-clear sequence unconditionally:
// decode+write is always attempted before the mount is cleared. On
// failure the mount still clears (the emulated disk is physically gone)
// and the status records SaveFailed; the nibble data is lost, but the
// original file on disk is untouched.
func (u *Unit) ejectSync(d DriveID) error {
	dr := &u.drives[d]
	err := u.saveLocked(d)
	path := dr.status.AssetPath
	if err != nil {
		dr.status = DriveStatus{AssetPath: path, Error: diskerr.SaveFailed}
		dr.asset = nil
		dr.nib = nil
		return errors.Wrap(ErrSaveFailed, err.Error())
	}
	dr.asset = nil
	dr.nib = nil
	dr.status = DriveStatus{}
	return nil
}

// Save forces a save without ejecting, used on snapshot and shutdown.
func (u *Unit) Save(d DriveID) error {
	if !u.drives[d].status.IsMounted {
		return nil
	}
	if err := u.saveLocked(d); err != nil {
		u.drives[d].status.Error = diskerr.SaveFailed
		u.drives[d].status.IsSaved = false
		return errors.Wrap(ErrSaveFailed, err.Error())
	}
	u.drives[d].status.IsSaved = true
	return nil
}

func (u *Unit) saveLocked(d DriveID) error {
	dr := &u.drives[d]
	if dr.asset == nil || dr.nib == nil {
		return nil
	}
	out, err := diskasset.Decode(dr.asset, dr.nib)
	if err != nil {
		return err
	}
	if err := u.io.WriteFile(dr.status.AssetPath, out); err != nil {
		return err
	}
	return nil
}

// WriteProtect sets drive's write-protect flag, taking effect on the
// IWM's next read cycle (the IWM reads through the same *nib.Disk
// reference it already holds).
func (u *Unit) WriteProtect(d DriveID, on bool) {
	dr := &u.drives[d]
	dr.status.IsWriteProtected = on
	if dr.nib != nil {
		dr.nib.IsWriteProtected = on
	}
}

// Update polls async-eject completion for every drive: a drive mid-eject
// whose motor has stopped (motorOn[d] == false) completes its save and
// clears its mount. The whole pass runs on the emulation thread between
// instruction batches, so callers never observe a partial pass.
func (u *Unit) Update(motorOn [DriveCount]bool) {
	for d := DriveID(0); d < DriveCount; d++ {
		dr := &u.drives[d]
		if dr.status.IsEjecting && !motorOn[d] {
			_ = u.ejectSync(d)
		}
	}
}

// SaveAll forces a save on every mounted floppy drive and SmartPort slot,
// used by snapshot-save and shutdown.
func (u *Unit) SaveAll() error {
	var firstErr error
	for d := DriveID(0); d < DriveCount; d++ {
		if err := u.Save(d); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := range u.smart {
		if err := u.SaveSmartPort(i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EjectAll ejects every mounted floppy drive synchronously (motor assumed
// off).
func (u *Unit) EjectAll() error {
	var firstErr error
	for d := DriveID(0); d < DriveCount; d++ {
		if err := u.Eject(d, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AssignSmartPort attaches a ProDOS block-device image to SmartPort slot
// index.
func (u *Unit) AssignSmartPort(index int, path string) error {
	if index < 0 || index >= len(u.smart) {
		return diskerr.Newf(diskerr.MountFailed, "storageunit: smartport index %d out of range", index)
	}
	raw, err := u.io.ReadFile(path)
	if err != nil {
		return errors.Wrap(ErrMountFailed, err.Error())
	}
	disk, err := smartport.New(raw, false)
	if err != nil {
		return errors.Wrap(ErrMountFailed, err.Error())
	}
	u.smart[index] = smartSlot{disk: disk, path: path}
	return nil
}

// SmartPort returns the block device mounted at index, or nil.
func (u *Unit) SmartPort(index int) *smartport.ProDOSDisk {
	if index < 0 || index >= len(u.smart) {
		return nil
	}
	return u.smart[index].disk
}

// SaveSmartPort writes slot index's current image back to its path.
func (u *Unit) SaveSmartPort(index int) error {
	if index < 0 || index >= len(u.smart) || u.smart[index].disk == nil {
		return nil
	}
	s := &u.smart[index]
	if err := u.io.WriteFile(s.path, s.disk.Save()); err != nil {
		return errors.Wrap(ErrSaveFailed, err.Error())
	}
	return nil
}

// Scratch returns the unit's owned decode scratch buffer, reused across
// save operations. One save runs at a time, so callers must not retain
// slices of it past their own save.
func (u *Unit) Scratch() []byte { return u.scratch }

package storageunit

import (
	"io"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/samkusin/clemens-iigs-sub002/diskasset"
	"github.com/samkusin/clemens-iigs-sub002/smartport"
)

func newSmartPortFromSnapshot(data []byte) (*smartport.ProDOSDisk, error) {
	return smartport.New(data, false)
}

// metadataRecord is the MessagePack rendition of diskasset.Metadata: a
// sum-of-products map tagged by "type".
type metadataRecord struct {
	Type     string `msgpack:"type"`
	Version  uint8  `msgpack:"version,omitempty"`
	DiskType uint8  `msgpack:"disk_type,omitempty"`

	Format            uint32 `msgpack:"format,omitempty"`
	DOSVolume         uint32 `msgpack:"dos_volume,omitempty"`
	BlockCount        uint32 `msgpack:"block_count,omitempty"`
	CreatorDataOffset uint32 `msgpack:"creator_data_offset,omitempty"`
	CreatorDataLength uint32 `msgpack:"creator_data_length,omitempty"`
	CommentOffset     uint32 `msgpack:"comment_offset,omitempty"`
	CommentLength     uint32 `msgpack:"comment_length,omitempty"`
}

// assetRecord is one per-drive (or per-SmartPort-slot) entry in the
// snapshot's "disk.assets"/"smartport.assets" arrays.
type assetRecord struct {
	ImageType            int            `msgpack:"image_type"`
	DiskType             int            `msgpack:"disk_type"`
	ErrorType            int            `msgpack:"error_type"`
	EstimatedEncodedSize int            `msgpack:"estimated_encoded_size"`
	Path                 string         `msgpack:"path"`
	Data                 []byte         `msgpack:"data"`
	Metadata             metadataRecord `msgpack:"metadata"`
}

type snapshotDoc struct {
	DiskAssets      []assetRecord `msgpack:"disk.assets"`
	SmartportAssets []assetRecord `msgpack:"smartport.assets"`
	SmartportData   [][]byte      `msgpack:"smartport.data"`
}

func toRecord(a *diskasset.Asset) assetRecord {
	if a == nil {
		return assetRecord{Metadata: metadataRecord{Type: "none"}}
	}
	rec := assetRecord{
		ImageType:            int(a.ImageType),
		DiskType:             int(a.DiskType),
		ErrorType:            int(a.ErrorType),
		EstimatedEncodedSize: a.EstimatedEncodedSize,
		Path:                 a.Path,
		Data:                 a.Data,
	}
	switch a.Metadata.Kind {
	case diskasset.MetadataWOZ:
		rec.Metadata = metadataRecord{
			Type:     "woz",
			Version:  a.Metadata.WOZ.Version,
			DiskType: uint8(a.Metadata.WOZ.DiskType),
		}
	case diskasset.Metadata2IMG:
		c := a.Metadata.TwoIMG
		rec.Metadata = metadataRecord{
			Type:              "2img",
			Format:            uint32(c.Format),
			DOSVolume:         c.DOSVolume,
			BlockCount:        c.BlockCount,
			CreatorDataOffset: c.CreatorDataOffset,
			CreatorDataLength: c.CreatorDataLength,
			CommentOffset:     c.CommentOffset,
			CommentLength:     c.CommentLength,
		}
	default:
		rec.Metadata = metadataRecord{Type: "none"}
	}
	return rec
}

// Serialize writes the storage unit's mount metadata to w as a
// MessagePack document. Nibble bit buffers are not written here; they
// belong to the machine state serialized alongside this document.
func (u *Unit) Serialize(w io.Writer) error {
	doc := snapshotDoc{}
	for d := DriveID(0); d < DriveCount; d++ {
		doc.DiskAssets = append(doc.DiskAssets, toRecord(u.drives[d].asset))
	}
	for i := range u.smart {
		rec := assetRecord{Metadata: metadataRecord{Type: "none"}}
		if u.smart[i].disk != nil {
			rec.ImageType = int(diskasset.ImageTypeProDOS)
			rec.DiskType = int(diskasset.DiskTypeHDD)
			rec.Path = u.smart[i].path
			rec.EstimatedEncodedSize = len(u.smart[i].disk.Data)
		}
		doc.SmartportAssets = append(doc.SmartportAssets, rec)
		if u.smart[i].disk != nil {
			doc.SmartportData = append(doc.SmartportData, u.smart[i].disk.Save())
		} else {
			doc.SmartportData = append(doc.SmartportData, nil)
		}
	}

	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "storageunit: snapshot encode")
	}
	return nil
}

// Unserialize restores the unit's per-drive/SmartPort path and
// error/status bookkeeping from a snapshot written by Serialize. It does
// not remount floppies: the caller re-Inserts each recorded path, or the
// embedder's snapshot-restore flow re-attaches nibble buffers from the
// accompanying machine state. SmartPort devices are rebuilt directly from
// their recorded block images.
func (u *Unit) Unserialize(r io.Reader) error {
	var doc snapshotDoc
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrap(err, "storageunit: snapshot decode")
	}

	for i := 0; i < int(DriveCount) && i < len(doc.DiskAssets); i++ {
		rec := doc.DiskAssets[i]
		u.drives[i].status.AssetPath = rec.Path
		u.drives[i].status.IsMounted = rec.Path != ""
	}
	for i := 0; i < len(u.smart) && i < len(doc.SmartportData); i++ {
		if doc.SmartportData[i] == nil {
			continue
		}
		disk, err := newSmartPortFromSnapshot(doc.SmartportData[i])
		if err != nil {
			return err
		}
		u.smart[i].disk = disk
		if i < len(doc.SmartportAssets) {
			u.smart[i].path = doc.SmartportAssets[i].Path
		}
	}
	return nil
}

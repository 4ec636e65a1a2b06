// Package diskasset implements the disk asset: a polymorphic wrapper that
// identifies an image's container type from its path, owns the
// container-specific metadata needed for a faithful round-trip, and
// exposes a uniform encode (file bytes -> nib.Disk) / decode (nib.Disk ->
// file bytes) pair over the img2mg and woz container packages.
package diskasset

import (
	"path/filepath"
	"strings"

	"github.com/samkusin/clemens-iigs-sub002/diskerr"
	"github.com/samkusin/clemens-iigs-sub002/img2mg"
	"github.com/samkusin/clemens-iigs-sub002/nib"
	"github.com/samkusin/clemens-iigs-sub002/woz"
)

// ImageType identifies the on-disk container format.
type ImageType int

const (
	ImageTypeNone ImageType = iota
	ImageTypeDSK
	ImageTypeDOS
	ImageTypeProDOS
	ImageType2IMG
	ImageTypeWOZ
)

func (t ImageType) String() string {
	switch t {
	case ImageTypeDSK:
		return "DSK"
	case ImageTypeDOS:
		return "DOS"
	case ImageTypeProDOS:
		return "ProDOS"
	case ImageType2IMG:
		return "2IMG"
	case ImageTypeWOZ:
		return "WOZ"
	default:
		return "None"
	}
}

// DiskType identifies the physical drive geometry a mounted asset targets.
type DiskType int

const (
	DiskTypeNone DiskType = iota
	DiskType525
	DiskType35
	DiskTypeHDD
)

// MetadataKind discriminates the Metadata tagged union.
type MetadataKind int

const (
	MetadataNone MetadataKind = iota
	MetadataWOZ
	Metadata2IMG
)

// Metadata is the discriminated union over container-specific header
// state. Exactly one of WOZ/TwoIMG is non-nil, selected by Kind.
// The containers share no behavior beyond encode/decode, so a tagged
// struct beats an interface hierarchy here.
type Metadata struct {
	Kind   MetadataKind
	WOZ    *woz.Info
	TwoIMG *img2mg.Container
}

// Asset is the disk asset: container metadata plus the preserved bytes
// (WOZ META/WRIT, 2IMG creator/comment) needed to regenerate a faithful
// file on save.
type Asset struct {
	ImageType            ImageType
	DiskType             DiskType
	ErrorType            diskerr.Kind
	Path                 string
	EstimatedEncodedSize int
	Data                 []byte // 2IMG only: creator data followed by comment
	Metadata             Metadata

	extraChunks []woz.Chunk // WOZ-only: preserved WRIT/META/unknown chunks
}

// DetectImageType maps a file's extension (case-insensitive) to an
// ImageType.
func DetectImageType(path string) ImageType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dsk":
		return ImageTypeDSK
	case ".do":
		return ImageTypeDOS
	case ".po":
		return ImageTypeProDOS
	case ".2mg", ".2img":
		return ImageType2IMG
	case ".woz":
		return ImageTypeWOZ
	default:
		return ImageTypeNone
	}
}

// Encode parses raw (the complete file contents) per the asset's
// ImageType, producing a ready nib.Disk and populating the asset's
// Metadata/Data for a subsequent Decode. doubleSided is the side-count hint
// passed to 3.5" nibblization of 2IMG and DSK/DOS/ProDOS images; a block
// count of 800 or 1600 overrides it. WOZ images ignore it.
func Encode(path string, raw []byte, doubleSided bool) (*Asset, *nib.Disk, error) {
	imageType := DetectImageType(path)
	a := &Asset{ImageType: imageType, Path: path}

	switch imageType {
	case ImageTypeWOZ:
		return encodeWOZ(a, raw)
	case ImageType2IMG:
		return encodeTwoIMG(a, raw, doubleSided)
	case ImageTypeDSK, ImageTypeDOS, ImageTypeProDOS:
		return encodeRaw(a, raw, doubleSided)
	default:
		a.ErrorType = diskerr.ImageNotSupported
		return a, nil, diskerr.Newf(diskerr.ImageNotSupported, "diskasset: unrecognized extension for %q", path)
	}
}

func encodeWOZ(a *Asset, raw []byte) (*Asset, *nib.Disk, error) {
	wd, err := woz.Parse(raw)
	if err != nil {
		a.ErrorType = diskerr.KindOf(err)
		if a.ErrorType == diskerr.None {
			a.ErrorType = diskerr.InvalidImage
		}
		return a, nil, err
	}
	a.DiskType = diskTypeFromNib(wd.Nib.DiskType)
	a.Metadata = Metadata{Kind: MetadataWOZ, WOZ: &wd.Info}
	a.extraChunks = wd.Extra
	a.EstimatedEncodedSize = len(raw)
	return a, wd.Nib, nil
}

func encodeTwoIMG(a *Asset, raw []byte, doubleSided bool) (*Asset, *nib.Disk, error) {
	c, err := img2mg.ParseHeader(raw)
	if err != nil {
		a.ErrorType = diskerr.KindOf(err)
		return a, nil, err
	}
	diskType := twoIMGDiskType(c)
	a.DiskType = diskType
	if diskType == DiskTypeHDD || diskType == DiskTypeNone {
		a.ErrorType = diskerr.ImageNotSupported
		err := diskerr.Newf(diskerr.ImageNotSupported, "diskasset: geometry of %q does not map to a floppy drive", a.Path)
		return a, nil, err
	}
	nd, err := img2mg.Nibblize(c, diskTypeToNib(diskType), doubleSided)
	if err != nil {
		a.ErrorType = diskerr.KindOf(err)
		return a, nil, err
	}

	// Preserved creator data and comment bytes are packed into Data, and
	// the metadata offsets rebased to index Data rather than the source
	// file, which is gone by the time Decode runs.
	a.Data = append(append([]byte{}, c.CreatorData...), c.Comment...)
	rebased := *c
	rebased.CreatorDataOffset = 0
	rebased.CreatorDataLength = uint32(len(c.CreatorData))
	rebased.CommentOffset = uint32(len(c.CreatorData))
	rebased.CommentLength = uint32(len(c.Comment))
	rebased.Data = nil
	a.Metadata = Metadata{Kind: Metadata2IMG, TwoIMG: &rebased}
	a.EstimatedEncodedSize = len(raw)
	return a, nd, nil
}

func encodeRaw(a *Asset, raw []byte, doubleSided bool) (*Asset, *nib.Disk, error) {
	// .dsk and .do images carry DOS 3.3 sector ordering; only .po is
	// ProDOS-ordered.
	format := img2mg.FormatProDOS
	if a.ImageType == ImageTypeDOS || a.ImageType == ImageTypeDSK {
		format = img2mg.FormatDOS
	}
	c := img2mg.GenerateHeader(format, raw)
	diskType := twoIMGDiskType(c)
	a.DiskType = diskType
	if diskType == DiskTypeHDD || diskType == DiskTypeNone {
		a.ErrorType = diskerr.ImageNotSupported
		err := diskerr.Newf(diskerr.ImageNotSupported, "diskasset: geometry of %q does not map to a floppy drive", a.Path)
		return a, nil, err
	}
	nd, err := img2mg.Nibblize(c, diskTypeToNib(diskType), doubleSided)
	if err != nil {
		a.ErrorType = diskerr.KindOf(err)
		return a, nil, err
	}
	rebased := *c
	rebased.Data = nil
	a.Metadata = Metadata{Kind: Metadata2IMG, TwoIMG: &rebased}
	a.EstimatedEncodedSize = len(raw)
	return a, nd, nil
}

// twoIMGDiskType infers drive geometry from the container: 800 blocks is
// the 400 KB single-sided 3.5" disk, 1600 blocks the 800 KB double-sided
// one, and anything larger only fits a hard disk. 140 KB images are 5.25"
// regardless of what the format field claims.
func twoIMGDiskType(c *img2mg.Container) DiskType {
	switch {
	case c.IsDOS525():
		return DiskType525
	case c.BlockCount == 800 || c.BlockCount == 1600:
		return DiskType35
	case c.BlockCount == 0 && len(c.Data) == 143360:
		return DiskType525
	case c.BlockCount > 1600:
		return DiskTypeHDD
	default:
		return DiskType525
	}
}

func diskTypeToNib(t DiskType) nib.Type {
	switch t {
	case DiskType525:
		return nib.Type525
	case DiskType35:
		return nib.Type35
	default:
		return nib.TypeNone
	}
}

func diskTypeFromNib(t nib.Type) DiskType {
	switch t {
	case nib.Type525:
		return DiskType525
	case nib.Type35:
		return DiskType35
	default:
		return DiskTypeNone
	}
}

// Decode reverses Encode: it regenerates the complete file bytes for nd
// using the asset's preserved Metadata/Data. Raw DSK/DO/PO assets decode
// to bare sector bytes; the 2IMG header synthesized for their mount never
// reaches the output file.
func Decode(a *Asset, nd *nib.Disk) ([]byte, error) {
	switch a.ImageType {
	case ImageTypeWOZ:
		if a.Metadata.Kind != MetadataWOZ {
			return nil, diskerr.New(diskerr.SaveFailed, "diskasset: decode called with no metadata bound")
		}
		return decodeWOZ(a, nd)
	case ImageTypeDSK, ImageTypeDOS, ImageTypeProDOS:
		out, err := img2mg.Decode(nd)
		if err != nil {
			return nil, diskerr.Wrap(diskerr.SaveFailed, err, "diskasset: decode")
		}
		return out, nil
	case ImageType2IMG:
		if a.Metadata.Kind != Metadata2IMG {
			return nil, diskerr.New(diskerr.SaveFailed, "diskasset: decode called with no metadata bound")
		}
		return decodeTwoIMG(a, nd)
	default:
		return nil, diskerr.New(diskerr.SaveFailed, "diskasset: decode called with no metadata bound")
	}
}

func decodeWOZ(a *Asset, nd *nib.Disk) ([]byte, error) {
	wd := &woz.Disk{Info: *a.Metadata.WOZ, Nib: nd, Extra: a.extraChunks}
	wd.Info.IsWriteProtected = nd.IsWriteProtected
	return woz.Serialize(wd), nil
}

func decodeTwoIMG(a *Asset, nd *nib.Disk) ([]byte, error) {
	sectorData, err := img2mg.Decode(nd)
	if err != nil {
		return nil, diskerr.Wrap(diskerr.SaveFailed, err, "diskasset: decode")
	}
	c := *a.Metadata.TwoIMG
	c.Data = sectorData
	c.IsWriteProtected = nd.IsWriteProtected

	// Split the asset's preserved Data back into creator/comment ranges,
	// the inverse of encodeTwoIMG's splice.
	if int(c.CreatorDataLength)+int(c.CommentLength) > len(a.Data) {
		return nil, diskerr.New(diskerr.SaveFailed, "diskasset: preserved metadata bytes shorter than recorded lengths")
	}
	c.CreatorData = a.Data[c.CreatorDataOffset : c.CreatorDataOffset+c.CreatorDataLength]
	c.Comment = a.Data[c.CommentOffset : c.CommentOffset+c.CommentLength]

	out := img2mg.WriteHeader(&c)
	if len(out) > len(sectorData)+65536 {
		// decode produced a wildly larger file than its sector data could
		// justify: treat as a save failure rather than silently writing
		// a bloated file.
		return nil, diskerr.New(diskerr.SaveFailed, "diskasset: decoded image unexpectedly large")
	}
	return out, nil
}

// CreateBlankDiskImage produces a byte image suitable for writing to disk
// for a freshly mounted blank disk. The returned bytes are a complete file
// (container header included where applicable).
func CreateBlankDiskImage(imageType ImageType, diskType DiskType, doubleSided bool) ([]byte, error) {
	switch imageType {
	case ImageTypeWOZ:
		return createBlankWOZ(diskType, doubleSided)
	case ImageType2IMG, ImageTypeDSK, ImageTypeDOS, ImageTypeProDOS:
		return createBlankTwoIMGFamily(imageType, diskType, doubleSided)
	default:
		return nil, diskerr.Newf(diskerr.ImageNotSupported, "diskasset: cannot create blank image of type %v", imageType)
	}
}

func blankSectorData(diskType DiskType, doubleSided bool) ([]byte, error) {
	switch diskType {
	case DiskType525:
		return make([]byte, 35*16*256), nil // 143,360 bytes
	case DiskType35:
		if doubleSided {
			return make([]byte, 1600*512), nil // 800 KB
		}
		return make([]byte, 800*512), nil // 400 KB
	default:
		return nil, diskerr.New(diskerr.ImageNotSupported, "diskasset: no blank geometry for disk type")
	}
}

func createBlankTwoIMGFamily(imageType ImageType, diskType DiskType, doubleSided bool) ([]byte, error) {
	data, err := blankSectorData(diskType, doubleSided)
	if err != nil {
		return nil, err
	}
	if imageType == ImageType2IMG {
		format := img2mg.FormatProDOS
		if diskType == DiskType525 {
			format = img2mg.FormatDOS
		}
		c := img2mg.GenerateHeader(format, data)
		return img2mg.WriteHeader(c), nil
	}
	return data, nil
}

func createBlankWOZ(diskType DiskType, doubleSided bool) ([]byte, error) {
	nt := diskTypeToNib(diskType)
	if nt == nib.TypeNone {
		return nil, diskerr.New(diskerr.ImageNotSupported, "diskasset: no blank WOZ geometry for disk type")
	}
	data, err := blankSectorData(diskType, doubleSided)
	if err != nil {
		return nil, err
	}
	format := img2mg.FormatProDOS
	c := img2mg.GenerateHeader(format, data)
	nd, err := img2mg.Nibblize(c, nt, doubleSided)
	if err != nil {
		return nil, err
	}
	wd := woz.NewBlank(nt, doubleSided)
	wd.Nib = nd
	return woz.Serialize(wd), nil
}

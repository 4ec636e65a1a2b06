package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/samkusin/clemens-iigs-sub002/diskasset"
	"github.com/samkusin/clemens-iigs-sub002/img2mg"
	"github.com/samkusin/clemens-iigs-sub002/woz"
)

var infoCmd = &cobra.Command{
	Use:                   "info FILE",
	Short:                 "Print a disk image's container header fields",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

func init() {
	diskCmd.AddCommand(infoCmd)
}

func runInfo(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read file")
	}

	switch diskasset.DetectImageType(path) {
	case diskasset.ImageTypeWOZ:
		d, err := woz.Parse(raw)
		if err != nil {
			return err
		}
		fmt.Printf("WOZ%d image: %s\n", d.Info.Version, path)
		fmt.Printf("  disk type:    %d\n", d.Info.DiskType)
		fmt.Printf("  write prot.:  %v\n", d.Info.IsWriteProtected)
		fmt.Printf("  bit timing:   %d ns\n", d.Info.BitTimingNs)
		fmt.Printf("  tracks init.: %d\n", d.Nib.TrackCount)
	case diskasset.ImageType2IMG:
		c, err := img2mg.ParseHeader(raw)
		if err != nil {
			return err
		}
		printTwoIMG(path, c)
	case diskasset.ImageTypeDSK, diskasset.ImageTypeDOS, diskasset.ImageTypeProDOS:
		fmt.Printf("raw image: %s (%d bytes, no container header)\n", path, len(raw))
	default:
		return errors.Errorf("unsupported media type for %q", path)
	}
	return nil
}

func printTwoIMG(path string, c *img2mg.Container) {
	fmt.Printf("2IMG image: %s\n", path)
	fmt.Printf("  creator:      %q\n", c.Creator[:])
	fmt.Printf("  version:      %d\n", c.Version)
	fmt.Printf("  format:       %d\n", c.Format)
	fmt.Printf("  block count:  %d\n", c.BlockCount)
	fmt.Printf("  write prot.:  %v\n", c.IsWriteProtected)
	fmt.Printf("  data length:  %d\n", c.ImageDataLength)
}

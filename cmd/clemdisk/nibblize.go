package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/samkusin/clemens-iigs-sub002/diskasset"
	"github.com/samkusin/clemens-iigs-sub002/nib"
)

var doubleSidedFlag bool

var nibblizeCmd = &cobra.Command{
	Use:                   "nibblize FILE",
	Short:                 "Parse and nibblize a disk image, reporting per-track initialization",
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNibblize(args[0])
	},
}

func init() {
	nibblizeCmd.Flags().BoolVar(&doubleSidedFlag, "double-sided", false, "hint for raw DSK/DO/PO 3.5\" images with no side-count field")
	diskCmd.AddCommand(nibblizeCmd)
}

func runNibblize(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read file")
	}

	asset, nd, err := diskasset.Encode(path, raw, doubleSidedFlag)
	if err != nil {
		return errors.Wrap(err, "nibblize")
	}

	fmt.Printf("nibblized %s: image type %v, disk type %v\n", path, asset.ImageType, asset.DiskType)
	initialized := 0
	for q := 0; q < nib.LimitQuarterTracks; q++ {
		if nd.MetaTrackMap[q] != nib.UninitializedTrack {
			initialized++
		}
	}
	fmt.Printf("  quarter tracks mapped: %d/%d\n", initialized, nib.LimitQuarterTracks)
	fmt.Printf("  real tracks:           %d\n", nd.TrackCount)
	fmt.Printf("  bit timing:            %d ns\n", nd.BitTimingNs)
	return nil
}

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/samkusin/clemens-iigs-sub002/diskasset"
)

var roundtripCmd = &cobra.Command{
	Use:   "roundtrip FILE",
	Short: "Nibblize then decode a disk image and diff the result against the original",
	Long: `roundtrip checks that a disk image survives the full mount/save
cycle: the file is nibblized into its GCR bit stream and decoded back,
and the result is diffed against the original. It reports the first byte
offset where the decoded file differs from the source, if any.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoundtrip(args[0])
	},
}

func init() {
	roundtripCmd.Flags().BoolVar(&doubleSidedFlag, "double-sided", false, "hint for raw DSK/DO/PO 3.5\" images with no side-count field")
	diskCmd.AddCommand(roundtripCmd)
}

func runRoundtrip(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read file")
	}

	asset, nd, err := diskasset.Encode(path, raw, doubleSidedFlag)
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	out, err := diskasset.Decode(asset, nd)
	if err != nil {
		return errors.Wrap(err, "decode")
	}

	if bytes.Equal(raw, out) {
		fmt.Printf("%s: round-trip OK (%d bytes)\n", path, len(raw))
		return nil
	}
	if len(raw) != len(out) {
		fmt.Printf("%s: round-trip MISMATCH: length %d != %d\n", path, len(raw), len(out))
		return errors.New("round-trip length mismatch")
	}
	for i := range raw {
		if raw[i] != out[i] {
			fmt.Printf("%s: round-trip MISMATCH at byte offset %d: got 0x%02x want 0x%02x\n", path, i, out[i], raw[i])
			return errors.New("round-trip byte mismatch")
		}
	}
	return nil
}

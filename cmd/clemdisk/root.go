package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clemdisk",
	Short: "Inspect and manipulate Apple IIgs disk images",
	Long: `clemdisk is a command-line harness over the Apple IIgs disk
subsystem core: it parses 2IMG/WOZ/DSK/DO/PO containers, nibblizes them
into the GCR bit stream the emulated disk controller would read, and
decodes that bit stream back, the same way the emulator's storage unit
does on mount and eject.`,
}

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Operate on a single disk image file",
}

func init() {
	rootCmd.AddCommand(diskCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

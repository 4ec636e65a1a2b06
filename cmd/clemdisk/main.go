// Command clemdisk is the CLI front end over the disk core: a thin cobra
// wrapper that exercises the library's parse/nibblize/decode operations
// without needing the full emulator.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

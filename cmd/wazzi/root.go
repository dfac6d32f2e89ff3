// Command wazzi is the differential fuzzer's entrypoint: it loads a
// witx-dialect WASI interface schema, seeds a shared random byte pool, and
// drives one call engine per configured runtime backend, each recording a
// trace under its own subdirectory for later diffing (spec §1, §5, §6).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootCommand is the base CLI command every subcommand in this package
// registers itself against in an init() function, mirroring
// open-policy-agent-opa's cmd.RootCommand/cmd.Command wiring.
var RootCommand = &cobra.Command{
	Use:   "wazzi",
	Short: "Differential fuzzer for WASI runtime implementations",
	Long: "wazzi drives independent WASI runtimes through identical call " +
		"sequences synthesized from a declarative witx-dialect interface " +
		"schema, recording each runtime's trace for out-of-band diffing.",
}

func main() {
	if err := RootCommand.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

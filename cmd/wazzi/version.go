package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set by the release build process via -ldflags; it is left as
// "dev" for local builds, mirroring the convention OPA's cmd/version.go
// reads from its version package instead of hardcoding a string inline.
var version = "dev"

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print wazzi's version and build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "Version: "+version)
			fmt.Fprintln(cmd.OutOrStdout(), "Go Version: "+runtime.Version())
			fmt.Fprintln(cmd.OutOrStdout(), "Platform: "+runtime.GOOS+"/"+runtime.GOARCH)
		},
	}
	RootCommand.AddCommand(cmd)
}

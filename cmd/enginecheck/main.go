// Command enginecheck runs the audio engine validation battery.
package main

import (
	"fmt"
	"os"

	"github.com/cwbudde/algo-verify/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

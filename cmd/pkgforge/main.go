// Command pkgforge builds Microsoft Intune Win32 .intunewin packages
// and macOS flat installer .pkg packages from a plain application
// source tree.
package main

import (
	"os"

	"github.com/MANCHTOOLS/pkgforge/internal/cli"
)

const version = "2.0.0"

func main() {
	os.Exit(cli.Execute(version))
}

// Command debinspect inspects Debian binary packages, validates source
// package descriptions and compares Debian version strings.
package main

import "github.com/etnz/debinspect/cmd"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.Execute(version)
}

// Package embedded holds text assets compiled into the binaries.
package embedded

import (
	_ "embed"
	"strings"
)

//go:embed help.txt
var help string

// Help returns the command summary with CRLF line endings for the console.
func Help() string {
	return strings.ReplaceAll(help, "\n", "\r\n")
}

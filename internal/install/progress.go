package install

import (
	"fmt"
	"io"
	"os"
)

var (
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

func init() {
	// No colors when stdout is not a terminal
	if stat, err := os.Stdout.Stat(); err == nil {
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			colorGreen = ""
			colorRed = ""
			colorYellow = ""
			colorReset = ""
		}
	}
}

// progress prints one status line per installer step.
type progress struct {
	out io.Writer
}

func (p progress) ok(msg string) {
	fmt.Fprintf(p.out, "%-60s%s[OK]%s\n", msg, colorGreen, colorReset)
}

func (p progress) skip(msg string) {
	fmt.Fprintf(p.out, "%-60s%s[SKIP]%s\n", msg, colorYellow, colorReset)
}

func (p progress) fail(msg string) {
	fmt.Fprintf(p.out, "%-60s%s[FAIL]%s\n", msg, colorRed, colorReset)
}

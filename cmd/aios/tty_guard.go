package main

import (
	"os"
	"strings"
)

// init runs before lipgloss inspects the terminal. Adaptive colors make
// termenv query the background color, which writes OSC/DSR sequences to
// stdout; those corrupt -json output read by scripts. Setting CI disables
// the probing.
func init() {
	if os.Getenv("CI") != "" {
		return
	}
	if !shouldSuppressTTYQueries(os.Args[1:], os.Getenv("AIOS_TEST_MODE") != "") {
		return
	}
	_ = os.Setenv("CI", "1")
}

func shouldSuppressTTYQueries(args []string, envTest bool) bool {
	if envTest {
		return true
	}
	for _, arg := range args {
		switch strings.TrimLeft(arg, "-") {
		case "json", "json=true", "version", "help", "h", "serve":
			if strings.HasPrefix(arg, "-") {
				return true
			}
		}
	}
	return false
}

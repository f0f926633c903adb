package logger

import "github.com/mattn/go-isatty"

// isTerminal reports whether fd refers to an interactive terminal, so color
// output can be disabled automatically when stdout/stderr is redirected to a
// file or pipe (e.g. a daemonized smbcored writing to its log file).
func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

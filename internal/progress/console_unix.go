//go:build !windows

package progress

import "os"

// enableVirtualTerminal is a no-op: Unix terminals understand ANSI natively.
func enableVirtualTerminal(f *os.File) {}

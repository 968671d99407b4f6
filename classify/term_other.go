//go:build !linux && !darwin
// +build !linux,!darwin

package classify

import "io"

func isTerminal(r io.Reader) bool {
	return false
}

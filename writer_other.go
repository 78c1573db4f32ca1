//go:build !linux
// +build !linux

package proctrace

// appendFrame is not supported on OSes other than Linux.
func appendFrame(_ string, _ []byte) error {
	return errUnsupportedOS
}

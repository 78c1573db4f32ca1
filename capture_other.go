//go:build !linux
// +build !linux

package proctrace

// CaptureProcessBegin is not supported on OSes other than Linux.
func CaptureProcessBegin(_ *Options) ([]byte, error) {
	return nil, errUnsupportedOS
}

// CaptureProcessEnd is not supported on OSes other than Linux.
func CaptureProcessEnd(_ *Options) ([]byte, error) {
	return nil, errUnsupportedOS
}

//go:build !linux && !darwin

package device

import "os"

func nodeName() (string, error) {
	return os.Hostname()
}

//go:build darwin

package hostversion

import "golang.org/x/sys/unix"

func nativeProductVersion() (string, error) {
	return unix.Sysctl("kern.osproductversion")
}

//go:build !darwin

package hostversion

func nativeProductVersion() (string, error) {
	return "", errNativeUnavailable
}

//go:build !darwin

package credentials

import "context"

// SystemVault is unavailable outside macOS; every lookup fails.
type SystemVault struct {
	service string
}

// NewSystemVault constructs a SystemVault for service.
func NewSystemVault(service string) *SystemVault {
	if service == "" {
		service = DefaultSystemService
	}
	return &SystemVault{service: service}
}

// LookupByID returns ErrUnsupportedPlatform.
func (vault *SystemVault) LookupByID(ctx context.Context, kind Kind, id string) (Record, bool, error) {
	return Record{}, false, ErrUnsupportedPlatform
}

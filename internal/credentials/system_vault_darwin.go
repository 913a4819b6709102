//go:build darwin

package credentials

import (
	"context"
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// SystemVault reads credentials stored as generic passwords in the user's
// login keychain. Each item holds a YAML credential document.
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

// LookupByID reads the generic password for kind and id.
func (vault *SystemVault) LookupByID(ctx context.Context, kind Kind, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	account := systemAccount(kind, id)
	payload, err := gokeychain.GetGenericPassword(vault.service, account, "", "")
	if err != nil {
		if errors.Is(err, gokeychain.ErrorItemNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("keychain get %q: %w", account, err)
	}
	if len(payload) == 0 {
		return Record{}, false, nil
	}
	record, decodeErr := decodeSystemRecord(kind, id, payload)
	if decodeErr != nil {
		return Record{}, false, decodeErr
	}
	return record, true, nil
}

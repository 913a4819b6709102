package credentials

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultSystemService is the generic password service under which signkit
// credentials are stored in the login keychain.
const DefaultSystemService = "signkit"

// ErrUnsupportedPlatform is returned by the system vault outside macOS.
var ErrUnsupportedPlatform = errors.New("system keychain vault is only available on macOS")

// systemAccount is the generic password account for a credential.
func systemAccount(kind Kind, id string) string {
	return string(kind) + "/" + id
}

func decodeSystemRecord(kind Kind, id string, payload []byte) (Record, error) {
	var document recordDocument
	if err := yaml.Unmarshal(payload, &document); err != nil {
		return Record{}, fmt.Errorf("parse system keychain item %s: %w", systemAccount(kind, id), err)
	}
	if document.ID == "" {
		document.ID = id
	}
	return document.toRecord(kind, "")
}

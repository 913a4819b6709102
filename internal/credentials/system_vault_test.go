package credentials

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSystemRecord(t *testing.T) {
	payload := "archive: " + base64.StdEncoding.EncodeToString([]byte("zip")) + "\npassword: bundle-secret\n"

	record, err := decodeSystemRecord(KindSigningIdentity, "ios", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "ios", record.ID)
	assert.Equal(t, KindSigningIdentity, record.Kind)
	assert.Equal(t, []byte("zip"), record.Archive)
	assert.Equal(t, "bundle-secret", record.Password)

	_, err = decodeSystemRecord(KindKeychain, "build", []byte("path: ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keychain/build")
}

func TestNewSystemVaultDefaultsService(t *testing.T) {
	assert.Equal(t, DefaultSystemService, NewSystemVault("").service)
	assert.Equal(t, "ci", NewSystemVault("ci").service)
}

package provisioner

import (
	"strings"

	"github.com/tyemirov/signkit/internal/keychain"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	singletonSearchList      = "search-list"
	singletonDefaultKeychain = "default-keychain"
	singletonProfiles        = "provisioning-profiles"

	logMessageHostIntent = "host keychain intent"

	logFieldSingletons = "singletons"
	logFieldRestores   = "restores"
)

// HostKeychainIntent names the host-wide singletons a run mutates. Runs on the
// same user account are not serialized; the intent only makes the overlap visible.
type HostKeychainIntent struct {
	KeychainPath string
	Origin       keychain.Origin
	Singletons   []string
	// Restores is true when the run puts the search list and default back on close.
	Restores bool
}

func newHostKeychainIntent(runtime keychain.Runtime) HostKeychainIntent {
	return HostKeychainIntent{
		KeychainPath: runtime.Path,
		Origin:       runtime.Origin,
		Singletons:   []string{singletonSearchList, singletonDefaultKeychain, singletonProfiles},
		Restores:     runtime.Origin == keychain.OriginExisting,
	}
}

// String renders the intent as a single log token.
func (intent HostKeychainIntent) String() string {
	return string(intent.Origin) + ":" + intent.KeychainPath + "[" + strings.Join(intent.Singletons, ",") + "]"
}

func (intent HostKeychainIntent) fields() []logging.Field {
	restores := "false"
	if intent.Restores {
		restores = "true"
	}
	return []logging.Field{
		logging.String(logFieldKeychain, intent.KeychainPath),
		logging.String(logFieldOrigin, string(intent.Origin)),
		logging.Strings(logFieldSingletons, intent.Singletons),
		logging.String(logFieldRestores, restores),
	}
}

package provisioner

import (
	"context"
	"sync"

	"github.com/tyemirov/signkit/internal/keychain"
	"github.com/tyemirov/signkit/internal/workdir"
)

const logMessageCloseFailed = "failed to close provisioning session"

// Session is a provisioned keychain. Close restores the host search path for
// existing keychains and removes the work directory; ephemeral keychains stay
// in place for the signing step.
type Session struct {
	lifecycle  *keychain.Lifecycle
	directory  *workdir.Directory
	intent     HostKeychainIntent
	identities []string
	profiles   []string
	closeOnce  sync.Once
	closeErr   error
}

// KeychainPath returns the path of the keychain holding the identities.
func (session *Session) KeychainPath() string {
	return session.lifecycle.Runtime().Path
}

// Runtime returns the keychain runtime state.
func (session *Session) Runtime() keychain.Runtime {
	return session.lifecycle.Runtime()
}

// Intent returns the host singletons the run mutated.
func (session *Session) Intent() HostKeychainIntent {
	return session.intent
}

// ImportedIdentities returns the imported identity files, as extracted in the work directory.
func (session *Session) ImportedIdentities() []string {
	return append([]string{}, session.identities...)
}

// InstalledProfiles returns the installed provisioning profile paths.
func (session *Session) InstalledProfiles() []string {
	return append([]string{}, session.profiles...)
}

// Close is safe to call more than once and runs after cancellation.
func (session *Session) Close(ctx context.Context) error {
	session.closeOnce.Do(func() {
		session.lifecycle.Restore(ctx)
		session.closeErr = session.directory.Close()
	})
	return session.closeErr
}

// Package keychain drives the macOS security tool to prepare keychains for code signing.
package keychain

import (
	"strings"

	"github.com/google/uuid"
)

// EphemeralNamePrefix starts the name of every keychain created for a job.
const EphemeralNamePrefix = "jenkins-"

// State is a step of the keychain lifecycle.
type State int

const (
	StateAbsent State = iota
	StateCreated
	StateUnlocked
	StateSearchPathSet
	StatePartitionConfigured
	StateDefaultSet
)

var stateNames = map[State]string{
	StateAbsent:              "absent",
	StateCreated:             "created",
	StateUnlocked:            "unlocked",
	StateSearchPathSet:       "search-path-set",
	StatePartitionConfigured: "partition-configured",
	StateDefaultSet:          "default-set",
}

func (state State) String() string {
	if name, exists := stateNames[state]; exists {
		return name
	}
	return "unknown"
}

// Origin tells whether the active keychain was created for this run.
type Origin string

const (
	OriginEphemeral Origin = "ephemeral"
	OriginExisting  Origin = "existing"
)

// SearchPathSnapshot is the user search list and default keychain captured
// before a run changes them. It cannot be modified once captured.
type SearchPathSnapshot struct {
	searchList      []string
	defaultKeychain string
}

// NewSearchPathSnapshot constructs a snapshot. An empty defaultKeychain means none was set.
func NewSearchPathSnapshot(searchList []string, defaultKeychain string) SearchPathSnapshot {
	return SearchPathSnapshot{searchList: append([]string{}, searchList...), defaultKeychain: defaultKeychain}
}

// SearchList returns a copy of the captured search list in order.
func (snapshot SearchPathSnapshot) SearchList() []string {
	return append([]string{}, snapshot.searchList...)
}

// DefaultKeychain returns the captured default keychain, or "" when none was set.
func (snapshot SearchPathSnapshot) DefaultKeychain() string {
	return snapshot.defaultKeychain
}

// HasDefault reports whether a default keychain was captured.
func (snapshot SearchPathSnapshot) HasDefault() bool {
	return snapshot.defaultKeychain != ""
}

// Runtime is the process-local state of the active keychain.
type Runtime struct {
	Path     string
	Password string
	Origin   Origin
	State    State
	// Snapshot is set only for existing keychains, once captured.
	Snapshot *SearchPathSnapshot
}

// EphemeralKeychainName returns the keychain name for a job. Path separators become hyphens.
func EphemeralKeychainName(jobFullName string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-")
	return EphemeralNamePrefix + replacer.Replace(jobFullName)
}

// EphemeralPassword returns debugPassword when set, else a random UUID.
func EphemeralPassword(debugPassword string) string {
	if debugPassword != "" {
		return debugPassword
	}
	return uuid.NewString()
}

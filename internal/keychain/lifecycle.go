package keychain

import (
	"context"
	"strings"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/pkg/logging"
)

const (
	logMessageStateChanged        = "keychain state changed"
	logMessageDefaultKeychainKept = "default keychain already set"

	logFieldKeychain = "keychain"
	logFieldOrigin   = "origin"
	logFieldState    = "state"
	logFieldStrategy = "strategy"
)

var allowedTransitions = map[Origin]map[State]State{
	OriginEphemeral: {
		StateAbsent:              StateCreated,
		StateCreated:             StateUnlocked,
		StateUnlocked:            StateSearchPathSet,
		StateSearchPathSet:       StatePartitionConfigured,
		StatePartitionConfigured: StateDefaultSet,
	},
	OriginExisting: {
		StateAbsent: StateUnlocked,
	},
}

// Lifecycle brings one keychain to a usable state. Ephemeral keychains walk
// every State; existing keychains only reach StateUnlocked, with the host
// search path captured first and restored by Restore.
type Lifecycle struct {
	invoker        *execution.Invoker
	loggingService *logging.Service
	restorer       *SearchPathRestorer
	strategy       AccessStrategy
	runtime        Runtime
	restored       bool
}

// NewEphemeralLifecycle constructs a Lifecycle that creates keychainPath with password.
func NewEphemeralLifecycle(invoker *execution.Invoker, loggingService *logging.Service, strategy AccessStrategy, keychainPath string, password string) *Lifecycle {
	return &Lifecycle{
		invoker:        invoker,
		loggingService: loggingService,
		strategy:       strategy,
		runtime:        Runtime{Path: keychainPath, Password: password, Origin: OriginEphemeral, State: StateAbsent},
	}
}

// NewExistingLifecycle constructs a Lifecycle that unlocks the keychain at keychainPath.
func NewExistingLifecycle(invoker *execution.Invoker, loggingService *logging.Service, restorer *SearchPathRestorer, strategy AccessStrategy, keychainPath string, password string) *Lifecycle {
	return &Lifecycle{
		invoker:        invoker,
		loggingService: loggingService,
		restorer:       restorer,
		strategy:       strategy,
		runtime:        Runtime{Path: keychainPath, Password: password, Origin: OriginExisting, State: StateAbsent},
	}
}

// Runtime returns a copy of the current runtime state.
func (lifecycle *Lifecycle) Runtime() Runtime {
	return lifecycle.runtime
}

// Strategy returns the access strategy of the run.
func (lifecycle *Lifecycle) Strategy() AccessStrategy {
	return lifecycle.strategy
}

// Prepare makes the keychain ready for identity imports. Ephemeral keychains
// end in StateSearchPathSet, existing keychains in StateUnlocked.
func (lifecycle *Lifecycle) Prepare(ctx context.Context) error {
	if lifecycle.runtime.Origin == OriginExisting {
		return lifecycle.prepareExisting(ctx)
	}
	steps := []func(context.Context) error{lifecycle.Create, lifecycle.Unlock, lifecycle.SetSearchPath}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Finalize completes an ephemeral keychain after identities were imported.
// It does nothing for existing keychains.
func (lifecycle *Lifecycle) Finalize(ctx context.Context) error {
	if lifecycle.runtime.Origin == OriginExisting {
		return nil
	}
	if err := lifecycle.ConfigurePartition(ctx); err != nil {
		return err
	}
	return lifecycle.SetDefault(ctx)
}

// Create deletes any keychain left at the path and creates a fresh one.
func (lifecycle *Lifecycle) Create(ctx context.Context) error {
	if err := lifecycle.checkTransition(StateCreated); err != nil {
		return err
	}
	if _, err := lifecycle.invoker.Attempt(ctx, deleteKeychainCommand(lifecycle.runtime.Path)); err != nil && failure.IsCancelled(err) {
		return err
	}
	if _, err := lifecycle.invoker.Require(ctx, createKeychainCommand(lifecycle.runtime.Path, lifecycle.runtime.Password), "failed to create keychain"); err != nil {
		return err
	}
	return lifecycle.advance(StateCreated)
}

// Unlock unlocks the keychain with its password.
func (lifecycle *Lifecycle) Unlock(ctx context.Context) error {
	if err := lifecycle.checkTransition(StateUnlocked); err != nil {
		return err
	}
	if _, err := lifecycle.invoker.Require(ctx, unlockKeychainCommand(lifecycle.runtime.Path, lifecycle.runtime.Password), "failed to unlock keychain"); err != nil {
		return err
	}
	return lifecycle.advance(StateUnlocked)
}

// SetSearchPath sets the user search list to the login keychain and this keychain.
func (lifecycle *Lifecycle) SetSearchPath(ctx context.Context) error {
	if err := lifecycle.checkTransition(StateSearchPathSet); err != nil {
		return err
	}
	if _, err := lifecycle.invoker.Require(ctx, setSearchListCommand("login.keychain", lifecycle.runtime.Path), "failed to set keychain search path"); err != nil {
		return err
	}
	return lifecycle.advance(StateSearchPathSet)
}

// ConfigurePartition grants the signing tools access to imported keys. It runs
// no command under TrustAnchorStrategy, where access was granted at import.
func (lifecycle *Lifecycle) ConfigurePartition(ctx context.Context) error {
	if err := lifecycle.checkTransition(StatePartitionConfigured); err != nil {
		return err
	}
	if _, partitionList := lifecycle.strategy.(PartitionListStrategy); partitionList {
		if _, err := lifecycle.invoker.Require(ctx, setPartitionListCommand(lifecycle.runtime.Path, lifecycle.runtime.Password), "failed to set key partition list"); err != nil {
			return err
		}
	}
	return lifecycle.advance(StatePartitionConfigured)
}

// SetDefault makes this keychain the user default when no default is set.
func (lifecycle *Lifecycle) SetDefault(ctx context.Context) error {
	if err := lifecycle.checkTransition(StateDefaultSet); err != nil {
		return err
	}
	probe := probeDefaultKeychainCommand()
	result, err := lifecycle.invoker.Attempt(ctx, probe)
	if err != nil {
		return err
	}
	if strings.Contains(result.Output, NoDefaultKeychainSentinel) {
		if _, setErr := lifecycle.invoker.Require(ctx, setDefaultKeychainCommand(lifecycle.runtime.Path), "failed to set default keychain"); setErr != nil {
			return setErr
		}
	} else if verifyErr := lifecycle.invoker.Verify(probe, result, "failed to read default keychain"); verifyErr != nil {
		return verifyErr
	} else {
		lifecycle.loggingService.Info(logMessageDefaultKeychainKept, logging.String(logFieldDefaultKeychain, strings.TrimSpace(result.Output)))
	}
	return lifecycle.advance(StateDefaultSet)
}

func (lifecycle *Lifecycle) prepareExisting(ctx context.Context) error {
	if err := lifecycle.checkTransition(StateUnlocked); err != nil {
		return err
	}
	if lifecycle.restorer == nil {
		return failure.NewConfigurationError("existing keychain %s requires a search path restorer", lifecycle.runtime.Path)
	}
	snapshot, captureErr := lifecycle.restorer.Capture(ctx)
	if captureErr != nil {
		return captureErr
	}
	lifecycle.runtime.Snapshot = &snapshot

	searchList := []string{lifecycle.runtime.Path}
	for _, entry := range snapshot.SearchList() {
		if entry != lifecycle.runtime.Path {
			searchList = append(searchList, entry)
		}
	}
	type step struct {
		commandLine    *execution.CommandLine
		failureMessage string
	}
	commands := []step{{commandLine: setSearchListCommand(searchList...), failureMessage: "failed to set keychain search path"}}
	// Only a captured default can be put back by Restore.
	if snapshot.HasDefault() {
		commands = append(commands, step{commandLine: setDefaultKeychainCommand(lifecycle.runtime.Path), failureMessage: "failed to set default keychain"})
	}
	commands = append(commands, step{commandLine: unlockKeychainCommand(lifecycle.runtime.Path, lifecycle.runtime.Password), failureMessage: "failed to unlock keychain"})
	for _, command := range commands {
		if _, err := lifecycle.invoker.Require(ctx, command.commandLine, command.failureMessage); err != nil {
			lifecycle.Restore(ctx)
			return err
		}
	}
	return lifecycle.advance(StateUnlocked)
}

// Restore puts back the search path captured for an existing keychain. It
// runs at most once and does nothing for ephemeral keychains.
func (lifecycle *Lifecycle) Restore(ctx context.Context) {
	if lifecycle.restored || lifecycle.runtime.Snapshot == nil || lifecycle.restorer == nil {
		return
	}
	lifecycle.restored = true
	lifecycle.restorer.Restore(ctx, *lifecycle.runtime.Snapshot)
}

func (lifecycle *Lifecycle) checkTransition(target State) error {
	next, allowed := allowedTransitions[lifecycle.runtime.Origin][lifecycle.runtime.State]
	if !allowed || next != target {
		return failure.NewConfigurationError("%s keychain cannot move from %s to %s", lifecycle.runtime.Origin, lifecycle.runtime.State, target)
	}
	return nil
}

func (lifecycle *Lifecycle) advance(target State) error {
	if err := lifecycle.checkTransition(target); err != nil {
		return err
	}
	lifecycle.runtime.State = target
	lifecycle.loggingService.Info(logMessageStateChanged,
		logging.String(logFieldKeychain, lifecycle.runtime.Path),
		logging.String(logFieldOrigin, string(lifecycle.runtime.Origin)),
		logging.String(logFieldState, target.String()),
		logging.String(logFieldStrategy, lifecycle.strategy.Name()),
	)
	return nil
}

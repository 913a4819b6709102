package keychain_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/keychain"
)

func TestRemoverDropsKeychainFromSearchListAndDeletesIt(t *testing.T) {
	harness := newLifecycleHarness(t)
	harness.runner.RespondOnce(execution.Result{Output: "    \"" + testLoginKeychain + "\"\n    \"/Users/ci/Library/Keychains/" + testEphemeralPath + ".keychain-db\"\n"}, "security", "list-keychains", "-d", "user")
	remover := keychain.NewRemover(harness.invoker, harness.logger)

	if err := remover.Remove(context.Background(), testEphemeralPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	expected := [][]string{
		{"security", "list-keychains", "-d", "user"},
		{"security", "list-keychains", "-d", "user", "-s", testLoginKeychain},
		{"security", "delete-keychain", testEphemeralPath},
	}
	if actual := argvOf(harness.runner.Executed()); !reflect.DeepEqual(actual, expected) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func TestRemoverToleratesMissingKeychain(t *testing.T) {
	harness := newLifecycleHarness(t)
	harness.runner.
		RespondOnce(execution.Result{Output: "\"" + testLoginKeychain + "\"\n"}, "security", "list-keychains", "-d", "user").
		Respond(execution.Result{ExitCode: 50, Output: "security: SecKeychainDelete: The specified keychain could not be found."}, "security", "delete-keychain")
	remover := keychain.NewRemover(harness.invoker, harness.logger)

	if err := remover.Remove(context.Background(), testEphemeralPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(harness.runner.Subcommands(), []string{"list-keychains", "delete-keychain"}) {
		t.Fatalf("search list must stay untouched, got %v", harness.runner.Subcommands())
	}
}

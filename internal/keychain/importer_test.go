package keychain_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tyemirov/signkit/internal/execution"
	"github.com/tyemirov/signkit/internal/failure"
	"github.com/tyemirov/signkit/internal/keychain"
)

const testBundlePassword = "p12-bundle-secret"

type staticBundle struct {
	files map[string][]string
	err   error
}

func (bundle staticBundle) List(extension string) ([]string, error) {
	if bundle.err != nil {
		return nil, bundle.err
	}
	return bundle.files[extension], nil
}

func TestIdentityImporterImportsEveryIdentity(t *testing.T) {
	testCases := []struct {
		name          string
		strategy      keychain.AccessStrategy
		expectedFlags []string
	}{
		{name: "partition list", strategy: keychain.PartitionListStrategy{}},
		{name: "trust anchor", strategy: keychain.TrustAnchorStrategy{}, expectedFlags: []string{"-T", "/usr/bin/codesign", "-T", "/usr/bin/productsign"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			harness := newLifecycleHarness(t)
			importer := keychain.NewIdentityImporter(harness.invoker, harness.logger, testCase.strategy)
			bundle := staticBundle{files: map[string][]string{".p12": {"/work/a.p12", "/work/nested/b.p12"}}}

			imported, err := importer.Import(context.Background(), bundle, testEphemeralPath, testBundlePassword)
			if err != nil {
				t.Fatalf("import: %v", err)
			}
			if !reflect.DeepEqual(imported, []string{"/work/a.p12", "/work/nested/b.p12"}) {
				t.Fatalf("unexpected imported files %v", imported)
			}
			commands := harness.runner.Executed()
			if len(commands) != 2 {
				t.Fatalf("expected two imports, got %d", len(commands))
			}
			expectedArgv := append([]string{"security", "import", "/work/a.p12", "-k", testEphemeralPath, "-P", testBundlePassword}, testCase.expectedFlags...)
			if !reflect.DeepEqual(commands[0].Argv, expectedArgv) {
				t.Fatalf("expected %v, got %v", expectedArgv, commands[0].Argv)
			}
			if !reflect.DeepEqual(commands[0].MaskedIndices, []int{6}) {
				t.Fatalf("expected bundle password to be masked, got %v", commands[0].MaskedIndices)
			}
			if strings.Contains(harness.runner.Transcript(), testBundlePassword) || strings.Contains(harness.logBuffer.String(), testBundlePassword) {
				t.Fatalf("bundle password leaked")
			}
		})
	}
}

func TestIdentityImporterStopsAtFirstFailure(t *testing.T) {
	harness := newLifecycleHarness(t)
	harness.runner.Respond(execution.Result{ExitCode: 1, Output: "security: SecKeychainItemImport: MAC verification failed during PKCS12 import (wrong password?)"}, "security", "import", "/work/b.p12")
	importer := keychain.NewIdentityImporter(harness.invoker, harness.logger, keychain.PartitionListStrategy{})
	bundle := staticBundle{files: map[string][]string{".p12": {"/work/a.p12", "/work/b.p12", "/work/c.p12"}}}

	imported, err := importer.Import(context.Background(), bundle, testEphemeralPath, testBundlePassword)
	if !failure.IsCommand(err) {
		t.Fatalf("expected command error, got %v", err)
	}
	if !strings.Contains(err.Error(), "b.p12") {
		t.Fatalf("expected failing file in error, got %v", err)
	}
	if !reflect.DeepEqual(imported, []string{"/work/a.p12"}) {
		t.Fatalf("expected earlier imports to be kept, got %v", imported)
	}
	if len(harness.runner.Find("security", "import", "/work/c.p12")) != 0 {
		t.Fatalf("import must stop after the failing file")
	}
	if !strings.Contains(harness.logBuffer.String(), "MAC verification failed") {
		t.Fatalf("expected command output to be logged:\n%s", harness.logBuffer.String())
	}
}

func TestIdentityImporterWithoutIdentities(t *testing.T) {
	harness := newLifecycleHarness(t)
	importer := keychain.NewIdentityImporter(harness.invoker, harness.logger, keychain.PartitionListStrategy{})

	imported, err := importer.Import(context.Background(), staticBundle{}, testEphemeralPath, testBundlePassword)
	if err != nil || len(imported) != 0 {
		t.Fatalf("expected no imports and no error, got %v, %v", imported, err)
	}
	if len(harness.runner.Executed()) != 0 {
		t.Fatalf("expected no commands")
	}

	listErr := errors.New("walk failed")
	if _, err := importer.Import(context.Background(), staticBundle{err: listErr}, testEphemeralPath, testBundlePassword); !errors.Is(err, listErr) {
		t.Fatalf("expected list error, got %v", err)
	}
}

package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const promptKeychainPassword = "Keychain password: "

// passwordReader returns a secret typed by the operator.
type passwordReader func(prompt string) (string, error)

// readTerminalPassword reads without echo from a terminal, or the whole of a piped stdin.
func readTerminalPassword(prompt string) (string, error) {
	fileDescriptor := int(os.Stdin.Fd())
	if term.IsTerminal(fileDescriptor) {
		fmt.Fprint(os.Stderr, prompt)
		password, err := term.ReadPassword(fileDescriptor)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(password), nil
	}
	password, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	return strings.TrimRight(string(password), "\r\n"), nil
}

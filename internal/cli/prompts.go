package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	courierr "github.com/mrz1836/courier/pkg/errors"
)

// minPassphraseLength applies to new keystore passphrases.
const minPassphraseLength = 8

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // test seams
var (
	promptPassphraseFn = promptPassphrase
	promptMnemonicFn   = promptMnemonic
)

// promptPassphrase reads a passphrase without echo. The caller zeroes the
// result.
func promptPassphrase(prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd fits in int
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, courierr.Wrap(err, "reading passphrase")
	}
	return pass, nil
}

// promptMnemonic reads a mnemonic phrase from one line of stdin.
func promptMnemonic() (string, error) {
	_, _ = fmt.Fprint(os.Stderr, "Enter mnemonic (all words on one line): ")
	var line string
	if term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // G115: Fd fits in int
		raw, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd fits in int
		_, _ = fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", courierr.Wrap(err, "reading mnemonic")
		}
		line = string(raw)
		zero(raw)
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return "", courierr.WithDetails(courierr.ErrIncompleteForm, map[string]string{"field": "mnemonic"})
		}
		line = scanner.Text()
	}
	return strings.TrimSpace(line), nil
}

// unlockPassphrase asks for the keystore passphrase. With confirm set it
// asks twice and enforces the minimum length.
func unlockPassphrase(confirm bool) ([]byte, error) {
	pass, err := promptPassphraseFn("Keystore passphrase: ")
	if err != nil {
		return nil, err
	}
	if !confirm {
		return pass, nil
	}
	if len(pass) < minPassphraseLength {
		zero(pass)
		return nil, courierr.WithSuggestion(courierr.ErrInvalidInput, "passphrase must be at least 8 characters")
	}
	again, err := promptPassphraseFn("Confirm passphrase: ")
	if err != nil {
		zero(pass)
		return nil, err
	}
	defer zero(again)
	if string(pass) != string(again) {
		zero(pass)
		return nil, courierr.WithSuggestion(courierr.ErrInvalidInput, "passphrases do not match")
	}
	return pass, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

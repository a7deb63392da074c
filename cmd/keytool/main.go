// Command keytool encrypts a Binance API secret for use with the
// binance.encrypted_key_path config option. The plaintext secret is read from
// stdin so it never appears in shell history or the process list.
//
//	echo -n "$API_SECRET" | keytool -out secret.enc
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/alanyoungcy/futuresbot/internal/crypto"
)

func main() {
	outPath := flag.String("out", "secret.enc", "output path for the encrypted secret")
	flag.Parse()

	secret, err := readSecret(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keytool: read secret: %v\n", err)
		os.Exit(1)
	}

	password, err := readPassword()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keytool: read password: %v\n", err)
		os.Exit(1)
	}

	blob, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keytool: encrypt: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*outPath, blob, 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "keytool: write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("encrypted secret written to %s\n", *outPath)
}

func readSecret(r io.Reader) (string, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("empty secret on stdin")
	}
	return secret, nil
}

// readPassword prompts on the terminal twice and requires both entries to
// match. Falls back to the KEYTOOL_PASSWORD variable for non-interactive use.
func readPassword() (string, error) {
	if pw := os.Getenv("KEYTOOL_PASSWORD"); pw != "" {
		return pw, nil
	}

	tty, err := os.Open("/dev/tty")
	if err != nil {
		return "", fmt.Errorf("no terminal for password prompt (set KEYTOOL_PASSWORD): %w", err)
	}
	defer tty.Close()

	fmt.Fprint(os.Stderr, "password: ")
	first, err := term.ReadPassword(int(tty.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}

	fmt.Fprint(os.Stderr, "confirm: ")
	second, err := term.ReadPassword(int(tty.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(first) == 0 {
		return "", fmt.Errorf("empty password")
	}
	return string(first), nil
}

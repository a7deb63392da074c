package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := DecryptSecret(blob, "hunter2")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != "super-secret-api-key" {
		t.Fatalf("decrypted = %q", got)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("super-secret-api-key", "hunter2")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptSecret(blob, "wrong"); err == nil {
		t.Fatal("expected error for wrong password")
	}
}

func TestEncryptRejectsEmptyInputs(t *testing.T) {
	if _, err := EncryptSecret("", "pw"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := EncryptSecret("secret", ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestLoadSecretResolution(t *testing.T) {
	if got, err := LoadSecret(SecretConfig{RawSecret: "raw"}); err != nil || got != "raw" {
		t.Fatalf("raw secret: %q, %v", got, err)
	}

	blob, err := EncryptSecret("from-file", "pw")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	path := filepath.Join(t.TempDir(), "secret.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := LoadSecret(SecretConfig{EncryptedPath: path, Password: "pw"})
	if err != nil {
		t.Fatalf("load from file: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("loaded = %q", got)
	}

	if _, err := LoadSecret(SecretConfig{}); err == nil {
		t.Fatal("expected error when no source configured")
	}
}

package smtp

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	secret := "app-secret-key"
	plaintext := []byte("hunter2-smtp-password")

	ciphertext, err := encrypt(plaintext, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext must not contain the plaintext")
	}

	decrypted, err := decrypt(ciphertext, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("roundtrip mismatch: %q", decrypted)
	}
}

func TestDecryptWithWrongSecretFails(t *testing.T) {
	ciphertext, err := encrypt([]byte("password"), "secret-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := decrypt(ciphertext, "secret-b"); err == nil {
		t.Error("decryption with the wrong secret must fail")
	}
}

func TestEncryptEmptyInput(t *testing.T) {
	ciphertext, err := encrypt(nil, "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ciphertext != nil {
		t.Error("empty plaintext must encrypt to nil")
	}
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	if _, err := decrypt([]byte{0x01, 0x02}, "secret"); err == nil {
		t.Error("truncated ciphertext must be rejected")
	}
}

package security

import (
	"errors"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSealOpen(t *testing.T) {
	svc, err := NewEncryptionService(testKey)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := svc.Seal([]byte("sk-secret"), "client-1")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := svc.Seal([]byte("sk-secret"), "client-1")
	if sealed == again {
		t.Fatal("nonce reused")
	}
	pt, err := svc.Open(sealed, "client-1")
	if err != nil || string(pt) != "sk-secret" {
		t.Fatalf("Open = %q, %v", pt, err)
	}
	if _, err := svc.Open(sealed, "client-2"); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("opened under another context: %v", err)
	}
	if _, err := svc.Open("%%%", "client-1"); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("bad base64: %v", err)
	}
	if _, err := svc.Open("AAAA", "client-1"); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("short input: %v", err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	svc, _ := NewEncryptionService(testKey[:16])
	ct, err := svc.Encrypt("hello")
	if err != nil {
		t.Fatal(err)
	}
	if pt, err := svc.Decrypt(ct); err != nil || pt != "hello" {
		t.Fatalf("Decrypt = %q, %v", pt, err)
	}
	other, _ := NewEncryptionService("ffffffffffffffff")
	if _, err := other.Decrypt(ct); err == nil {
		t.Fatal("decrypted with wrong key")
	}
}

func TestNewEncryptionService_KeyLength(t *testing.T) {
	if _, err := NewEncryptionService("short"); err == nil {
		t.Fatal("expected key length error")
	}
}

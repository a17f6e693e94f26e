package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func newTestEncryptor(t *testing.T) *AESEncryptor {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	enc, err := NewAESEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("NewAESEncryptor() error = %v", err)
	}
	return enc
}

func TestNewAESEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr string
	}{
		{"empty key", "", "encryption key is empty"},
		{"invalid base64", "not-valid-base64!@#$", "base64 decode failed"},
		{"key too short", base64.StdEncoding.EncodeToString(make([]byte, 16)), "must be 32 bytes"},
		{"valid", base64.StdEncoding.EncodeToString(make([]byte, 32)), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESEncryptor(tt.key)
			if tt.wantErr == "" {
				if err != nil || enc == nil {
					t.Fatalf("NewAESEncryptor() = %v, %v", enc, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewAESEncryptor() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	enc := newTestEncryptor(t)
	for _, s := range []string{"abc123", "oauth:0123456789abcdefghijkl", strings.Repeat("x", 512)} {
		sealed, err := EncryptString(enc, s)
		if err != nil {
			t.Fatalf("EncryptString: %v", err)
		}
		if sealed == s {
			t.Error("EncryptString returned plaintext")
		}
		got, err := DecryptString(enc, sealed)
		if err != nil || got != s {
			t.Errorf("DecryptString = %q, %v; want %q", got, err, s)
		}
	}
}

func TestEmptyStringsPassThrough(t *testing.T) {
	enc := newTestEncryptor(t)
	if s, err := EncryptString(enc, ""); s != "" || err != nil {
		t.Errorf("EncryptString(\"\") = %q, %v", s, err)
	}
	if s, err := DecryptString(enc, ""); s != "" || err != nil {
		t.Errorf("DecryptString(\"\") = %q, %v", s, err)
	}
}

func TestNonceIsRandom(t *testing.T) {
	enc := newTestEncryptor(t)
	a, _ := EncryptString(enc, "same")
	b, _ := EncryptString(enc, "same")
	if a == b {
		t.Error("two encryptions of the same plaintext are identical")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc := newTestEncryptor(t)
	ct, err := enc.Encrypt([]byte("token"))
	if err != nil {
		t.Fatal(err)
	}
	ct[len(ct)-1] ^= 0xff
	if _, err := enc.Decrypt(ct); !errors.Is(err, ErrOpen) {
		t.Errorf("Decrypt(tampered) error = %v, want ErrOpen", err)
	}
	if _, err := enc.Decrypt(ct[:4]); err == nil {
		t.Error("Decrypt(short) succeeded")
	}

	other := newTestEncryptor(t)
	good, _ := enc.Encrypt([]byte("token"))
	if _, err := other.Decrypt(good); !errors.Is(err, ErrOpen) {
		t.Errorf("Decrypt with wrong key error = %v, want ErrOpen", err)
	}
}

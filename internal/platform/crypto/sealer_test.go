package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestSealRoundTrip(t *testing.T) {
	svc, err := New(testKey)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sealed, err := svc.Seal("JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "JBSWY3DPEHPK3PXP") {
		t.Fatalf("expected opaque sealed value, got %q", sealed)
	}
	again, _ := svc.Seal("JBSWY3DPEHPK3PXP")
	if again == sealed {
		t.Fatalf("expected a fresh nonce per seal")
	}
	plain, err := svc.Open(sealed)
	if err != nil || plain != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("open = %q, %v", plain, err)
	}
}

func TestOpenPlaintextPassesThrough(t *testing.T) {
	svc, _ := New(testKey)
	plain, err := svc.Open("LEGACYSECRET")
	if err != nil || plain != "LEGACYSECRET" {
		t.Fatalf("open legacy = %q, %v", plain, err)
	}
}

func TestUnconfiguredService(t *testing.T) {
	svc, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sealed, err := svc.Seal("SECRET")
	if err != nil || sealed != "SECRET" {
		t.Fatalf("expected pass-through seal, got %q %v", sealed, err)
	}

	keyed, _ := New(testKey)
	value, _ := keyed.Seal("SECRET")
	if _, err := svc.Open(value); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("expected ErrKeyRequired, got %v", err)
	}
}

func TestKeyEncodings(t *testing.T) {
	raw := []byte(testKey)
	for name, key := range map[string]string{
		"raw":    testKey,
		"hex":    "3031323334353637383961626364656630313233343536373839616263646566",
		"base64": base64.StdEncoding.EncodeToString(raw),
	} {
		svc, err := New(key)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if string(svc.key) != testKey {
			t.Fatalf("%s decoded to %q", name, svc.key)
		}
	}

	if _, err := New("short"); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}

func TestTamperedValueFails(t *testing.T) {
	svc, _ := New(testKey)
	sealed, _ := svc.Seal("SECRET")
	tampered := sealed[:len(sealed)-2] + "AA"
	if tampered == sealed {
		tampered = sealed[:len(sealed)-2] + "BB"
	}
	if _, err := svc.Open(tampered); err == nil {
		t.Fatalf("expected tampered value to fail")
	}
}

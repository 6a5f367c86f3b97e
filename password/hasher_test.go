package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	cfg := secureConfig()
	cfg.Memory = 8 * 1024
	cfg.Time = 1
	h, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHasherVerifiesBcrypt(t *testing.T) {
	h := newTestHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("imported-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	ok, err := h.Verify("imported-secret", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify: ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("not-the-secret", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected bcrypt mismatch: ok=%v err=%v", ok, err)
	}
	if !h.NeedsRehash(string(legacy)) {
		t.Fatal("bcrypt hashes should always be flagged for rehash")
	}
}

func TestHasherArgonRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("fresh-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	ok, err := h.Verify("fresh-password", hash)
	if err != nil || !ok {
		t.Fatalf("expected argon2 hash to verify: ok=%v err=%v", ok, err)
	}
	if h.NeedsRehash(hash) {
		t.Fatal("hash made with current parameters should not need rehash")
	}
}

func TestHasherRejectsUnknownFormat(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Verify("whatever1", "$1$md5crypt$abc"); err != ErrUnsupportedHash {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	if h.NeedsRehash("plaintext") {
		t.Fatal("unknown formats are not rehash candidates")
	}
}

func TestBcryptLongPasswordNeverMatches(t *testing.T) {
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	hash, err := b.Hash("seventy-two-limit")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	long := "seventy-two-limit" + string(make([]byte, 80))
	ok, err := b.Verify(long, hash)
	if err != nil || ok {
		t.Fatalf("expected over-long password to fail closed: ok=%v err=%v", ok, err)
	}
}

package auth

import (
	"errors"
	"strings"
	"testing"
)

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := NewPasswordServiceForTest()

	hash, err := ps.Hash("Password1!")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	// bcrypt hashes always start with $2a$ or $2b$
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	ps := NewPasswordServiceForTest()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_Length(t *testing.T) {
	ps := NewPasswordServiceForTest()

	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}
	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Fatal("Hash() should return an error for passwords longer than 72 bytes")
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify(t *testing.T) {
	ps := NewPasswordServiceForTest()
	hash, err := ps.Hash("Correct-Horse-1")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if err := ps.Verify(hash, "Correct-Horse-1"); err != nil {
		t.Errorf("Verify() should return nil for a correct password, got: %v", err)
	}

	for _, wrong := range []string{"correct-horse-1", "", "Correct-Horse-1 "} {
		if err := ps.Verify(hash, wrong); !errors.Is(err, ErrPasswordMismatch) {
			t.Errorf("Verify(%q) error = %v, want ErrPasswordMismatch", wrong, err)
		}
	}
}

func TestVerify_GarbageHash(t *testing.T) {
	ps := NewPasswordServiceForTest()

	err := ps.Verify("not-a-valid-bcrypt-hash", "password")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("Verify() with a garbage hash error = %v, want a hash error", err)
	}
}

func TestVerifyDummy_AlwaysFails(t *testing.T) {
	ps := NewPasswordServiceForTest()

	for _, pw := range []string{"dummy-password-for-timing", "anything"} {
		if err := ps.VerifyDummy(pw); !errors.Is(err, ErrPasswordMismatch) {
			t.Errorf("VerifyDummy(%q) = %v, want ErrPasswordMismatch", pw, err)
		}
	}
}

package hasher

import "testing"

func TestBcrypt_HashAndVerify(t *testing.T) {
	t.Parallel()

	h := NewBcrypt()

	digest, err := h.Hash("Secret1!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if digest == "Secret1!" {
		t.Fatal("digest must not equal the plaintext")
	}

	if !h.Verify("Secret1!", digest) {
		t.Fatal("expected matching password to verify")
	}

	if h.Verify("wrong", digest) {
		t.Fatal("expected mismatched password to fail")
	}
}

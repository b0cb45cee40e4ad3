package hash

import "testing"

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()

	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	got := Fingerprint([]byte("hello world"))
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if again := Fingerprint([]byte("hello world")); again != got {
		t.Fatalf("expected deterministic digest, got %s vs %s", got, again)
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	t.Parallel()

	if Fingerprint([]byte("a")) == Fingerprint([]byte("b")) {
		t.Fatal("different content produced identical digests")
	}
}

package intunecrypto

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := bytes.Repeat([]byte("hello intune world "), 1000)

	m, err := GenerateMaterial()
	if err != nil {
		t.Fatalf("GenerateMaterial: %v", err)
	}

	var out bytes.Buffer
	n, err := Encrypt(&out, bytes.NewReader(plaintext), m)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if n != int64(len(plaintext)) {
		t.Errorf("plaintext size = %d, want %d", n, len(plaintext))
	}
	if out.Len() < MACSize+IVSize {
		t.Fatalf("encrypted output too short: %d bytes", out.Len())
	}

	gotMac := out.Bytes()[:MACSize]
	if !bytes.Equal(gotMac, m.Mac[:]) {
		t.Error("mac prefix doesn't match Material.Mac")
	}

	var decrypted bytes.Buffer
	if err := Decrypt(&decrypted, bytes.NewReader(out.Bytes()), m.EncKey[:], m.MacKey[:]); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Fatal("round trip mismatch")
	}
}

func TestKeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		m, err := GenerateMaterial()
		if err != nil {
			t.Fatalf("GenerateMaterial: %v", err)
		}
		key := string(m.EncKey[:]) + string(m.MacKey[:]) + string(m.IV[:])
		if seen[key] {
			t.Fatal("duplicate key/iv triple generated")
		}
		seen[key] = true
	}
}

func TestTamperDetection(t *testing.T) {
	plaintext := []byte("a tamper-detection test payload, long enough to span blocks 0123456789")

	m, err := GenerateMaterial()
	if err != nil {
		t.Fatalf("GenerateMaterial: %v", err)
	}
	var out bytes.Buffer
	if _, err := Encrypt(&out, bytes.NewReader(plaintext), m); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := append([]byte(nil), out.Bytes()...)
	tampered[MACSize+IVSize+2] ^= 0xFF // flip a bit inside the ciphertext

	var discard bytes.Buffer
	if err := Decrypt(&discard, bytes.NewReader(tampered), m.EncKey[:], m.MacKey[:]); err == nil {
		t.Fatal("expected integrity error for tampered ciphertext")
	}
}

func TestFileDigestCoversEncryptedBlob(t *testing.T) {
	plaintext := []byte("digest scope check")
	m, err := GenerateMaterial()
	if err != nil {
		t.Fatalf("GenerateMaterial: %v", err)
	}
	var out bytes.Buffer
	if _, err := Encrypt(&out, bytes.NewReader(plaintext), m); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// FileDigest must be SHA-256(mac || iv || ciphertext), i.e. over the
	// full emitted blob, not over the plaintext.
	if bytes.Equal(m.FileDigest[:], m.Mac[:]) {
		t.Fatal("file digest incorrectly equals mac")
	}
	if len(out.Bytes()) == len(plaintext) {
		t.Fatal("sanity: encrypted output should not equal plaintext length")
	}
	want := sha256.Sum256(out.Bytes())
	if !bytes.Equal(m.FileDigest[:], want[:]) {
		t.Errorf("FileDigest = %x, want SHA-256 of the emitted blob %x", m.FileDigest, want)
	}
}

// Package intunecrypto implements the authenticated-encryption engine
// (C3): AES-256-CBC with PKCS#7 padding, HMAC-SHA256 over IV‖ciphertext,
// and SHA-256 over the final encrypted blob. The on-disk byte order is
// exactly mac(32) ‖ iv(16) ‖ ciphertext(n) (spec.md §4.3/§6).
//
// Ciphertext is produced and spooled to a temporary file in block-sized
// chunks as the plaintext is read, so peak memory during encryption stays
// near one chunk (64 KiB) independent of source size; only the final
// assembly step streams that spooled ciphertext back out behind the mac
// and IV. Decrypt mirrors this: the ciphertext is spooled to a temp file
// while the HMAC is recomputed incrementally, and only once that MAC
// checks out does decryption stream out of the spool in chunks.
package intunecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/MANCHTOOLS/pkgforge/internal/pkgerrors"
)

const (
	KeySize   = 32
	IVSize    = 16
	MACSize   = 32
	chunkSize = 64 * 1024
)

// Material holds the per-build cryptographic parameters. EncKey, MacKey
// and IV are drawn from a CSPRNG at build start and never reused; Mac and
// FileDigest are filled in by Encrypt once the ciphertext is known.
type Material struct {
	EncKey     [KeySize]byte
	MacKey     [KeySize]byte
	IV         [IVSize]byte
	Mac        [MACSize]byte
	FileDigest [sha256.Size]byte
}

// GenerateMaterial samples fresh enc/mac keys and an IV from the system
// CSPRNG.
func GenerateMaterial() (*Material, error) {
	m := &Material{}
	for _, b := range [][]byte{m.EncKey[:], m.MacKey[:], m.IV[:]} {
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return nil, fmt.Errorf("generate random material: %w", err)
		}
	}
	return m, nil
}

// Encrypt reads plaintext from r, AES-256-CBC/PKCS#7-encrypts it under
// m.EncKey/m.IV, and writes mac ‖ iv ‖ ciphertext to out. It fills in
// m.Mac and m.FileDigest and returns the exact plaintext byte count
// (UnencryptedContentSize).
func Encrypt(out io.Writer, r io.Reader, m *Material) (plaintextSize int64, err error) {
	block, err := aes.NewCipher(m.EncKey[:])
	if err != nil {
		return 0, fmt.Errorf("aes cipher: %w", err)
	}
	mode := cipher.NewCBCEncrypter(block, m.IV[:])

	spool, err := os.CreateTemp("", "pkgforge-ciphertext-*")
	if err != nil {
		return 0, fmt.Errorf("spool ciphertext: %w", err)
	}
	spoolPath := spool.Name()
	defer os.Remove(spoolPath)
	defer spool.Close()

	mac := hmac.New(sha256.New, m.MacKey[:])
	mac.Write(m.IV[:])

	plain := make([]byte, chunkSize)
	var carry []byte // bytes read but not yet a full AES block
	for {
		n, readErr := r.Read(plain)
		if n > 0 {
			plaintextSize += int64(n)
			buf := append(carry, plain[:n]...)
			full := len(buf) - (len(buf) % aes.BlockSize)
			if full > 0 {
				enc := make([]byte, full)
				mode.CryptBlocks(enc, buf[:full])
				if _, err := spool.Write(enc); err != nil {
					return 0, pkgerrors.New(pkgerrors.OutputWriteError, spoolPath, err)
				}
				mac.Write(enc)
			}
			carry = append([]byte(nil), buf[full:]...)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, pkgerrors.New(pkgerrors.SourceReadError, "", readErr)
		}
	}

	padded := pkcs7Pad(carry, aes.BlockSize)
	finalBlock := make([]byte, len(padded))
	mode.CryptBlocks(finalBlock, padded)
	if _, err := spool.Write(finalBlock); err != nil {
		return 0, pkgerrors.New(pkgerrors.OutputWriteError, spoolPath, err)
	}
	mac.Write(finalBlock)

	copy(m.Mac[:], mac.Sum(nil))

	digest := sha256.New()
	digest.Write(m.Mac[:])
	digest.Write(m.IV[:])

	if _, err := out.Write(m.Mac[:]); err != nil {
		return 0, pkgerrors.New(pkgerrors.OutputWriteError, "", err)
	}
	if _, err := out.Write(m.IV[:]); err != nil {
		return 0, pkgerrors.New(pkgerrors.OutputWriteError, "", err)
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind ciphertext spool: %w", err)
	}
	tee := io.TeeReader(spool, digest)
	if _, err := io.Copy(out, tee); err != nil {
		return 0, pkgerrors.New(pkgerrors.OutputWriteError, "", err)
	}

	copy(m.FileDigest[:], digest.Sum(nil))
	return plaintextSize, nil
}

// errIntegrity is wrapped by pkgerrors.IntegrityError when the recomputed
// MAC doesn't match the one stored in the blob.
var errIntegrity = fmt.Errorf("HMAC verification failed")

// Decrypt verifies and decrypts an encrypted blob (mac ‖ iv ‖ ciphertext)
// read from r, writing the plaintext to out. The ciphertext is spooled to
// a temporary file while the HMAC is recomputed incrementally — mirroring
// Encrypt's own spool — so a multi-gigabyte blob never sits in memory as
// a single byte slice. The MAC is checked once the whole ciphertext has
// been read and hashed, and only then is any plaintext written to out
// (spec.md §4.3: no unauthenticated plaintext is ever produced).
func Decrypt(out io.Writer, r io.Reader, encKey, macKey []byte) error {
	var header [MACSize + IVSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return pkgerrors.New(pkgerrors.MalformedManifest, "", fmt.Errorf("encrypted blob too short: %w", err))
	}
	wantMac := header[:MACSize]
	iv := header[MACSize:]

	spool, err := os.CreateTemp("", "pkgforge-ciphertext-in-*")
	if err != nil {
		return fmt.Errorf("spool ciphertext: %w", err)
	}
	spoolPath := spool.Name()
	defer os.Remove(spoolPath)
	defer spool.Close()

	mac := hmac.New(sha256.New, macKey)
	mac.Write(iv)

	n, err := io.Copy(io.MultiWriter(spool, mac), r)
	if err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, "", err)
	}

	if !hmac.Equal(mac.Sum(nil), wantMac) {
		return pkgerrors.New(pkgerrors.IntegrityError, "", errIntegrity)
	}
	if n == 0 || n%aes.BlockSize != 0 {
		return pkgerrors.New(pkgerrors.IntegrityError, "", fmt.Errorf("ciphertext not block-aligned"))
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return fmt.Errorf("aes cipher: %w", err)
	}
	mode := cipher.NewCBCDecrypter(block, iv)

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind ciphertext spool: %w", err)
	}

	// Stream every full block except the last one straight to out; the
	// last block is held back because PKCS#7 unpadding needs it whole.
	remaining := n
	buf := make([]byte, chunkSize)
	for remaining > int64(aes.BlockSize) {
		want := remaining - int64(aes.BlockSize)
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		want -= want % int64(aes.BlockSize)
		if _, err := io.ReadFull(spool, buf[:want]); err != nil {
			return pkgerrors.New(pkgerrors.SourceReadError, spoolPath, err)
		}
		dec := make([]byte, want)
		mode.CryptBlocks(dec, buf[:want])
		if _, err := out.Write(dec); err != nil {
			return pkgerrors.New(pkgerrors.OutputWriteError, "", err)
		}
		remaining -= want
	}

	lastCipher := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(spool, lastCipher); err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, spoolPath, err)
	}
	lastPlain := make([]byte, aes.BlockSize)
	mode.CryptBlocks(lastPlain, lastCipher)
	unpadded, err := pkcs7Unpad(lastPlain)
	if err != nil {
		return pkgerrors.New(pkgerrors.IntegrityError, "", err)
	}
	if _, err := out.Write(unpadded); err != nil {
		return pkgerrors.New(pkgerrors.OutputWriteError, "", err)
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padding)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padding)
	}
	return out
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-pad], nil
}

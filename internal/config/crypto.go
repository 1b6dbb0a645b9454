package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// saltVersion is baked into the derivation so a future key-derivation
// change can coexist with ciphertext produced under an older version.
const saltVersion = "v1"

const pbkdf2Iterations = 100_000

// deriveKey derives a 256-bit AES key via PBKDF2-HMAC-SHA256 from a
// host-stable identifier and the versioned salt, per §4.D.
func deriveKey() []byte {
	ident := hostIdentifier()
	salt := []byte("ai-consultation-daemon:" + saltVersion)
	return pbkdf2.Key([]byte(ident), salt, pbkdf2Iterations, 32, sha256.New)
}

func hostIdentifier() string {
	for _, name := range []string{"USER", "USERNAME", "HOME"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return "ai-consultation-daemon"
}

// encryptCredential encrypts plaintext with AES-256-GCM under the derived
// key. Ciphertext layout: IV(16) || TAG(16) || CT, base64-encoded.
// AES-GCM's standard nonce size is 12 bytes but §4.D specifies a 16-byte
// IV field, so we use a 16-byte nonce explicitly rather than the cipher
// package's default.
func encryptCredential(plaintext string) (string, error) {
	block, err := aes.NewCipher(deriveKey())
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	// gcm.Seal appends the 16-byte tag to the ciphertext; split so the
	// wire layout matches IV || TAG || CT exactly.
	ct := sealed[:len(sealed)-16]
	tag := sealed[len(sealed)-16:]

	out := append(append(append([]byte{}, iv...), tag...), ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// decryptCredential reverses encryptCredential. Decryption failure is a
// config error; reads must never return an undecryptable key to a caller.
func decryptCredential(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(raw) < 32 {
		return "", fmt.Errorf("ciphertext too short")
	}
	iv, tag, ct := raw[:16], raw[16:32], raw[32:]

	block, err := aes.NewCipher(deriveKey())
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}
	return string(plaintext), nil
}

// MaskKey reveals only the last 4 characters of k, per §8's round-trip
// law: eight bullets when |k| <= 4, else the bullets plus the last 4.
func MaskKey(k string) string {
	const bullets = "••••••••"
	if len(k) <= 4 {
		return bullets
	}
	return bullets + k[len(k)-4:]
}

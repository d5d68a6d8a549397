package credentials

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Marker starts every issued key; it separates API keys from session tokens.
const Marker = "glk_"

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func IsAPIKey(token string) bool {
	return strings.HasPrefix(token, Marker)
}

// GenerateSecret returns Marker followed by length random base62 characters.
func GenerateSecret(length int) (string, error) {
	const cutoff = 256 - 256%len(secretAlphabet)

	out := make([]byte, 0, len(Marker)+length)
	out = append(out, Marker...)
	buf := make([]byte, length)
	for len(out) < len(Marker)+length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= cutoff {
				continue
			}
			out = append(out, secretAlphabet[int(b)%len(secretAlphabet)])
			if len(out) == len(Marker)+length {
				break
			}
		}
	}
	return string(out), nil
}

// Hasher computes the stored one-way hash: keyed BLAKE2b-256 over the full secret.
type Hasher struct {
	key []byte
}

func NewHasher(pepper string) *Hasher {
	if pepper == "" {
		return &Hasher{}
	}
	key := []byte(pepper)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Hasher{key: key}
}

func (h *Hasher) Hash(secret string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// only reachable with a key longer than 64 bytes, which NewHasher prevents
		panic(err)
	}
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *Hasher) Matches(secret, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(secret)), []byte(storedHash)) == 1
}

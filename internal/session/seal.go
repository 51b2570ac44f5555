package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealPrefix = "v1."
	keyInfo    = "sassy-web session v1"
)

var errMalformed = errors.New("session: malformed cookie value")

// sealer encrypts and authenticates cookie payloads with XChaCha20-Poly1305.
// The cookie name is bound as associated data.
type sealer struct {
	aead cipher.AEAD
	aad  []byte
}

func newSealer(secret []byte, cookieName string) (*sealer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("session: init cipher: %w", err)
	}
	return &sealer{aead: aead, aad: []byte(cookieName)}, nil
}

func (s *sealer) seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session: nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, s.aad)
	return sealPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *sealer) open(value string) ([]byte, error) {
	if !strings.HasPrefix(value, sealPrefix) {
		return nil, errMalformed
	}
	data, err := base64.RawURLEncoding.DecodeString(value[len(sealPrefix):])
	if err != nil {
		return nil, errMalformed
	}
	if len(data) < s.aead.NonceSize()+s.aead.Overhead() {
		return nil, errMalformed
	}
	nonce, ct := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	return s.aead.Open(nil, nonce, ct, s.aad)
}

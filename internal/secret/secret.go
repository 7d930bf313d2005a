package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrMalformed = errors.New("sealed value is malformed")

// Box seals short secrets (library passwords) for storage. The account is
// bound as associated data, so a sealed value only opens for its owner.
type Box struct{ aead cipher.AEAD }

func New(key []byte) (*Box, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	return &Box{aead: a}, nil
}

// NewKey returns a fresh random key, base64 encoded.
func NewKey() (string, error) {
	k := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(k); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(k), nil
}

func (b *Box) Seal(plaintext, account string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), []byte(account))
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (b *Box) Open(sealed, account string) (string, error) {
	buf, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformed
	}
	ns := b.aead.NonceSize()
	if len(buf) < ns+b.aead.Overhead() {
		return "", ErrMalformed
	}
	pt, err := b.aead.Open(nil, buf[:ns], buf[ns:], []byte(account))
	if err != nil {
		return "", fmt.Errorf("open sealed secret: %w", err)
	}
	return string(pt), nil
}

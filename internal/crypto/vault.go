package crypto

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// Vault encrypts and decrypts stored RCON passwords with Blowfish ECB.
// Ciphertexts travel as base64 so they fit text columns.
type Vault struct {
	cipher *blowfish.Cipher
}

// NewVault creates a Vault from the given key (4..56 bytes).
func NewVault(key []byte) (*Vault, error) {
	c, err := blowfish.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating blowfish cipher: %w", err)
	}
	return &Vault{cipher: c}, nil
}

// Encrypt encrypts plaintext and returns the base64 ciphertext.
// Input is zero-padded to the 8-byte block size.
func (v *Vault) Encrypt(plaintext string) string {
	data := pad([]byte(plaintext))
	for i := 0; i < len(data); i += blowfish.BlockSize {
		v.cipher.Encrypt(data[i:i+blowfish.BlockSize], data[i:i+blowfish.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decrypt decodes and decrypts a base64 ciphertext produced by Encrypt.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	if len(data) == 0 || len(data)%blowfish.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of %d", len(data), blowfish.BlockSize)
	}
	for i := 0; i < len(data); i += blowfish.BlockSize {
		v.cipher.Decrypt(data[i:i+blowfish.BlockSize], data[i:i+blowfish.BlockSize])
	}
	return string(bytes.TrimRight(data, "\x00")), nil
}

func pad(data []byte) []byte {
	rem := len(data) % blowfish.BlockSize
	if rem == 0 && len(data) > 0 {
		return data
	}
	padded := make([]byte, len(data)+blowfish.BlockSize-rem)
	copy(padded, data)
	return padded
}
